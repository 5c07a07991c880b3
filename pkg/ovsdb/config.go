package ovsdb

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultScheme is the connection scheme used when none is configured.
const DefaultScheme = "ssl"

// LeadershipReadyFlag is set by the host once leader settings are readable.
// Peers only announce their address after it is set.
const LeadershipReadyFlag = "leadership.set.ready"

// Ports holds the northbound and southbound database ports.
type Ports struct {
	Northbound int
	Southbound int
}

var (
	// ClusterPorts are the ports OVSDB servers use to talk raft to each other.
	ClusterPorts = Ports{Northbound: 6643, Southbound: 6644}
	// ClientPorts are the ports OVSDB clients connect to.
	ClientPorts = Ports{Northbound: 6641, Southbound: 6642}
)

// QuorumPolicy selects which expected-membership query defines the quorum.
type QuorumPolicy uint8

const (
	// PeerQuorum compares against the expected peer units.
	PeerQuorum QuorumPolicy = iota
	// RelatedUnitQuorum compares against the units expected on the endpoint.
	RelatedUnitQuorum
)

func (p QuorumPolicy) String() string {
	switch p {
	case PeerQuorum:
		return "peer"
	case RelatedUnitQuorum:
		return "related"
	default:
		return fmt.Sprintf("QuorumPolicy(%d)", uint8(p))
	}
}

// Config parameterizes a Tracker.
type Config struct {
	// Endpoint names the relation endpoint; flag names derive from it.
	Endpoint   string
	Ports      Ports
	Quorum     QuorumPolicy
	Scheme     string
	WireFormat WireFormat
	// PublishGate, when set, names a flag that must be set before the local
	// address is published.
	PublishGate string
}

// PeerConfig configures the cluster peer relation.
func PeerConfig(endpoint string) Config {
	return Config{
		Endpoint:    endpoint,
		Ports:       ClusterPorts,
		Quorum:      PeerQuorum,
		Scheme:      DefaultScheme,
		PublishGate: LeadershipReadyFlag,
	}
}

// ClientConfig configures the side consuming a remote OVSDB cluster.
func ClientConfig(endpoint string) Config {
	return Config{
		Endpoint: endpoint,
		Ports:    ClientPorts,
		Quorum:   RelatedUnitQuorum,
		Scheme:   DefaultScheme,
	}
}

// ProviderConfig configures the side offering the OVSDB cluster to clients.
func ProviderConfig(endpoint string) Config {
	return Config{
		Endpoint: endpoint,
		Ports:    ClientPorts,
		Quorum:   RelatedUnitQuorum,
		Scheme:   DefaultScheme,
	}
}

// ConfigForRole returns the preset for "peer", "client" or "provider".
func ConfigForRole(role, endpoint string) (Config, error) {
	switch strings.ToLower(role) {
	case "peer":
		return PeerConfig(endpoint), nil
	case "client", "requires":
		return ClientConfig(endpoint), nil
	case "provider", "provides":
		return ProviderConfig(endpoint), nil
	}
	return Config{}, fmt.Errorf("unknown role %q", role)
}

// ConnectedFlag is the flag set while the endpoint has joined units.
func (c Config) ConnectedFlag() string { return c.Endpoint + ".connected" }

// AvailableFlag is the flag set while the cluster has quorum.
func (c Config) AvailableFlag() string { return c.Endpoint + ".available" }

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint name is required"))
	}
	if !validPort(c.Ports.Northbound) {
		errs = append(errs, fmt.Errorf("invalid northbound port %d", c.Ports.Northbound))
	}
	if !validPort(c.Ports.Southbound) {
		errs = append(errs, fmt.Errorf("invalid southbound port %d", c.Ports.Southbound))
	}
	if c.Quorum > RelatedUnitQuorum {
		errs = append(errs, fmt.Errorf("invalid quorum policy %s", c.Quorum))
	}
	if c.WireFormat > WireBracketed {
		errs = append(errs, fmt.Errorf("invalid wire format %s", c.WireFormat))
	}
	return errors.Join(errs...)
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
