package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/vrischmann/envconfig"

	"github.com/openstack-charmers/charm-interface-ovsdb/pkg/netbind"
	"github.com/openstack-charmers/charm-interface-ovsdb/pkg/ovsdb"
)

const (
	BusEtcd   = "etcd"
	BusGossip = "gossip"
)

// Config is the agent configuration, read from the environment.
type Config struct {
	LoggerLevel string `envconfig:"LOGGER_LEVEL,default=info"`
	UnitID      string `envconfig:"UNIT_ID"`

	Endpoint   string `envconfig:"OVSDB_ENDPOINT,default=ovsdb-peer"`
	Role       string `envconfig:"OVSDB_ROLE,default=peer"`
	Scheme     string `envconfig:"OVSDB_SCHEME,optional"`
	WireFormat string `envconfig:"OVSDB_WIRE_FORMAT,default=raw"`

	Bus string `envconfig:"BUS,default=etcd"`

	EtcdEndpoints   []string      `envconfig:"ETCD_ENDPOINTS,optional"`
	EtcdDialTimeout time.Duration `envconfig:"ETCD_DIAL_TIMEOUT,default=5s"`
	EtcdLeaseTTL    int64         `envconfig:"ETCD_LEASE_TTL,default=10"`
	RelationID      string        `envconfig:"RELATION_ID,optional"`

	GossipBindAddr      string        `envconfig:"GOSSIP_BIND_ADDR,optional"`
	GossipPort          int           `envconfig:"GOSSIP_PORT,default=7946"`
	GossipProbeInterval time.Duration `envconfig:"GOSSIP_PROBE_INTERVAL,default=1s"`
	GossipProbeTimeout  time.Duration `envconfig:"GOSSIP_PROBE_TIMEOUT,default=500ms"`
	GossipSeeds         []string      `envconfig:"GOSSIP_SEEDS,optional"`

	ExpectedUnits []string `envconfig:"EXPECTED_UNITS,optional"`
	InitialFlags  []string `envconfig:"INITIAL_FLAGS,optional"`

	BindInterfaces  []string `envconfig:"BIND_INTERFACES,optional"`
	BindAddresses   []string `envconfig:"BIND_ADDRESSES,optional"`
	BindTemplate    string   `envconfig:"BIND_TEMPLATE,optional"`
	IncludeLoopback bool     `envconfig:"BIND_INCLUDE_LOOPBACK,default=false"`

	HTTPAddr       string        `envconfig:"HTTP_ADDR,default=:8080"`
	ResyncInterval time.Duration `envconfig:"RESYNC_INTERVAL,default=30s"`
}

// Load reads and validates the configuration.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Init(cfg); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.UnitID == "" {
		errs = append(errs, errors.New("UNIT_ID is required"))
	}
	if _, err := c.TrackerConfig(); err != nil {
		errs = append(errs, err)
	}
	switch c.Bus {
	case BusEtcd:
		if len(c.EtcdEndpoints) == 0 {
			errs = append(errs, errors.New("ETCD_ENDPOINTS is required with the etcd bus"))
		}
		if c.RelationID == "" {
			errs = append(errs, errors.New("RELATION_ID is required with the etcd bus"))
		}
	case BusGossip:
		if c.RelationID == "" {
			errs = append(errs, errors.New("RELATION_ID is required with the gossip bus"))
		}
		if len(c.ExpectedUnits) == 0 {
			errs = append(errs, errors.New("EXPECTED_UNITS is required with the gossip bus"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown BUS %q", c.Bus))
	}
	if len(c.BindAddresses) > 0 && c.BindTemplate != "" {
		errs = append(errs, errors.New("BIND_ADDRESSES and BIND_TEMPLATE are mutually exclusive"))
	}
	return errors.Join(errs...)
}

// TrackerConfig is the tracker preset for the configured role, with the
// scheme and wire format overrides applied.
func (c *Config) TrackerConfig() (ovsdb.Config, error) {
	tc, err := ovsdb.ConfigForRole(c.Role, c.Endpoint)
	if err != nil {
		return ovsdb.Config{}, err
	}
	if c.Scheme != "" {
		tc.Scheme = c.Scheme
	}
	if tc.WireFormat, err = ovsdb.ParseWireFormat(c.WireFormat); err != nil {
		return ovsdb.Config{}, err
	}
	return tc, tc.Validate()
}

// Binder selects how the local bind address is resolved: a fixed list, a
// go-sockaddr template, or the host interfaces.
func (c *Config) Binder() ovsdb.NetworkBinder {
	switch {
	case len(c.BindAddresses) > 0:
		return netbind.StaticBinder{Addresses: c.BindAddresses}
	case c.BindTemplate != "":
		return netbind.TemplateBinder{Template: c.BindTemplate}
	default:
		return netbind.InterfaceBinder{
			Interfaces:      c.BindInterfaces,
			IncludeLoopback: c.IncludeLoopback,
		}
	}
}

// StaticOracle returns the oracle for EXPECTED_UNITS, if set. The units are
// expected peers for a peer quorum and related units otherwise.
func (c *Config) StaticOracle(tc ovsdb.Config) (ovsdb.StaticOracle, bool) {
	if len(c.ExpectedUnits) == 0 {
		return ovsdb.StaticOracle{}, false
	}
	if tc.Quorum == ovsdb.PeerQuorum {
		return ovsdb.StaticOracle{Peers: c.ExpectedUnits}, true
	}
	return ovsdb.StaticOracle{Related: map[string][]string{tc.Endpoint: c.ExpectedUnits}}, true
}
