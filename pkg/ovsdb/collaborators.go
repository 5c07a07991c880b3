package ovsdb

import "context"

// BoundAddressKey is the relation data key a unit announces its OVSDB bind
// address under.
const BoundAddressKey = "bound-address"

// InterfaceAddress is one address bound to a network interface.
type InterfaceAddress struct {
	Address  string `json:"address"`
	CIDR     string `json:"cidr,omitempty"`
	Hostname string `json:"hostname,omitempty"`
}

// BindAddress groups the addresses of one interface bound to an endpoint.
type BindAddress struct {
	InterfaceName string             `json:"interface-name,omitempty"`
	MACAddress    string             `json:"mac-address,omitempty"`
	Addresses     []InterfaceAddress `json:"addresses"`
}

// NetworkInfo describes the network binding of an endpoint for a relation.
type NetworkInfo struct {
	BindAddresses    []BindAddress `json:"bind-addresses"`
	EgressSubnets    []string      `json:"egress-subnets,omitempty"`
	IngressAddresses []string      `json:"ingress-addresses,omitempty"`
}

// Publisher writes the local unit's key/value data to a relation.
type Publisher interface {
	Publish(ctx context.Context, relationID, key, value string) error
}

// NetworkBinder reports the addresses an endpoint is bound to.
type NetworkBinder interface {
	NetworkGet(ctx context.Context, endpoint, relationID string) (NetworkInfo, error)
}

// MembershipOracle reports the units expected to eventually join. It is
// queried on every readiness check.
type MembershipOracle interface {
	ExpectedPeerUnits(ctx context.Context) ([]string, error)
	ExpectedRelatedUnits(ctx context.Context, endpoint string) ([]string, error)
}

// FlagStore persists boolean flags. All operations are idempotent.
type FlagStore interface {
	SetFlag(ctx context.Context, name string) error
	ClearFlag(ctx context.Context, name string) error
	IsFlagSet(ctx context.Context, name string) (bool, error)
}

// Collaborators bundles the external dependencies of a Tracker.
type Collaborators struct {
	Publisher Publisher
	Binder    NetworkBinder
	Oracle    MembershipOracle
	Flags     FlagStore
}

// StaticOracle is a MembershipOracle over fixed unit lists.
type StaticOracle struct {
	Peers   []string
	Related map[string][]string
}

var _ MembershipOracle = StaticOracle{}

func (o StaticOracle) ExpectedPeerUnits(context.Context) ([]string, error) {
	return o.Peers, nil
}

func (o StaticOracle) ExpectedRelatedUnits(_ context.Context, endpoint string) ([]string, error) {
	return o.Related[endpoint], nil
}
