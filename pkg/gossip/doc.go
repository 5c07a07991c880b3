// Package gossip carries relation membership and relation data over a
// hashicorp/memberlist cluster. Every member of the cluster is a unit of a
// single relation: the node name is the unit id and the node metadata holds
// the unit's published relation data.
//
// Typical usage:
//
//	events := make(chan ovsdb.Event, 64)
//	bus, _ := gossip.New(ctx, gossip.Config{NodeName: "ovn-central/0", RelationID: "ovsdb-peer:0"}, events, log)
//	_ = bus.Join(ctx)
//	defer bus.Shutdown()
//
// The bus is a Publisher for the tracker. Membership changes are translated
// to tracker events and written to the events channel.
package gossip
