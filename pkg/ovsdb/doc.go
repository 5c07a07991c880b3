// Package ovsdb tracks the members of an OVSDB cluster relation, announces
// the address the local OVSDB servers are bound to and decides when the
// cluster is available to consumers.
//
// A Tracker is fed membership events (Joined, DataPublished, Departed and
// Broken) one at a time by its owner. It keeps the joined members of every
// relation in arrival order, publishes the local "bound-address" on each
// relation and sets the "<endpoint>.connected" and "<endpoint>.available"
// flags in an injected FlagStore.
//
// Typical usage:
//
//	t, _ := ovsdb.NewTracker(ovsdb.PeerConfig("ovsdb-peer"), ovsdb.Collaborators{
//		Publisher: bus,
//		Binder:    binder,
//		Oracle:    oracle,
//		Flags:     flags,
//	})
//	for ev := range events {
//		_ = t.Handle(ctx, ev)
//	}
//
// A Tracker is not safe for concurrent use.
package ovsdb
