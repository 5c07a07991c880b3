package ovsdb

import (
	"context"

	"go.uber.org/zap"
)

// Member is a read-only view of a joined unit.
type Member struct {
	RelationID   string `json:"relation"`
	UnitID       string `json:"unit"`
	BoundAddress string `json:"bound_address,omitempty"`
}

// Status is a point-in-time snapshot of a Tracker. It shares no memory with
// the tracker.
type Status struct {
	Endpoint         string   `json:"endpoint"`
	State            State    `json:"state"`
	Relations        int      `json:"relations"`
	Members          []Member `json:"members"`
	Expected         int      `json:"expected"`
	Ready            bool     `json:"ready"`
	LocalAddress     string   `json:"local_address,omitempty"`
	RemoteAddresses  []string `json:"remote_addresses"`
	// SkippedAddresses counts announced addresses that do not parse. Units
	// that have not announced one are not counted.
	SkippedAddresses int      `json:"skipped_addresses"`
	Northbound       []string `json:"northbound"`
	Southbound       []string `json:"southbound"`
}

// Status returns a snapshot of the tracker.
func (t *Tracker) Status(ctx context.Context) Status {
	st := Status{
		Endpoint:        t.cfg.Endpoint,
		State:           t.state,
		Relations:       len(t.relations),
		Members:         []Member{},
		RemoteAddresses: []string{},
		Northbound:      []string{},
		Southbound:      []string{},
	}

	for _, rel := range t.relations {
		for _, m := range rel.members {
			if addr, ok := m.boundAddress(); ok {
				st.RemoteAddresses = append(st.RemoteAddresses, addr)
			} else if m.data[BoundAddressKey] != "" {
				st.SkippedAddresses++
			}
			st.Members = append(st.Members, Member{
				RelationID:   rel.id,
				UnitID:       m.id,
				BoundAddress: m.data[BoundAddressKey],
			})
		}
	}

	for s := range t.NorthboundConnections() {
		st.Northbound = append(st.Northbound, s)
	}
	for s := range t.SouthboundConnections() {
		st.Southbound = append(st.Southbound, s)
	}

	if addr, ok := t.LocalBindAddress(ctx); ok {
		st.LocalAddress = addr
	}

	expected, err := t.expectedUnits(ctx)
	if err != nil {
		t.log.Warn("expected membership unavailable", zap.Error(err))
		return st
	}
	st.Expected = len(expected)
	st.Ready = t.quorumReady(expected)
	return st
}
