package ovsdb

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"
)

type fakeFlags struct {
	set map[string]bool
	err error
}

func newFakeFlags(initial ...string) *fakeFlags {
	f := &fakeFlags{set: map[string]bool{}}
	for _, name := range initial {
		f.set[name] = true
	}
	return f
}

func (f *fakeFlags) SetFlag(_ context.Context, name string) error {
	if f.err != nil {
		return f.err
	}
	f.set[name] = true
	return nil
}

func (f *fakeFlags) ClearFlag(_ context.Context, name string) error {
	if f.err != nil {
		return f.err
	}
	delete(f.set, name)
	return nil
}

func (f *fakeFlags) IsFlagSet(_ context.Context, name string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.set[name], nil
}

type publication struct {
	Relation, Key, Value string
}

type fakePublisher struct {
	published []publication
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, relationID, key, value string) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, publication{relationID, key, value})
	return nil
}

// fakeBinder answers network-get per relation id.
type fakeBinder struct {
	info  map[string]NetworkInfo
	fails map[string]bool
}

func (b *fakeBinder) NetworkGet(_ context.Context, _, relationID string) (NetworkInfo, error) {
	if b.fails[relationID] {
		return NetworkInfo{}, errors.New("network-get: no binding")
	}
	return b.info[relationID], nil
}

func bindTo(addrs ...string) NetworkInfo {
	bind := BindAddress{InterfaceName: "eth0"}
	for _, a := range addrs {
		bind.Addresses = append(bind.Addresses, InterfaceAddress{Address: a})
	}
	return NetworkInfo{BindAddresses: []BindAddress{bind}}
}

type failingOracle struct{}

func (failingOracle) ExpectedPeerUnits(context.Context) ([]string, error) {
	return nil, errors.New("goal state unavailable")
}

func (failingOracle) ExpectedRelatedUnits(context.Context, string) ([]string, error) {
	return nil, errors.New("goal state unavailable")
}

type harness struct {
	tracker   *Tracker
	flags     *fakeFlags
	publisher *fakePublisher
	binder    *fakeBinder
}

// newHarness builds a peer-quorum tracker without a publication gate whose
// relations are all bound to local.
func newHarness(t testing.TB, expected []string, local ...string) *harness {
	t.Helper()

	cfg := PeerConfig("ovsdb-peer")
	cfg.PublishGate = ""

	h := &harness{
		flags:     newFakeFlags(),
		publisher: &fakePublisher{},
		binder:    &fakeBinder{info: map[string]NetworkInfo{}},
	}
	for _, rel := range []string{"peer:1", "peer:2"} {
		h.binder.info[rel] = bindTo(local...)
	}

	tr, err := NewTracker(cfg, Collaborators{
		Publisher: h.publisher,
		Binder:    h.binder,
		Oracle:    StaticOracle{Peers: expected},
		Flags:     h.flags,
	}, WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	h.tracker = tr
	return h
}

func (h *harness) must(t testing.TB, ev Event) {
	t.Helper()
	if err := h.tracker.Handle(context.Background(), ev); err != nil {
		t.Fatalf("Handle(%#v): %v", ev, err)
	}
}

func (h *harness) announce(t testing.TB, relationID, unitID, addr string) {
	t.Helper()
	h.must(t, DataPublished{
		RelationID: relationID,
		UnitID:     unitID,
		Data:       map[string]string{BoundAddressKey: addr},
	})
}
