package node

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/openstack-charmers/charm-interface-ovsdb/pkg/flags"
	"github.com/openstack-charmers/charm-interface-ovsdb/pkg/netbind"
	"github.com/openstack-charmers/charm-interface-ovsdb/pkg/ovsdb"
)

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, string, string) error { return nil }

func newTestNode(t *testing.T) (*Node, *flags.Store) {
	t.Helper()
	store := flags.NewStore(ovsdb.LeadershipReadyFlag)
	tr, err := ovsdb.NewTracker(ovsdb.PeerConfig("ovsdb-peer"), ovsdb.Collaborators{
		Publisher: nopPublisher{},
		Binder:    netbind.StaticBinder{Addresses: []string{"10.0.0.9"}},
		Oracle:    ovsdb.StaticOracle{Peers: []string{"ovn-central/1", "ovn-central/2"}},
		Flags:     store,
	}, ovsdb.WithLogger(zaptest.NewLogger(t)))
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	return NewNode(tr, zaptest.NewLogger(t), 0), store
}

func clusterEvents() []ovsdb.Event {
	return []ovsdb.Event{
		ovsdb.Joined{RelationID: "ovsdb-peer:0", UnitID: "ovn-central/1"},
		ovsdb.Joined{RelationID: "ovsdb-peer:0", UnitID: "ovn-central/2"},
		ovsdb.DataPublished{RelationID: "ovsdb-peer:0", UnitID: "ovn-central/1", Data: map[string]string{ovsdb.BoundAddressKey: "10.0.0.1"}},
		ovsdb.DataPublished{RelationID: "ovsdb-peer:0", UnitID: "ovn-central/2", Data: map[string]string{ovsdb.BoundAddressKey: "fd00::2"}},
	}
}

func TestRun_AppliesEventsInOrder(t *testing.T) {
	n, store := newTestNode(t)

	events := make(chan ovsdb.Event, 8)
	for _, ev := range clusterEvents() {
		events <- ev
	}
	close(events)

	if err := n.Run(context.Background(), events); err != nil {
		t.Fatalf("Run: %v", err)
	}

	st := n.Status()
	if st.State != ovsdb.Available || !st.Ready {
		t.Fatalf("status = %+v, want available and ready", st)
	}
	if diff := cmp.Diff([]string{"ssl:10.0.0.1:6643", "ssl:[fd00::2]:6643"}, st.Northbound); diff != "" {
		t.Fatalf("northbound (-want +got):\n%s", diff)
	}
	if st.LocalAddress != "10.0.0.9" {
		t.Fatalf("local address = %q", st.LocalAddress)
	}
	if ok, _ := store.IsFlagSet(context.Background(), "ovsdb-peer.available"); !ok {
		t.Fatal("available flag not set")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	n, _ := newTestNode(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Run(ctx, make(chan ovsdb.Event)); err != context.Canceled {
		t.Fatalf("Run = %v, want context.Canceled", err)
	}
}

func TestHandlers(t *testing.T) {
	n, _ := newTestNode(t)

	rec := httptest.NewRecorder()
	n.Endpoints(rec, httptest.NewRequest(http.MethodGet, "/endpoints", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("/endpoints before quorum = %d, want 503", rec.Code)
	}

	for _, ev := range clusterEvents() {
		n.handle(context.Background(), ev)
	}

	rec = httptest.NewRecorder()
	n.Endpoints(rec, httptest.NewRequest(http.MethodGet, "/endpoints", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("/endpoints = %d: %s", rec.Code, rec.Body.String())
	}
	var got EndpointsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	want := EndpointsResponse{
		Endpoint:   "ovsdb-peer",
		Addresses:  []string{"10.0.0.1", "[fd00::2]"},
		Northbound: "ssl:10.0.0.1:6643,ssl:[fd00::2]:6643",
		Southbound: "ssl:10.0.0.1:6644,ssl:[fd00::2]:6644",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("/endpoints (-want +got):\n%s", diff)
	}

	rec = httptest.NewRecorder()
	n.Info(rec, httptest.NewRequest(http.MethodGet, "/info", nil))
	var info struct {
		PID    int `json:"pid"`
		Status struct {
			State   string `json:"state"`
			Members []any  `json:"members"`
		} `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info.PID == 0 || info.Status.State != "available" || len(info.Status.Members) != 2 {
		t.Fatalf("/info = %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	n.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("/healthz = %d %q", rec.Code, rec.Body.String())
	}
}

func TestNormalizeHostPort(t *testing.T) {
	for in, want := range map[string]string{
		"localhost":              "localhost:8080",
		"http://10.0.0.1":        "10.0.0.1:8080",
		"https://10.0.0.1:9000/": "10.0.0.1:9000",
		"fd00::1":                "[fd00::1]:8080",
		"[fd00::1]":              "[fd00::1]:8080",
		"[fd00::1]:9000":         "[fd00::1]:9000",
	} {
		if got := NormalizeHostPort(in, "8080"); got != want {
			t.Fatalf("NormalizeHostPort(%q) = %q, want %q", in, got, want)
		}
	}
}
