package node

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/openstack-charmers/charm-interface-ovsdb/internal/telemetry"
	"github.com/openstack-charmers/charm-interface-ovsdb/pkg/ovsdb"
)

// Node owns a Tracker. Events are applied one at a time by Run; HTTP
// handlers only read the last published snapshot.
type Node struct {
	tracker *ovsdb.Tracker
	log     *zap.Logger
	resync  time.Duration

	status atomic.Pointer[ovsdb.Status]
}

// NewNode wraps tracker. A positive resync makes Run call Tracker.Refresh on
// that interval so changes of the expected membership are noticed without a
// membership event.
func NewNode(tracker *ovsdb.Tracker, log *zap.Logger, resync time.Duration) *Node {
	if log == nil {
		log = zap.NewNop()
	}
	n := &Node{
		tracker: tracker,
		log:     log,
		resync:  resync,
	}
	n.status.Store(&ovsdb.Status{
		Endpoint:        tracker.Config().Endpoint,
		State:           tracker.State(),
		Members:         []ovsdb.Member{},
		RemoteAddresses: []string{},
		Northbound:      []string{},
		Southbound:      []string{},
	})
	return n
}

// Run applies events until ctx is done or events is closed.
func (n *Node) Run(ctx context.Context, events <-chan ovsdb.Event) error {
	var tick <-chan time.Time
	if n.resync > 0 {
		ticker := time.NewTicker(n.resync)
		defer ticker.Stop()
		tick = ticker.C
	}

	n.refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				n.log.Info("event source closed")
				return nil
			}
			n.handle(ctx, ev)
		case <-tick:
			if err := n.tracker.Refresh(ctx); err != nil {
				n.log.Error("resync failed", zap.Error(err))
			}
			n.refresh(ctx)
		}
	}
}

func (n *Node) handle(ctx context.Context, ev ovsdb.Event) {
	before := n.tracker.State()
	err := n.tracker.Handle(ctx, ev)
	telemetry.ObserveEvent(ev, err)
	if err != nil {
		n.log.Error("event failed", zap.String("kind", ev.Kind()), zap.Any("event", ev), zap.Error(err))
	}
	if after := n.tracker.State(); after != before {
		n.log.Info("state changed", zap.Stringer("from", before), zap.Stringer("to", after))
	}
	n.refresh(ctx)
}

func (n *Node) refresh(ctx context.Context) {
	st := n.tracker.Status(ctx)
	n.status.Store(&st)
	telemetry.ObserveStatus(st)
}

// Status returns the last snapshot taken by Run.
func (n *Node) Status() ovsdb.Status {
	return *n.status.Load()
}
