package ovsdb

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strings"

	"go.uber.org/zap"
)

type member struct {
	id   string
	data map[string]string
}

// boundAddress returns the member's announced address, formatted.
func (m *member) boundAddress() (string, bool) {
	v, ok := m.data[BoundAddressKey]
	if !ok || v == "" {
		return "", false
	}
	addr, err := DecodeBoundAddress(v)
	if err != nil {
		return "", false
	}
	return addr, true
}

type relation struct {
	id      string
	members []*member
}

func (r *relation) member(id string) (*member, int) {
	for i, m := range r.members {
		if m.id == id {
			return m, i
		}
	}
	return nil, -1
}

// Tracker follows the membership of one endpoint and decides its readiness.
type Tracker struct {
	cfg       Config
	publisher Publisher
	binder    NetworkBinder
	oracle    MembershipOracle
	flags     FlagStore
	log       *zap.Logger

	relations []*relation
	state     State
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker's logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

// NewTracker returns a Tracker in the Disconnected state.
func NewTracker(cfg Config, c Collaborators, opts ...Option) (*Tracker, error) {
	if cfg.Scheme == "" {
		cfg.Scheme = DefaultScheme
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tracker config: %w", err)
	}
	switch {
	case c.Publisher == nil:
		return nil, errors.New("publisher is required")
	case c.Binder == nil:
		return nil, errors.New("network binder is required")
	case c.Oracle == nil:
		return nil, errors.New("membership oracle is required")
	case c.Flags == nil:
		return nil, errors.New("flag store is required")
	}

	t := &Tracker{
		cfg:       cfg,
		publisher: c.Publisher,
		binder:    c.Binder,
		oracle:    c.Oracle,
		flags:     c.Flags,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With(zap.String("endpoint", cfg.Endpoint))
	return t, nil
}

// Config returns the tracker's configuration.
func (t *Tracker) Config() Config { return t.cfg }

// State returns the current state.
func (t *Tracker) State() State { return t.state }

// Handle applies ev.
func (t *Tracker) Handle(ctx context.Context, ev Event) error {
	switch ev := ev.(type) {
	case Joined:
		return t.OnJoined(ctx, ev.RelationID, ev.UnitID)
	case DataPublished:
		return t.OnDataPublished(ctx, ev.RelationID, ev.UnitID, ev.Data)
	case Departed:
		return t.OnDeparted(ctx, ev.RelationID, ev.UnitID)
	case Broken:
		return t.OnBroken(ctx, ev.RelationID)
	default:
		return fmt.Errorf("unsupported event %T", ev)
	}
}

// OnJoined records unitID as joined to relationID, announces the local bind
// address on every relation and re-evaluates readiness.
func (t *Tracker) OnJoined(ctx context.Context, relationID, unitID string) error {
	t.log.Info("unit joined",
		zap.String("relation", relationID),
		zap.String("unit", unitID),
		zap.Stringer("state", t.state),
	)

	rel := t.relation(relationID)
	if rel == nil {
		rel = &relation{id: relationID}
		t.relations = append(t.relations, rel)
	}
	if m, _ := rel.member(unitID); m == nil {
		rel.members = append(rel.members, &member{id: unitID, data: map[string]string{}})
	}

	if err := t.flags.SetFlag(ctx, t.cfg.ConnectedFlag()); err != nil {
		return fmt.Errorf("setting %s: %w", t.cfg.ConnectedFlag(), err)
	}
	if t.state == Disconnected {
		t.state = Connected
	}

	if err := t.publishLocalAddress(ctx); err != nil {
		return err
	}
	return t.evaluate(ctx)
}

// OnDataPublished merges data received from unitID and re-evaluates
// readiness. Data for units that have not joined is ignored.
func (t *Tracker) OnDataPublished(ctx context.Context, relationID, unitID string, data map[string]string) error {
	m := t.lookup(relationID, unitID)
	if t.state == Disconnected || m == nil {
		t.log.Debug("ignoring data from unknown unit",
			zap.String("relation", relationID),
			zap.String("unit", unitID),
			zap.Stringer("state", t.state),
		)
		return nil
	}

	for k, v := range data {
		if v == "" {
			delete(m.data, k)
			continue
		}
		m.data[k] = v
	}
	if v, ok := data[BoundAddressKey]; ok && v != "" {
		if _, err := DecodeBoundAddress(v); err != nil {
			t.log.Warn("unit announced an unusable address",
				zap.String("relation", relationID),
				zap.String("unit", unitID),
				zap.Error(err),
			)
		}
	}
	return t.evaluate(ctx)
}

// OnDeparted forgets unitID and re-evaluates readiness.
func (t *Tracker) OnDeparted(ctx context.Context, relationID, unitID string) error {
	rel := t.relation(relationID)
	if t.state == Disconnected || rel == nil {
		t.log.Debug("ignoring departure from unknown relation",
			zap.String("relation", relationID),
			zap.String("unit", unitID),
		)
		return nil
	}
	if _, i := rel.member(unitID); i >= 0 {
		rel.members = slices.Delete(rel.members, i, i+1)
	}
	t.log.Info("unit departed",
		zap.String("relation", relationID),
		zap.String("unit", unitID),
	)
	return t.evaluate(ctx)
}

// OnBroken forgets the relation, or every relation when relationID is
// empty. Readiness is re-evaluated over the relations that remain; once none
// remain the available and connected flags are cleared. It is safe to call
// repeatedly.
func (t *Tracker) OnBroken(ctx context.Context, relationID string) error {
	t.log.Info("relation broken", zap.String("relation", relationID))

	if relationID == "" {
		t.relations = nil
	} else {
		t.relations = slices.DeleteFunc(t.relations, func(r *relation) bool {
			return r.id == relationID
		})
	}
	if len(t.relations) > 0 {
		return t.evaluate(ctx)
	}
	t.state = Disconnected

	var errs []error
	for _, name := range []string{t.cfg.AvailableFlag(), t.cfg.ConnectedFlag()} {
		if err := t.flags.ClearFlag(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("clearing %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Refresh re-announces the local address and re-evaluates readiness without
// a membership change. Call it when the expected membership, the publish
// gate or the local binding may have changed. It does nothing while
// Disconnected.
func (t *Tracker) Refresh(ctx context.Context) error {
	if t.state == Disconnected {
		return nil
	}
	if err := t.publishLocalAddress(ctx); err != nil {
		return err
	}
	return t.evaluate(ctx)
}

// evaluate moves between Connected and Available.
func (t *Tracker) evaluate(ctx context.Context) error {
	if t.IsQuorumReady(ctx) {
		if t.state != Available {
			t.log.Info("cluster available")
		}
		t.state = Available
		if err := t.flags.SetFlag(ctx, t.cfg.AvailableFlag()); err != nil {
			return fmt.Errorf("setting %s: %w", t.cfg.AvailableFlag(), err)
		}
		return nil
	}

	if t.state != Available {
		return nil
	}
	t.log.Info("cluster lost quorum")
	t.state = Connected
	if err := t.flags.ClearFlag(ctx, t.cfg.AvailableFlag()); err != nil {
		return fmt.Errorf("clearing %s: %w", t.cfg.AvailableFlag(), err)
	}
	return nil
}

// publishLocalAddress writes the local bind address to every relation.
func (t *Tracker) publishLocalAddress(ctx context.Context) error {
	if gate := t.cfg.PublishGate; gate != "" {
		ok, err := t.flags.IsFlagSet(ctx, gate)
		if err != nil {
			return fmt.Errorf("reading %s: %w", gate, err)
		}
		if !ok {
			t.log.Debug("address publication waiting for flag", zap.String("flag", gate))
			return nil
		}
	}

	raw, ok := t.localBindLiteral(ctx)
	if !ok {
		t.log.Info("no local bind address yet")
		return nil
	}
	value, err := EncodeBoundAddress(raw, t.cfg.WireFormat)
	if err != nil {
		return err
	}
	for _, rel := range t.relations {
		if err := t.publisher.Publish(ctx, rel.id, BoundAddressKey, value); err != nil {
			return fmt.Errorf("publishing %s on %s: %w", BoundAddressKey, rel.id, err)
		}
	}
	return nil
}

// LocalBindAddress returns the first valid address bound to the endpoint,
// formatted. Relations are visited in notification order, then interfaces
// and addresses in the order the binder lists them.
func (t *Tracker) LocalBindAddress(ctx context.Context) (string, bool) {
	raw, ok := t.localBindLiteral(ctx)
	if !ok {
		return "", false
	}
	addr, err := FormatAddress(raw)
	if err != nil {
		return "", false
	}
	return addr, true
}

func (t *Tracker) localBindLiteral(ctx context.Context) (string, bool) {
	for _, rel := range t.relations {
		info, err := t.binder.NetworkGet(ctx, t.cfg.Endpoint, rel.id)
		if err != nil {
			t.log.Warn("network-get failed", zap.String("relation", rel.id), zap.Error(err))
			continue
		}
		for _, bind := range info.BindAddresses {
			for _, a := range bind.Addresses {
				if _, err := parseLiteral(a.Address); err != nil {
					continue
				}
				return a.Address, true
			}
		}
	}
	return "", false
}

// RemoteAddresses yields the formatted addresses announced by joined units,
// skipping units with a missing or invalid address. Each call to the
// returned sequence walks the current membership.
func (t *Tracker) RemoteAddresses() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, rel := range t.relations {
			for _, m := range rel.members {
				addr, ok := m.boundAddress()
				if !ok {
					continue
				}
				if !yield(addr) {
					return
				}
			}
		}
	}
}

// ConnectionStrings maps each address to "scheme:address:port". An empty
// scheme means DefaultScheme.
func ConnectionStrings(addrs iter.Seq[string], port int, scheme string) iter.Seq[string] {
	if scheme == "" {
		scheme = DefaultScheme
	}
	return func(yield func(string) bool) {
		for addr := range addrs {
			if !yield(fmt.Sprintf("%s:%s:%d", scheme, addr, port)) {
				return
			}
		}
	}
}

// NorthboundConnections yields a connection string per remote unit for the
// northbound database.
func (t *Tracker) NorthboundConnections() iter.Seq[string] {
	return ConnectionStrings(t.RemoteAddresses(), t.cfg.Ports.Northbound, t.cfg.Scheme)
}

// SouthboundConnections yields a connection string per remote unit for the
// southbound database.
func (t *Tracker) SouthboundConnections() iter.Seq[string] {
	return ConnectionStrings(t.RemoteAddresses(), t.cfg.Ports.Southbound, t.cfg.Scheme)
}

// ConnectionString joins the connection strings for port with commas, the
// form OVN accepts for a clustered remote.
func (t *Tracker) ConnectionString(port int) string {
	return strings.Join(slices.Collect(ConnectionStrings(t.RemoteAddresses(), port, t.cfg.Scheme)), ",")
}

// IsQuorumReady reports whether the distinct joined units are exactly the
// expected units and every joined unit announced a valid address. An empty expected set is
// never ready. Oracle failures count as not ready.
func (t *Tracker) IsQuorumReady(ctx context.Context) bool {
	expected, err := t.expectedUnits(ctx)
	if err != nil {
		t.log.Warn("expected membership unavailable", zap.Error(err))
		return false
	}
	return t.quorumReady(expected)
}

func (t *Tracker) quorumReady(expected []string) bool {
	if len(expected) == 0 {
		return false
	}
	joined := t.joinedUnits()
	if len(joined) != len(expected) {
		return false
	}
	for _, u := range expected {
		if _, ok := joined[u]; !ok {
			return false
		}
	}
	for _, rel := range t.relations {
		for _, m := range rel.members {
			if _, ok := m.boundAddress(); !ok {
				return false
			}
		}
	}
	return true
}

// expectedUnits returns the de-duplicated expected unit ids.
func (t *Tracker) expectedUnits(ctx context.Context) ([]string, error) {
	var (
		units []string
		err   error
	)
	switch t.cfg.Quorum {
	case RelatedUnitQuorum:
		units, err = t.oracle.ExpectedRelatedUnits(ctx, t.cfg.Endpoint)
	default:
		units, err = t.oracle.ExpectedPeerUnits(ctx)
	}
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(units))
	for _, u := range units {
		seen[u] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

// joinedUnits returns the ids of joined units. A unit joined to several
// relations appears once.
func (t *Tracker) joinedUnits() map[string]struct{} {
	units := make(map[string]struct{})
	for _, rel := range t.relations {
		for _, m := range rel.members {
			units[m.id] = struct{}{}
		}
	}
	return units
}

func (t *Tracker) relation(id string) *relation {
	for _, r := range t.relations {
		if r.id == id {
			return r
		}
	}
	return nil
}

func (t *Tracker) lookup(relationID, unitID string) *member {
	rel := t.relation(relationID)
	if rel == nil {
		return nil
	}
	m, _ := rel.member(unitID)
	return m
}
