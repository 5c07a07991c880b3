package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/openstack-charmers/charm-interface-ovsdb/pkg/ovsdb"
)

const flagValue = "1"

// NewClient dials the etcd cluster.
func NewClient(endpoints []string, dialTimeout time.Duration) (*clientv3.Client, error) {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}
	return cli, nil
}

// Registry exchanges relation data for one endpoint through etcd. It is the
// event source, Publisher, MembershipOracle and FlagStore of an etcd-backed
// deployment.
type Registry struct {
	cli      *clientv3.Client
	endpoint string
	unit     string
	ttl      int64
	log      *zap.Logger

	leaseID clientv3.LeaseID

	// owned by Watch
	units map[unitRef]*unitState
}

var (
	_ ovsdb.Publisher        = (*Registry)(nil)
	_ ovsdb.MembershipOracle = (*Registry)(nil)
	_ ovsdb.FlagStore        = (*Registry)(nil)
)

func New(cli *clientv3.Client, endpoint, unitID string, ttl int64, log *zap.Logger) *Registry {
	if ttl <= 0 {
		ttl = 10
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		cli:      cli,
		endpoint: endpoint,
		unit:     unitID,
		ttl:      ttl,
		log:      log.With(zap.String("endpoint", endpoint), zap.String("unit", unitID)),
	}
}

// Register joins the local unit to relationID. Presence and published data
// are bound to a lease kept alive until ctx is done or Revoke is called.
func (r *Registry) Register(ctx context.Context, relationID string) error {
	if r.leaseID == clientv3.NoLease {
		lease, err := r.cli.Grant(ctx, r.ttl)
		if err != nil {
			return fmt.Errorf("failed to grant lease: %w", err)
		}
		keepAlive, err := r.cli.KeepAlive(ctx, lease.ID)
		if err != nil {
			return fmt.Errorf("failed to keep lease alive: %w", err)
		}
		r.leaseID = lease.ID
		go func() {
			for range keepAlive {
			}
			r.log.Warn("lease keep-alive stopped", zap.Int64("lease", int64(lease.ID)))
		}()
	}

	key := unitKey(r.endpoint, relationID, r.unit, presenceField)
	if _, err := r.cli.Put(ctx, key, r.unit, clientv3.WithLease(r.leaseID)); err != nil {
		return fmt.Errorf("failed to register unit on %s: %w", relationID, err)
	}
	r.log.Info("registered", zap.String("relation", relationID), zap.String("key", key))
	return nil
}

// Revoke drops the lease, removing the local unit from every relation.
func (r *Registry) Revoke(ctx context.Context) error {
	if r.leaseID == clientv3.NoLease {
		return nil
	}
	_, err := r.cli.Revoke(ctx, r.leaseID)
	r.leaseID = clientv3.NoLease
	if err != nil {
		return fmt.Errorf("failed to revoke lease: %w", err)
	}
	return nil
}

// Publish writes key for the local unit on relationID. An empty value
// deletes the key.
func (r *Registry) Publish(ctx context.Context, relationID, key, value string) error {
	k := unitKey(r.endpoint, relationID, r.unit, key)
	if value == "" {
		if _, err := r.cli.Delete(ctx, k); err != nil {
			return fmt.Errorf("failed to delete %s: %w", k, err)
		}
		return nil
	}
	opts := []clientv3.OpOption{}
	if r.leaseID != clientv3.NoLease {
		opts = append(opts, clientv3.WithLease(r.leaseID))
	}
	if _, err := r.cli.Put(ctx, k, value, opts...); err != nil {
		return fmt.Errorf("failed to put %s: %w", k, err)
	}
	return nil
}

func (r *Registry) ExpectedPeerUnits(ctx context.Context) ([]string, error) {
	return r.expected(ctx, expectedFolder(r.endpoint, expectedPeers))
}

func (r *Registry) ExpectedRelatedUnits(ctx context.Context, endpoint string) ([]string, error) {
	return r.expected(ctx, expectedFolder(endpoint, expectedRelated))
}

func (r *Registry) expected(ctx context.Context, folder string) ([]string, error) {
	resp, err := r.cli.Get(ctx, folder, clientv3.WithPrefix(), clientv3.WithKeysOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", folder, err)
	}
	units := make([]string, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		unitID, ok := parseExpectedKey(folder, string(kv.Key))
		if !ok {
			r.log.Debug("skipping malformed expected-unit key", zap.ByteString("key", kv.Key))
			continue
		}
		units = append(units, unitID)
	}
	return units, nil
}

// SetExpected replaces the expected units of kind ("peers" or "related").
func (r *Registry) SetExpected(ctx context.Context, kind string, units []string) error {
	if kind != expectedPeers && kind != expectedRelated {
		return fmt.Errorf("unknown expected-unit kind %q", kind)
	}
	folder := expectedFolder(r.endpoint, kind)
	ops := []clientv3.Op{clientv3.OpDelete(folder, clientv3.WithPrefix())}
	for _, u := range units {
		ops = append(ops, clientv3.OpPut(expectedKey(r.endpoint, kind, u), u))
	}
	if _, err := r.cli.Txn(ctx).Then(ops...).Commit(); err != nil {
		return fmt.Errorf("failed to write expected units: %w", err)
	}
	return nil
}

func (r *Registry) SetFlag(ctx context.Context, name string) error {
	if _, err := r.cli.Put(ctx, flagKey(r.endpoint, r.unit, name), flagValue); err != nil {
		return fmt.Errorf("failed to set flag %s: %w", name, err)
	}
	return nil
}

func (r *Registry) ClearFlag(ctx context.Context, name string) error {
	if _, err := r.cli.Delete(ctx, flagKey(r.endpoint, r.unit, name)); err != nil {
		return fmt.Errorf("failed to clear flag %s: %w", name, err)
	}
	return nil
}

func (r *Registry) IsFlagSet(ctx context.Context, name string) (bool, error) {
	resp, err := r.cli.Get(ctx, flagKey(r.endpoint, r.unit, name), clientv3.WithCountOnly())
	if err != nil {
		return false, fmt.Errorf("failed to read flag %s: %w", name, err)
	}
	return resp.Count > 0, nil
}

var errWatchClosed = errors.New("etcd watch channel closed")
