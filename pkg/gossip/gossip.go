package gossip

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"

	"github.com/openstack-charmers/charm-interface-ovsdb/pkg/ovsdb"
)

var ErrUnknownRelation = errors.New("relation is not carried by this gossip bus")

const defaultUpdateTimeout = 5 * time.Second

type Config struct {
	NodeName      string
	BindAddr      string
	Port          int
	RelationID    string
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	Seeds         []string
}

// Bus is a memberlist-backed Publisher for a single relation.
type Bus struct {
	list       *memberlist.Memberlist
	meta       *metaDelegate
	relationID string
	seeds      []string
	log        *zap.Logger
}

var _ ovsdb.Publisher = (*Bus)(nil)

// New creates the memberlist and starts translating node events to out
// until ctx is done. The local node is not announced until Join.
func New(ctx context.Context, cfg Config, out chan<- ovsdb.Event, log *zap.Logger) (*Bus, error) {
	const eventBufSize = 256

	if cfg.NodeName == "" {
		return nil, errors.New("gossip node name is required")
	}
	if cfg.RelationID == "" {
		return nil, errors.New("gossip relation id is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("relation", cfg.RelationID), zap.String("node", cfg.NodeName))

	meta := &metaDelegate{data: map[string]string{}, log: log}
	events := make(chan memberlist.NodeEvent, eventBufSize)

	config := memberlist.DefaultLANConfig()
	config.Name = cfg.NodeName
	if cfg.BindAddr != "" {
		config.BindAddr = cfg.BindAddr
	}
	if cfg.Port != 0 {
		config.BindPort = cfg.Port
		config.AdvertisePort = cfg.Port
	}
	if cfg.ProbeInterval > 0 {
		config.ProbeInterval = cfg.ProbeInterval
	}
	if cfg.ProbeTimeout > 0 {
		config.ProbeTimeout = cfg.ProbeTimeout
	}
	config.Logger = zap.NewStdLog(log.Named("memberlist"))
	config.Delegate = meta
	config.Events = &memberlist.ChannelEventDelegate{Ch: events}

	ml, err := memberlist.Create(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}

	tr := newTranslator(cfg.RelationID, cfg.NodeName, log)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, opened := <-events:
				if !opened {
					return
				}
				for _, e := range tr.translate(ev) {
					select {
					case out <- e:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return &Bus{
		list:       ml,
		meta:       meta,
		relationID: cfg.RelationID,
		seeds:      cfg.Seeds,
		log:        log,
	}, nil
}

// Join contacts the seed nodes. With no seeds the local node starts a new
// cluster.
func (b *Bus) Join(ctx context.Context) error {
	if len(b.seeds) == 0 {
		b.log.Info("no gossip seeds, starting a new cluster")
		return nil
	}
	n, err := b.list.Join(b.seeds)
	if err != nil {
		return fmt.Errorf("failed to join memberlist: %w", err)
	}
	b.log.Info("joined gossip cluster", zap.Int("contacted", n), zap.Strings("members", b.Members()))
	return nil
}

// Publish sets key in the local node metadata and gossips the update. An
// empty value removes the key.
func (b *Bus) Publish(ctx context.Context, relationID, key, value string) error {
	if relationID != b.relationID {
		return fmt.Errorf("%w: %s", ErrUnknownRelation, relationID)
	}
	next := b.meta.set(key, value)
	if _, err := encodeMeta(next, memberlist.MetaMaxSize); err != nil {
		return err
	}
	b.meta.commit(next)

	timeout, err := updateTimeout(ctx)
	if err != nil {
		return err
	}
	if err := b.list.UpdateNode(timeout); err != nil {
		return fmt.Errorf("failed to gossip relation data: %w", err)
	}
	return nil
}

// updateTimeout bounds UpdateNode by the ctx deadline, or by
// defaultUpdateTimeout when ctx has none.
func updateTimeout(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return defaultUpdateTimeout, nil
	}
	timeout := time.Until(deadline)
	if timeout <= 0 {
		return 0, context.DeadlineExceeded
	}
	return timeout, nil
}

// Members returns the names of the live cluster members, the local node
// included.
func (b *Bus) Members() []string {
	members := b.list.Members()
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Name)
	}
	return names
}

func (b *Bus) Leave(timeout time.Duration) error {
	b.log.Warn("leaving gossip cluster")
	return b.list.Leave(timeout)
}

func (b *Bus) Shutdown() error {
	return b.list.Shutdown()
}
