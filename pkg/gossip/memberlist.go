package gossip

import (
	"sync"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"

	"github.com/openstack-charmers/charm-interface-ovsdb/pkg/ovsdb"
)

// metaDelegate serves the local unit's relation data as node metadata. The
// bus only uses metadata; user messages and push/pull state are unused.
type metaDelegate struct {
	mu   sync.RWMutex
	data map[string]string
	log  *zap.Logger
}

var _ memberlist.Delegate = (*metaDelegate)(nil)

func (d *metaDelegate) set(key, value string) map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	next := cloneMeta(d.data)
	if value == "" {
		delete(next, key)
	} else {
		next[key] = value
	}
	return next
}

func (d *metaDelegate) commit(data map[string]string) {
	d.mu.Lock()
	d.data = data
	d.mu.Unlock()
}

func (d *metaDelegate) NodeMeta(limit int) []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	buf, err := encodeMeta(d.data, limit)
	if err != nil {
		d.log.Error("dropping node metadata", zap.Error(err))
		return nil
	}
	return buf
}

func (d *metaDelegate) NotifyMsg([]byte)                  {}
func (d *metaDelegate) GetBroadcasts(_, _ int) [][]byte   { return nil }
func (d *metaDelegate) LocalState(bool) []byte            { return nil }
func (d *metaDelegate) MergeRemoteState(_ []byte, _ bool) {}

// translator turns memberlist node events into tracker events for one
// relation. It remembers the last metadata seen per node so updates are
// delivered as changes.
type translator struct {
	relationID string
	self       string
	known      map[string]map[string]string
	log        *zap.Logger
}

func newTranslator(relationID, self string, log *zap.Logger) *translator {
	return &translator{
		relationID: relationID,
		self:       self,
		known:      map[string]map[string]string{},
		log:        log,
	}
}

func (t *translator) translate(ev memberlist.NodeEvent) []ovsdb.Event {
	if ev.Node == nil || ev.Node.Name == t.self {
		return nil
	}
	name := ev.Node.Name
	logger := t.log.With(zap.String("unit", name), zap.Int("event", int(ev.Event)))

	switch ev.Event {
	case memberlist.NodeJoin:
		if _, ok := t.known[name]; ok {
			return t.update(name, ev.Node.Meta, logger)
		}
		data, err := decodeMeta(ev.Node.Meta)
		if err != nil {
			logger.Warn("ignoring node metadata", zap.Error(err))
			data = map[string]string{}
		}
		t.known[name] = data
		evs := []ovsdb.Event{ovsdb.Joined{RelationID: t.relationID, UnitID: name}}
		if len(data) > 0 {
			evs = append(evs, ovsdb.DataPublished{
				RelationID: t.relationID,
				UnitID:     name,
				Data:       cloneMeta(data),
			})
		}
		return evs

	case memberlist.NodeUpdate:
		if _, ok := t.known[name]; !ok {
			logger.Debug("update for unknown node")
			return nil
		}
		return t.update(name, ev.Node.Meta, logger)

	case memberlist.NodeLeave:
		if _, ok := t.known[name]; !ok {
			return nil
		}
		delete(t.known, name)
		return []ovsdb.Event{ovsdb.Departed{RelationID: t.relationID, UnitID: name}}

	default:
		logger.Warn("unknown node event")
		return nil
	}
}

func (t *translator) update(name string, meta []byte, logger *zap.Logger) []ovsdb.Event {
	data, err := decodeMeta(meta)
	if err != nil {
		logger.Warn("ignoring node metadata", zap.Error(err))
		return nil
	}
	changes := diffMeta(t.known[name], data)
	t.known[name] = data
	if len(changes) == 0 {
		return nil
	}
	return []ovsdb.Event{ovsdb.DataPublished{
		RelationID: t.relationID,
		UnitID:     name,
		Data:       changes,
	}}
}
