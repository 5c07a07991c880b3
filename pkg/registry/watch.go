package registry

import (
	"context"
	"fmt"
	"maps"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/openstack-charmers/charm-interface-ovsdb/pkg/ovsdb"
)

type unitRef struct {
	relation string
	unit     string
}

type unitState struct {
	present bool
	data    map[string]string
}

// Watch bootstraps the current relation state and then streams changes to
// out as tracker events until ctx is done. Events are sent in etcd revision
// order.
func (r *Registry) Watch(ctx context.Context, out chan<- ovsdb.Event) error {
	prefix := relationsFolder(r.endpoint)
	logger := r.log.With(zap.String("prefix", prefix))

	resp, err := r.cli.Get(
		ctx,
		prefix,
		clientv3.WithPrefix(),
		clientv3.WithSort(clientv3.SortByModRevision, clientv3.SortAscend),
	)
	if err != nil {
		return fmt.Errorf("failed to bootstrap relations: %w", err)
	}
	r.units = map[unitRef]*unitState{}
	for _, kv := range resp.Kvs {
		if err := send(ctx, out, r.translate(mvccpb.PUT, kv)); err != nil {
			return err
		}
	}
	logger.Info("bootstrapped relations", zap.Int("keys", len(resp.Kvs)), zap.Int64("revision", resp.Header.Revision))

	watchChan := r.cli.Watch(
		clientv3.WithRequireLeader(ctx),
		prefix,
		clientv3.WithPrefix(),
		clientv3.WithRev(resp.Header.Revision+1),
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case wresp, ok := <-watchChan:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errWatchClosed
			}
			if err := wresp.Err(); err != nil {
				return fmt.Errorf("watch failure: %w", err)
			}
			for _, ev := range wresp.Events {
				if err := send(ctx, out, r.translate(ev.Type, ev.Kv)); err != nil {
					return err
				}
			}
		}
	}
}

// translate turns one key change into tracker events. Data written before a
// unit's presence key is held back and delivered right after its Joined.
func (r *Registry) translate(typ mvccpb.Event_EventType, kv *mvccpb.KeyValue) []ovsdb.Event {
	relationID, unitID, field, ok := parseUnitKey(r.endpoint, string(kv.Key))
	if !ok {
		r.log.Debug("skipping foreign key", zap.ByteString("key", kv.Key))
		return nil
	}
	ref := unitRef{relation: relationID, unit: unitID}
	st, known := r.units[ref]
	if !known {
		st = &unitState{data: map[string]string{}}
		r.units[ref] = st
	}
	self := unitID == r.unit

	switch {
	case field == presenceField && typ == mvccpb.PUT:
		if st.present {
			return nil
		}
		st.present = true
		if self {
			return nil
		}
		evs := []ovsdb.Event{ovsdb.Joined{RelationID: relationID, UnitID: unitID}}
		if len(st.data) > 0 {
			evs = append(evs, ovsdb.DataPublished{
				RelationID: relationID,
				UnitID:     unitID,
				Data:       maps.Clone(st.data),
			})
		}
		return evs

	case field == presenceField && typ == mvccpb.DELETE:
		delete(r.units, ref)
		if self {
			return []ovsdb.Event{ovsdb.Broken{RelationID: relationID}}
		}
		if !st.present {
			return nil
		}
		return []ovsdb.Event{ovsdb.Departed{RelationID: relationID, UnitID: unitID}}

	case typ == mvccpb.PUT:
		value := string(kv.Value)
		st.data[field] = value
		if !st.present || self {
			return nil
		}
		return []ovsdb.Event{ovsdb.DataPublished{
			RelationID: relationID,
			UnitID:     unitID,
			Data:       map[string]string{field: value},
		}}

	default:
		delete(st.data, field)
		if !st.present || self {
			if !st.present && len(st.data) == 0 {
				delete(r.units, ref)
			}
			return nil
		}
		return []ovsdb.Event{ovsdb.DataPublished{
			RelationID: relationID,
			UnitID:     unitID,
			Data:       map[string]string{field: ""},
		}}
	}
}

func send(ctx context.Context, out chan<- ovsdb.Event, evs []ovsdb.Event) error {
	for _, ev := range evs {
		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
