package gossip

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Node metadata is the JSON encoding of the unit's relation data, bounded by
// memberlist.MetaMaxSize.

func encodeMeta(data map[string]string, limit int) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	buf, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode relation data: %w", err)
	}
	if len(buf) > limit {
		return nil, fmt.Errorf("relation data is %d bytes, limit is %d", len(buf), limit)
	}
	return buf, nil
}

func decodeMeta(buf []byte) (map[string]string, error) {
	data := map[string]string{}
	if len(buf) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(buf, &data); err != nil {
		return nil, fmt.Errorf("failed to decode relation data: %w", err)
	}
	return data, nil
}

// diffMeta returns the changes turning prev into next. Removed keys map to
// the empty string.
func diffMeta(prev, next map[string]string) map[string]string {
	changes := map[string]string{}
	for k, v := range next {
		if old, ok := prev[k]; !ok || old != v {
			changes[k] = v
		}
	}
	for k := range prev {
		if _, ok := next[k]; !ok {
			changes[k] = ""
		}
	}
	return changes
}

func cloneMeta(data map[string]string) map[string]string {
	if data == nil {
		return map[string]string{}
	}
	return maps.Clone(data)
}
