package flags

import (
	"context"
	"sync"

	"github.com/openstack-charmers/charm-interface-ovsdb/pkg/ovsdb"
)

// Store is an in-memory ovsdb.FlagStore. Flags live as long as the process.
type Store struct {
	mu   sync.RWMutex
	data map[string]struct{}
}

var _ ovsdb.FlagStore = (*Store)(nil)

func NewStore(initial ...string) *Store {
	s := &Store{data: make(map[string]struct{}, len(initial))}
	for _, name := range initial {
		s.data[name] = struct{}{}
	}
	return s
}

func (s *Store) SetFlag(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = struct{}{}
	return nil
}

func (s *Store) ClearFlag(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, name)
	return nil
}

func (s *Store) IsFlagSet(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[name]
	return ok, nil
}
