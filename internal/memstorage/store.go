package memstorage

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/specialistvlad/scriptloader/internal/storage"
)

// Store is an in-memory implementation of storage.Storage using sync.Map.
//
// An optional failure hook lets tests simulate an unavailable backend.
type Store struct {
	items   sync.Map // Key: storage key, Value: string
	sets    atomic.Int64
	removes atomic.Int64

	mu      sync.RWMutex
	failSet error
}

var _ storage.Storage = (*Store)(nil)

// New creates a new, empty in-memory store.
func New() *Store {
	return &Store{}
}

// GetItem retrieves the value stored under key.
func (s *Store) GetItem(ctx context.Context, key string) (string, bool, error) {
	v, ok := s.items.Load(key)
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

// SetItem stores value under key.
func (s *Store) SetItem(ctx context.Context, key, value string) error {
	s.mu.RLock()
	failSet := s.failSet
	s.mu.RUnlock()
	if failSet != nil {
		return failSet
	}
	s.items.Store(key, value)
	s.sets.Add(1)
	return nil
}

// RemoveItem deletes key.
func (s *Store) RemoveItem(ctx context.Context, key string) error {
	s.items.Delete(key)
	s.removes.Add(1)
	return nil
}

// FailSets makes every subsequent SetItem return err. A nil err restores
// normal behavior.
func (s *Store) FailSets(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSet = err
}

// SetCount returns how many successful SetItem calls were made.
func (s *Store) SetCount() int {
	return int(s.sets.Load())
}

// RemoveCount returns how many RemoveItem calls were made.
func (s *Store) RemoveCount() int {
	return int(s.removes.Load())
}
