package speakermem

import (
	"context"
	"slices"
	"sync"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// It is suitable for dry runs and testing. The zero value is ready to use.
type MemStore struct {
	mu    sync.Mutex
	refs  []Reference
	saves int

	// SaveErr, when set, is returned by every Save call.
	SaveErr error
}

// NewMemStore returns a [MemStore] pre-populated with refs.
func NewMemStore(refs ...Reference) *MemStore {
	return &MemStore{refs: slices.Clone(refs)}
}

// Load implements [Store.Load].
func (s *MemStore) Load(ctx context.Context) ([]Reference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.refs), nil
}

// Save implements [Store.Save].
func (s *MemStore) Save(ctx context.Context, refs []Reference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.refs = slices.Clone(refs)
	s.saves++
	return nil
}

// Saves returns how many successful Save calls were made.
func (s *MemStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
