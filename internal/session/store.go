package session

import (
	"context"
	"sync"
)

// Store maps charge point ids to sessions. Implementations must support
// concurrent access to different keys without a global lock bottleneck;
// non-local implementations may perform I/O, so every operation takes a
// context.
type Store interface {
	// Set stores the session under the given id. A nil session deletes the
	// entry.
	Set(ctx context.Context, clientID string, s *Session) error

	// Get returns the session for the id. The second return value reports
	// whether an entry existed.
	Get(ctx context.Context, clientID string) (*Session, bool, error)

	// Has reports whether an entry exists for the id.
	Has(ctx context.Context, clientID string) (bool, error)
}

// MemoryStore is the reference in-process Store.
type MemoryStore struct {
	m sync.Map // clientID → *Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (ms *MemoryStore) Set(_ context.Context, clientID string, s *Session) error {
	if s == nil {
		ms.m.Delete(clientID)
		return nil
	}
	ms.m.Store(clientID, s)
	return nil
}

func (ms *MemoryStore) Get(_ context.Context, clientID string) (*Session, bool, error) {
	v, ok := ms.m.Load(clientID)
	if !ok {
		return nil, false, nil
	}
	return v.(*Session), true, nil
}

func (ms *MemoryStore) Has(_ context.Context, clientID string) (bool, error) {
	_, ok := ms.m.Load(clientID)
	return ok, nil
}
