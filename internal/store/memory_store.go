package store

import (
	"context"
	"sync"

	"github.com/dunamismax/pixelsuffix/internal/capability"
)

type MemoryStore struct {
	mu      sync.RWMutex
	entries capability.Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(capability.Snapshot),
	}
}

func (s *MemoryStore) Load(context.Context) (capability.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(capability.Snapshot, len(s.entries))
	for c, state := range s.entries {
		out[c] = state
	}
	return out, nil
}

func (s *MemoryStore) Save(_ context.Context, c capability.Capability, supported bool) error {
	if err := validate(c); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[c]; ok {
		return nil
	}
	s.entries[c] = capability.FromBool(supported)
	return nil
}
