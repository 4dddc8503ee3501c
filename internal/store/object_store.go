package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dunamismax/pixelsuffix/internal/capability"
)

// ObjectClient is the subset of storage.Client the object store needs.
type ObjectClient interface {
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
}

// ObjectStore keeps the snapshot as one JSON object, e.g.
// {"animation":"false","lossy":"true"}. Writes are serialized per process
// only; concurrent writers in different processes may race, and the last
// write wins.
type ObjectStore struct {
	client ObjectClient
	key    string
	mu     sync.Mutex
}

func NewObjectStore(client ObjectClient, storageName string) *ObjectStore {
	return &ObjectStore{
		client: client,
		key:    name(storageName) + ".json",
	}
}

func (s *ObjectStore) Key() string {
	return s.key
}

func (s *ObjectStore) Load(ctx context.Context) (capability.Snapshot, error) {
	return s.read(ctx)
}

func (s *ObjectStore) Save(ctx context.Context, c capability.Capability, supported bool) error {
	if err := validate(c); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read(ctx)
	if err != nil {
		return err
	}
	if _, ok := current[c]; ok {
		return nil
	}
	current[c] = capability.FromBool(supported)

	data, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("marshal capability snapshot: %w", err)
	}
	if err := s.client.WriteObject(ctx, s.key, data, "application/json"); err != nil {
		return fmt.Errorf("save capability %s: %w", c, err)
	}
	return nil
}

func (s *ObjectStore) read(ctx context.Context) (capability.Snapshot, error) {
	out := make(capability.Snapshot)

	exists, err := s.client.ObjectExists(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load capability snapshot %s: %w", s.key, err)
	}
	if !exists {
		return out, nil
	}

	data, err := s.client.ReadObject(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load capability snapshot %s: %w", s.key, err)
	}

	var fields map[string]string
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode capability snapshot %s: %w", s.key, err)
	}
	for field, value := range fields {
		decodeEntry(out, field, value)
	}
	return out, nil
}
