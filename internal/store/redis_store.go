package store

import (
	"context"
	"fmt"

	"github.com/dunamismax/pixelsuffix/internal/capability"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the snapshot in a single hash, one field per capability.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

func NewRedisStore(client redis.UniversalClient, storageName string) *RedisStore {
	return &RedisStore{
		client: client,
		key:    name(storageName),
	}
}

func (s *RedisStore) Load(ctx context.Context) (capability.Snapshot, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load capability snapshot %s: %w", s.key, err)
	}

	out := make(capability.Snapshot, len(fields))
	for field, value := range fields {
		decodeEntry(out, field, value)
	}
	return out, nil
}

func (s *RedisStore) Save(ctx context.Context, c capability.Capability, supported bool) error {
	if err := validate(c); err != nil {
		return err
	}

	state := capability.FromBool(supported)
	if err := s.client.HSetNX(ctx, s.key, string(c), state.String()).Err(); err != nil {
		return fmt.Errorf("save capability %s: %w", c, err)
	}
	return nil
}
