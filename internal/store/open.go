package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/dunamismax/pixelsuffix/internal/config"
	"github.com/dunamismax/pixelsuffix/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Open builds the snapshot store selected by cfg.Capability.Store. The
// returned close function releases whatever connection the store owns.
func Open(ctx context.Context, cfg config.Config) (SnapshotStore, func() error, error) {
	noop := func() error { return nil }
	storageName := cfg.Capability.StorageName

	switch kind := strings.ToLower(strings.TrimSpace(cfg.Capability.Store)); kind {
	case "", config.StoreMemory:
		return NewMemoryStore(), noop, nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		return NewRedisStore(client, storageName), client.Close, nil
	case config.StorePostgres:
		pg, err := NewPostgresStore(ctx, cfg.Database.DSN, storageName)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	case config.StoreObject:
		client, err := storage.NewClient(storage.Config{
			Endpoint: cfg.Storage.Endpoint,
			Access:   cfg.Storage.AccessKey,
			Secret:   cfg.Storage.SecretKey,
			Bucket:   cfg.Storage.Bucket,
			UseSSL:   cfg.Storage.UseSSL,
		})
		if err != nil {
			return nil, nil, err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, nil, err
		}
		return NewObjectStore(client, storageName), noop, nil
	default:
		return nil, nil, fmt.Errorf("unsupported capability store %q", kind)
	}
}
