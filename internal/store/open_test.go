package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dunamismax/pixelsuffix/internal/capability"
	"github.com/dunamismax/pixelsuffix/internal/config"
)

func TestOpenMemory(t *testing.T) {
	s, closeFn, err := Open(context.Background(), config.Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeFn()

	if _, ok := s.(*MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", s)
	}
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Config{}
	cfg.Queue.RedisAddr = mr.Addr()
	cfg.Capability.Store = config.StoreRedis
	cfg.Capability.StorageName = "features"

	s, closeFn, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeFn()

	if err := s.Save(context.Background(), capability.Lossy, true); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := mr.HGet("features", "lossy"); got != "true" {
		t.Fatalf("expected lossy=true in hash features, got %q", got)
	}
}

func TestOpenUnknownKind(t *testing.T) {
	cfg := config.Config{}
	cfg.Capability.Store = "etcd"

	if _, _, err := Open(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unsupported store")
	}
}
