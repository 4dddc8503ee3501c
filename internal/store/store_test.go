package store

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/dunamismax/pixelsuffix/internal/capability"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
)

func TestStoresAreWriteOnce(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore()

			if err := s.Save(ctx, capability.Lossy, true); err != nil {
				t.Fatalf("save lossy: %v", err)
			}
			if err := s.Save(ctx, capability.Lossy, false); err != nil {
				t.Fatalf("second save lossy: %v", err)
			}
			if err := s.Save(ctx, capability.Animation, false); err != nil {
				t.Fatalf("save animation: %v", err)
			}

			got, err := s.Load(ctx)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			want := capability.Snapshot{
				capability.Lossy:     capability.Supported,
				capability.Animation: capability.Unsupported,
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStoresRejectUnknownCapability(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			err := newStore().Save(context.Background(), capability.Capability("alpha"), true)
			if !errors.Is(err, ErrUnknownCapability) {
				t.Fatalf("expected ErrUnknownCapability, got %v", err)
			}
		})
	}
}

func TestStoresLoadEmpty(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			got, err := newStore().Load(context.Background())
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if len(got) != 0 {
				t.Fatalf("expected empty snapshot, got %v", got)
			}
		})
	}
}

func TestRedisStoreLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, "")
	if err := s.Save(context.Background(), capability.Lossless, false); err != nil {
		t.Fatalf("save: %v", err)
	}

	if got := mr.HGet(StorageName, "lossless"); got != "false" {
		t.Fatalf("expected hash field lossless=false, got %q", got)
	}
}

func TestRedisStoreSkipsUnknownFields(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mr.HSet("features", "lossy", "true")
	mr.HSet("features", "alpha", "true")
	mr.HSet("features", "animation", "maybe")

	got, err := NewRedisStore(client, "features").Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := capability.Snapshot{capability.Lossy: capability.Supported}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestObjectStoreWritesJSON(t *testing.T) {
	client := newFakeObjectClient()
	s := NewObjectStore(client, "")

	if err := s.Save(context.Background(), capability.Lossy, true); err != nil {
		t.Fatalf("save: %v", err)
	}

	if s.Key() != "CHECKED_WEBP_FEATURES.json" {
		t.Fatalf("unexpected key %q", s.Key())
	}
	if got := string(client.objects[s.Key()]); got != `{"lossy":"true"}` {
		t.Fatalf("unexpected object body %s", got)
	}
	if client.contentType != "application/json" {
		t.Fatalf("unexpected content type %q", client.contentType)
	}
}

func TestObjectStoreCorruptSnapshot(t *testing.T) {
	client := newFakeObjectClient()
	client.objects["CHECKED_WEBP_FEATURES.json"] = []byte("not json")

	if _, err := NewObjectStore(client, "").Load(context.Background()); err == nil {
		t.Fatal("expected decode error")
	}
}

func storeFactories(t *testing.T) map[string]func() SnapshotStore {
	t.Helper()

	return map[string]func() SnapshotStore{
		"memory": func() SnapshotStore { return NewMemoryStore() },
		"redis": func() SnapshotStore {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedisStore(client, StorageName)
		},
		"object": func() SnapshotStore { return NewObjectStore(newFakeObjectClient(), StorageName) },
	}
}

type fakeObjectClient struct {
	objects     map[string][]byte
	contentType string
}

func newFakeObjectClient() *fakeObjectClient {
	return &fakeObjectClient{objects: make(map[string][]byte)}
}

func (f *fakeObjectClient) ObjectExists(_ context.Context, key string) (bool, error) {
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeObjectClient) ReadObject(_ context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return data, nil
}

func (f *fakeObjectClient) WriteObject(_ context.Context, key string, data []byte, contentType string) error {
	f.objects[key] = append([]byte(nil), data...)
	f.contentType = contentType
	return nil
}
