package capability

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"
)

func TestBootstrapperProbesOnlyPending(t *testing.T) {
	store := &mapStore{data: Snapshot{Lossy: Supported}}
	prober := &scriptedProber{results: map[Capability]bool{
		Lossless:  true,
		Animation: false,
	}}

	var (
		mu      sync.Mutex
		settled []Capability
	)
	table := NewTable()
	b := NewBootstrapper(table, BootstrapConfig{
		Store:  store,
		Prober: prober,
		OnSettle: func(c Capability, _ bool) {
			mu.Lock()
			settled = append(settled, c)
			mu.Unlock()
		},
	}, log.New(io.Discard, "", 0))

	b.Start(context.Background())
	b.Wait()

	if prober.calls(Lossy) != 0 {
		t.Fatal("expected restored capability to skip probing")
	}
	if got := table.Query(Lossless); got != Supported {
		t.Fatalf("expected lossless supported, got %s", got)
	}
	if got := table.Query(Animation); got != Unsupported {
		t.Fatalf("expected animation unsupported, got %s", got)
	}
	if got := store.get(Lossless); got != Supported {
		t.Fatalf("expected lossless persisted, got %s", got)
	}
	if len(settled) != 2 {
		t.Fatalf("expected two settle callbacks, got %v", settled)
	}
}

func TestBootstrapperProbeErrorSettlesUnsupported(t *testing.T) {
	prober := &scriptedProber{err: errors.New("decoder exploded")}
	table := NewTable()
	b := NewBootstrapper(table, BootstrapConfig{Prober: prober}, nil)

	b.Start(context.Background())
	b.Wait()

	for _, c := range All() {
		if got := table.Query(c); got != Unsupported {
			t.Fatalf("expected %s unsupported after probe error, got %s", c, got)
		}
	}
}

func TestBootstrapperDispatchFollowsStore(t *testing.T) {
	store := &mapStore{data: Snapshot{}}
	dispatcher := &recordingDispatcher{}
	table := NewTable()
	b := NewBootstrapper(table, BootstrapConfig{
		Store:        store,
		Dispatcher:   dispatcher,
		SyncInterval: 5 * time.Millisecond,
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	b.Start(ctx)
	if got := len(dispatcher.enqueued); got != 3 {
		t.Fatalf("expected three enqueued probes, got %d", got)
	}
	if got := table.Query(Lossy); got != Unknown {
		t.Fatalf("expected lossy unknown before the worker reports, got %s", got)
	}

	for _, c := range All() {
		if err := store.Save(ctx, c, c != Animation); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	b.Wait()

	if got := table.Query(Lossy); got != Supported {
		t.Fatalf("expected lossy supported after sync, got %s", got)
	}
	if got := table.Query(Animation); got != Unsupported {
		t.Fatalf("expected animation unsupported after sync, got %s", got)
	}
}

type mapStore struct {
	mu   sync.Mutex
	data Snapshot
}

func (s *mapStore) Load(context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(Snapshot, len(s.data))
	for c, state := range s.data {
		out[c] = state
	}
	return out, nil
}

func (s *mapStore) Save(_ context.Context, c Capability, supported bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.data[c].Settled() {
		s.data[c] = FromBool(supported)
	}
	return nil
}

func (s *mapStore) get(c Capability) TriState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[c]
}

type scriptedProber struct {
	mu      sync.Mutex
	results map[Capability]bool
	err     error
	counts  map[Capability]int
}

func (p *scriptedProber) Probe(_ context.Context, c Capability) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counts == nil {
		p.counts = make(map[Capability]int)
	}
	p.counts[c]++
	if p.err != nil {
		return false, p.err
	}
	return p.results[c], nil
}

func (p *scriptedProber) calls(c Capability) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[c]
}

type recordingDispatcher struct {
	enqueued []Capability
}

func (d *recordingDispatcher) EnqueueProbe(_ context.Context, c Capability) error {
	d.enqueued = append(d.enqueued, c)
	return nil
}
