package capability

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"
)

// SnapshotStore persists settled capabilities across processes.
type SnapshotStore interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, c Capability, supported bool) error
}

// Dispatcher hands a probe to an out-of-process worker.
type Dispatcher interface {
	EnqueueProbe(ctx context.Context, c Capability) error
}

type BootstrapConfig struct {
	Store  SnapshotStore
	Prober Prober
	// Dispatcher, when set, replaces in-process probing: probes are enqueued
	// and the table follows the store until every entry settles.
	Dispatcher   Dispatcher
	SyncInterval time.Duration
	OnSettle     func(c Capability, supported bool)
}

// Bootstrapper fills a Table once at startup without ever blocking readers.
type Bootstrapper struct {
	table  *Table
	cfg    BootstrapConfig
	logger *log.Logger
	wg     sync.WaitGroup
}

func NewBootstrapper(table *Table, cfg BootstrapConfig, logger *log.Logger) *Bootstrapper {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cfg.Prober == nil {
		cfg.Prober = NewProber()
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 2 * time.Second
	}
	return &Bootstrapper{table: table, cfg: cfg, logger: logger}
}

// Start restores the persisted snapshot and launches probes for whatever is
// still unknown. It returns as soon as the probes are started.
func (b *Bootstrapper) Start(ctx context.Context) {
	if b.cfg.Store != nil {
		snapshot, err := b.cfg.Store.Load(ctx)
		if err != nil {
			b.logger.Printf("capability snapshot load failed err=%v", err)
		} else if n := b.table.Merge(snapshot); n > 0 {
			b.logger.Printf("capability snapshot restored settled=%d", n)
		}
	}

	pending := b.table.Pending()
	if len(pending) == 0 {
		return
	}

	if b.cfg.Dispatcher != nil {
		b.dispatch(ctx, pending)
		return
	}

	for _, c := range pending {
		b.wg.Add(1)
		go b.probe(ctx, c)
	}
}

// Wait blocks until every probe or sync loop started by Start has finished.
func (b *Bootstrapper) Wait() {
	b.wg.Wait()
}

func (b *Bootstrapper) probe(ctx context.Context, c Capability) {
	defer b.wg.Done()

	b.logger.Printf("checking capability=%s", c)
	supported, err := b.cfg.Prober.Probe(ctx, c)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			b.logger.Printf("capability probe abandoned capability=%s err=%v", c, err)
			return
		}
		b.logger.Printf("capability probe failed capability=%s err=%v", c, err)
		supported = false
	}

	if !b.table.Settle(c, supported) {
		return
	}
	b.logger.Printf("capability settled capability=%s supported=%t", c, supported)

	if b.cfg.Store != nil {
		if err := b.cfg.Store.Save(ctx, c, supported); err != nil {
			b.logger.Printf("capability persist failed capability=%s err=%v", c, err)
		}
	}
	if b.cfg.OnSettle != nil {
		b.cfg.OnSettle(c, supported)
	}
}

func (b *Bootstrapper) dispatch(ctx context.Context, pending []Capability) {
	for _, c := range pending {
		if err := b.cfg.Dispatcher.EnqueueProbe(ctx, c); err != nil {
			b.logger.Printf("capability probe enqueue failed capability=%s err=%v", c, err)
		}
	}
	if b.cfg.Store == nil {
		b.logger.Printf("capability probes dispatched without a store; results will not be observed")
		return
	}

	b.wg.Add(1)
	go b.follow(ctx)
}

// follow polls the store until the table has no unknown entries.
func (b *Bootstrapper) follow(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snapshot, err := b.cfg.Store.Load(ctx)
		if err != nil {
			b.logger.Printf("capability snapshot sync failed err=%v", err)
			continue
		}
		before := b.table.Snapshot()
		if b.table.Merge(snapshot) > 0 && b.cfg.OnSettle != nil {
			for c, state := range snapshot {
				if state.Settled() && !before[c].Settled() {
					b.cfg.OnSettle(c, state == Supported)
				}
			}
		}
		if len(b.table.Pending()) == 0 {
			b.logger.Printf("capability snapshot fully settled")
			return
		}
	}
}
