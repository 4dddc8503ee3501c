package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dunamismax/pixelsuffix/internal/capability"
	"github.com/dunamismax/pixelsuffix/internal/config"
	"github.com/dunamismax/pixelsuffix/internal/queue"
	"github.com/dunamismax/pixelsuffix/internal/store"
	"github.com/dunamismax/pixelsuffix/internal/webhook"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	outcomeSupported   = "supported"
	outcomeUnsupported = "unsupported"
	outcomeCached      = "cached"
	outcomeFailed      = "failed"
)

type Server struct {
	logger       *log.Logger
	server       *asynq.Server
	sem          chan struct{}
	prober       capability.Prober
	store        store.SnapshotStore
	storageName  string
	probeTimeout time.Duration
	notifier     settledNotifier
	metrics      *metrics
	tracer       trace.Tracer
}

type settledNotifier interface {
	CapabilitySettled(ctx context.Context, c capability.Capability, supported bool) error
}

type Deps struct {
	Prober      capability.Prober
	Store       store.SnapshotStore
	StorageName string
	Notifier    *webhook.Notifier
}

func NewServer(logger *log.Logger, queueCfg config.QueueConfig, workerCfg config.WorkerConfig, deps Deps) (*Server, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("capability store is required")
	}
	if deps.Prober == nil {
		deps.Prober = capability.NewProber()
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:          make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		prober:       deps.Prober,
		store:        deps.Store,
		storageName:  deps.StorageName,
		probeTimeout: workerCfg.ProbeTimeout,
		metrics:      newMetrics(),
		tracer:       otel.Tracer("pixelsuffix/worker"),
	}
	if deps.Notifier.Enabled() {
		s.notifier = deps.Notifier
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeProbeCapability, s.handleProbeCapability)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleProbeCapability(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := outcomeFailed

	payload, err := queue.ParseProbeCapabilityPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.StorageName != "" && s.storageName != "" && payload.StorageName != s.storageName {
		return fmt.Errorf("probe for snapshot %s routed to worker for %s: %w", payload.StorageName, s.storageName, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.probe_capability", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("capability.name", string(payload.Capability)),
		attribute.String("capability.storage_name", payload.StorageName),
	)
	defer span.End()
	defer func() {
		s.metrics.probeDuration.WithLabelValues(string(payload.Capability), outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.probesTotal.WithLabelValues(string(payload.Capability), outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeProbes.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeProbes.Dec()
	}()

	snapshot, err := s.store.Load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot load failed")
		return fmt.Errorf("load capability snapshot: %w", err)
	}
	if state := snapshot[payload.Capability]; state.Settled() {
		s.logger.Printf("capability already settled capability=%s supported=%s", payload.Capability, state)
		outcome = outcomeCached
		span.SetStatus(codes.Ok, "cached")
		return nil
	}

	s.logger.Printf("Probing... capability=%s requested_at=%s", payload.Capability, payload.RequestedAt.Format(time.RFC3339))

	supported, err := s.probe(ctx, payload.Capability)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "probe abandoned")
		return fmt.Errorf("probe %s: %w", payload.Capability, err)
	}

	if err := s.store.Save(ctx, payload.Capability, supported); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		return fmt.Errorf("persist capability: %w", err)
	}

	outcome = outcomeUnsupported
	if supported {
		outcome = outcomeSupported
	}
	span.SetAttributes(attribute.Bool("capability.supported", supported))
	s.logger.Printf("Probed capability=%s supported=%t", payload.Capability, supported)

	if err := s.notifySettled(ctx, payload.Capability, supported); err != nil {
		span.RecordError(err)
	}

	span.SetStatus(codes.Ok, "probed")
	return nil
}

// probe runs the prober under the configured timeout. A prober failure
// settles the capability as unsupported; only cancellation is returned.
func (s *Server) probe(ctx context.Context, c capability.Capability) (bool, error) {
	if s.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.probeTimeout)
		defer cancel()
	}

	supported, err := s.prober.Probe(ctx, c)
	if err == nil {
		return supported, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false, err
	}
	s.logger.Printf("probe failed capability=%s err=%v", c, err)
	return false, nil
}

// notifySettled reports a persisted result. Delivery failures do not fail
// the task: a retry would find the capability settled and skip notifying.
func (s *Server) notifySettled(ctx context.Context, c capability.Capability, supported bool) error {
	if s.notifier == nil {
		return nil
	}

	err := s.notifier.CapabilitySettled(ctx, c, supported)
	switch {
	case err == nil:
		s.metrics.notifications.WithLabelValues("delivered").Inc()
		return nil
	case errors.Is(err, webhook.ErrRejected):
		s.metrics.notifications.WithLabelValues("rejected").Inc()
	default:
		s.metrics.notifications.WithLabelValues("failed").Inc()
	}
	s.logger.Printf("webhook delivery failed capability=%s err=%v", c, err)
	return err
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
