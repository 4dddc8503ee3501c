package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/dunamismax/pixelsuffix/internal/capability"
	"github.com/dunamismax/pixelsuffix/internal/config"
	"github.com/dunamismax/pixelsuffix/internal/store"
	"github.com/dunamismax/pixelsuffix/internal/telemetry"
	"github.com/dunamismax/pixelsuffix/internal/webhook"
	"github.com/dunamismax/pixelsuffix/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmsgprefix)
	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  cfg.Tracing.ServiceName + "-worker",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, logger)
	if err != nil {
		logger.Fatalf("tracing setup failed: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	if err := capability.Startup(); err != nil {
		logger.Fatalf("codec runtime startup failed: %v", err)
	}
	defer capability.Shutdown()

	snapshots, closeStore, err := store.Open(ctx, cfg)
	if err != nil {
		logger.Fatalf("capability store open failed: %v", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Printf("capability store close error: %v", err)
		}
	}()

	logger.Printf(
		"starting worker concurrency=%d max_active_jobs=%d queue=%s redis=%s store=%s",
		cfg.Worker.Concurrency,
		cfg.Worker.MaxActiveJobs,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
		cfg.Capability.Store,
	)

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, worker.Deps{
		Prober:      capability.NewProber(),
		Store:       snapshots,
		StorageName: cfg.Capability.StorageName,
		Notifier:    webhook.NewNotifier(webhook.Config{
			URL:            cfg.Webhook.URL,
			SigningSecret:  cfg.Webhook.SigningSecret,
			StorageName:    cfg.Capability.StorageName,
			Source:         webhook.SourceWorker,
			Timeout:        cfg.Webhook.Timeout,
			MaxAttempts:    cfg.Webhook.MaxAttempts,
			InitialBackoff: cfg.Webhook.InitialBackoff,
			MaxBackoff:     cfg.Webhook.MaxBackoff,
		}),
	})
	if err != nil {
		logger.Fatalf("worker setup failed: %v", err)
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           srv.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Printf("metrics listening on %s", cfg.Worker.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("metrics server failed: %v", err)
		}
	}()

	if err := srv.Run(); err != nil {
		logger.Fatalf("worker failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
