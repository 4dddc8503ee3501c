package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/pixelsuffix/internal/api"
	"github.com/dunamismax/pixelsuffix/internal/capability"
	"github.com/dunamismax/pixelsuffix/internal/config"
	"github.com/dunamismax/pixelsuffix/internal/network"
	"github.com/dunamismax/pixelsuffix/internal/pipeline"
	"github.com/dunamismax/pixelsuffix/internal/queue"
	"github.com/dunamismax/pixelsuffix/internal/ratelimit"
	"github.com/dunamismax/pixelsuffix/internal/store"
	"github.com/dunamismax/pixelsuffix/internal/telemetry"
	"github.com/dunamismax/pixelsuffix/internal/webhook"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

func main() {
	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  cfg.Tracing.ServiceName + "-api",
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

	table := capability.NewTable()
	bootstrapCfg := capability.BootstrapConfig{
		Store:        snapshots,
		SyncInterval: cfg.Capability.SyncInterval,
	}

	if cfg.Capability.ProbeMode == config.ProbeModeQueue {
		queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name, cfg.Capability.StorageName)
		defer func() {
			if err := queueClient.Close(); err != nil {
				logger.Printf("queue client close error: %v", err)
			}
		}()
		bootstrapCfg.Dispatcher = queueClient
	} else if notifier := webhook.NewNotifier(webhook.Config{
		URL:            cfg.Webhook.URL,
		SigningSecret:  cfg.Webhook.SigningSecret,
		StorageName:    cfg.Capability.StorageName,
		Source:         webhook.SourceAPI,
		Timeout:        cfg.Webhook.Timeout,
		MaxAttempts:    cfg.Webhook.MaxAttempts,
		InitialBackoff: cfg.Webhook.InitialBackoff,
		MaxBackoff:     cfg.Webhook.MaxBackoff,
	}); notifier.Enabled() {
		bootstrapCfg.OnSettle = func(c capability.Capability, supported bool) {
			if err := notifier.CapabilitySettled(ctx, c, supported); err != nil {
				logger.Printf("webhook delivery failed capability=%s err=%v", c, err)
			}
		}
	}

	bootstrapper := capability.NewBootstrapper(table, bootstrapCfg, logger)
	bootstrapper.Start(ctx)

	resolver := pipeline.New(cfg.Resolver.Options(), table, network.Static(network.ClassUnknown), logger)

	serverOpts := api.Options{
		RateLimitSubjectHeader: cfg.RateLimit.SubjectHeader,
		Tracer:                 otel.Tracer("pixelsuffix/api"),
	}
	if cfg.RateLimit.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer redisClient.Close()

		limiter, err := ratelimit.NewRedisTokenBucket(redisClient, cfg.RateLimit.Capacity, cfg.RateLimit.Window, cfg.RateLimit.KeyPrefix)
		if err != nil {
			logger.Fatalf("rate limiter setup failed: %v", err)
		}
		serverOpts.RateLimiter = limiter
	}

	app := api.NewServer(logger, resolver, table, serverOpts)

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s store=%s probe_mode=%s", cfg.API.Addr, cfg.Capability.Store, cfg.Capability.ProbeMode)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
	cancel()
	bootstrapper.Wait()
}
