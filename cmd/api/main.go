package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/api"
	"github.com/abdul-hamid-achik/clearframe/internal/app"
	"github.com/abdul-hamid-achik/clearframe/internal/config"
	"github.com/abdul-hamid-achik/clearframe/internal/dispatch"
	"github.com/abdul-hamid-achik/clearframe/internal/job"
	"github.com/abdul-hamid-achik/clearframe/internal/logger"
	"github.com/abdul-hamid-achik/clearframe/internal/metrics"
	"github.com/abdul-hamid-achik/clearframe/internal/stream"
	"github.com/abdul-hamid-achik/clearframe/internal/tracing"
	"github.com/abdul-hamid-achik/clearframe/internal/worker"
	"github.com/abdul-hamid-achik/job-queue/pkg/broker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "1.0.0"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "clearframe-api",
	})

	log.Info("configuration loaded",
		"storage_backend", cfg.StorageBackend,
		"dispatch_mode", cfg.DispatchMode,
		"selection_guard", cfg.SelectionGuard,
	)

	ctx := context.Background()

	shutdownTracing, err := tracing.Init(ctx, &tracing.Config{
		ServiceName:    "clearframe-api",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTELEnabled,
		SampleRate:     cfg.TraceSampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(ctx) }()
	if cfg.OTELEnabled {
		log.Info("tracing enabled", "endpoint", cfg.OTLPEndpoint, "sample_rate", cfg.TraceSampleRate)
	}

	rt, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	metrics.SetAppInfo(version, cfg.Environment, "api")

	bill := rt.Billing()

	// In local mode the pool runs jobs in this process; in queue mode
	// cmd/worker consumes them from Redis.
	var (
		dispatcher job.Dispatcher
		pool       *dispatch.Pool
		deps       = rt.WorkerDependencies()
	)
	switch cfg.DispatchMode {
	case config.DispatchQueue:
		b := broker.NewRedisStreamsBroker(rt.Redis)
		dispatcher = dispatch.NewQueueDispatcher(b, dispatch.ProcessingCounter(rt.Jobs), cfg.DispatchQueueDepth)
		log.Info("dispatching to job queue", "depth", cfg.DispatchQueueDepth)
	default:
		pool = dispatch.NewPool(dispatch.PoolConfig{
			Workers:      cfg.WorkerConcurrency,
			Depth:        cfg.DispatchQueueDepth,
			AdmitTimeout: cfg.DispatchAdmitTimeout,
			JobTimeout:   cfg.JobTimeout,
		}, worker.NewProcessor(deps).Run)
		dispatcher = pool
		log.Info("dispatching to local worker pool", "workers", cfg.WorkerConcurrency, "depth", cfg.DispatchQueueDepth)
	}

	jobs := rt.JobService(dispatcher, bill)
	deps.Lifecycle = jobs
	if pool != nil {
		pool.Start(ctx)
	}

	apiRouter := api.NewRouter(&api.Config{
		Jobs:             jobs,
		Billing:          bill,
		Stream:           stream.NewServer(jobs, rt.Resolver, rt.Invoker),
		Remote:           rt.Remote,
		Health:           rt.Health(version),
		Audit:            rt.Audit,
		RedisClient:      rt.Redis,
		MaxUploadSize:    cfg.MaxUploadSize,
		JWTSecret:        cfg.JWTSecret,
		RateLimit:        cfg.RateLimit,
		RateBurst:        cfg.RateBurst,
		BaseURL:          cfg.BaseURL,
		AllowedOrigins:   cfg.AllowedOrigins,
		DevMode:          cfg.DevMode,
		PublicSelections: cfg.PublicSelections,
		DownloadURLTTL:   cfg.DownloadURLTTL,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", apiRouter)

	handler := api.SecurityHeaders(metrics.HTTPMetricsMiddleware(api.Recovery(api.RequestID(api.RequestLogger(mux)))))
	if cfg.OTELEnabled {
		handler = tracing.HTTPMiddleware("api")(handler)
	}

	// WriteTimeout stays zero: range responses for large videos are long lived.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	cleanupCtx, stopCleanup := context.WithCancel(logger.WithLogger(ctx, log))
	defer stopCleanup()
	if pool != nil && cfg.CleanupInterval > 0 {
		go worker.RunCleanupLoop(cleanupCtx, &worker.CleanupDependencies{Jobs: jobs}, rt.CleanupConfig(), cfg.CleanupInterval)
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Port, "url", cfg.BaseURL)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		log.Info("shutdown signal received", "signal", sig)
		stopCleanup()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			_ = server.Close()
			return fmt.Errorf("forced shutdown: %w", err)
		}
		if pool != nil {
			log.Info("draining worker pool", "in_flight", pool.InFlight())
			if err := pool.Stop(ctx); err != nil {
				// Abandoned jobs stay PROCESSING until the stale sweep fails them.
				log.Error("worker pool did not drain", "error", err, "abandoned", pool.InFlight())
			}
		}
	}

	log.Info("server stopped gracefully")
	return nil
}
