// Command worker consumes watermark jobs from the Redis job queue when
// DISPATCH_MODE=queue. It also runs the stale and retention sweeps.
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

	"github.com/abdul-hamid-achik/clearframe/internal/app"
	"github.com/abdul-hamid-achik/clearframe/internal/config"
	"github.com/abdul-hamid-achik/clearframe/internal/dispatch"
	"github.com/abdul-hamid-achik/clearframe/internal/health"
	"github.com/abdul-hamid-achik/clearframe/internal/logger"
	"github.com/abdul-hamid-achik/clearframe/internal/metrics"
	"github.com/abdul-hamid-achik/clearframe/internal/tracing"
	cfworker "github.com/abdul-hamid-achik/clearframe/internal/worker"
	"github.com/abdul-hamid-achik/job-queue/pkg/broker"
	"github.com/abdul-hamid-achik/job-queue/pkg/middleware"
	"github.com/abdul-hamid-achik/job-queue/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	version      = "1.0.0"
	drainTimeout = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logOpts := logger.Options{
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Service: "clearframe-worker",
	}
	log := logger.Init(logOpts)

	ctx, stop := signal.NotifyContext(logger.WithLogger(context.Background(), log), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, &tracing.Config{
		ServiceName:    "clearframe-worker",
		ServiceVersion: version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTELEnabled,
		SampleRate:     cfg.TraceSampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	rt, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.Redis == nil {
		return errors.New("REDIS_URL is required to consume the job queue")
	}
	if err := rt.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	metrics.SetAppInfo(version, cfg.Environment, "worker")
	metrics.SetWorkerPoolSize(cfg.WorkerConcurrency)

	// No dispatcher: this process only completes and fails jobs.
	jobs := rt.JobService(nil, nil)
	deps := rt.WorkerDependencies()
	deps.Lifecycle = jobs

	zl := logger.NewZerolog(logOpts)
	proc := cfworker.NewProcessor(deps)

	// Recovery is outermost so a panic in any later layer is still logged.
	registry := worker.NewRegistry()
	if err := registry.Register(dispatch.JobType, cfworker.QueueHandler(proc.Run)); err != nil {
		return fmt.Errorf("failed to register handler: %w", err)
	}
	registry.Use(
		middleware.RecoveryMiddleware(zl),
		middleware.LoggingMiddleware(zl),
		middleware.TimeoutMiddleware(cfg.JobTimeout),
		middleware.MetricsMiddleware(metrics.NewQueueCollector()),
	)
	log.Info("handlers registered", "types", registry.Types(), "concurrency", cfg.WorkerConcurrency)

	b := broker.NewRedisStreamsBroker(rt.Redis,
		broker.WithWorkerID(fmt.Sprintf("worker-%d", os.Getpid())),
	)
	pool := worker.NewPool(b, registry,
		worker.WithConcurrency(cfg.WorkerConcurrency),
		worker.WithPoolQueues([]string{dispatch.QueueName}),
		worker.WithPoolPollInterval(time.Second),
		worker.WithShutdownTimeout(drainTimeout),
		worker.WithPoolLogger(zl),
	)

	metricsServer := serveMetrics(log, cfg.MetricsPort, rt.Health(version))

	if cfg.CleanupInterval > 0 {
		go cfworker.RunCleanupLoop(ctx, &cfworker.CleanupDependencies{Jobs: jobs}, rt.CleanupConfig(), cfg.CleanupInterval)
	}

	poolErr := make(chan error, 1)
	go func() { poolErr <- pool.Start(ctx) }()
	log.Info("worker started", "queue", dispatch.QueueName)

	select {
	case err := <-poolErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("worker pool error: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received, draining")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := pool.Stop(drainCtx); err != nil {
		log.Error("worker pool did not drain", "error", err)
	}
	if err := metricsServer.Shutdown(drainCtx); err != nil {
		log.Error("metrics server shutdown", "error", err)
	}

	log.Info("worker stopped")
	return nil
}

// serveMetrics exposes /metrics and the probes on the side port.
func serveMetrics(log *slog.Logger, port int, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", health.LivenessHandler())
	mux.HandleFunc("GET /health/ready", health.ReadinessHandler(checker))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("metrics server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()
	return srv
}
