// Package app wires the configured backends shared by the API server,
// the queue worker and the admin tool.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/audit"
	"github.com/abdul-hamid-achik/clearframe/internal/billing"
	"github.com/abdul-hamid-achik/clearframe/internal/config"
	"github.com/abdul-hamid-achik/clearframe/internal/events"
	"github.com/abdul-hamid-achik/clearframe/internal/health"
	"github.com/abdul-hamid-achik/clearframe/internal/job"
	"github.com/abdul-hamid-achik/clearframe/internal/metrics"
	"github.com/abdul-hamid-achik/clearframe/internal/processor/watermark"
	"github.com/abdul-hamid-achik/clearframe/internal/resolver"
	"github.com/abdul-hamid-achik/clearframe/internal/storage"
	"github.com/abdul-hamid-achik/clearframe/internal/worker"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const eventDrainTimeout = 10 * time.Second

// Runtime holds the long-lived clients built from configuration.
type Runtime struct {
	Config *config.Config
	Log    *slog.Logger

	DB    *pgxpool.Pool
	Redis *redis.Client

	Local    *storage.LocalStorage
	Remote   storage.Storage
	Jobs     job.Repository
	Ledger   billing.Ledger
	Resolver *resolver.Resolver
	Invoker  *watermark.Invoker
	Events   events.Publisher
	Audit    *audit.Logger

	pingers map[string]health.Pinger
	closers []func()
}

// Open connects every configured backend. Without DATABASE_URL jobs and
// accounts live in memory; without REDIS_URL rate limiting is per process.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Log: log}
	if err := rt.open(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) open(ctx context.Context) error {
	cfg, log := rt.Config, rt.Log

	if cfg.DatabaseURL != "" {
		log.Info("connecting to database")
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		rt.closers = append(rt.closers, pool.Close)
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}
		rt.DB = pool
		rt.Jobs = job.NewPostgresRepository(pool)
		rt.Ledger = billing.NewPostgresLedger(pool)
		rt.Audit = audit.NewLogger(audit.NewPostgresStore(pool))
		log.Info("database connected")
	} else {
		log.Warn("DATABASE_URL not set, using in-memory job store")
		rt.Jobs = job.NewMemoryRepository()
		rt.Ledger = billing.NewMemoryLedger()
		rt.Audit = audit.NewLogger(audit.NewMemoryStore())
	}

	if cfg.RedisURL != "" {
		log.Info("connecting to redis")
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse redis url: %w", err)
		}
		client := redis.NewClient(opt)
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		rt.Redis = client
	}

	local, err := storage.NewLocalStorage(cfg.StorageRoot)
	if err != nil {
		return fmt.Errorf("failed to create local storage: %w", err)
	}
	rt.Local = local

	remote, err := openRemote(ctx, cfg)
	if err != nil {
		return err
	}
	if remote != nil {
		rt.Remote = metrics.NewInstrumentedStorage(remote, cfg.StorageBackend)
		log.Info("object storage connected", "backend", cfg.StorageBackend)
	}

	rt.Resolver = resolver.Default(resolver.Options{
		Local:          local,
		Remote:         rt.Remote,
		LatestFallback: cfg.ResolverLatestFallback,
	})
	log.Info("input resolver ready", "strategies", rt.Resolver.Strategies())

	wcfg := watermark.DefaultConfig()
	wcfg.FFmpegPath = cfg.FFmpegPath
	wcfg.FFprobePath = cfg.FFprobePath
	wcfg.Preset = cfg.FFmpegPreset
	wcfg.CRF = cfg.FFmpegCRF
	wcfg.PreviewHeight = cfg.PreviewHeight
	rt.Invoker = watermark.NewInvoker(wcfg, rt.Resolver, local.Root())
	if err := rt.Invoker.Available(); err != nil {
		log.Warn("ffmpeg not found, processing will fail until it is installed", "error", err)
	}

	return rt.openEvents()
}

func openRemote(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch cfg.StorageBackend {
	case config.StorageMinIO:
		store, err := storage.NewMinIOStorage(&storage.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
			Region:    cfg.MinIORegion,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create storage: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure bucket: %w", err)
		}
		return store, nil
	case config.StorageS3:
		store, err := storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 storage: %w", err)
		}
		return store, nil
	}
	return nil, nil
}

func (rt *Runtime) openEvents() error {
	cfg := rt.Config
	var pubs events.Multi
	rt.pingers = make(map[string]health.Pinger)

	if cfg.NATSURL != "" {
		nc, err := events.ConnectNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, nc.Close)
		pubs = append(pubs, nc)
		rt.pingers["nats"] = nc
		rt.Log.Info("publishing job events to nats", "subject_prefix", cfg.NATSSubject)
	}
	if cfg.WebhookURL != "" {
		wh := events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret)
		pubs = append(pubs, wh)
		rt.pingers["webhook"] = wh
		rt.Log.Info("publishing job events to webhook", "url", cfg.WebhookURL)
	}

	if len(pubs) == 0 {
		rt.Events = events.Nop{}
		return nil
	}

	// Sinks can be slow or down; lifecycle calls only enqueue.
	async := events.NewAsync(pubs, events.DefaultAsyncBuffer, events.DefaultAsyncWorkers)
	rt.closers = append(rt.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), eventDrainTimeout)
		defer cancel()
		if err := async.Close(ctx); err != nil {
			rt.Log.Warn("undelivered job events dropped at shutdown", "error", err)
		}
	})
	rt.Events = async
	return nil
}

// Migrate applies the job, ledger and audit schemas. It is a no-op for the
// in-memory stores.
func (rt *Runtime) Migrate(ctx context.Context) error {
	if rt.DB == nil {
		return nil
	}
	if err := job.NewPostgresRepository(rt.DB).Migrate(ctx); err != nil {
		return fmt.Errorf("migrate jobs: %w", err)
	}
	if err := billing.NewPostgresLedger(rt.DB).Migrate(ctx); err != nil {
		return fmt.Errorf("migrate ledger: %w", err)
	}
	if err := audit.NewPostgresStore(rt.DB).Migrate(ctx); err != nil {
		return err
	}
	return nil
}

// Billing builds the entitlement service. Stripe is optional.
func (rt *Runtime) Billing() *billing.Service {
	cfg := rt.Config
	client := billing.NewClient(cfg.StripeSecretKey, cfg.StripeWebhookSecret, billing.Prices{
		Credits: cfg.StripePriceIDCredits,
		Monthly: cfg.StripePriceIDMonthly,
		Yearly:  cfg.StripePriceIDYearly,
	})
	if client.IsConfigured() {
		rt.Log.Info("stripe billing configured")
	}
	return billing.NewService(billing.ServiceConfig{
		Ledger:         rt.Ledger,
		Client:         client,
		BaseURL:        cfg.BaseURL,
		CreditsPerPack: cfg.CreditsPerPack,
	})
}

// JobService builds the job lifecycle service around dispatcher, which
// may be nil in processes that only complete and fail jobs.
func (rt *Runtime) JobService(dispatcher job.Dispatcher, entitlements job.Entitlements) *job.Service {
	return job.NewService(job.ServiceConfig{
		Repository:   rt.Jobs,
		Local:        rt.Local,
		Remote:       rt.Remote,
		Dispatcher:   dispatcher,
		Entitlements: entitlements,
		Events:       rt.Events,
		Guard:        job.SelectionGuard(rt.Config.SelectionGuard),
	})
}

// WorkerDependencies returns the processor dependencies without a
// lifecycle; the caller sets it once the job service exists.
func (rt *Runtime) WorkerDependencies() *worker.Dependencies {
	return &worker.Dependencies{
		Jobs:    rt.Jobs,
		Invoker: rt.Invoker,
		Remote:  rt.Remote,
	}
}

// CleanupConfig applies the configured thresholds to the default retention.
func (rt *Runtime) CleanupConfig() worker.CleanupConfig {
	c := worker.DefaultCleanupConfig()
	c.StaleAfter = rt.Config.StaleProcessingAfter
	c.FailedAfter = rt.Config.FailedJobRetention
	return c
}

// Health builds the readiness checker for every connected backend. Event
// sinks are optional: jobs still complete while they are down.
func (rt *Runtime) Health(version string) *health.Checker {
	checker := health.NewChecker(rt.DB, rt.Redis).
		WithVersion(version).
		WithStorage(rt.Local).
		WithFFmpeg(rt.Invoker.Available)
	if rt.Remote != nil {
		checker.With("object_storage", rt.Remote.HealthCheck)
	}
	for _, name := range []string{"nats", "webhook"} {
		if p, ok := rt.pingers[name]; ok {
			checker.Optional("events_"+name, p.HealthCheck)
		}
	}
	return checker
}

// Close releases clients in reverse order of creation.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
