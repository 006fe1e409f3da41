package api

import (
	"net/http"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/audit"
	"github.com/abdul-hamid-achik/clearframe/internal/billing"
	"github.com/abdul-hamid-achik/clearframe/internal/health"
	"github.com/abdul-hamid-achik/clearframe/internal/job"
	"github.com/abdul-hamid-achik/clearframe/internal/storage"
	"github.com/abdul-hamid-achik/clearframe/internal/stream"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
)

type Config struct {
	Jobs    *job.Service
	Billing *billing.Service
	Stream  *stream.Server
	// Remote signs download URLs. Without it downloads point at the
	// stream endpoint.
	Remote  storage.Storage
	Health  *health.Checker
	Limiter Limiter
	Audit   *audit.Logger

	RedisClient      *redis.Client
	MaxUploadSize    int64
	JWTSecret        string
	RateLimit        int
	RateBurst        int
	BaseURL          string
	AllowedOrigins   []string
	DevMode          bool
	PublicSelections bool
	DownloadURLTTL   time.Duration

	validate *validator.Validate
}

func NewRouter(cfg *Config) http.Handler {
	cfg.validate = validator.New()
	mux := http.NewServeMux()

	if cfg.Health != nil {
		mux.HandleFunc("GET /health", health.ReadinessHandler(cfg.Health))
		mux.HandleFunc("GET /health/live", health.LivenessHandler())
		mux.HandleFunc("GET /health/ready", health.ReadinessHandler(cfg.Health))
	}

	limiter := cfg.Limiter
	if limiter == nil {
		rateLimit := cfg.RateLimit
		if rateLimit <= 0 {
			rateLimit = 100
		}
		rateBurst := cfg.RateBurst
		if rateBurst <= 0 {
			rateBurst = 200
		}
		limiter = NewHybridRateLimiter(cfg.RedisClient, rateLimit, rateBurst)
	}

	// Public: streaming supports selecting regions before signup.
	if cfg.Stream != nil {
		mux.Handle("GET /v1/videos/{id}/stream", RateLimit(limiter, "stream")(cfg.Stream))
	}
	if cfg.PublicSelections {
		mux.Handle("GET /v1/public/jobs/{id}/watermarks", RateLimit(limiter, "public_watermarks")(getSelectionsHandler(cfg, true)))
		mux.Handle("POST /v1/public/jobs/{id}/watermarks", RateLimit(limiter, "public_watermarks")(submitSelectionsHandler(cfg, true)))
	}
	if cfg.Billing != nil {
		mux.Handle("POST /v1/billing/webhook", billing.NewWebhookHandler(cfg.Billing, cfg.Billing.WebhookSecret()))
	}

	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /v1/jobs", uploadHandler(cfg))
	apiMux.HandleFunc("POST /v1/videos/upload", uploadHandler(cfg))
	apiMux.HandleFunc("GET /v1/jobs", listJobsHandler(cfg))
	apiMux.HandleFunc("GET /v1/jobs/{id}", getJobHandler(cfg))
	apiMux.HandleFunc("DELETE /v1/jobs/{id}", deleteJobHandler(cfg))
	apiMux.HandleFunc("GET /v1/jobs/{id}/watermarks", getSelectionsHandler(cfg, false))
	apiMux.HandleFunc("POST /v1/jobs/{id}/watermarks", submitSelectionsHandler(cfg, false))
	apiMux.HandleFunc("POST /v1/jobs/{id}/process", processHandler(cfg))
	apiMux.HandleFunc("GET /v1/jobs/{id}/status", jobStatusHandler(cfg))
	apiMux.HandleFunc("GET /v1/jobs/{id}/download", downloadHandler(cfg))

	if cfg.Billing != nil {
		apiMux.HandleFunc("GET /v1/account", accountHandler(cfg))
		apiMux.HandleFunc("POST /v1/billing/checkout", checkoutHandler(cfg))
	}

	mux.Handle("/v1/", AuthMiddleware(cfg.JWTSecret)(RateLimit(limiter, "api")(apiMux)))

	origins := append([]string{cfg.BaseURL}, cfg.AllowedOrigins...)
	return CORSWithOrigins(origins, cfg.DevMode)(mux)
}
