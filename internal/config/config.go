package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StorageLocal = "local"
	StorageMinIO = "minio"
	StorageS3    = "s3"

	DispatchLocal = "local"
	DispatchQueue = "queue"

	GuardStrict     = "strict"
	GuardPermissive = "permissive"
)

type Config struct {
	Port          int
	MaxUploadSize int64
	BaseURL        string
	AllowedOrigins []string
	DevMode        bool

	Environment string
	LogLevel    string
	LogFormat   string

	DatabaseURL string
	RedisURL    string

	StorageBackend string
	StorageRoot    string
	DownloadURLTTL time.Duration

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool
	MinIORegion    string

	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3UsePathStyle    bool

	FFmpegPath    string
	FFprobePath   string
	FFmpegPreset  string
	FFmpegCRF     int
	PreviewHeight int

	DispatchMode         string
	WorkerConcurrency    int
	DispatchQueueDepth   int
	DispatchAdmitTimeout time.Duration
	JobTimeout           time.Duration
	StaleProcessingAfter time.Duration
	SelectionGuard       string
	CleanupInterval      time.Duration
	FailedJobRetention   time.Duration

	ResolverLatestFallback bool
	PublicSelections       bool

	JWTSecret string
	RateLimit int
	RateBurst int

	StripeSecretKey      string
	StripeWebhookSecret  string
	StripePriceIDCredits string
	StripePriceIDMonthly string
	StripePriceIDYearly  string
	CreditsPerPack       int64

	NATSURL       string
	NATSSubject   string
	WebhookURL    string
	WebhookSecret string

	OTELEnabled     bool
	OTLPEndpoint    string
	TraceSampleRate float64

	MetricsPort int
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{}
	var err error

	cfg.Port = getEnvInt("PORT", 8080)
	cfg.MaxUploadSize = getEnvInt64("MAX_UPLOAD_SIZE", 500*1024*1024)
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.AllowedOrigins = getEnvList("CORS_ORIGINS")

	cfg.Environment = getEnvString("ENVIRONMENT", "development")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.LogFormat = getEnvString("LOG_FORMAT", "json")
	cfg.DevMode = cfg.Environment == "development"

	// Both optional: no DATABASE_URL means the in-memory job store.
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")

	cfg.StorageBackend = getEnvString("STORAGE_BACKEND", StorageLocal)
	cfg.StorageRoot = getEnvString("STORAGE_ROOT", "local_storage")
	cfg.DownloadURLTTL, err = getEnvDuration("DOWNLOAD_URL_TTL", "1h")
	if err != nil {
		return nil, fmt.Errorf("invalid DOWNLOAD_URL_TTL: %w", err)
	}

	cfg.MinIOEndpoint = os.Getenv("MINIO_ENDPOINT")
	cfg.MinIOAccessKey = os.Getenv("MINIO_ACCESS_KEY")
	cfg.MinIOSecretKey = os.Getenv("MINIO_SECRET_KEY")
	cfg.MinIOBucket = getEnvString("MINIO_BUCKET", "videos")
	cfg.MinIOUseSSL = getEnvBool("MINIO_USE_SSL", false)
	cfg.MinIORegion = getEnvString("MINIO_REGION", "us-east-1")

	cfg.S3Bucket = os.Getenv("S3_BUCKET")
	cfg.S3Region = getEnvString("S3_REGION", "us-east-1")
	cfg.S3Endpoint = os.Getenv("S3_ENDPOINT")
	cfg.S3AccessKeyID = os.Getenv("S3_ACCESS_KEY_ID")
	cfg.S3SecretAccessKey = os.Getenv("S3_SECRET_ACCESS_KEY")
	cfg.S3UsePathStyle = getEnvBool("S3_USE_PATH_STYLE", false)

	cfg.FFmpegPath = getEnvString("FFMPEG_PATH", getEnvString("FFMPEG_BIN", "ffmpeg"))
	cfg.FFprobePath = getEnvString("FFPROBE_PATH", "ffprobe")
	cfg.FFmpegPreset = getEnvString("FFMPEG_PRESET", "medium")
	cfg.FFmpegCRF = getEnvInt("FFMPEG_CRF", 18)
	cfg.PreviewHeight = getEnvInt("PREVIEW_HEIGHT", 360)

	cfg.DispatchMode = getEnvString("DISPATCH_MODE", DispatchLocal)
	cfg.WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", 2)
	cfg.DispatchQueueDepth = getEnvInt("DISPATCH_QUEUE_DEPTH", 16)
	cfg.DispatchAdmitTimeout, err = getEnvDuration("DISPATCH_ADMIT_TIMEOUT", "2s")
	if err != nil {
		return nil, fmt.Errorf("invalid DISPATCH_ADMIT_TIMEOUT: %w", err)
	}
	cfg.JobTimeout, err = getEnvDuration("JOB_TIMEOUT", "0s")
	if err != nil {
		return nil, fmt.Errorf("invalid JOB_TIMEOUT: %w", err)
	}
	cfg.StaleProcessingAfter, err = getEnvDuration("STALE_PROCESSING_AFTER", "2h")
	if err != nil {
		return nil, fmt.Errorf("invalid STALE_PROCESSING_AFTER: %w", err)
	}
	cfg.SelectionGuard = getEnvString("SELECTION_GUARD", GuardStrict)
	cfg.CleanupInterval, err = getEnvDuration("CLEANUP_INTERVAL", "15m")
	if err != nil {
		return nil, fmt.Errorf("invalid CLEANUP_INTERVAL: %w", err)
	}
	cfg.FailedJobRetention, err = getEnvDuration("FAILED_JOB_RETENTION", "24h")
	if err != nil {
		return nil, fmt.Errorf("invalid FAILED_JOB_RETENTION: %w", err)
	}
	cfg.ResolverLatestFallback = getEnvBool("RESOLVER_LATEST_FALLBACK", true)
	cfg.PublicSelections = getEnvBool("PUBLIC_SELECTIONS", false)

	cfg.JWTSecret = getEnvString("JWT_SECRET", "change-me-in-production")
	cfg.RateLimit = getEnvInt("RATE_LIMIT", 20)
	cfg.RateBurst = getEnvInt("RATE_BURST", 40)

	// Stripe (optional)
	cfg.StripeSecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.StripeWebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	cfg.StripePriceIDCredits = os.Getenv("STRIPE_PRICE_ID_CREDITS")
	cfg.StripePriceIDMonthly = os.Getenv("STRIPE_PRICE_ID_MONTHLY")
	cfg.StripePriceIDYearly = os.Getenv("STRIPE_PRICE_ID_YEARLY")
	cfg.CreditsPerPack = getEnvInt64("CREDITS_PER_PACK", 10)

	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubject = getEnvString("NATS_SUBJECT_PREFIX", "clearframe.jobs")
	cfg.WebhookURL = os.Getenv("WEBHOOK_URL")
	cfg.WebhookSecret = os.Getenv("WEBHOOK_SECRET")

	cfg.OTELEnabled = getEnvBool("OTEL_ENABLED", false)
	cfg.OTLPEndpoint = getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	cfg.TraceSampleRate = getEnvFloat("OTEL_SAMPLE_RATE", 1.0)

	cfg.MetricsPort = getEnvInt("METRICS_PORT", 9090)

	return cfg, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvDuration(key, defaultValue string) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	return time.ParseDuration(value)
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	if c.MaxUploadSize < 1 {
		return fmt.Errorf("invalid max upload size: %d", c.MaxUploadSize)
	}

	if c.WorkerConcurrency < 1 {
		return fmt.Errorf("invalid worker concurrency: %d", c.WorkerConcurrency)
	}

	if c.DispatchQueueDepth < c.WorkerConcurrency {
		return fmt.Errorf("dispatch queue depth %d is smaller than worker concurrency %d", c.DispatchQueueDepth, c.WorkerConcurrency)
	}

	if c.StaleProcessingAfter <= 0 {
		return fmt.Errorf("invalid stale processing threshold: %s", c.StaleProcessingAfter)
	}

	switch c.StorageBackend {
	case StorageLocal:
	case StorageMinIO:
		if c.MinIOEndpoint == "" || c.MinIOAccessKey == "" || c.MinIOSecretKey == "" {
			return fmt.Errorf("MINIO_ENDPOINT, MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required for the minio backend")
		}
	case StorageS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unknown storage backend: %q", c.StorageBackend)
	}

	switch c.DispatchMode {
	case DispatchLocal:
	case DispatchQueue:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when DISPATCH_MODE=queue")
		}
	default:
		return fmt.Errorf("unknown dispatch mode: %q", c.DispatchMode)
	}

	if c.SelectionGuard != GuardStrict && c.SelectionGuard != GuardPermissive {
		return fmt.Errorf("unknown selection guard: %q", c.SelectionGuard)
	}

	return nil
}
