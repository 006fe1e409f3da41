// Package logger configures the process-wide slog logger and carries
// request-scoped loggers through context.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const (
	FormatJSON = "json"
	FormatText = "text"
)

type Options struct {
	Level   string
	Format  string
	Service string
	// Output defaults to os.Stdout.
	Output io.Writer
}

func (o Options) output() io.Writer {
	if o.Output == nil {
		return os.Stdout
	}
	return o.Output
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger without touching the process default.
func New(opts Options) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: parseLevel(opts.Level)}

	var h slog.Handler
	if strings.EqualFold(opts.Format, FormatText) {
		h = slog.NewTextHandler(opts.output(), hopts)
	} else {
		h = slog.NewJSONHandler(opts.output(), hopts)
	}

	l := slog.New(h)
	if opts.Service != "" {
		l = l.With("service", opts.Service)
	}
	return l
}

// Init builds a logger and installs it as the slog default.
func Init(opts Options) *slog.Logger {
	l := New(opts)
	slog.SetDefault(l)
	return l
}

// NewZerolog returns the logger handed to the queue worker pool and its
// middleware, with the same level, writer and service field.
func NewZerolog(opts Options) zerolog.Logger {
	var w io.Writer = opts.output()
	if strings.EqualFold(opts.Format, FormatText) {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true}
	}

	zc := zerolog.New(w).With().Timestamp()
	if opts.Service != "" {
		zc = zc.Str("service", opts.Service)
	}

	lvl := zerolog.InfoLevel
	switch parseLevel(opts.Level) {
	case slog.LevelDebug:
		lvl = zerolog.DebugLevel
	case slog.LevelWarn:
		lvl = zerolog.WarnLevel
	case slog.LevelError:
		lvl = zerolog.ErrorLevel
	}
	return zc.Logger().Level(lvl)
}

// Discard is for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type ctxKey int

const (
	loggerKey ctxKey = iota
	requestIDKey
)

// FromContext falls back to the slog default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

func with(ctx context.Context, attr, value string) context.Context {
	return WithLogger(ctx, FromContext(ctx).With(attr, value))
}

// WithRequestID also stores the id so error responses can echo it.
func WithRequestID(ctx context.Context, id string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, id)
	return with(ctx, "request_id", id)
}

func WithUserID(ctx context.Context, id string) context.Context {
	return with(ctx, "user_id", id)
}

func WithJobID(ctx context.Context, id string) context.Context {
	return with(ctx, "job_id", id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
