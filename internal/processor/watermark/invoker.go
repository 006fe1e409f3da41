package watermark

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/logger"
	"github.com/abdul-hamid-achik/clearframe/internal/metrics"
	"github.com/abdul-hamid-achik/clearframe/internal/resolver"
	"github.com/google/uuid"
)

// RunFunc executes a binary and returns its combined output.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRun runs the command with exec.CommandContext.
func ExecRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.CombinedOutput()
}

// ExecOutput is ExecRun without stderr, for tools that print JSON.
func ExecOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

type InputResolver interface {
	Resolve(ctx context.Context, req resolver.Request) (string, error)
}

type Invoker struct {
	cfg      *Config
	resolver InputResolver
	root     string
	run      RunFunc
	probe    RunFunc
	newID    func() string
}

type Option func(*Invoker)

// WithRunner replaces process execution, used by tests to fake ffmpeg.
func WithRunner(run RunFunc) Option {
	return func(i *Invoker) { i.run = run }
}

// WithProber replaces the ffprobe call.
func WithProber(run RunFunc) Option {
	return func(i *Invoker) { i.probe = run }
}

func WithIDGenerator(fn func() string) Option {
	return func(i *Invoker) { i.newID = fn }
}

// NewInvoker writes outputs below root/processed and previews below root/previews.
func NewInvoker(cfg *Config, res InputResolver, root string, opts ...Option) *Invoker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	inv := &Invoker{
		cfg:      cfg,
		resolver: res,
		root:     root,
		run:      ExecRun,
		probe:    ExecOutput,
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

type Request struct {
	OwnerID      string
	OriginalRef  string
	ProcessedRef string
	Selections   []byte
}

type Result struct {
	// OutputKey is the output location relative to the storage root.
	OutputKey  string
	OutputPath string
	InputPath  string
	Filter     string
	Regions    int
}

// Process resolves the input, builds the filter chain and runs ffmpeg once.
func (inv *Invoker) Process(ctx context.Context, req Request) (*Result, error) {
	log := logger.FromContext(ctx)

	start := time.Now()
	input, err := inv.resolver.Resolve(ctx, resolver.Request{
		Candidates: []string{req.OriginalRef, req.ProcessedRef},
		OwnerID:    req.OwnerID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputNotFound, err)
	}
	metrics.RecordJobStage("watermark", "resolve", time.Since(start).Seconds())

	regions := DecodeSelections(req.Selections)
	var frame *FrameSize
	if size, err := inv.Probe(ctx, input); err == nil {
		frame = size
	} else {
		log.Debug("frame size unavailable, skipping bounds check", "error", err)
	}
	chain, hasMasks := BuildFilterChainForFrame(regions, frame)
	log.Info("watermark selections parsed", "regions", len(regions), "filter", chain)

	outputKey := filepath.ToSlash(filepath.Join("processed", req.OwnerID, inv.newID()+".mp4"))
	outputPath := filepath.Join(inv.root, filepath.FromSlash(outputKey))
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	args := []string{"-y", "-i", input}
	if hasMasks {
		args = append(args, "-vf", chain)
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", inv.cfg.Preset,
		"-crf", strconv.Itoa(inv.cfg.CRF),
		"-c:a", "aac",
		"-movflags", "+faststart",
		outputPath,
	)

	encodeStart := time.Now()
	if err := inv.exec(ctx, args); err != nil {
		_ = os.Remove(outputPath)
		return nil, err
	}
	metrics.RecordJobStage("watermark", "encode", time.Since(encodeStart).Seconds())

	info, err := os.Stat(outputPath)
	if err != nil || !info.Mode().IsRegular() {
		return nil, &ToolError{Err: ErrOutputMissing}
	}

	log.Info("watermark removal finished",
		"output_key", outputKey,
		"size", info.Size(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &Result{
		OutputKey:  outputKey,
		OutputPath: outputPath,
		InputPath:  input,
		Filter:     chain,
		Regions:    len(regions),
	}, nil
}

func (inv *Invoker) exec(ctx context.Context, args []string) error {
	out, err := inv.run(ctx, inv.cfg.FFmpegPath, args...)
	if err == nil {
		return nil
	}
	if isNotInstalled(err) {
		return fmt.Errorf("%w: install FFmpeg and ensure it is on PATH, or set FFMPEG_PATH to the full path of the ffmpeg binary (%v)", ErrToolNotInstalled, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &ToolError{Diagnostic: tail(out, DiagnosticTailBytes), Err: ctxErr}
	}
	logger.FromContext(ctx).Warn("ffmpeg exited with error", "error", err, "output_tail", tail(out, DiagnosticTailBytes))
	return &ToolError{Diagnostic: tail(out, DiagnosticTailBytes), Err: err}
}

func isNotInstalled(err error) bool {
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return true
	}
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist)
}

// Preview renders a downscaled, blurred copy of src at dst. The write goes to
// a temporary file first so readers never see a partial preview.
func (inv *Invoker) Preview(ctx context.Context, src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("create preview directory: %w", err)
	}
	tmp := dst + ".tmp.mp4"
	args := []string{
		"-y", "-i", src,
		"-vf", fmt.Sprintf("scale=-2:%d,boxblur=4:1", inv.cfg.PreviewHeight),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "30",
		"-an",
		"-movflags", "+faststart",
		tmp,
	}
	if err := inv.exec(ctx, args); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrOutputMissing, err)
	}
	return nil
}

// PreviewPath is the cache location of a job's preview.
func (inv *Invoker) PreviewPath(jobID string) string {
	return filepath.Join(inv.root, "previews", jobID+".mp4")
}

// Available reports whether the ffmpeg binary can be found.
func (inv *Invoker) Available() error {
	if _, err := exec.LookPath(inv.cfg.FFmpegPath); err != nil {
		return fmt.Errorf("%w: %v", ErrToolNotInstalled, err)
	}
	return nil
}
