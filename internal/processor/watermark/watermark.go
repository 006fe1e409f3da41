// Package watermark turns user-selected rectangles into an ffmpeg filter chain
// and runs ffmpeg to produce the cleaned video.
package watermark

import (
	"errors"
)

var (
	ErrInputNotFound    = errors.New("watermark: input video not found")
	ErrToolNotInstalled = errors.New("watermark: ffmpeg not found")
	ErrToolFailed       = errors.New("watermark: ffmpeg failed")
	ErrOutputMissing    = errors.New("watermark: processed file was not created")
	ErrProbeFailed      = errors.New("watermark: ffprobe failed")
)

// DiagnosticTailBytes bounds the ffmpeg output kept on a failure.
const DiagnosticTailBytes = 1000

// SharpenFilter is appended after the masks to counter the softness delogo leaves.
const SharpenFilter = "unsharp=5:5:0.8:3:3:0.4"

type Config struct {
	FFmpegPath  string
	FFprobePath string
	Preset      string
	CRF         int

	// PreviewHeight is the output height of preview renders.
	PreviewHeight int
}

func DefaultConfig() *Config {
	return &Config{
		FFmpegPath:    "ffmpeg",
		FFprobePath:   "ffprobe",
		Preset:        "medium",
		CRF:           18,
		PreviewHeight: 360,
	}
}

// ToolError carries the tail of ffmpeg's output. It unwraps to ErrToolFailed.
type ToolError struct {
	Diagnostic string
	Err        error
}

func (e *ToolError) Error() string {
	switch {
	case e.Diagnostic != "":
		return "FFmpeg failed: " + e.Diagnostic
	case e.Err != nil:
		return "FFmpeg failed: " + e.Err.Error()
	default:
		return "FFmpeg failed"
	}
}

func (e *ToolError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrToolFailed}
	}
	return []error{ErrToolFailed, e.Err}
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
