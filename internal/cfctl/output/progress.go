package output

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// ProgressOut is where bars render; stderr keeps stdout clean for pipes.
var ProgressOut io.Writer = os.Stderr

// meter holds what every bar shares. A nil bar means quiet: all methods
// become no-ops but Elapsed still works.
type meter struct {
	bar     *progressbar.ProgressBar
	started time.Time
}

func (m *meter) add(n int64) {
	if m.bar != nil {
		_ = m.bar.Add64(n)
	}
}

func (m *meter) Finish() {
	if m.bar != nil {
		_ = m.bar.Finish()
	}
}

func (m *meter) Elapsed() time.Duration {
	return time.Since(m.started)
}

func barOptions(description, accent string, extra ...progressbar.Option) []progressbar.Option {
	opts := []progressbar.Option{
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(ProgressOut),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(65 * time.Millisecond),
		progressbar.OptionFullWidth(),
		progressbar.OptionOnCompletion(func() { _, _ = fmt.Fprintln(ProgressOut) }),
	}
	if accent != "" {
		opts = append(opts, progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[" + accent + "]=[reset]",
			SaucerHead:    "[" + accent + "]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
	}
	return append(opts, extra...)
}

// Progress counts finished items, one per file in a multi-file upload.
type Progress struct{ meter }

func NewProgress(total int, description string, quiet bool) *Progress {
	p := &Progress{meter{started: time.Now()}}
	if !quiet {
		p.bar = progressbar.NewOptions(total, barOptions(description, "green",
			progressbar.OptionShowCount(),
			progressbar.OptionSetRenderBlankState(true),
		)...)
	}
	return p
}

func (p *Progress) Increment() { p.add(1) }

// ByteProgress is an io.Writer that advances a byte-sized bar. Pair it
// with io.TeeReader or io.MultiWriter.
type ByteProgress struct{ meter }

func NewByteProgress(total int64, description string, quiet bool) *ByteProgress {
	p := &ByteProgress{meter{started: time.Now()}}
	if !quiet {
		p.bar = progressbar.NewOptions64(total, barOptions(description, "cyan",
			progressbar.OptionShowBytes(true),
		)...)
	}
	return p
}

// Skip advances the bar without data, for resumed downloads.
func (p *ByteProgress) Skip(n int64) { p.add(n) }

func (p *ByteProgress) Write(b []byte) (int, error) {
	p.add(int64(len(b)))
	return len(b), nil
}

// Spinner shows an indeterminate wait, such as polling a job.
type Spinner struct{ meter }

func NewSpinner(description string, quiet bool) *Spinner {
	s := &Spinner{meter{started: time.Now()}}
	if !quiet {
		s.bar = progressbar.NewOptions(-1, barOptions(description, "",
			progressbar.OptionSpinnerType(14),
		)...)
	}
	return s
}

// Update replaces the description and ticks the spinner.
func (s *Spinner) Update(description string) {
	if s.bar != nil {
		s.bar.Describe(description)
	}
	s.add(1)
}
