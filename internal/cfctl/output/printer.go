// Package output renders cfctl results for terminals and scripts. In JSON
// mode only structured results reach stdout; quiet mode keeps errors.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

type Mode int

const (
	ModeText Mode = iota
	ModeQuiet
	ModeJSON
)

type Printer struct {
	mode   Mode
	out    io.Writer
	errOut io.Writer
}

type Option func(*Printer)

// WithJSON wins over WithQuiet regardless of order.
func WithJSON(on bool) Option {
	return func(p *Printer) {
		if on {
			p.mode = ModeJSON
		}
	}
}

func WithQuiet(on bool) Option {
	return func(p *Printer) {
		if on && p.mode != ModeJSON {
			p.mode = ModeQuiet
		}
	}
}

// WithNoColor disables color process-wide; fatih/color has no per-writer switch.
func WithNoColor(on bool) Option {
	return func(*Printer) {
		if on {
			color.NoColor = true
		}
	}
}

func WithOutput(w io.Writer) Option {
	return func(p *Printer) { p.out = w }
}

func WithErrOutput(w io.Writer) Option {
	return func(p *Printer) { p.errOut = w }
}

func New(opts ...Option) *Printer {
	p := &Printer{mode: ModeText, out: os.Stdout, errOut: os.Stderr}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Printer) Mode() Mode { return p.mode }

func (p *Printer) text() bool { return p.mode == ModeText }

// line writes "icon message" to stdout in text mode.
func (p *Printer) line(icon, format string, args []any) {
	if !p.text() {
		return
	}
	fmt.Fprintln(p.out, icon, fmt.Sprintf(format, args...))
}

// problem writes to stderr unless the output is JSON.
func (p *Printer) problem(format string, args ...any) {
	if p.mode == ModeJSON {
		return
	}
	fmt.Fprintln(p.errOut, color.RedString("✗"), fmt.Sprintf(format, args...))
}

func (p *Printer) Printf(format string, args ...any) {
	if p.text() {
		fmt.Fprintf(p.out, format, args...)
	}
}

func (p *Printer) Println(args ...any) {
	if p.text() {
		fmt.Fprintln(p.out, args...)
	}
}

func (p *Printer) Success(format string, args ...any) {
	p.line(color.GreenString("✓"), format, args)
}

func (p *Printer) Warn(format string, args ...any) {
	p.line(color.YellowString("!"), format, args)
}

func (p *Printer) Info(format string, args ...any) {
	p.line(color.CyanString("→"), format, args)
}

func (p *Printer) Indent(format string, args ...any) {
	p.line("  "+color.HiBlackString("└─"), format, args)
}

func (p *Printer) Error(format string, args ...any) {
	p.problem(format, args...)
}

func (p *Printer) JobFailed(name string, err error) {
	p.problem("%s: %v", name, err)
}

// JSON always writes, whatever the mode; callers only reach it in JSON mode.
func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *Printer) Header(title string) {
	if p.text() {
		fmt.Fprintf(p.out, "\n%s\n\n", color.New(color.Bold).Sprint(title))
	}
}

func (p *Printer) KeyValue(key, value string) {
	if p.text() {
		fmt.Fprintf(p.out, "  %s: %s\n", color.HiBlackString(key), value)
	}
}

// Summary prints "n/total <verb>" after a batch, yellow when anything failed.
func (p *Printer) Summary(verb string, successful, failed int) {
	if !p.text() {
		return
	}
	msg := fmt.Sprintf("%d/%d %s", successful, successful+failed, verb)
	if failed > 0 {
		fmt.Fprintf(p.out, "\n%s\n", color.YellowString("%s (%d failed)", msg, failed))
		return
	}
	fmt.Fprintf(p.out, "\n%s\n", color.GreenString(msg))
}

// JobUploaded prints a job's id with the URL of its original video.
func (p *Printer) JobUploaded(filename, jobID, streamURL string) {
	p.Success("%s %s %s", filename, color.CyanString("→"), jobID)
	p.Indent("%s", streamURL)
}

// Status colors a job status for terminal output.
func Status(s string) string {
	switch s {
	case "completed":
		return color.GreenString(s)
	case "failed":
		return color.RedString(s)
	case "processing":
		return color.YellowString(s)
	}
	return color.CyanString(s)
}
