package watermark

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/abdul-hamid-achik/clearframe/internal/resolver"
)

type staticResolver struct {
	path string
	err  error
	got  resolver.Request
}

func (s *staticResolver) Resolve(ctx context.Context, req resolver.Request) (string, error) {
	s.got = req
	return s.path, s.err
}

type fakeFFmpeg struct {
	calls  [][]string
	output []byte
	err    error
	write  bool
}

func (f *fakeFFmpeg) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.write {
		out := args[len(args)-1]
		if err := os.WriteFile(out, []byte("processed"), 0o600); err != nil {
			return nil, err
		}
	}
	return f.output, f.err
}

func noProbe(ctx context.Context, name string, args ...string) ([]byte, error) {
	return nil, errors.New("no ffprobe in tests")
}

func newTestInvoker(t *testing.T, res InputResolver, ff *fakeFFmpeg) (*Invoker, string) {
	t.Helper()
	root := t.TempDir()
	inv := NewInvoker(DefaultConfig(), res, root,
		WithRunner(ff.run),
		WithProber(noProbe),
		WithIDGenerator(func() string { return "out-1" }),
	)
	return inv, root
}

func TestInvoker_Process_Success(t *testing.T) {
	res := &staticResolver{path: "/data/in.mp4"}
	ff := &fakeFFmpeg{write: true}
	inv, root := newTestInvoker(t, res, ff)

	result, err := inv.Process(context.Background(), Request{
		OwnerID:     "owner-1",
		OriginalRef: "uploads/free/owner-1/a.mp4",
		Selections:  []byte(`[{"x":10,"y":10,"width":50,"height":20}]`),
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if result.OutputKey != "processed/owner-1/out-1.mp4" {
		t.Errorf("OutputKey = %q", result.OutputKey)
	}
	if want := filepath.Join(root, "processed", "owner-1", "out-1.mp4"); result.OutputPath != want {
		t.Errorf("OutputPath = %q, want %q", result.OutputPath, want)
	}
	if res.got.Candidates[0] != "uploads/free/owner-1/a.mp4" || res.got.OwnerID != "owner-1" {
		t.Errorf("resolver request = %+v", res.got)
	}

	want := []string{
		"ffmpeg", "-y", "-i", "/data/in.mp4",
		"-vf", "delogo=x=10:y=10:w=50:h=20:show=0," + SharpenFilter,
		"-c:v", "libx264", "-preset", "medium", "-crf", "18",
		"-c:a", "aac", "-movflags", "+faststart",
		result.OutputPath,
	}
	if len(ff.calls) != 1 || strings.Join(ff.calls[0], " ") != strings.Join(want, " ") {
		t.Errorf("ffmpeg args =\n%v\nwant\n%v", ff.calls, want)
	}
}

func TestInvoker_Process_NoSelectionsOmitsFilter(t *testing.T) {
	ff := &fakeFFmpeg{write: true}
	inv, _ := newTestInvoker(t, &staticResolver{path: "/data/in.mp4"}, ff)

	result, err := inv.Process(context.Background(), Request{OwnerID: "o", Selections: []byte(`not json`)})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if result.Filter != "" {
		t.Errorf("Filter = %q, want empty", result.Filter)
	}
	for _, a := range ff.calls[0] {
		if a == "-vf" {
			t.Fatal("-vf passed without a filter chain")
		}
	}
}

func TestInvoker_Process_Errors(t *testing.T) {
	tests := []struct {
		name     string
		res      *staticResolver
		ff       *fakeFFmpeg
		wantErr  error
		contains string
	}{
		{
			name:    "input not found",
			res:     &staticResolver{err: resolver.ErrNotFound},
			ff:      &fakeFFmpeg{},
			wantErr: ErrInputNotFound,
		},
		{
			name:     "tool missing",
			res:      &staticResolver{path: "/data/in.mp4"},
			ff:       &fakeFFmpeg{err: &exec.Error{Name: "ffmpeg", Err: exec.ErrNotFound}},
			wantErr:  ErrToolNotInstalled,
			contains: "FFMPEG_PATH",
		},
		{
			name:     "non-zero exit",
			res:      &staticResolver{path: "/data/in.mp4"},
			ff:       &fakeFFmpeg{err: errors.New("exit status 1"), output: []byte("Error while filtering: boom")},
			wantErr:  ErrToolFailed,
			contains: "boom",
		},
		{
			name:     "success without output",
			res:      &staticResolver{path: "/data/in.mp4"},
			ff:       &fakeFFmpeg{},
			wantErr:  ErrToolFailed,
			contains: "not created",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, _ := newTestInvoker(t, tt.res, tt.ff)
			_, err := inv.Process(context.Background(), Request{OwnerID: "o"})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Process() error = %v, want %v", err, tt.wantErr)
			}
			if tt.contains != "" && !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.contains)
			}
		})
	}
}

func TestInvoker_DiagnosticIsBounded(t *testing.T) {
	noise := strings.Repeat("x", 5000) + "the real reason"
	ff := &fakeFFmpeg{err: errors.New("exit status 1"), output: []byte(noise)}
	inv, _ := newTestInvoker(t, &staticResolver{path: "/in.mp4"}, ff)

	_, err := inv.Process(context.Background(), Request{OwnerID: "o"})
	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("error = %T, want *ToolError", err)
	}
	if len(toolErr.Diagnostic) != DiagnosticTailBytes {
		t.Errorf("diagnostic length = %d, want %d", len(toolErr.Diagnostic), DiagnosticTailBytes)
	}
	if !strings.HasSuffix(toolErr.Diagnostic, "the real reason") {
		t.Error("diagnostic should keep the tail of the output")
	}
}

func TestInvoker_OutputNamesAreUnique(t *testing.T) {
	ff := &fakeFFmpeg{write: true}
	inv := NewInvoker(DefaultConfig(), &staticResolver{path: "/in.mp4"}, t.TempDir(), WithRunner(ff.run), WithProber(noProbe))

	seen := make(map[string]bool)
	for i := 0; i < 5; i++ {
		res, err := inv.Process(context.Background(), Request{OwnerID: "o"})
		if err != nil {
			t.Fatalf("Process() error = %v", err)
		}
		if seen[res.OutputKey] {
			t.Fatalf("duplicate output key %q", res.OutputKey)
		}
		seen[res.OutputKey] = true
	}
}

func TestInvoker_Preview(t *testing.T) {
	ff := &fakeFFmpeg{write: true}
	inv, root := newTestInvoker(t, &staticResolver{}, ff)
	dst := inv.PreviewPath("job-1")

	if dst != filepath.Join(root, "previews", "job-1.mp4") {
		t.Errorf("PreviewPath() = %q", dst)
	}
	if err := inv.Preview(context.Background(), "/in.mp4", dst); err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("preview not written: %v", err)
	}
	if args := strings.Join(ff.calls[0], " "); !strings.Contains(args, "scale=-2:360,boxblur=4:1") || !strings.Contains(args, "-an") {
		t.Errorf("preview args = %s", args)
	}
}

func TestParseProbe(t *testing.T) {
	out := []byte(`{"streams":[{"codec_type":"audio"},{"codec_type":"video","width":1280,"height":720}]}`)
	size, err := parseProbe(out)
	if err != nil {
		t.Fatalf("parseProbe() error = %v", err)
	}
	if size.Width != 1280 || size.Height != 720 {
		t.Errorf("size = %+v", size)
	}

	if _, err := parseProbe([]byte(`{"streams":[]}`)); !errors.Is(err, ErrProbeFailed) {
		t.Errorf("parseProbe(empty) error = %v, want ErrProbeFailed", err)
	}
}

func skipIfNoFFmpeg(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available, skipping test")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not available, skipping test")
	}
}

func TestInvoker_RealFFmpeg(t *testing.T) {
	skipIfNoFFmpeg(t)

	root := t.TempDir()
	src := filepath.Join(root, "uploads", "free", "o", "src.mp4")
	if err := os.MkdirAll(filepath.Dir(src), 0o750); err != nil {
		t.Fatal(err)
	}
	gen := exec.Command("ffmpeg", "-y", "-f", "lavfi", "-i", "testsrc=size=320x240:rate=10", "-t", "1", "-pix_fmt", "yuv420p", src)
	if out, err := gen.CombinedOutput(); err != nil {
		t.Skipf("cannot synthesize test video: %v: %s", err, out)
	}

	cfg := DefaultConfig()
	cfg.Preset = "ultrafast"
	inv := NewInvoker(cfg, &staticResolver{path: src}, root)

	res, err := inv.Process(context.Background(), Request{
		OwnerID:    "o",
		Selections: []byte(fmt.Sprintf(`{"watermarks":[{"x":10,"y":10,"width":%d,"height":20}]}`, 50)),
	})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if info, err := os.Stat(res.OutputPath); err != nil || info.Size() == 0 {
		t.Errorf("output missing or empty: %v", err)
	}
}
