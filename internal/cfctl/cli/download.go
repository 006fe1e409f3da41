package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/abdul-hamid-achik/clearframe/internal/cfctl/client"
	"github.com/abdul-hamid-achik/clearframe/internal/cfctl/output"
	"github.com/spf13/cobra"
)

var downloadCmd = &cobra.Command{
	Use:   "download <job-id>",
	Short: "Download the processed video",
	Long: `Download the processed video of a completed job.

Examples:
  cfctl download abc123                    # ./<name>_clean.mp4
  cfctl download abc123 -o clean.mp4       # To a file
  cfctl download abc123 -o ./out/          # To a directory
  cfctl download abc123 -o clean.mp4 -c    # Resume a partial download`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

var (
	downloadOutput string
	downloadResume bool
)

func init() {
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", ".", "Output directory or file path")
	downloadCmd.Flags().BoolVarP(&downloadResume, "continue", "c", false, "Resume a partial download")
}

type downloadResult struct {
	JobID   string `json:"job_id"`
	Path    string `json:"path"`
	Bytes   int64  `json:"bytes"`
	Resumed bool   `json:"resumed"`
}

func runDownload(cmd *cobra.Command, args []string) error {
	if err := requireAuth(); err != nil {
		return err
	}
	ctx := commandContext(cmd)
	jobID := args[0]

	j, err := apiClient.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if j.Status != client.StatusCompleted {
		return fmt.Errorf("job %s is %s, not completed", jobID, j.Status)
	}

	dl, err := apiClient.Download(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get download url: %w", err)
	}

	dest, err := outputPath(downloadOutput, cleanName(j.OriginalFilename, jobID))
	if err != nil {
		return err
	}

	var offset int64
	if downloadResume {
		if info, err := os.Stat(dest); err == nil {
			offset = info.Size()
		}
	}

	body, info, err := apiClient.Stream(ctx, dl.DownloadURL, offset)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer func() { _ = body.Close() }()

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	resumed := offset > 0 && info.Offset == offset
	if resumed {
		flags = os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(dest, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", dest, err)
	}

	bar := output.NewByteProgress(info.Total, filepath.Base(dest), quietMode || jsonOutput)
	if resumed {
		bar.Skip(offset)
	}
	n, copyErr := io.Copy(io.MultiWriter(f, bar), body)
	bar.Finish()
	closeErr := f.Close()
	if copyErr != nil {
		return fmt.Errorf("download interrupted after %d bytes (rerun with -c to resume): %w", n, copyErr)
	}
	if closeErr != nil {
		return closeErr
	}

	res := downloadResult{JobID: jobID, Path: dest, Bytes: n, Resumed: resumed}
	if jsonOutput {
		return printer.JSON(res)
	}
	if resumed {
		printer.Success("Resumed %s at %s, wrote %s", dest, formatSize(offset), formatSize(n))
	} else {
		printer.Success("Saved %s (%s)", dest, formatSize(n))
	}
	return nil
}

// cleanName derives "<stem>_clean<ext>" from the uploaded filename.
func cleanName(original, jobID string) string {
	base := sanitizeFilename(original)
	if base == "" {
		return jobID + "_clean.mp4"
	}
	ext := filepath.Ext(base)
	if ext == "" {
		ext = ".mp4"
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + "_clean" + ext
}

// outputPath resolves -o: an existing directory or a path ending in a
// separator receives name; anything else is the file itself.
func outputPath(target, name string) (string, error) {
	if target == "" {
		target = "."
	}
	info, err := os.Stat(target)
	isDir := (err == nil && info.IsDir()) || strings.HasSuffix(target, string(filepath.Separator))
	if !isDir {
		if dir := filepath.Dir(target); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return "", err
			}
		}
		return target, nil
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		return "", err
	}
	return safePath(target, name)
}

// sanitizeFilename keeps only the base name and drops separators and
// NUL bytes. It returns "" for names that cannot be made safe.
func sanitizeFilename(filename string) string {
	filename = filepath.Base(filepath.Clean(filename))
	if filename == "." || filename == ".." || filename == "" || filename == string(filepath.Separator) {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r == 0 || r == '/' || r == '\\' {
			return -1
		}
		return r
	}, filename)
}

// safePath joins filename onto baseDir and refuses results outside it.
func safePath(baseDir, filename string) (string, error) {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}
	sanitized := sanitizeFilename(filename)
	if sanitized == "" {
		return "", fmt.Errorf("invalid filename")
	}
	absPath, err := filepath.Abs(filepath.Join(absBase, sanitized))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes target directory")
	}
	return absPath, nil
}
