package cli

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/abdul-hamid-achik/clearframe/internal/cfctl/client"
	"github.com/abdul-hamid-achik/clearframe/internal/cfctl/output"
	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <files...>",
	Short: "Upload videos and optionally start processing",
	Long: `Upload one or more videos. Each upload becomes a job; regions given
here are saved on every job before processing starts.

Examples:
  cfctl upload clip.mp4                                   # Upload only
  cfctl upload clip.mp4 --region 20,20,180,60 --process   # Upload, select, start
  cfctl upload *.mp4 --regions-file logo.yaml --process --wait`,
	Args: cobra.MinimumNArgs(1),
	RunE: runUpload,
}

var (
	uploadRegions     []string
	uploadRegionsFile string
	uploadProcess     bool
	uploadWait        bool
	uploadDryRun      bool
)

func init() {
	uploadCmd.Flags().StringArrayVarP(&uploadRegions, "region", "r", nil, "Region as x,y,width,height[@seconds] (repeatable)")
	uploadCmd.Flags().StringVar(&uploadRegionsFile, "regions-file", "", "YAML or JSON file with regions")
	uploadCmd.Flags().BoolVarP(&uploadProcess, "process", "p", false, "Start processing after upload")
	uploadCmd.Flags().BoolVarP(&uploadWait, "wait", "w", false, "Wait for processing to finish (implies --process)")
	uploadCmd.Flags().BoolVar(&uploadDryRun, "dry-run", false, "Show what would be uploaded")
}

type uploadResult struct {
	File      string `json:"file"`
	JobID     string `json:"job_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Tier      string `json:"tier,omitempty"`
	StreamURL string `json:"stream_url,omitempty"`
	Regions   int    `json:"regions,omitempty"`
	Error     string `json:"error,omitempty"`
}

type uploadSummary struct {
	Results    []uploadResult `json:"results"`
	Total      int            `json:"total"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
}

func runUpload(cmd *cobra.Command, args []string) error {
	if err := requireAuth(); err != nil {
		return err
	}

	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	regions, err := collectRegions(uploadRegionsFile, uploadRegions)
	if err != nil {
		return err
	}
	if uploadWait {
		uploadProcess = true
	}
	if uploadProcess && len(regions) == 0 {
		printer.Warn("No regions given; processing will re-encode without removing anything")
	}

	if uploadDryRun {
		for _, f := range files {
			printer.Info("%s", f)
		}
		printer.Printf("%d file(s), %d region(s)\n", len(files), len(regions))
		return nil
	}

	var progress *output.Progress
	if len(files) > 1 {
		progress = output.NewProgress(len(files), "Uploading", quietMode || jsonOutput)
	}

	summary := uploadSummary{Total: len(files)}
	for _, f := range files {
		res := uploadOne(cmd, f, regions, len(files) == 1)
		summary.Results = append(summary.Results, res)
		if res.Error != "" {
			summary.Failed++
		} else {
			summary.Successful++
		}
		if progress != nil {
			progress.Increment()
		}
	}
	if progress != nil {
		progress.Finish()
	}

	if jsonOutput {
		if err := printer.JSON(summary); err != nil {
			return err
		}
	} else if len(files) > 1 {
		printer.Summary("uploaded", summary.Successful, summary.Failed)
	}

	if summary.Failed > 0 {
		if summary.Total == 1 {
			return fmt.Errorf("%s", summary.Results[0].Error)
		}
		return fmt.Errorf("%d of %d uploads failed", summary.Failed, summary.Total)
	}
	return nil
}

// uploadOne runs the upload, select, process and wait steps for a file
// and records the first failure.
func uploadOne(cmd *cobra.Command, path string, regions []client.Region, showBytes bool) uploadResult {
	ctx := commandContext(cmd)
	res := uploadResult{File: path}
	failed := func(step string, err error) uploadResult {
		if client.StatusCode(err) == http.StatusPaymentRequired {
			err = fmt.Errorf("%w (run 'cfctl buy' to add credits)", err)
		}
		res.Error = fmt.Sprintf("%s: %v", step, err)
		printer.JobFailed(path, fmt.Errorf("%s: %w", step, err))
		return res
	}

	var progress io.Writer
	var bar *output.ByteProgress
	if showBytes {
		if info, err := os.Stat(path); err == nil {
			bar = output.NewByteProgress(info.Size(), filepath.Base(path), quietMode || jsonOutput)
			progress = bar
		}
	}
	uploaded, err := apiClient.Upload(ctx, path, progress)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		return failed("upload", err)
	}
	res.JobID = uploaded.JobID
	res.Status = uploaded.Status
	res.Tier = uploaded.Tier
	res.StreamURL = uploaded.RedirectURL
	printer.JobUploaded(filepath.Base(path), uploaded.JobID, uploaded.RedirectURL)

	if len(regions) > 0 {
		saved, err := apiClient.SubmitSelections(ctx, res.JobID, regions)
		if err != nil {
			return failed("select", err)
		}
		res.Regions = saved.Regions
		printer.Indent("%d region(s) saved", saved.Regions)
	}

	if !uploadProcess {
		return res
	}
	started, err := apiClient.Process(ctx, res.JobID)
	if err != nil {
		return failed("process", err)
	}
	res.Status = started.Status

	if !uploadWait {
		printer.Indent("processing started")
		return res
	}
	status, err := waitForJob(cmd, res.JobID)
	if err != nil {
		return failed("wait", err)
	}
	res.Status = status.Status
	if status.Status == client.StatusFailed {
		msg := "unknown error"
		if status.ErrorMessage != nil {
			msg = *status.ErrorMessage
		}
		return failed("process", fmt.Errorf("%s", msg))
	}
	printer.Indent("completed")
	return res
}

func collectFiles(args []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)

	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			matches = []string{arg}
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil {
				return nil, fmt.Errorf("file not found: %s", m)
			}
			if info.IsDir() {
				return nil, fmt.Errorf("%s is a directory", m)
			}
			if !isVideoFile(m) {
				return nil, fmt.Errorf("%s is not a supported video file", m)
			}
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no files to upload")
	}
	return files, nil
}

func isVideoFile(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4", ".m4v", ".mov", ".webm", ".mkv", ".avi":
		return true
	}
	return false
}
