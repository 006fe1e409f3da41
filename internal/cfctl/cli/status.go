package cli

import (
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/cfctl/client"
	"github.com/abdul-hamid-achik/clearframe/internal/cfctl/output"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job",
	Long: `Show a job and its processing state.

Examples:
  cfctl status abc123           # Show once
  cfctl status abc123 --watch   # Wait until it completes or fails`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

var statusWatch bool

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Watch until complete")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := requireAuth(); err != nil {
		return err
	}
	jobID := args[0]

	if statusWatch {
		status, err := waitForJob(cmd, jobID)
		if err != nil {
			return err
		}
		return reportFinal(status)
	}

	j, err := apiClient.GetJob(commandContext(cmd), jobID)
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	if jsonOutput {
		return printer.JSON(j)
	}
	printJob(j)
	return nil
}

func printJob(j *client.Job) {
	printer.Header("Job " + j.ID)
	printer.KeyValue("File", j.OriginalFilename)
	printer.KeyValue("Status", output.Status(j.Status))
	printer.KeyValue("Tier", j.Tier)
	printer.KeyValue("Size", formatSize(j.SizeBytes))
	printer.KeyValue("Created", formatTime(j.CreatedAt))
	if j.ProcessingStartedAt != nil {
		printer.KeyValue("Started", formatTime(*j.ProcessingStartedAt))
	}
	if j.ProcessingCompletedAt != nil && j.ProcessingStartedAt != nil {
		printer.KeyValue("Took", j.ProcessingCompletedAt.Sub(*j.ProcessingStartedAt).Round(time.Second).String())
	}
	if j.ErrorMessage != nil {
		printer.KeyValue("Error", *j.ErrorMessage)
	}
	printer.KeyValue("Stream", j.StreamURL)
}
