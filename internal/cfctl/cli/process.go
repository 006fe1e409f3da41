package cli

import (
	"fmt"

	"github.com/abdul-hamid-achik/clearframe/internal/cfctl/client"
	"github.com/spf13/cobra"
)

var processCmd = &cobra.Command{
	Use:   "process <job-id>",
	Short: "Start watermark removal for a job",
	Long: `Start processing a pending job with its saved regions.

Examples:
  cfctl process abc123          # Start and return
  cfctl process abc123 --wait   # Start and wait for the result`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

var processWait bool

func init() {
	processCmd.Flags().BoolVarP(&processWait, "wait", "w", false, "Wait until the job completes or fails")
}

func runProcess(cmd *cobra.Command, args []string) error {
	if err := requireAuth(); err != nil {
		return err
	}
	jobID := args[0]

	resp, err := apiClient.Process(commandContext(cmd), jobID)
	if err != nil {
		return fmt.Errorf("failed to start processing: %w", err)
	}

	if !processWait {
		if jsonOutput {
			return printer.JSON(resp)
		}
		printer.Success("Processing started for %s", jobID)
		printer.Indent("cfctl status %s --watch", jobID)
		return nil
	}

	status, err := waitForJob(cmd, jobID)
	if err != nil {
		return err
	}
	return reportFinal(status)
}

// reportFinal prints a terminal status and turns FAILED into an error.
func reportFinal(status *client.JobStatus) error {
	if jsonOutput {
		if err := printer.JSON(status); err != nil {
			return err
		}
	}
	if status.Status == client.StatusFailed {
		msg := "unknown error"
		if status.ErrorMessage != nil {
			msg = *status.ErrorMessage
		}
		return fmt.Errorf("job %s failed: %s", status.JobID, msg)
	}
	printer.Success("Job %s completed", status.JobID)
	printer.Indent("cfctl download %s", status.JobID)
	return nil
}
