package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete <job-id...>",
	Aliases: []string{"rm"},
	Short:   "Delete jobs and their videos",
	Long: `Delete jobs together with the original and processed videos.
Jobs that are still processing cannot be deleted.

Examples:
  cfctl delete abc123              # Delete one job
  cfctl delete abc123 def456 -f    # Skip confirmation`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDelete,
}

var deleteForce bool

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation")
}

type deleteResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted,omitempty"`
	Error   string `json:"error,omitempty"`
}

type deleteSummary struct {
	Results    []deleteResult `json:"results"`
	Total      int            `json:"total"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
}

func runDelete(cmd *cobra.Command, args []string) error {
	if err := requireAuth(); err != nil {
		return err
	}

	// JSON callers are scripts; they cannot answer a prompt.
	if !deleteForce && !jsonOutput && !confirm(cmd, fmt.Sprintf("Delete %d job(s)?", len(args))) {
		printer.Info("Cancelled")
		return nil
	}

	ctx := commandContext(cmd)
	summary := deleteSummary{Total: len(args), Results: make([]deleteResult, 0, len(args))}

	for _, id := range args {
		res := deleteResult{ID: id}
		if err := apiClient.DeleteJob(ctx, id); err != nil {
			printer.JobFailed(id, err)
			res.Error = err.Error()
			summary.Failed++
		} else {
			printer.Success("Deleted %s", id)
			res.Deleted = true
			summary.Successful++
		}
		summary.Results = append(summary.Results, res)
	}

	switch {
	case jsonOutput:
		if err := printer.JSON(summary); err != nil {
			return err
		}
	case len(args) > 1:
		printer.Summary("deleted", summary.Successful, summary.Failed)
	}

	if summary.Failed > 0 {
		return fmt.Errorf("%d deletions failed", summary.Failed)
	}
	return nil
}
