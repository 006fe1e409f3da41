package cli

import (
	"fmt"

	"github.com/abdul-hamid-achik/clearframe/internal/cfctl/client"
	"github.com/abdul-hamid-achik/clearframe/internal/cfctl/output"
	"github.com/spf13/cobra"
)

const maxListLimit = 100

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List your jobs",
	Long: `List jobs, newest first.

Examples:
  cfctl list                      # Recent jobs
  cfctl list --limit=50           # More jobs
  cfctl list --status=failed      # Only failed jobs on this page
  cfctl list --json | jq '.jobs[].id'`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var (
	listLimit  int
	listOffset int
	listStatus string
)

func init() {
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Number of jobs to list (max 100)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Offset for pagination")
	listCmd.Flags().StringVar(&listStatus, "status", "", "Show only jobs in this status (pending, processing, completed, failed)")
}

func validateListFlags() error {
	if listLimit < 0 || listLimit > maxListLimit {
		return fmt.Errorf("--limit must be between 0 and %d", maxListLimit)
	}
	if listOffset < 0 {
		return fmt.Errorf("--offset must not be negative")
	}
	switch listStatus {
	case "", client.StatusPending, client.StatusProcessing, client.StatusCompleted, client.StatusFailed:
		return nil
	}
	return fmt.Errorf("unknown status %q", listStatus)
}

// filterJobs applies --status to a fetched page. The API has no status
// filter, so paging still counts the unfiltered jobs.
func filterJobs(jobs []client.Job, status string) []client.Job {
	if status == "" {
		return jobs
	}
	kept := jobs[:0:0]
	for _, j := range jobs {
		if j.Status == status {
			kept = append(kept, j)
		}
	}
	return kept
}

func runList(cmd *cobra.Command, args []string) error {
	if err := requireAuth(); err != nil {
		return err
	}
	if err := validateListFlags(); err != nil {
		return err
	}

	page, err := apiClient.ListJobs(commandContext(cmd), listLimit, listOffset)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}
	fullPage := listLimit > 0 && len(page.Jobs) == listLimit
	page.Jobs = filterJobs(page.Jobs, listStatus)

	if jsonOutput {
		return printer.JSON(page)
	}
	if len(page.Jobs) == 0 {
		printer.Info("No jobs found")
	} else {
		renderJobs(cmd, page.Jobs)
	}

	if fullPage {
		printer.Println()
		printer.Printf("More jobs may exist (use --offset=%d)\n", listOffset+listLimit)
	}
	return nil
}

func renderJobs(cmd *cobra.Command, jobs []client.Job) {
	table := output.NewTableWriter(cmd.OutOrStdout(), []string{"ID", "File", "Status", "Tier", "Size", "Created"}, quietMode)
	for _, j := range jobs {
		table.Append([]string{
			j.ID,
			truncate(j.OriginalFilename, 30),
			output.Status(j.Status),
			j.Tier,
			formatSize(j.SizeBytes),
			formatTime(j.CreatedAt),
		})
	}
	table.Render()
}
