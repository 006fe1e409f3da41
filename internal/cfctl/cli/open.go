package cli

import (
	"fmt"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"
)

var openCmd = &cobra.Command{
	Use:   "open <job-id>",
	Short: "Open a job's video in the browser",
	Long: `Open the job's stream in the default browser. The stream plays the
processed video once the job has completed and the original before.`,
	Args: cobra.ExactArgs(1),
	RunE: runOpen,
}

func runOpen(cmd *cobra.Command, args []string) error {
	if err := requireAuth(); err != nil {
		return err
	}
	j, err := apiClient.GetJob(commandContext(cmd), args[0])
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}
	return openInBrowser(j.StreamURL)
}

// openBrowser is replaced in tests.
var openBrowser = browser.OpenURL

func openInBrowser(url string) error {
	if jsonOutput {
		return printer.JSON(map[string]string{"url": url})
	}
	if err := openBrowser(url); err != nil {
		printer.Warn("Could not open browser automatically")
		printer.Printf("Open this URL manually: %s\n", url)
		return nil
	}
	printer.Info("Opened %s", url)
	return nil
}
