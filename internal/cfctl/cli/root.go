package cli

import (
	"context"
	"errors"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/cfctl/client"
	"github.com/abdul-hamid-achik/clearframe/internal/cfctl/config"
	"github.com/abdul-hamid-achik/clearframe/internal/cfctl/output"
	"github.com/abdul-hamid-achik/clearframe/internal/cfctl/version"
	"github.com/spf13/cobra"
)

var (
	jsonOutput bool
	quietMode  bool
	noColor    bool
	cfg        *config.Config
	apiClient  client.ClientInterface
	printer    *output.Printer
)

// newClient is replaced in tests.
var newClient = func(c *config.Config) client.ClientInterface {
	cl := client.New(c.BaseURL, c.Token)
	cl.SetTimeout(c.GetTimeout("http"))
	return cl
}

var errNotAuthenticated = errors.New("not authenticated, run 'cfctl auth login' first")

var rootCmd = &cobra.Command{
	Use:   "cfctl",
	Short: "clearframe CLI - remove watermarks from videos",
	Long: `cfctl is the command-line interface for clearframe.

Upload a video, mark the watermark regions, and download the cleaned result.

Get started:
  cfctl auth login --token <token>           # Save your API token
  cfctl upload clip.mp4 --region 10,10,200,80 --process --wait
  cfctl download <job-id> -o clean.mp4`,
	Version: version.Full(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		printer = output.New(
			output.WithJSON(jsonOutput),
			output.WithQuiet(quietMode),
			output.WithNoColor(noColor),
			output.WithOutput(cmd.OutOrStdout()),
			output.WithErrOutput(cmd.ErrOrStderr()),
		)
		apiClient = newClient(cfg)
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON (for scripting)")
	rootCmd.PersistentFlags().BoolVar(&quietMode, "quiet", false, "Suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.SetVersionTemplate("cfctl version {{.Version}}\n")

	rootCmd.AddCommand(
		authCmd,
		uploadCmd,
		listCmd,
		statusCmd,
		selectCmd,
		processCmd,
		downloadCmd,
		deleteCmd,
		openCmd,
		accountCmd,
		buyCmd,
		configCmd,
		versionCmd,
	)
}

func requireAuth() error {
	if !cfg.IsAuthenticated() {
		return errNotAuthenticated
	}
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// waitForJob polls jobID with a spinner until it completes or fails.
func waitForJob(cmd *cobra.Command, jobID string) (*client.JobStatus, error) {
	spinner := output.NewSpinner("Processing "+jobID, quietMode || jsonOutput)
	defer spinner.Finish()

	status, err := apiClient.WaitForJob(commandContext(cmd), jobID, cfg.GetTimeout("poll"), cfg.GetTimeout("process"), func(s *client.JobStatus) {
		spinner.Update(s.Status + " " + jobID + " (" + spinner.Elapsed().Round(time.Second).String() + ")")
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the cfctl version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("cfctl version " + version.Full())
	},
}
