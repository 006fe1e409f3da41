package cli

import (
	"fmt"

	"github.com/abdul-hamid-achik/clearframe/internal/cfctl/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value.

Available keys:
  base_url           API base URL
  timeouts.http      HTTP request timeout, e.g. 10m
  timeouts.process   How long --wait polls before giving up, e.g. 2h
  timeouts.poll      Poll interval for --wait and --watch, e.g. 2s

Examples:
  cfctl config set base_url https://api.clearframe.app
  cfctl config set timeouts.process 30m`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file path",
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd, configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if jsonOutput {
		return printer.JSON(map[string]any{
			"base_url":         cfg.BaseURL,
			"authenticated":    cfg.IsAuthenticated(),
			"timeouts.http":    cfg.GetTimeout("http").String(),
			"timeouts.process": cfg.GetTimeout("process").String(),
			"timeouts.poll":    cfg.GetTimeout("poll").String(),
		})
	}

	printer.Header("Configuration")
	printer.KeyValue("Base URL", cfg.BaseURL)
	printer.KeyValue("Authenticated", fmt.Sprintf("%v", cfg.IsAuthenticated()))
	printer.KeyValue("HTTP timeout", cfg.GetTimeout("http").String())
	printer.KeyValue("Process timeout", cfg.GetTimeout("process").String())
	printer.KeyValue("Poll interval", cfg.GetTimeout("poll").String())
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if err := cfg.Set(args[0], args[1]); err != nil {
		return err
	}
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	printer.Success("Set %s = %s", args[0], args[1])
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path, err := config.Path()
	if err != nil {
		return err
	}
	if jsonOutput {
		return printer.JSON(map[string]string{"path": path})
	}
	cmd.Println(path)
	return nil
}
