package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/abdul-hamid-achik/clearframe/internal/cfctl/config"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage the saved API token",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Save an API token",
	Long: `Save an API token for clearframe. Tokens are issued by the
clearframe-admin token command or by your deployment's sign-in flow.

Examples:
  cfctl auth login --token eyJhbGci...   # Save and verify a token
  echo $TOKEN | cfctl auth login         # Read the token from stdin`,
	RunE: runAuthLogin,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	RunE:  runAuthStatus,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved token",
	RunE:  runAuthLogout,
}

var (
	tokenFlag  string
	skipVerify bool
)

func init() {
	authCmd.AddCommand(authLoginCmd, authStatusCmd, authLogoutCmd)

	authLoginCmd.Flags().StringVar(&tokenFlag, "token", "", "API token (read from stdin when omitted)")
	authLoginCmd.Flags().BoolVar(&skipVerify, "no-verify", false, "Save without checking the token against the API")
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	token := strings.TrimSpace(tokenFlag)
	if token == "" {
		printer.Printf("Paste your API token: ")
		line, err := readLine(cmd)
		if err != nil {
			return fmt.Errorf("no token provided")
		}
		token = line
	}
	if token == "" {
		return fmt.Errorf("no token provided")
	}

	if !skipVerify {
		apiClient.SetToken(token)
		if _, err := apiClient.Account(commandContext(cmd)); err != nil {
			return fmt.Errorf("token rejected: %w", err)
		}
	}

	if err := cfg.SetToken(token); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	if jsonOutput {
		return printer.JSON(map[string]any{"authenticated": true, "base_url": cfg.BaseURL})
	}
	printer.Success("Logged in to %s", cfg.BaseURL)
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	if !cfg.IsAuthenticated() {
		if jsonOutput {
			return printer.JSON(map[string]any{"authenticated": false, "base_url": cfg.BaseURL})
		}
		printer.Warn("Not logged in")
		printer.KeyValue("API", cfg.BaseURL)
		return nil
	}

	account, err := apiClient.Account(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to verify token: %w", err)
	}
	if jsonOutput {
		return printer.JSON(map[string]any{
			"authenticated": true,
			"base_url":      cfg.BaseURL,
			"user_id":       account.Account.UserID,
			"tier":          account.Account.Tier,
		})
	}

	printer.Success("Logged in")
	printer.KeyValue("API", cfg.BaseURL)
	printer.KeyValue("User", account.Account.UserID)
	printer.KeyValue("Tier", account.Account.Tier)
	if os.Getenv(config.EnvToken) != "" {
		printer.KeyValue("Token source", "CFCTL_TOKEN")
	}
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	if err := cfg.ClearAuth(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	printer.Success("Logged out")
	return nil
}
