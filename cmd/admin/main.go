package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/abdul-hamid-achik/clearframe/internal/api"
	"github.com/abdul-hamid-achik/clearframe/internal/app"
	"github.com/abdul-hamid-achik/clearframe/internal/audit"
	"github.com/abdul-hamid-achik/clearframe/internal/config"
	"github.com/abdul-hamid-achik/clearframe/internal/logger"
	"github.com/abdul-hamid-achik/clearframe/internal/worker"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	timeout    time.Duration
	tokenTTL   time.Duration
	staleFor   time.Duration
	auditLimit int
)

var rootCmd = &cobra.Command{
	Use:           "clearframe-admin",
	Short:         "Operational tasks for a clearframe deployment",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the job, ledger and audit schemas",
	RunE: withRuntime(func(ctx context.Context, rt *app.Runtime, args []string) error {
		if rt.DB == nil {
			return errors.New("DATABASE_URL is not set")
		}
		if err := rt.Migrate(ctx); err != nil {
			return err
		}
		rt.Log.Info("migrations applied")
		return nil
	}),
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Fail stale jobs and remove expired jobs and originals",
	RunE: withRuntime(func(ctx context.Context, rt *app.Runtime, args []string) error {
		jobs := rt.JobService(nil, nil)
		stats, err := worker.RunCleanup(ctx, &worker.CleanupDependencies{Jobs: jobs}, rt.CleanupConfig())
		if err != nil {
			return fmt.Errorf("cleanup failed: %w", err)
		}
		if stats.Errors > 0 {
			return fmt.Errorf("cleanup finished with %d errors", stats.Errors)
		}
		return nil
	}),
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Fail jobs stuck in processing",
	RunE: withRuntime(func(ctx context.Context, rt *app.Runtime, args []string) error {
		after := staleFor
		if after <= 0 {
			after = rt.Config.StaleProcessingAfter
		}
		ids, err := rt.JobService(nil, nil).FailStale(ctx, after)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		rt.Log.Info("sweep completed", "failed", len(ids), "older_than", after.String())
		return nil
	}),
}

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue an API token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: withRuntime(func(ctx context.Context, rt *app.Runtime, args []string) error {
		user, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
		if rt.Config.JWTSecret == "" {
			return errors.New("JWT_SECRET is not set")
		}
		token, err := api.NewToken(rt.Config.JWTSecret, user, tokenTTL)
		if err != nil {
			return err
		}
		record(ctx, rt, audit.Entry{
			UserID:       user,
			Action:       audit.ActionTokenIssue,
			ResourceType: "account",
			Metadata:     map[string]any{"ttl": tokenTTL.String()},
		})
		fmt.Println(token)
		return nil
	}),
}

var grantCmd = &cobra.Command{
	Use:   "grant <user-id> <credits>",
	Short: "Add upload credits to an account",
	Args:  cobra.ExactArgs(2),
	RunE: withRuntime(func(ctx context.Context, rt *app.Runtime, args []string) error {
		user, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
		credits, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || credits <= 0 {
			return fmt.Errorf("credits must be a positive integer")
		}
		if err := rt.Ledger.Grant(ctx, user, credits); err != nil {
			return err
		}
		record(ctx, rt, audit.Entry{
			UserID:       user,
			Action:       audit.ActionCreditsGrant,
			ResourceType: "account",
			Metadata:     map[string]any{"credits": credits},
		})
		acct, err := rt.Ledger.Account(ctx, user)
		if err != nil {
			return err
		}
		fmt.Printf("%s now has %d credits\n", user, acct.Credits)
		return nil
	}),
}

var adminCmd = &cobra.Command{
	Use:       "admin <user-id> <on|off>",
	Short:     "Toggle unlimited uploads for an account",
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"on", "off"},
	RunE: withRuntime(func(ctx context.Context, rt *app.Runtime, args []string) error {
		user, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
		var on bool
		switch args[1] {
		case "on":
			on = true
		case "off":
		default:
			return fmt.Errorf("expected on or off, got %q", args[1])
		}
		if err := rt.Ledger.SetAdmin(ctx, user, on); err != nil {
			return err
		}
		record(ctx, rt, audit.Entry{
			UserID:       user,
			Action:       audit.ActionAdminChange,
			ResourceType: "account",
			Metadata:     map[string]any{"admin": on},
		})
		return nil
	}),
}

var auditCmd = &cobra.Command{
	Use:   "audit <user-id>",
	Short: "Show recent audit entries for a user",
	Args:  cobra.ExactArgs(1),
	RunE: withRuntime(func(ctx context.Context, rt *app.Runtime, args []string) error {
		user, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid user id: %w", err)
		}
		entries, err := rt.Audit.Recent(ctx, user, auditLimit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tACTION\tRESOURCE\tIP")
		for _, e := range entries {
			resource := e.ResourceType
			if e.ResourceID != uuid.Nil {
				resource += " " + e.ResourceID.String()
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.CreatedAt.Local().Format(time.DateTime), e.Action, resource, e.IPAddress)
		}
		return tw.Flush()
	}),
}

// record stores an administrative audit entry; failures are logged only.
func record(ctx context.Context, rt *app.Runtime, entry audit.Entry) {
	if err := rt.Audit.Log(ctx, entry); err != nil {
		rt.Log.Warn("audit log failed", "action", string(entry.Action), "error", err)
	}
}

// withRuntime opens the configured backends around fn. Without
// DATABASE_URL the stores are in memory and nothing persists.
func withRuntime(fn func(ctx context.Context, rt *app.Runtime, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		// Keep stdout for command output.
		log := logger.Init(logger.Options{
			Level:  cfg.LogLevel,
			Format: logger.FormatText,
			Output: os.Stderr,
		})

		ctx, cancel := context.WithTimeout(logger.WithLogger(cmd.Context(), log), timeout)
		defer cancel()

		rt, err := app.Open(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer rt.Close()

		if rt.DB == nil {
			log.Warn("DATABASE_URL not set, changes will not persist")
		}
		return fn(ctx, rt, args)
	}
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Abort after this long")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 30*24*time.Hour, "Token lifetime")
	sweepCmd.Flags().DurationVar(&staleFor, "older-than", 0, "Processing age to fail (default STALE_PROCESSING_AFTER)")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "Number of entries to show")

	rootCmd.AddCommand(migrateCmd, cleanupCmd, sweepCmd, tokenCmd, grantCmd, adminCmd, auditCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
