package cli

import (
	"fmt"
	"sort"

	"github.com/abdul-hamid-achik/clearframe/internal/cfctl/client"
	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show plan, credits and job counts",
	Args:  cobra.NoArgs,
	RunE:  runAccount,
}

var buyCmd = &cobra.Command{
	Use:   "buy [credits|monthly|yearly]",
	Short: "Buy upload credits or a subscription",
	Long: `Start a Stripe checkout and open it in the browser.

Examples:
  cfctl buy                  # One credit pack
  cfctl buy credits --packs 3
  cfctl buy monthly          # Unlimited uploads, billed monthly`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"credits", "monthly", "yearly"},
	RunE:      runBuy,
}

var buyPacks int64

func init() {
	buyCmd.Flags().Int64Var(&buyPacks, "packs", 1, "Number of credit packs")
}

func runAccount(cmd *cobra.Command, args []string) error {
	if err := requireAuth(); err != nil {
		return err
	}
	resp, err := apiClient.Account(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}
	if jsonOutput {
		return printer.JSON(resp)
	}

	a := resp.Account
	printer.Header("Account")
	printer.KeyValue("User", a.UserID)
	printer.KeyValue("Plan", a.Plan)
	if a.SubscriptionStatus != "" && a.SubscriptionStatus != "none" {
		printer.KeyValue("Subscription", a.SubscriptionStatus)
	}
	if a.SubscriptionEndsAt != nil {
		printer.KeyValue("Renews", a.SubscriptionEndsAt.Local().Format("2006-01-02"))
	}
	if a.Unlimited {
		printer.KeyValue("Uploads", "unlimited")
	} else {
		printer.KeyValue("Credits", fmt.Sprintf("%d", a.Credits))
		printer.KeyValue("Free uploads", fmt.Sprintf("%d", a.FreeUploadsRemaining))
	}

	if len(resp.Jobs) > 0 {
		statuses := make([]string, 0, len(resp.Jobs))
		for s := range resp.Jobs {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)
		printer.Println()
		for _, s := range statuses {
			printer.KeyValue(s, fmt.Sprintf("%d", resp.Jobs[s]))
		}
	}
	if !a.CanUpload {
		printer.Println()
		printer.Warn("No uploads left. Run 'cfctl buy' to add credits.")
	}
	return nil
}

func runBuy(cmd *cobra.Command, args []string) error {
	if err := requireAuth(); err != nil {
		return err
	}
	req := &client.CheckoutRequest{Kind: "credits"}
	if len(args) == 1 {
		req.Kind = args[0]
	}
	switch req.Kind {
	case "credits":
		req.Packs = buyPacks
	case "monthly", "yearly":
	default:
		return fmt.Errorf("unknown purchase %q, want credits, monthly or yearly", req.Kind)
	}

	resp, err := apiClient.Checkout(commandContext(cmd), req)
	if err != nil {
		return fmt.Errorf("failed to start checkout: %w", err)
	}
	return openInBrowser(resp.CheckoutURL)
}
