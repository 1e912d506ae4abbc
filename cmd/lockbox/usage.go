package main

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lockboxhq/lockbox/internal/cli"
)

func usageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show AI usage and remaining allowance",
		RunE:  runUsage,
	}

	cmd.Flags().StringP("user", "u", "default", "User to report on")

	return cmd
}

func runUsage(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	userID, _ := cmd.Flags().GetString("user")

	store, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	summary := initGate(store).Usage(ctx, userID)

	consent := "granted"
	if !summary.ConsentGranted {
		consent = "not granted"
	}

	var providers []string
	for provider, present := range summary.Credentials {
		if present {
			providers = append(providers, provider)
		}
	}
	sort.Strings(providers)
	credentials := strings.Join(providers, ", ")
	if credentials == "" {
		credentials = cli.SubtleStyle.Render("(none)")
	}

	budget := "unlimited"
	if summary.BudgetLimit > 0 {
		budget = fmt.Sprintf("%d tokens", summary.BudgetLimit)
	}

	content := fmt.Sprintf("  • User: %s\n", summary.UserID) +
		fmt.Sprintf("  • Provider: %s\n", summary.Provider) +
		fmt.Sprintf("  • Consent: %s\n", consent) +
		fmt.Sprintf("  • API keys: %s\n", credentials) +
		fmt.Sprintf("  • %s Tokens used: %s\n", cli.ChartIcon, cli.BoldStyle.Render(fmt.Sprintf("%d", summary.TokensUsed))) +
		fmt.Sprintf("  • Budget limit: %s\n", budget) +
		fmt.Sprintf("  • Trial allowance left: %d tokens", summary.PlatformAllowance)

	fmt.Println(cli.RenderBox("AI Usage", content))

	return nil
}
