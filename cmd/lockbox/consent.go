package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/lockboxhq/lockbox/internal/cli"
)

func consentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consent",
		Short: "Manage consent for AI analysis",
		Long: `Grant or revoke consent for sending message content to an AI provider.

Without consent, detection still works but runs on the deterministic
pattern baseline alone.`,
	}

	cmd.PersistentFlags().StringP("user", "u", "default", "User whose consent changes")

	cmd.AddCommand(grantConsentCmd())
	cmd.AddCommand(revokeConsentCmd())

	return cmd
}

func grantConsentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant",
		Short: "Allow message content to be sent to AI providers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setConsent(cmd, true)
		},
	}
}

func revokeConsentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke",
		Short: "Stop sending message content to AI providers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return setConsent(cmd, false)
		},
	}
}

func setConsent(cmd *cobra.Command, granted bool) error {
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

	if err := initGate(store).RecordConsent(ctx, userID, granted); err != nil {
		return fmt.Errorf("failed to record consent: %w", err)
	}

	if granted {
		fmt.Println(cli.FormatSuccess(fmt.Sprintf("AI analysis consent granted for %s", userID)))
		fmt.Println(cli.FormatInfo("Add your own API key with: lockbox credentials set anthropic"))
	} else {
		fmt.Println(cli.FormatInfo(fmt.Sprintf("AI analysis consent revoked for %s; detection continues on patterns alone", userID)))
	}

	return nil
}
