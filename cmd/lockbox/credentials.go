package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lockboxhq/lockbox/internal/cli"
)

func credentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage provider API keys",
		Long: `Store your own API keys for AI providers.

Calls funded by your own key count against your optional budget limit
instead of the shared trial allowance.`,
	}

	cmd.PersistentFlags().StringP("user", "u", "default", "User the key belongs to")

	cmd.AddCommand(setCredentialCmd())

	return cmd
}

func setCredentialCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <provider>",
		Short: "Store an API key for openai or anthropic",
		Long: `Store an API key for a provider. The key is checked for the provider's
expected shape before it is saved; nothing is sent over the network.

The key is taken from --key or, when omitted, prompted for on stdin:

  lockbox credentials set anthropic
  lockbox credentials set openai --key sk-...`,
		Args: cobra.ExactArgs(1),
		RunE: runSetCredential,
	}

	cmd.Flags().String("key", "", "API key (prompted on stdin when omitted)")

	return cmd
}

func runSetCredential(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	provider := args[0]
	userID, _ := cmd.Flags().GetString("user")
	key, _ := cmd.Flags().GetString("key")

	if key == "" {
		fmt.Print(cli.FormatPrompt(fmt.Sprintf("Enter %s API key", provider)))
		line, err := cli.NewLineReader(os.Stdin).ReadLine(ctx)
		if err != nil {
			fmt.Println()
			return fmt.Errorf("failed to read API key: %w", err)
		}
		fmt.Println()
		key = line
	}

	store, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}()

	if err := initGate(store).SetCredential(ctx, userID, provider, key); err != nil {
		return err
	}

	fmt.Println(cli.FormatSuccess(fmt.Sprintf("Stored %s API key for %s", provider, userID)))
	return nil
}
