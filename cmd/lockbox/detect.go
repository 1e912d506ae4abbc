// Package main contains the lockbox CLI commands.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lockboxhq/lockbox/internal/cli"
	"github.com/lockboxhq/lockbox/internal/hybrid"
	"github.com/lockboxhq/lockbox/internal/model"
	"github.com/lockboxhq/lockbox/internal/patterns"
)

func detectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect real-estate transactions in a batch of messages",
		Long: `Analyze a batch of emails and texts, cluster the related ones into
candidate transactions, and suggest contact roles for each.

Detection always includes the deterministic pattern baseline when
pattern analyses are supplied. AI enhancement is layered on top when the
user has consented and has either their own API key or remaining trial
allowance; if any AI call fails, that piece falls back to the baseline
and the run still completes.

Examples:
  lockbox detect --input inbox.json
  lockbox detect --input inbox.json --pattern-analyses patterns.json
  lockbox detect --input inbox.json --no-llm           # patterns only
  lockbox detect --input inbox.json --existing txns.json --contacts book.json
  lockbox detect --input inbox.json --output result.json`,
		RunE: runDetect,
	}

	cmd.Flags().StringP("input", "i", "", "JSON file with the messages to analyze (required)")
	cmd.Flags().StringP("user", "u", "default", "User the run is attributed to")
	cmd.Flags().Bool("no-llm", false, "Skip AI enhancement and run the pattern baseline only")
	cmd.Flags().Bool("no-patterns", false, "Skip the pattern baseline")
	cmd.Flags().String("provider", "", "Override the AI provider for this run (openai, anthropic)")
	cmd.Flags().String("model", "", "Override the provider's default model for this run")
	cmd.Flags().Int("workers", 0, "Concurrent message analyses (0 = default)")
	cmd.Flags().String("existing", "", "JSON file with previously detected transactions to extend")
	cmd.Flags().String("contacts", "", "JSON file with known contacts to ground role extraction")
	cmd.Flags().String("pattern-analyses", "", "JSON file with precomputed pattern analyses keyed by message id")
	cmd.Flags().StringP("output", "o", "", "Write the full result JSON to this file")

	_ = cmd.MarkFlagRequired("input")

	// Bind to viper (errors are rare and can be ignored in practice)
	_ = viper.BindPFlag("detection.user", cmd.Flags().Lookup("user"))
	_ = viper.BindPFlag("detection.provider", cmd.Flags().Lookup("provider"))
	_ = viper.BindPFlag("detection.model", cmd.Flags().Lookup("model"))
	_ = viper.BindPFlag("detection.workers", cmd.Flags().Lookup("workers"))

	return cmd
}

func runDetect(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	// Set up interrupt handling
	interruptHandler := cli.NewInterruptHandler(nil)
	ctx = interruptHandler.HandleInterrupts(ctx, true)
	defer interruptHandler.Stop()

	inputPath, _ := cmd.Flags().GetString("input")
	existingPath, _ := cmd.Flags().GetString("existing")
	contactsPath, _ := cmd.Flags().GetString("contacts")
	analysesPath, _ := cmd.Flags().GetString("pattern-analyses")
	outputPath, _ := cmd.Flags().GetString("output")
	noLLM, _ := cmd.Flags().GetBool("no-llm")
	noPatterns, _ := cmd.Flags().GetBool("no-patterns")

	var messages []model.Message
	if err := readJSONFile(inputPath, &messages); err != nil {
		return fmt.Errorf("failed to read messages: %w", err)
	}
	if len(messages) == 0 {
		fmt.Println(cli.InfoStyle.Render("No messages to analyze."))
		return nil
	}

	var existing []model.DetectedTransaction
	if existingPath != "" {
		if err := readJSONFile(existingPath, &existing); err != nil {
			return fmt.Errorf("failed to read existing transactions: %w", err)
		}
	}

	var contacts []model.Contact
	if contactsPath != "" {
		if err := readJSONFile(contactsPath, &contacts); err != nil {
			return fmt.Errorf("failed to read contacts: %w", err)
		}
	}

	// The pattern matcher is an external collaborator; precomputed
	// analyses stand in for it when supplied.
	var analyzer patterns.Analyzer
	if analysesPath != "" {
		var analyses map[string]model.PatternAnalysis
		if err := readJSONFile(analysesPath, &analyses); err != nil {
			return fmt.Errorf("failed to read pattern analyses: %w", err)
		}
		analyzer = patterns.Static(analyses)
	} else if !noPatterns {
		fmt.Println(cli.FormatInfo("No pattern analyses supplied; running without the pattern baseline."))
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

	registry, err := initRegistry(store)
	if err != nil {
		return err
	}

	extractor := hybrid.NewWithConfig(analyzer, initGate(store), registry, hybrid.Config{
		Weights: hybrid.Weights{
			LLM:     viper.GetFloat64("detection.llm_weight"),
			Pattern: viper.GetFloat64("detection.pattern_weight"),
		},
	})

	bar := newDetectProgressBar(len(messages))
	opts := hybrid.Options{
		UserID:             viper.GetString("detection.user"),
		Provider:           viper.GetString("detection.provider"),
		Model:              viper.GetString("detection.model"),
		Workers:            viper.GetInt("detection.workers"),
		UsePatternMatching: !noPatterns,
		UseLLM:             !noLLM,
		Progress: func(completed, _ int) {
			if barErr := bar.Set(completed); barErr != nil {
				slog.Warn("Failed to update progress bar", "error", barErr)
			}
		},
	}

	slog.Info("Starting transaction detection",
		"messages", len(messages),
		"user", opts.UserID,
		"patterns", opts.UsePatternMatching,
		"llm", opts.UseLLM)

	result, err := extractor.Extract(ctx, messages, existing, contacts, opts)
	if err != nil {
		return fmt.Errorf("detection failed: %w", err)
	}

	if interruptHandler.WasInterrupted() {
		return nil
	}

	printDetectSummary(result)

	if outputPath != "" {
		if err := writeJSONFile(outputPath, result); err != nil {
			return fmt.Errorf("failed to write results: %w", err)
		}
		fmt.Println(cli.FormatSuccess("Full results written to " + outputPath))
	}

	return nil
}

func newDetectProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stdout),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Analyzing messages...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(os.Stdout); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

func printDetectSummary(result *hybrid.Result) {
	related := 0
	for _, msg := range result.AnalyzedMessages {
		if msg.IsRealEstateRelated {
			related++
		}
	}

	count := func(n int) string {
		return cli.BoldStyle.Render(fmt.Sprintf("%d", n))
	}

	summary := fmt.Sprintf("  • Messages analyzed: %s\n", count(len(result.AnalyzedMessages))) +
		fmt.Sprintf("  • Transaction-related: %s\n", count(related)) +
		fmt.Sprintf("  • %s Transactions detected: %s\n", cli.HouseIcon, count(len(result.DetectedTransactions))) +
		fmt.Sprintf("  • Method: %s\n", string(result.Method)) +
		fmt.Sprintf("  • Time taken: %s", (time.Duration(result.LatencyMS) * time.Millisecond).Round(time.Millisecond))

	if result.LLMUsed {
		summary += fmt.Sprintf("\n  • %s Tokens used: %s", cli.RobotIcon, count(int(result.TokensUsed)))
	}

	fmt.Println(cli.RenderBox("Detection Complete", summary))

	if result.LLMError != "" {
		fmt.Println(cli.FormatWarning("AI enhancement was degraded: " + result.LLMError))
		if !result.LLMUsed {
			fmt.Println(cli.FormatInfo("Results come from the deterministic pattern baseline."))
		}
	}

	for _, tx := range result.DetectedTransactions {
		address := tx.PropertyAddress
		if address == "" {
			address = cli.SubtleStyle.Render("(no address)")
		}
		fmt.Printf("%s %s (%.0f%% confidence, %d messages)\n",
			cli.HouseIcon, address, tx.Confidence*100, len(tx.CommunicationIDs))
	}
}

// readJSONFile decodes one JSON document from path into v.
func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// writeJSONFile writes v as indented JSON to path.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}
