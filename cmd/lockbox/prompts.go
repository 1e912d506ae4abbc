package main

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/lockboxhq/lockbox/internal/cli"
	"github.com/lockboxhq/lockbox/internal/prompt"
)

func promptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Inspect prompt versions and their accuracy",
		Long: `Inspect the versioned prompts behind AI analysis.

Every edit to a prompt produces a new immutable version, and every AI
result is tied to the exact version that produced it, so accuracy can be
compared across versions as prompts evolve.`,
	}

	cmd.AddCommand(listPromptsCmd())
	cmd.AddCommand(promptAccuracyCmd())

	return cmd
}

func listPromptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered prompt versions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, cleanup, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			versions := registry.AllVersions()
			if len(versions) == 0 {
				fmt.Println(cli.InfoStyle.Render("No prompts registered."))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer w.Flush()

			headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				headerStyle.Render("Name"),
				headerStyle.Render("Version"),
				headerStyle.Render("Hash"),
				headerStyle.Render("Created"))
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				strings.Repeat("-", 24),
				strings.Repeat("-", 8),
				strings.Repeat("-", 12),
				strings.Repeat("-", 10))

			for _, v := range versions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					v.Name, v.Semver, shortHash(v.Hash), v.CreatedAt.Format("2006-01-02"))
			}

			return nil
		},
	}
}

func promptAccuracyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accuracy <name>",
		Short: "Show per-version accuracy for one prompt",
		Long: `Show how accurately each version of a prompt has performed, based on
recorded feedback. Versions that have never been rated show a dash
instead of a number: no feedback is not the same as bad feedback.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			registry, cleanup, err := openRegistry(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			accuracy, err := registry.AccuracyByVersion(cmd.Context(), name)
			if err != nil {
				return fmt.Errorf("failed to load accuracy for %s: %w", name, err)
			}

			rows := make([]prompt.VersionAccuracy, 0, len(accuracy))
			for _, va := range accuracy {
				rows = append(rows, va)
			}
			sort.Slice(rows, func(i, j int) bool {
				if rows[i].Semver != rows[j].Semver {
					return rows[i].Semver < rows[j].Semver
				}
				return rows[i].Hash < rows[j].Hash
			})

			fmt.Println(cli.SubtitleStyle.Render(cli.ChartIcon + " Accuracy by version for " + name))

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer w.Flush()

			headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				headerStyle.Render("Version"),
				headerStyle.Render("Hash"),
				headerStyle.Render("Uses"),
				headerStyle.Render("Correct"),
				headerStyle.Render("Incorrect"),
				headerStyle.Render("Accuracy"),
				headerStyle.Render("Avg score"))

			for _, va := range rows {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
					va.Semver, shortHash(va.Hash),
					va.TotalUsages, va.CorrectCount, va.IncorrectCount,
					formatRate(va.AccuracyRate), formatScore(va.AverageFeedbackScore))
			}

			return nil
		},
	}
}

// openRegistry opens the store and builds a catalog-loaded registry,
// returning a cleanup that closes the store.
func openRegistry(cmd *cobra.Command) (*prompt.Registry, func(), error) {
	store, err := initStore(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
	}

	registry, err := initRegistry(store)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return registry, cleanup, nil
}

func shortHash(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12]
}

// formatRate renders an accuracy rate as a percentage. Nil means nothing
// has been rated yet, which is not the same as 0% accurate.
func formatRate(rate *float64) string {
	if rate == nil {
		return cli.SubtleStyle.Render("—")
	}
	return fmt.Sprintf("%.1f%%", *rate*100)
}

func formatScore(score *float64) string {
	if score == nil {
		return cli.SubtleStyle.Render("—")
	}
	return fmt.Sprintf("%.1f", *score)
}
