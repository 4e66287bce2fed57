package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/raggpt-go/internal/config"
	"github.com/54b3r/raggpt-go/internal/logging"
	"github.com/54b3r/raggpt-go/internal/summarizer"
	"github.com/54b3r/raggpt-go/internal/tracing"
)

// NewSummarizeCmd constructs the `raggpt summarize` command, which prints a
// full summary of one document.
func NewSummarizeCmd() *cobra.Command {
	var temperature float32

	cmd := &cobra.Command{
		Use:   "summarize <file>",
		Short: "Summarise a whole document",
		Long: `Summarise every page of a document, then condense the page summaries
into one final summary.

Each page is summarised together with the tail of the previous page and the
head of the next (SUMMARIZER_CHARACTER_OVERLAP characters). The page budget is
SUMMARIZER_MAX_FINAL_TOKENS divided by the page count, minus
SUMMARIZER_TOKEN_THRESHOLD.

Examples:
  raggpt summarize paper.pdf
  raggpt summarize --temperature 0.3 notes.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			flush := tracing.Setup(log)
			defer flush()

			m, pcfg, err := buildModel(ctx, log)
			if err != nil {
				return fmt.Errorf("summarize: %w", err)
			}

			settings, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("summarize: %w", err)
			}
			opts := summaryOptions(settings)
			if cmd.Flags().Changed("temperature") {
				opts.Temperature = temperature
			}

			summary, err := summarizer.New(m, pcfg, log).Summarize(ctx, args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), summary)
			return nil
		},
	}

	cmd.Flags().Float32VarP(&temperature, "temperature", "t", 0, "Sampling temperature (default: SUMMARIZER_TEMPERATURE)")

	return cmd
}
