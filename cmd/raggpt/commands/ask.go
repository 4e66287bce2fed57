package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/raggpt-go/internal/chatbot"
	"github.com/54b3r/raggpt-go/internal/history"
	"github.com/54b3r/raggpt-go/internal/logging"
	"github.com/54b3r/raggpt-go/internal/tracing"
)

// NewAskCmd constructs the `raggpt ask` command, which answers one question
// and prints the answer followed by its references.
func NewAskCmd() *cobra.Command {
	var mode string
	var temperature float32

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the indexed documents",
		Long: `Answer one question from the vector store and print the references
the answer was based on.

Examples:
  raggpt ask "what optimiser does the paper use?"
  raggpt ask --mode upload-rag "summarise section 3"
  raggpt ask --temperature 0.7 "explain the loss function"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			flush := tracing.Setup(log)
			defer flush()

			st, err := buildStack(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer st.close()

			bot, err := st.newChatBot(log)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise chatbot: %w", err)
			}

			if !cmd.Flags().Changed("temperature") {
				temperature = st.providerCfg.Tuning.Temperature
			}

			turn, err := bot.Respond(ctx, history.NewLog(), strings.Join(args, " "), chatbot.ParseMode(mode), temperature)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, turn.History[len(turn.History)-1].Bot)
			if turn.References != "" {
				fmt.Fprintf(out, "\n---\n\n%s", turn.References)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", string(chatbot.ModePreprocessed), "Store to answer from: preprocessed or upload-rag")
	cmd.Flags().Float32VarP(&temperature, "temperature", "t", 0, "Sampling temperature (default: MODEL_TEMPERATURE)")

	return cmd
}
