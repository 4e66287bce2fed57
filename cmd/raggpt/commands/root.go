// Package commands defines all Cobra CLI commands for the raggpt binary.
package commands

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/54b3r/raggpt-go/internal/audit"
	"github.com/54b3r/raggpt-go/internal/config"
	"github.com/54b3r/raggpt-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "raggpt",
		Short: "RAG-GPT: chat with your documents",
		Long: `RAG-GPT answers questions over a library of PDF documents.

Documents are indexed into a vector store with 'raggpt ingest'. Questions are
answered from the most relevant passages, and every answer comes with the
cleaned passages it was based on, each linking to the source PDF served by
'raggpt files'. Uploaded files can be indexed on the fly or summarised.

Settings come from environment variables, a .env file in the working
directory, and a YAML config file (~/.raggpt/config.yaml). Environment
variables always win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("config: failed to read .env: %w", err)
			}

			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			audit.LogCommandStart(log, cmd.Name(), path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.raggpt/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewFilesCmd(),
		NewIngestCmd(),
		NewSummarizeCmd(),
		NewVersionCmd(),
	)

	return root
}
