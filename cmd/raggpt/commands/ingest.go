package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/raggpt-go/internal/config"
	"github.com/54b3r/raggpt-go/internal/ingestion"
	"github.com/54b3r/raggpt-go/internal/logging"
	"github.com/54b3r/raggpt-go/internal/rag"
)

// NewIngestCmd constructs the `raggpt ingest` command, which indexes a
// directory of documents into the vector store.
func NewIngestCmd() *cobra.Command {
	var dir string
	var custom bool

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Index documents into the vector store",
		Long: `Load PDF, text, and markdown files, split them into overlapping chunks,
embed them, and write them to the vector store.

Without arguments every supported file under --dir (default: DATA_DIRECTORY)
is indexed. Files given as arguments are indexed instead. --custom writes to
the store that answers questions in upload mode.

Environment variables:
  VECTOR_STORE          sqlite | qdrant (default: sqlite)
  PERSIST_DIRECTORY     SQLite store for preprocessed docs
  QDRANT_HOST/PORT      Qdrant connection (qdrant backend)
  QDRANT_COLLECTION     Collection for preprocessed docs
  EMBEDDING_PROVIDER    ollama | openai | azure | gemini
  CHUNK_SIZE/OVERLAP    Chunking in characters (default: 1500/500)

Examples:
  raggpt ingest
  raggpt ingest --dir ./papers
  raggpt ingest --custom report.pdf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			st, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			paths := args
			if len(paths) == 0 {
				if dir == "" {
					dir = st.DataDirectory
				}
				if paths, err = ingestion.CollectFiles(dir); err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				if len(paths) == 0 {
					return fmt.Errorf("ingest: no supported files under %s", dir)
				}
			}

			emb, embCfg, err := buildEmbedder(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			storeCfg, customCfg := storeConfigs(st, embCfg.Dimensions)
			if custom {
				storeCfg = customCfg
			}
			store, err := rag.OpenStore(storeCfg)
			if err != nil {
				return fmt.Errorf("ingest: failed to open store %s: %w", storeCfg.Describe(), err)
			}
			defer store.Close()

			pipeline, err := ingestion.NewPipeline(emb, store, &ingestion.Config{
				ChunkSize:    st.ChunkSize,
				ChunkOverlap: st.ChunkOverlap,
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			log.Info("starting ingestion",
				slog.Int("files", len(paths)),
				slog.String("store", storeCfg.Describe()),
			)
			stats, err := pipeline.IngestFiles(ctx, paths, func(msg string) { log.Info(msg) })
			if err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}

			log.Info("ingestion complete",
				slog.Int("files", stats.Files),
				slog.Int("pages", stats.Pages),
				slog.Int("chunks", stats.Chunks),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory to index (default: DATA_DIRECTORY)")
	cmd.Flags().BoolVar(&custom, "custom", false, "Write to the upload store instead of the preprocessed store")

	return cmd
}
