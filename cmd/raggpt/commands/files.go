package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/raggpt-go/internal/config"
	"github.com/54b3r/raggpt-go/internal/fileserver"
	"github.com/54b3r/raggpt-go/internal/logging"
)

// NewFilesCmd constructs the `raggpt files` command, which serves the
// documents that reference links point at.
func NewFilesCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "files",
		Short: "Serve the source documents behind reference links",
		Long: `Serve the PDF files that answer references link to.

GET /<file> looks in DATA_DIRECTORY, then DATA_DIRECTORY_2.
GET /<dirname>/<file>, where dirname is the base name of one of those
directories, is served directly from it. Anything else is served from the
working directory.

Examples:
  raggpt files
  raggpt files --port 8001`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			st, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("files: %w", err)
			}
			if !cmd.Flags().Changed("port") {
				port = st.FilesPort
			}

			srv, err := fileserver.New(&fileserver.Config{
				Port:      port,
				Primary:   st.DataDirectory,
				Secondary: st.DataDirectory2,
				Logger:    log,
			})
			if err != nil {
				return fmt.Errorf("files: %w", err)
			}
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8000, "TCP port to listen on (default: FILES_PORT)")

	return cmd
}
