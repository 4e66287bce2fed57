package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/raggpt-go/internal/version"
)

// NewVersionCmd constructs the `raggpt version` subcommand. Version, commit,
// and build date are injected at build time via -ldflags.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the raggpt version, git commit, and build date",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
