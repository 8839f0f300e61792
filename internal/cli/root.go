// Package cli implements the condor command line interface.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/condorhq/condor/internal/config"
	"github.com/condorhq/condor/internal/logging"
)

// NewRootCommand creates the root command for the condor CLI.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "condor",
		Short: "condor - offline-first client core for the portal",
		Long: `condor validates Chilean tax identifiers (RUT/RUN) and manages the
offline-first local store: records are saved locally first and synced
to the portal backend when connectivity allows.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg := config.Load()
			logging.Init(os.Stderr, cfg.LogLevel)
		},
	}

	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewFormatCommand())
	cmd.AddCommand(NewSubmitCommand())
	cmd.AddCommand(NewSyncCommand())
	cmd.AddCommand(NewStatusCommand())
	cmd.AddCommand(NewCleanupCommand())
	cmd.AddCommand(NewRetryFailedCommand())
	cmd.AddCommand(NewDaemonCommand())

	return cmd
}
