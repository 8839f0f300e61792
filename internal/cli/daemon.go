package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/condorhq/condor/internal/connectivity"
	"github.com/condorhq/condor/internal/logging"
	"github.com/condorhq/condor/internal/sync/scheduler"
)

// NewDaemonCommand creates the daemon command.
func NewDaemonCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the background sync scheduler",
		Long: `Keep the process running with the periodic sync scheduler active.
Pending records and mutations are drained on every interval while
online, and immediately on reconnect.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := OpenApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sched := scheduler.NewScheduler(app.Manager, app.Monitor, &scheduler.Config{
				SyncInterval: app.Config.SyncInterval,
			})
			sched.Start(ctx)
			defer sched.Stop()

			// The probe keeps the online signal honest so a reconnect
			// actually triggers the scheduler's immediate sync.
			if app.Config.ProbeInterval > 0 {
				probe := connectivity.NewProbe(app.Monitor, func(ctx context.Context) bool {
					return app.Remote.Ping(ctx) == nil
				}, &connectivity.ProbeConfig{Interval: app.Config.ProbeInterval})
				probe.Start(ctx)
				defer probe.Stop()
			}

			logging.Info("Daemon running, press Ctrl+C to stop")

			<-ctx.Done()
			return nil
		},
	}
}
