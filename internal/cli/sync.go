package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/condorhq/condor/internal/models"
)

// NewSubmitCommand creates the submit command.
func NewSubmitCommand() *cobra.Command {
	var payload string

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Save a record locally and push it when possible",
		Long: `Persist a record in the local store and attempt an immediate push to
the portal backend. When offline, or when the push fails, the record
stays pending with a queued mutation replayed on the next sync.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := OpenApp()
			if err != nil {
				return err
			}
			defer app.Close()

			rec, err := app.Manager.SubmitRecord(cmd.Context(), &models.Record{Payload: payload})
			if err != nil {
				return err
			}

			if rec.Synced {
				fmt.Fprintf(cmd.OutOrStdout(), "record %s synced at %s\n",
					rec.ID, rec.SyncedAtTime().Format(time.RFC3339))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "record %s pending (saved %s)\n",
					rec.ID, rec.SavedAtTime().Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&payload, "payload", "p", "{}", "record payload (JSON)")

	return cmd
}

// NewSyncCommand creates the sync command.
func NewSyncCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Drain pending records and mutations now",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := OpenApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if !app.Manager.SyncAll(cmd.Context()) {
				return fmt.Errorf("sync did not run (offline or enumeration failure)")
			}

			status, err := app.Manager.Status()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pending records: %d, pending operations: %d\n",
				status.PendingRecords, status.PendingOperations)
			if len(status.LastSyncLog) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "last sync: %s\n",
					status.LastSyncLog[0].Time().Format(time.RFC3339))
			}
			return nil
		},
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending counts and recent sync log",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := OpenApp()
			if err != nil {
				return err
			}
			defer app.Close()

			status, err := app.Manager.Status()
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

// NewCleanupCommand creates the cleanup command.
func NewCleanupCommand() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old synced records from the local store",
		Long: `Delete records that synced more than the given number of days ago.
Records that never synced are kept regardless of age.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := OpenApp()
			if err != nil {
				return err
			}
			defer app.Close()

			removed, err := app.Manager.CleanupOldData(days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d records\n", removed)
			return nil
		},
	}

	cmd.Flags().IntVarP(&days, "days", "d", 30, "age threshold in days")

	return cmd
}

// NewRetryFailedCommand creates the retry-failed command.
func NewRetryFailedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry-failed",
		Short: "Re-queue dead-lettered mutations",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := OpenApp()
			if err != nil {
				return err
			}
			defer app.Close()

			count, err := app.Manager.RetryFailedMutations()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %d mutations\n", count)
			return nil
		},
	}
}
