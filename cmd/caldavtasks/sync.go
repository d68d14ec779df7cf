package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"caldavtasks/internal/utils"
	tasksync "caldavtasks/sync"
)

func (a *App) newSyncCmd() *cobra.Command {
	var calendarName string

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize with the CalDAV servers",
		Long: `Run one full sync cycle: push pending deletions and local changes,
then pull remote changes. Conflicts resolve in favor of whichever side
changed since the last sync; when both changed, the server wins.

Examples:
  caldavtasks sync               # full sync of every account
  caldavtasks sync -c Work       # one calendar only
  caldavtasks sync status        # last sync result`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(a.store.Accounts()) == 0 {
				return utils.ErrNoAccounts()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			if calendarName != "" {
				cal, err := a.calendarByName(calendarName)
				if err != nil {
					return err
				}
				err = utils.TimedOperation("sync "+cal.Name, func() error {
					a.engine.ReconnectAccounts(ctx)
					return a.engine.SyncCalendar(ctx, cal.ID)
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Synced %s\n", cal.Name)
				return nil
			}

			a.engine.SyncAll(ctx)
			if msg := a.engine.LastSyncError(); msg != "" {
				fmt.Fprintln(cmd.OutOrStdout(), msg)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Synced %s across %s\n",
				utils.FormatCount(len(a.store.Tasks()), "task", "tasks"),
				utils.FormatCount(len(a.store.Calendars()), "calendar", "calendars"))
			return nil
		},
	}

	syncCmd.Flags().StringVarP(&calendarName, "calendar", "c", "", "sync a single calendar")
	syncCmd.RegisterFlagCompletionFunc("calendar", a.calendarNameCompletion)

	syncCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the last sync result",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if a.engine.Online() {
				fmt.Fprintln(out, "Connection: online")
			} else {
				fmt.Fprintln(out, "Connection: offline")
			}
			if last := a.engine.LastSyncTime(); !last.IsZero() {
				fmt.Fprintf(out, "Last sync: %s\n", last.Format(time.RFC1123))
			} else {
				fmt.Fprintln(out, "Last sync: never")
			}
			if msg := a.engine.LastSyncError(); msg != "" {
				fmt.Fprintf(out, "Last error: %s\n", msg)
			}
			pending := 0
			for _, t := range a.store.Tasks() {
				if !t.Synced {
					pending++
				}
			}
			pending += len(a.store.AllPendingDeletions())
			fmt.Fprintf(out, "Pending changes: %d\n", pending)
			return nil
		},
	})

	return syncCmd
}

func (a *App) newDaemonCmd() *cobra.Command {
	var interval time.Duration

	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run in the foreground, syncing on a timer",
		Long: `Keep the store synchronized until interrupted. Uses the sync section
of the config; --interval overrides the configured period.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := a.config.SyncSettings
			if interval > 0 {
				base := a.config.SyncSettings()
				settings = func() tasksync.Settings {
					s := base
					s.AutoSync = true
					s.SyncInterval = interval
					return s
				}
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			scheduler := tasksync.NewScheduler(a.engine, settings)
			scheduler.Start(ctx, len(a.store.Accounts()) > 0)
			defer scheduler.Stop()

			utils.Infof("daemon started, press Ctrl+C to stop")

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			<-sigs

			utils.Infof("daemon stopping")
			return nil
		},
	}

	daemonCmd.Flags().DurationVar(&interval, "interval", 0, "override the sync interval, e.g. 5m")
	return daemonCmd
}
