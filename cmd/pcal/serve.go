package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pcal/internal/backup"
	appLog "pcal/internal/log"
	"pcal/internal/notify"
	"pcal/internal/web"
)

func (a *app) serveCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server with reminders and scheduled backups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				a.cfg.Listen = listen
			}

			// Root context with cancellation on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sched, err := a.scheduler(cmd)
			if err != nil {
				return err
			}
			sched.Start()
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				sched.Stop(stopCtx)
			}()

			if a.cfg.WatchStore {
				go func() {
					err := a.store.Watch(ctx, func() {
						appLog.Info("store reloaded from disk", "events", len(a.store.List()))
					})
					if err != nil && !errors.Is(err, context.Canceled) {
						appLog.Error("store watcher stopped", err)
					}
				}()
			}

			appLog.Info("pcal serving",
				"listen", a.cfg.Listen,
				"events", len(a.store.List()),
				"notify_cron", a.cfg.NotifyCron,
				"backup_cron", a.cfg.BackupCron,
				"watch_store", a.cfg.WatchStore,
			)
			err = web.StartServer(ctx, a.cfg, a.store)
			appLog.Info("pcal exiting")
			return err
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func (a *app) scheduler(cmd *cobra.Command) (*notify.Scheduler, error) {
	sched := notify.NewScheduler(a.store.Location())

	n := notify.New(time.Duration(a.cfg.ReminderMinutes) * time.Minute)
	out := cmd.OutOrStdout()
	job := notify.ReminderJob(n, a.store.List, func(r notify.Reminder) {
		fmt.Fprintln(out, notify.FormatReminder(r))
		appLog.Info("reminder delivered", "id", r.Occurrence.SeriesID, "start", r.Occurrence.Start.Format(time.RFC3339))
	}, nil)
	if err := sched.Add("reminder", a.cfg.NotifyCron, job); err != nil {
		return nil, fmt.Errorf("notify_cron: %w", err)
	}

	if a.cfg.BackupCron != "" {
		files := a.backupFiles()
		target := a.cfg.BackupFile
		err := sched.Add("backup", a.cfg.BackupCron, func() {
			if err := backup.Create(target, files...); err != nil {
				appLog.Error("scheduled backup failed", err, "file", target)
				return
			}
			appLog.Info("scheduled backup written", "file", target)
		})
		if err != nil {
			return nil, fmt.Errorf("backup_cron: %w", err)
		}
	}
	return sched, nil
}
