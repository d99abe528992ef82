package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pcal/internal/backup"
	"pcal/internal/capture"
	"pcal/internal/fsutil"
	"pcal/internal/ics"
	appLog "pcal/internal/log"
	"pcal/internal/web"
)

func (a *app) backupFiles() []string {
	return []string{a.cfg.EventsFile(), a.cfg.FieldsFile()}
}

func (a *app) backupCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write events and additional fields to a single backup file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				file = a.cfg.BackupFile
			}
			if err := backup.Create(file, a.backupFiles()...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s.\n", file)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "backup file (default backup_file from config)")
	return cmd
}

func (a *app) restoreCmd() *cobra.Command {
	var file string
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore files from a backup",
		Long: `Restore recreates every file recorded in the backup.

Without --overwrite the restored rows are appended to existing files and a
repeated CSV header is skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				file = a.cfg.BackupFile
			}
			res, err := backup.Restore(file, backup.Options{Overwrite: overwrite})
			if errors.Is(err, backup.ErrNoBackup) {
				return fmt.Errorf("no backup at %s", file)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, f := range res.Files {
				fmt.Fprintf(out, "Restored %s (%s, %d lines)\n", f.Path, f.Mode, f.Lines)
			}
			if err := a.store.Reload(); err != nil {
				return err
			}
			if f := a.store.Fields(); f != nil {
				if err := f.Reload(); err != nil {
					return err
				}
			}
			fmt.Fprintf(out, "%d events loaded.\n", len(a.store.List()))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "backup file (default backup_file from config)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace existing files instead of appending")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var out, name string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the calendar as iCalendar",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := ics.Export(a.store.List(), ics.ExportOptions{Name: name})
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err := cmd.OutOrStdout().Write(body)
				return err
			}
			if err := fsutil.WriteFileAtomic(out, body, ".pcal-export-*.tmp"); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d events to %s.\n", len(a.store.List()), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "-", "output file, - for stdout")
	cmd.Flags().StringVar(&name, "name", "pcal", "calendar name (X-WR-CALNAME)")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import FILE|URL",
		Short: "Import events from an .ics file or feed URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]
			var body []byte
			if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
				res, err := ics.NewFetcher(a.cfg.CacheDir, nil).Fetch(cmd.Context(), src)
				if err != nil {
					return err
				}
				body = res.Body
			} else {
				data, err := os.ReadFile(src)
				if err != nil {
					return err
				}
				body = data
			}

			res, err := ics.Import(body, ics.ImportOptions{
				Location: a.store.Location(),
				Horizon:  time.Duration(a.cfg.ImportHorizonDays) * 24 * time.Hour,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			added := 0
			for _, s := range res.Series {
				if dryRun {
					fmt.Fprintln(out, s.String())
					continue
				}
				if _, err := a.store.Add(s); err != nil {
					appLog.Error("import: event rejected", err, "title", s.Title)
					fmt.Fprintf(out, "Skipped %q: %v\n", s.Title, err)
					continue
				}
				added++
			}
			for _, sk := range res.Skipped {
				fmt.Fprintf(out, "Skipped %s: %s\n", sk.UID, sk.Reason)
			}
			fmt.Fprintf(out, "Imported %d of %d events.\n", added, len(res.Series))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be imported without saving")
	return cmd
}

func (a *app) snapshotCmd() *cobra.Command {
	var (
		out, baseURL  string
		year, month   int
		width, height int
		ink           bool
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Render a month view to PNG with headless Chromium",
		Long: `Snapshot renders /calendar to a PNG.

Without --url an HTTP server is started on a free loopback port for the
duration of the capture.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := capture.Options{
				BaseURL:    baseURL,
				Year:       year,
				Month:      time.Month(month),
				OutputPath: out,
				Width:      width,
				Height:     height,
				Ink:        ink,
			}
			if ba := a.cfg.BasicAuth; ba != nil {
				opts.Username, opts.Password = ba.Username, ba.Password
			}

			if opts.BaseURL == "" {
				ln, err := net.Listen("tcp", "127.0.0.1:0")
				if err != nil {
					return err
				}
				srv := &http.Server{Handler: web.NewServer(a.cfg, a.store).Handler(), ReadHeaderTimeout: 10 * time.Second}
				go func() {
					if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
						appLog.Error("snapshot server failed", err)
					}
				}()
				defer srv.Close()
				opts.BaseURL = "http://" + ln.Addr().String()
			}

			if err := capture.CaptureMonthPNG(cmd.Context(), opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Snapshot written to %s.\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "calendar.png", "PNG output path")
	cmd.Flags().StringVar(&baseURL, "url", "", "base URL of a running pcal server")
	cmd.Flags().IntVar(&year, "year", 0, "year (default current)")
	cmd.Flags().IntVar(&month, "month", 0, "month 1-12 (default current)")
	cmd.Flags().IntVar(&width, "width", capture.DefaultWidth, "viewport width")
	cmd.Flags().IntVar(&height, "height", capture.DefaultHeight, "viewport height")
	cmd.Flags().BoolVar(&ink, "ink", false, "reduce to black, red and white for printing or e-paper")
	return cmd
}
