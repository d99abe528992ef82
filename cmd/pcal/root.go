package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"pcal/internal/config"
	appLog "pcal/internal/log"
	"pcal/internal/model"
	"pcal/internal/store"
)

const defaultConfigPath = "./config.yaml"

// app carries what every subcommand needs once the root pre-run has loaded
// config and opened the store.
type app struct {
	configPath string

	cfg   *config.Config
	store *store.Store
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "pcal",
		Short: "Personal calendar with recurring events and conflict checks",
		Long: `pcal keeps a personal calendar in plain CSV files.

Events may repeat daily, weekly or monthly; single occurrences can be
skipped or moved, and new events are checked for overlaps before they
are saved.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default $PCAL_CONFIG or "+defaultConfigPath+")")

	root.AddCommand(
		a.serveCmd(),
		a.listCmd(),
		a.addCmd(),
		a.updateCmd(),
		a.deleteCmd(),
		a.skipCmd(),
		a.moveCmd(),
		a.monthCmd(),
		a.weekCmd(),
		a.occurrencesCmd(),
		a.conflictsCmd(),
		a.statsCmd(),
		a.remindCmd(),
		a.backupCmd(),
		a.restoreCmd(),
		a.exportCmd(),
		a.importCmd(),
		a.snapshotCmd(),
		a.fieldsCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(); err != nil {
		appLog.Warn("failed to load .env", "err", err.Error())
	}

	path := a.configPath
	if path == "" {
		path = os.Getenv("PCAL_CONFIG")
	}
	if path == "" {
		path = defaultConfigPath
	}
	a.configPath = path

	cfg, err := config.Load(path)
	if err != nil {
		if cfg == nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		appLog.Error("failed to write default config; continuing with defaults", err, "config_path", path)
	}
	a.cfg = cfg

	level, ok := appLog.ParseLevel(cfg.LogLevel)
	if !ok {
		appLog.Warn("unknown log_level, using INFO", "log_level", cfg.LogLevel)
	}
	appLog.SetLevel(level)

	fields, err := store.OpenFields(cfg.FieldsFile())
	if err != nil {
		return fmt.Errorf("open fields: %w", err)
	}
	st, err := store.Open(cfg.EventsFile(), store.WithFields(fields))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.store = st

	appLog.Debug("effective config",
		"config_path", path,
		"data_dir", cfg.DataDir,
		"listen", cfg.Listen,
		"week_start", cfg.WeekStart,
		"reminder_minutes", cfg.ReminderMinutes,
		"events", len(st.List()),
	)
	return nil
}

// parseWhen reads a user-supplied timestamp in the store's location.
func (a *app) parseWhen(flag, value string) (time.Time, error) {
	t, err := model.ParseDateTime(value, a.store.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", flag, err)
	}
	return t, nil
}

// parseDay reads YYYY-MM-DD; empty means today.
func (a *app) parseDay(flag, value string) (time.Time, error) {
	loc := a.store.Location()
	if value == "" {
		now := time.Now().In(loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc), nil
	}
	t, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: want YYYY-MM-DD, got %q", flag, value)
	}
	return t, nil
}

func parseID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid event id %q", arg)
	}
	return id, nil
}
