package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pcal/internal/fsutil"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the HTTP API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// DataDir holds events.csv and additional.csv.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// BackupFile is the single-file backup target.
	BackupFile string `yaml:"backup_file" json:"backup_file"`

	// Listen is the HTTP listen address for `pcal serve`.
	Listen string `yaml:"listen" json:"listen"`

	// WeekStart controls the first column of month views:
	// "sunday" (default) or "monday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// ReminderMinutes is how far ahead the reminder check looks.
	ReminderMinutes int `yaml:"reminder_minutes" json:"reminder_minutes"`

	// NotifyCron is the cron schedule of the reminder check.
	NotifyCron string `yaml:"notify_cron" json:"notify_cron"`

	// BackupCron, if set, schedules automatic backups while serving.
	BackupCron string `yaml:"backup_cron,omitempty" json:"backup_cron,omitempty"`

	// ConflictPaddingDays widens the conflict expansion window.
	ConflictPaddingDays int `yaml:"conflict_padding_days" json:"conflict_padding_days"`

	// ImportHorizonDays bounds imported rules that have neither UNTIL nor COUNT.
	ImportHorizonDays int `yaml:"import_horizon_days" json:"import_horizon_days"`

	// CacheDir stores fetched ICS feeds.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// WatchStore reloads the store when events.csv changes on disk.
	WatchStore bool `yaml:"watch_store" json:"watch_store"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

const (
	defaultDataDir         = "./data"
	defaultBackupFile      = "./backup/calendar_backup.txt"
	defaultListen          = "127.0.0.1:8080"
	defaultWeekStart       = "sunday"
	defaultReminderMinutes = 30
	defaultNotifyCron      = "@every 1m"
	defaultPaddingDays     = 7
	defaultHorizonDays     = 365
	defaultCacheDir        = "./cache/ics"
	defaultLogLevel        = "info"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir:             defaultDataDir,
		BackupFile:          defaultBackupFile,
		Listen:              defaultListen,
		WeekStart:           defaultWeekStart,
		ReminderMinutes:     defaultReminderMinutes,
		NotifyCron:          defaultNotifyCron,
		ConflictPaddingDays: defaultPaddingDays,
		ImportHorizonDays:   defaultHorizonDays,
		CacheDir:            defaultCacheDir,
		LogLevel:            defaultLogLevel,
		WatchStore:          true,
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.BackupFile == "" {
		c.BackupFile = defaultBackupFile
	}
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = defaultWeekStart
	}
	if c.ReminderMinutes <= 0 {
		c.ReminderMinutes = defaultReminderMinutes
	}
	if c.NotifyCron == "" {
		c.NotifyCron = defaultNotifyCron
	}
	if c.ConflictPaddingDays <= 0 {
		c.ConflictPaddingDays = defaultPaddingDays
	}
	if c.ImportHorizonDays <= 0 {
		c.ImportHorizonDays = defaultHorizonDays
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}

// EventsFile is the CSV file of event series.
func (c *Config) EventsFile() string {
	return filepath.Join(c.DataDir, "events.csv")
}

// FieldsFile is the CSV file of additional per-event fields.
func (c *Config) FieldsFile() string {
	return filepath.Join(c.DataDir, "additional.csv")
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (parent directory created) and returned.
//   - If the file exists, it is unmarshalled and normalized.
//
// Environment overrides from ApplyEnv are applied in both cases.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Return cfg alongside the error so the caller can decide.
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return &cfg, nil
}

// LoadDotEnv loads a .env file into the process environment when present.
// A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// ApplyEnv overrides selected fields from PCAL_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("PCAL_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("PCAL_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("PCAL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("PCAL_REMINDER_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.ReminderMinutes = n
		}
	}
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory with 0700 if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data, ".pcal-config-*.tmp")
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
