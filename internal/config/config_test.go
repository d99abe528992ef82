package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8080" || cfg.ReminderMinutes != 30 || cfg.ConflictPaddingDays != 7 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config perms = %o, want 600", perm)
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "data_dir: /srv/pcal\nweek_start: friday\nreminder_minutes: 0\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"data_dir", cfg.DataDir, "/srv/pcal"},
		{"week_start falls back", cfg.WeekStart, "sunday"},
		{"reminder default", cfg.ReminderMinutes, 30},
		{"log level kept", cfg.LogLevel, "debug"},
		{"notify cron default", cfg.NotifyCron, "@every 1m"},
		{"events file", cfg.EventsFile(), filepath.Join("/srv/pcal", "events.csv")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.WeekStart = "monday"
	cfg.BackupCron = "0 3 * * *"
	cfg.BasicAuth = &BasicAuthConfig{Username: "me", Password: "secret"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.WeekStart != "monday" || got.BackupCron != "0 3 * * *" {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if got.BasicAuth == nil || got.BasicAuth.Username != "me" {
		t.Errorf("basic auth lost: %+v", got.BasicAuth)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PCAL_DATA_DIR", "/tmp/pcal-env")
	t.Setenv("PCAL_LISTEN", ":9999")
	t.Setenv("PCAL_REMINDER_MINUTES", "15")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != "/tmp/pcal-env" || cfg.Listen != ":9999" || cfg.ReminderMinutes != 15 {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("PCAL_TEST_DOTENV=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("PCAL_TEST_DOTENV") })

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("PCAL_TEST_DOTENV"); got != "loaded" {
		t.Errorf("PCAL_TEST_DOTENV = %q", got)
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Error("expected error for empty path")
	}
}
