package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Timezone != DefaultTimezone {
		t.Errorf("Timezone = %q, want %q", cfg.Timezone, DefaultTimezone)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "listen: \":9000\"\nweek_start: Friday\ncache:\n  redis_url: redis://cache:6379/1\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != ":9000" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.WeekStart != "sunday" {
		t.Errorf("WeekStart = %q, want fallback sunday", cfg.WeekStart)
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Errorf("Cache.TTL = %v", cfg.Cache.TTL)
	}
	if cfg.Cache.RedisURL != "redis://cache:6379/1" {
		t.Errorf("RedisURL = %q", cfg.Cache.RedisURL)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("STUDYCAL_TIMEZONE", "Europe/Berlin")
	t.Setenv("STUDYCAL_SEMESTER_FILTER", "false")
	t.Setenv("STUDYCAL_DEFAULT_TERM", "2026SP")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	if cfg.Timezone != "Europe/Berlin" {
		t.Errorf("Timezone = %q", cfg.Timezone)
	}
	if cfg.SemesterFilter {
		t.Error("SemesterFilter should be disabled by env")
	}
	if cfg.DefaultTerm != "2026SP" {
		t.Errorf("DefaultTerm = %q", cfg.DefaultTerm)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envFile, []byte("STUDYCAL_LISTEN=0.0.0.0:7070\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	os.Unsetenv("STUDYCAL_LISTEN")
	t.Cleanup(func() { os.Unsetenv("STUDYCAL_LISTEN") })

	if err := LoadDotEnv(envFile, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	cfg := DefaultConfig()
	cfg.ApplyEnv()
	if cfg.Listen != "0.0.0.0:7070" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
}

func TestLocationFallback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Not/AZone"
	if got := cfg.Location().String(); got != DefaultTimezone {
		t.Errorf("Location = %q, want %q", got, DefaultTimezone)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.DefaultTerm = "2025FA"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.DefaultTerm != "2025FA" || !got.SemesterFilter {
		t.Errorf("unexpected config after reload: %+v", got)
	}
}
