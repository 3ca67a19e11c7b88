package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultTimezone is the fallback display zone when a user has none set and
// the configured zone is missing or invalid.
const DefaultTimezone = "America/New_York"

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// CacheConfig selects and tunes the dashboard data cache.
type CacheConfig struct {
	// TTL is how long a cached (user, resource) entry stays fresh.
	TTL time.Duration `yaml:"ttl" json:"ttl"`
	// RedisURL switches the cache to Redis when non-empty
	// (e.g. "redis://localhost:6379/0"). Empty means in-process memory.
	RedisURL string `yaml:"redis_url" json:"redis_url"`
}

// AuthConfig configures bearer-token identity from the hosted auth platform.
type AuthConfig struct {
	// JWTSecret is the HS256 secret the platform signs access tokens with.
	// When empty, the X-User-ID header is trusted (development only).
	JWTSecret string `yaml:"jwt_secret" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used when bucketing calendar views
	// (e.g. "America/New_York"). Users may override it in their preferences.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" or "sunday" (default).
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is the provider sync schedule, e.g. "*/30 * * * *".
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays / BackfillDays bound recurring-event expansion on sync.
	HorizonDays  int `yaml:"horizon_days" json:"horizon_days"`
	BackfillDays int `yaml:"backfill_days" json:"backfill_days"`

	DatabasePath string `yaml:"database_path" json:"database_path"`

	// CacheDir holds per-feed ICS bodies and HTTP validators.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// DefaultTerm is the term used for tasks that carry an explicit course
	// name but no term of their own (e.g. "2025FA"). Empty derives it from
	// the current date.
	DefaultTerm string `yaml:"default_term" json:"default_term"`

	// SemesterFilter keeps only the most recent term's courses when several
	// terms are present.
	SemesterFilter bool `yaml:"semester_filter" json:"semester_filter"`

	Cache CacheConfig `yaml:"cache" json:"cache"`
	Auth  AuthConfig  `yaml:"auth" json:"-"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health and /metrics.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         "127.0.0.1:8080",
		Timezone:       DefaultTimezone,
		WeekStart:      "sunday",
		RefreshCron:    "*/30 * * * *",
		HorizonDays:    120,
		BackfillDays:   30,
		DatabasePath:   "./var/studycal.db",
		CacheDir:       "./var/ics-cache",
		LogLevel:       "info",
		SemesterFilter: true,
		Cache: CacheConfig{
			TTL: 30 * time.Second,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	switch strings.ToLower(c.WeekStart) {
	case "monday", "sunday":
		c.WeekStart = strings.ToLower(c.WeekStart)
	default:
		c.WeekStart = def.WeekStart
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if c.BackfillDays < 0 {
		c.BackfillDays = 0
	}
	if c.DatabasePath == "" {
		c.DatabasePath = def.DatabasePath
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = def.Cache.TTL
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - If the file exists, it is unmarshalled and normalized.
//   - In both cases environment overrides (see ApplyEnv) are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		// First run: create default config file.
		cfg := DefaultConfig()
		if err := Save(path, cfg); err != nil {
			// Even if save fails, return cfg with error so caller can decide.
			cfg.ApplyEnv()
			return cfg, err
		}
		cfg.ApplyEnv()
		return cfg, nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return &cfg, nil
}

// LoadDotEnv reads KEY=VALUE pairs from the given files (".env" when none are
// given) into the process environment. Missing files are ignored; variables
// already set in the environment win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// ApplyEnv overrides file values with STUDYCAL_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("STUDYCAL_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("STUDYCAL_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("STUDYCAL_DB_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("STUDYCAL_CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv("STUDYCAL_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("STUDYCAL_REDIS_URL"); v != "" {
		c.Cache.RedisURL = v
	}
	if v := os.Getenv("STUDYCAL_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("STUDYCAL_DEFAULT_TERM"); v != "" {
		c.DefaultTerm = v
	}
	if v := os.Getenv("STUDYCAL_SEMESTER_FILTER"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.SemesterFilter = b
		}
	}
}

// Location resolves the configured timezone, falling back to DefaultTimezone
// and finally UTC.
func (c *Config) Location() *time.Location {
	if c != nil && c.Timezone != "" {
		if loc, err := time.LoadLocation(c.Timezone); err == nil {
			return loc
		}
	}
	if loc, err := time.LoadLocation(DefaultTimezone); err == nil {
		return loc
	}
	return time.UTC
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".studycal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
