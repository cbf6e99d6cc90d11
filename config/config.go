// Package config loads the client configuration from a YAML file, a .env
// file and CHATSYNC_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Config is the complete client configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// APIConfig configures the REST gateway and the events endpoint.
type APIConfig struct {
	BaseURL       string    `yaml:"base_url"`
	EventsURL     string    `yaml:"events_url"`
	PhotoBaseURL  string    `yaml:"photo_base_url"`
	Timeout       Duration  `yaml:"timeout"`
	MaxUploadSize SizeBytes `yaml:"max_upload_size"`
	RateLimit     struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// StorageConfig selects the persistence tiers. Durable is one of pebble,
// redis, postgres or memory; Ephemeral is pebble, redis or memory. Profile
// namespaces the stored keys. Session keys the ephemeral tier within a
// profile; when empty the parent process id is used, so a session-only login
// lasts as long as the shell that started it.
type StorageConfig struct {
	Durable   string `yaml:"durable"`
	Ephemeral string `yaml:"ephemeral"`
	Profile   string `yaml:"profile"`
	Session   string `yaml:"session"`
	Path      string `yaml:"path"`
	Redis     struct {
		Addr     string   `yaml:"addr"`
		Password string   `yaml:"password"`
		DB       int      `yaml:"db"`
		TTL      Duration `yaml:"session_ttl"`
	} `yaml:"redis"`
	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the metrics endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// SizeBytes is a byte count written as "10MB" or a plain integer.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	v, err := parseSize(fmt.Sprint(raw))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) String() string {
	return humanize.IBytes(uint64(s))
}

func parseSize(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	v, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", raw, err)
	}
	return SizeBytes(v), nil
}

// Duration is a time.Duration written as "10s" or a number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw any
	if err := unmarshal(&raw); err != nil {
		return err
	}
	v, err := parseDuration(fmt.Sprint(raw))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func parseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration %q", raw)
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	cfg := &Config{}
	cfg.API.BaseURL = "http://localhost:8080/api"
	cfg.API.Timeout = Duration(10 * time.Second)
	cfg.API.MaxUploadSize = 10 << 20
	cfg.Storage.Durable = "pebble"
	cfg.Storage.Ephemeral = "pebble"
	cfg.Storage.Profile = "default"
	cfg.Storage.Path = defaultStatePath()
	cfg.Storage.Redis.Addr = "localhost:6379"
	cfg.Storage.Redis.TTL = Duration(24 * time.Hour)
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	return cfg
}

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".chatsync", "state")
	}
	return filepath.Join(dir, "chatsync", "state")
}

// Load builds the configuration. A .env file in the working directory is
// loaded first if present. path names a YAML file; a missing file is an
// error only when required is set.
func Load(path string, required bool) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup("CHATSYNC_" + name); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	parse := func(name string, fn func(string) error) {
		if v, ok := lookup("CHATSYNC_" + name); ok && v != "" {
			if err := fn(v); err != nil {
				errs = append(errs, fmt.Errorf("CHATSYNC_%s: %w", name, err))
			}
		}
	}

	str("API_URL", &c.API.BaseURL)
	str("EVENTS_URL", &c.API.EventsURL)
	str("PHOTO_URL", &c.API.PhotoBaseURL)
	parse("TIMEOUT", func(v string) (err error) {
		c.API.Timeout, err = parseDuration(v)
		return err
	})
	parse("MAX_UPLOAD_SIZE", func(v string) (err error) {
		c.API.MaxUploadSize, err = parseSize(v)
		return err
	})
	parse("RATE_LIMIT_RPS", func(v string) (err error) {
		c.API.RateLimit.RPS, err = strconv.ParseFloat(v, 64)
		return err
	})
	parse("RATE_LIMIT_BURST", func(v string) (err error) {
		c.API.RateLimit.Burst, err = strconv.Atoi(v)
		return err
	})

	str("STORAGE_DURABLE", &c.Storage.Durable)
	str("STORAGE_EPHEMERAL", &c.Storage.Ephemeral)
	str("PROFILE", &c.Storage.Profile)
	str("SESSION_ID", &c.Storage.Session)
	str("STATE_PATH", &c.Storage.Path)
	str("REDIS_ADDR", &c.Storage.Redis.Addr)
	str("REDIS_PASSWORD", &c.Storage.Redis.Password)
	parse("REDIS_DB", func(v string) (err error) {
		c.Storage.Redis.DB, err = strconv.Atoi(v)
		return err
	})
	parse("SESSION_TTL", func(v string) (err error) {
		c.Storage.Redis.TTL, err = parseDuration(v)
		return err
	})
	str("POSTGRES_DSN", &c.Storage.Postgres.DSN)

	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("METRICS_ADDR", &c.Metrics.Addr)

	return errors.Join(errs...)
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	var errs []error
	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	switch c.Storage.Durable {
	case "pebble", "redis", "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			errs = append(errs, errors.New("storage.postgres.dsn is required for the postgres tier"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown durable storage %q", c.Storage.Durable))
	}
	switch c.Storage.Ephemeral {
	case "pebble", "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown ephemeral storage %q", c.Storage.Ephemeral))
	}
	if c.Storage.Profile == "" {
		errs = append(errs, errors.New("storage.profile is required"))
	}
	if strings.ContainsRune(c.Storage.Profile, 0) || strings.ContainsRune(c.Storage.Session, 0) {
		errs = append(errs, errors.New("storage.profile and storage.session must not contain NUL"))
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}

// NewLogger returns a logger writing to w in the configured format and level.
func NewLogger(cfg LoggingConfig, w io.Writer) *slog.Logger {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
