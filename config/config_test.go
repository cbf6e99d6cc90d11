package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chatsync.yaml")
	data := `
api:
  base_url: http://chat.example.com/api
  timeout: 3s
  max_upload_size: 2MB
  rate_limit:
    rps: 5
    burst: 10
storage:
  durable: redis
  profile: alice
  redis:
    addr: redis:6379
    session_ttl: 3600
logging:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CHATSYNC_PROFILE", "bob")
	t.Setenv("CHATSYNC_MAX_UPLOAD_SIZE", "1048576")

	cfg, err := Load(path, true)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := Default()
	want.API.BaseURL = "http://chat.example.com/api"
	want.API.Timeout = Duration(3 * time.Second)
	want.API.MaxUploadSize = 1 << 20
	want.API.RateLimit.RPS = 5
	want.API.RateLimit.Burst = 10
	want.Storage.Durable = "redis"
	want.Storage.Profile = "bob"
	want.Storage.Redis.Addr = "redis:6379"
	want.Storage.Redis.TTL = Duration(time.Hour)
	want.Logging.Level = "debug"
	want.Logging.Format = "json"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_missingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.yaml")

	if _, err := Load(path, false); err != nil {
		t.Errorf("Got error %v for an optional missing file, want nil", err)
	}
	if _, err := Load(path, true); err == nil {
		t.Error("Got nil error for a required missing file")
	}
}

func TestConfig_applyEnv(t *testing.T) {
	env := map[string]string{
		"CHATSYNC_API_URL":           "http://localhost:9000/api",
		"CHATSYNC_EVENTS_URL":        "ws://localhost:9000/events",
		"CHATSYNC_TIMEOUT":           "1.5",
		"CHATSYNC_STORAGE_DURABLE":   "postgres",
		"CHATSYNC_POSTGRES_DSN":      "postgres://localhost/chat",
		"CHATSYNC_STORAGE_EPHEMERAL": "redis",
		"CHATSYNC_REDIS_DB":          "2",
		"CHATSYNC_SESSION_ID":        "tty1",
		"CHATSYNC_LOG_LEVEL":         "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	if err := cfg.applyEnv(lookup); err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	if got, want := cfg.API.Timeout.Std(), 1500*time.Millisecond; got != want {
		t.Errorf("Got timeout %v, want %v", got, want)
	}
	if got := cfg.API.EventsURL; got != "ws://localhost:9000/events" {
		t.Errorf("Got events URL %q", got)
	}
	if got := cfg.Storage.Redis.DB; got != 2 {
		t.Errorf("Got redis db %d, want 2", got)
	}
	if got := cfg.Storage.Session; got != "tty1" {
		t.Errorf("Got session %q, want tty1", got)
	}
	if got := cfg.Logging.Level; got != "info" {
		t.Errorf("Got log level %q, want the default kept for an empty variable", got)
	}
}

func TestConfig_applyEnv_invalid(t *testing.T) {
	env := map[string]string{
		"CHATSYNC_TIMEOUT":          "soon",
		"CHATSYNC_RATE_LIMIT_BURST": "many",
	}
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err == nil {
		t.Fatal("Got nil error")
	}
	for _, name := range []string{"CHATSYNC_TIMEOUT", "CHATSYNC_RATE_LIMIT_BURST"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("Error %q does not mention %s", err, name)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		want   string
	}{
		{
			name:   "UnknownDurable",
			modify: func(c *Config) { c.Storage.Durable = "sqlite" },
			want:   `unknown durable storage "sqlite"`,
		},
		{
			name:   "PostgresWithoutDSN",
			modify: func(c *Config) { c.Storage.Durable = "postgres" },
			want:   "storage.postgres.dsn is required",
		},
		{
			name:   "UnknownEphemeral",
			modify: func(c *Config) { c.Storage.Ephemeral = "postgres" },
			want:   `unknown ephemeral storage "postgres"`,
		},
		{
			name:   "NULInProfile",
			modify: func(c *Config) { c.Storage.Profile = "a\x00b" },
			want:   "must not contain NUL",
		},
		{
			name:   "BadLevel",
			modify: func(c *Config) { c.Logging.Level = "loud" },
			want:   `invalid log level "loud"`,
		},
		{
			name:   "BadFormat",
			modify: func(c *Config) { c.Logging.Format = "xml" },
			want:   `unknown log format "xml"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Got error %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("Dropped")
	logger.Warn("Could not reach server", "attempt", 2)

	out := buf.String()
	if strings.Contains(out, "Dropped") {
		t.Errorf("Info record written at warn level: %s", out)
	}
	if !strings.Contains(out, `"msg":"Could not reach server"`) || !strings.Contains(out, `"attempt":2`) {
		t.Errorf("Got %s, want a JSON warn record", out)
	}
}

func TestSizeBytes_String(t *testing.T) {
	if got, want := SizeBytes(10<<20).String(), "10 MiB"; got != want {
		t.Errorf("Got %q, want %q", got, want)
	}
}
