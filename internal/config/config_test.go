package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()

	flags := pflag.NewFlagSet("apptime", pflag.ContinueOnError)
	flags.String("sleep-time", "", "")
	flags.Bool("debug", false, "")
	flags.StringSlice("app", nil, "")
	flags.String("db", "", "")
	flags.String("storage", "", "")
	flags.String("log-format", "", "")
	if err := flags.Parse(args); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}
	return flags
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if diff := cmp.Diff(DefaultApps, cfg.Tracking.Apps); diff != "" {
		t.Errorf("apps mismatch (-want +got):\n%s", diff)
	}
	interval, err := cfg.Tracking.Interval()
	if err != nil || interval != time.Minute {
		t.Errorf("Interval() = %v, %v; want 1m", interval, err)
	}
	if cfg.Storage.Type != "sqlite" {
		t.Errorf("storage type = %q, want sqlite", cfg.Storage.Type)
	}
	if !strings.HasSuffix(cfg.Storage.Path, filepath.Join("apptime", "timetracker.db")) {
		t.Errorf("storage path = %q", cfg.Storage.Path)
	}
	if cfg.Logging.Level != "info" || cfg.Metrics.Enabled {
		t.Errorf("unexpected logging/metrics defaults: %+v %+v", cfg.Logging, cfg.Metrics)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
tracking:
  apps: [code, nvim]
  sleep_time: 30s
storage:
  type: bolt
  path: /tmp/apptime.bolt
logging:
  level: warn
  format: json
metrics:
  enabled: true
`)

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if diff := cmp.Diff([]string{"code", "nvim"}, cfg.Tracking.Apps); diff != "" {
		t.Errorf("apps mismatch (-want +got):\n%s", diff)
	}
	if cfg.Tracking.SleepTime != "30s" {
		t.Errorf("sleep_time = %q, want 30s", cfg.Tracking.SleepTime)
	}
	if cfg.Storage.Type != "bolt" || cfg.Storage.Path != "/tmp/apptime.bolt" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Logging.Level != "warn" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.ListenAddress != "127.0.0.1:9464" {
		t.Errorf("metrics = %+v", cfg.Metrics)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "tracking:\n  sleep_time: 30s\n")
	t.Setenv("APPTIME_TRACKING_SLEEP_TIME", "5")
	t.Setenv("APPTIME_STORAGE_TYPE", "redis")

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	interval, err := cfg.Tracking.Interval()
	if err != nil || interval != 5*time.Second {
		t.Errorf("Interval() = %v, %v; want 5s", interval, err)
	}
	if cfg.Storage.Type != "redis" {
		t.Errorf("storage type = %q, want redis", cfg.Storage.Type)
	}
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
tracking:
  apps: [code]
  sleep_time: 30s
logging:
  format: json
`)
	flags := testFlags(t,
		"--sleep-time", "10",
		"--app", "firefox", "--app", "foot",
		"--db", "/tmp/other.db",
		"--debug",
		"--log-format", "text",
	)

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if diff := cmp.Diff([]string{"firefox", "foot"}, cfg.Tracking.Apps); diff != "" {
		t.Errorf("apps mismatch (-want +got):\n%s", diff)
	}
	if interval, _ := cfg.Tracking.Interval(); interval != 10*time.Second {
		t.Errorf("Interval() = %v, want 10s", interval)
	}
	if cfg.Storage.Path != "/tmp/other.db" {
		t.Errorf("storage path = %q", cfg.Storage.Path)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
}

func TestLoad_UnchangedFlagsKeepFileValues(t *testing.T) {
	path := writeConfig(t, "tracking:\n  sleep_time: 30s\n")

	cfg, err := Load(path, testFlags(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Tracking.SleepTime != "30s" {
		t.Errorf("sleep_time = %q, want 30s", cfg.Tracking.SleepTime)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("level = %q, want info without --debug", cfg.Logging.Level)
	}
}

func TestLoad_InvalidFile(t *testing.T) {
	path := writeConfig(t, "tracking: [unterminated\n")
	if _, err := Load(path, nil); err == nil {
		t.Fatal("expected an error for malformed YAML")
	}
}

func TestInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"60", time.Minute, false},
		{" 15 ", 15 * time.Second, false},
		{"90s", 90 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{"500ms", 500 * time.Millisecond, false},
		{"soon", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := TrackingConfig{SleepTime: tt.in}.Interval()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Interval() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Interval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"no apps", func(c *Config) { c.Tracking.Apps = nil }, "at least one tracked app"},
		{"empty app", func(c *Config) { c.Tracking.Apps = []string{"code", " "} }, "must not be empty"},
		{"duplicate app", func(c *Config) { c.Tracking.Apps = []string{"code", "code"} }, "duplicate tracked app"},
		{"zero interval", func(c *Config) { c.Tracking.SleepTime = "0" }, "must be positive"},
		{"negative interval", func(c *Config) { c.Tracking.SleepTime = "-5s" }, "must be positive"},
		{"bad interval", func(c *Config) { c.Tracking.SleepTime = "often" }, "invalid sleep_time"},
		{"unknown storage", func(c *Config) { c.Storage.Type = "mysql" }, "unsupported storage type"},
		{"missing path", func(c *Config) { c.Storage.Path = "" }, "storage path is required"},
		{"redis without host", func(c *Config) {
			c.Storage.Type = "redis"
			c.Storage.Redis.Host = ""
		}, "storage.redis.host"},
		{"redis ignores path", func(c *Config) {
			c.Storage.Type = "redis"
			c.Storage.Path = ""
		}, ""},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }, "invalid logging level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "invalid logging format"},
		{"metrics without address", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.ListenAddress = ""
		}, "listen_address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidKeys(t *testing.T) {
	keys := ValidKeys()
	for _, key := range []string{"tracking.apps", "tracking.sleep_time", "storage.type", "storage.redis.host", "logging.file", "metrics.listen_address"} {
		if !keys[key] {
			t.Errorf("ValidKeys() missing %q", key)
		}
	}
	if keys["tracking"] {
		t.Error("ValidKeys() should contain leaf keys only")
	}
}
