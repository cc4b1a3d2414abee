package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// AppName is used for the env prefix and the XDG directory names.
const AppName = "apptime"

// DefaultApps is the watched set used when none is configured.
var DefaultApps = []string{"code", "firefox", "pycharm", "konsole", "spotify", "nvim", "foot"}

// Config holds the complete application configuration
type Config struct {
	Tracking TrackingConfig `mapstructure:"tracking"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// TrackingConfig defines the watched apps and the poll period
type TrackingConfig struct {
	Apps      []string `mapstructure:"apps"`
	SleepTime string   `mapstructure:"sleep_time"` // Go duration or bare seconds
}

// StorageConfig defines storage backend settings
type StorageConfig struct {
	Type            string      `mapstructure:"type"` // sqlite, bolt or redis
	Path            string      `mapstructure:"path"`
	EntityCacheSize int         `mapstructure:"entity_cache_size"`
	Redis           RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"` // empty = stderr
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// MetricsConfig defines the optional Prometheus endpoint
type MetricsConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ListenAddress string `mapstructure:"listen_address"`
}

// Interval returns the poll period. A bare integer is read as seconds.
func (t TrackingConfig) Interval() (time.Duration, error) {
	raw := strings.TrimSpace(t.SleepTime)
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid sleep_time %q: %w", t.SleepTime, err)
	}
	return d, nil
}

// DefaultConfigPath returns the config file location under XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// DefaultDatabasePath returns the database location under XDG_DATA_HOME.
func DefaultDatabasePath() string {
	return filepath.Join(xdg.DataHome, AppName, "timetracker.db")
}

// flagBindings maps command-line flags onto configuration keys.
var flagBindings = map[string]string{
	"sleep-time": "tracking.sleep_time",
	"app":        "tracking.apps",
	"db":         "storage.path",
	"storage":    "storage.type",
	"log-format": "logging.format",
}

// Load loads configuration from file, environment variables and flags.
// A missing config file is not an error; defaults apply.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	v.SetEnvPrefix(strings.ToUpper(AppName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	if flags != nil {
		for flag, key := range flagBindings {
			if f := flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
		}
		if debug, err := flags.GetBool("debug"); err == nil && debug {
			v.Set("logging.level", "debug")
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SetDefaults sets default configuration values
func SetDefaults(v *viper.Viper) {
	// Tracking defaults
	v.SetDefault("tracking.apps", DefaultApps)
	v.SetDefault("tracking.sleep_time", "60s")

	// Storage defaults
	v.SetDefault("storage.type", "sqlite")
	v.SetDefault("storage.path", DefaultDatabasePath())
	v.SetDefault("storage.entity_cache_size", 128)
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.pool_size", 4)
	v.SetDefault("storage.redis.min_idle_conns", 1)
	v.SetDefault("storage.redis.dial_timeout", "5s")
	v.SetDefault("storage.redis.read_timeout", "3s")
	v.SetDefault("storage.redis.write_timeout", "3s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen_address", "127.0.0.1:9464")
}

// Defaults returns a configuration holding only default values.
func Defaults() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// ValidKeys returns the set of keys a config file may contain.
func ValidKeys() map[string]bool {
	v := viper.New()
	SetDefaults(v)

	keys := make(map[string]bool)
	for _, key := range v.AllKeys() {
		keys[key] = true
	}
	return keys
}

// Validate validates the configuration
func Validate(cfg *Config) error {
	if len(cfg.Tracking.Apps) == 0 {
		return fmt.Errorf("at least one tracked app is required")
	}
	seen := make(map[string]bool, len(cfg.Tracking.Apps))
	for _, app := range cfg.Tracking.Apps {
		if strings.TrimSpace(app) == "" {
			return fmt.Errorf("tracked app names must not be empty")
		}
		if seen[app] {
			return fmt.Errorf("duplicate tracked app: %s", app)
		}
		seen[app] = true
	}

	interval, err := cfg.Tracking.Interval()
	if err != nil {
		return err
	}
	if interval <= 0 {
		return fmt.Errorf("sleep_time must be positive, got %s", interval)
	}

	switch cfg.Storage.Type {
	case "sqlite", "bolt":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage path is required for %s storage", cfg.Storage.Type)
		}
	case "redis":
		if cfg.Storage.Redis.Host == "" {
			return fmt.Errorf("storage.redis.host is required for redis storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s (expected sqlite, bolt or redis)", cfg.Storage.Type)
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddress == "" {
		return fmt.Errorf("metrics.listen_address is required when metrics are enabled")
	}

	return nil
}
