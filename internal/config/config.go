// Package config loads speedlog settings from defaults, an optional
// configuration file and SPEEDLOG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"speedlog/internal/paths"
	pkgerrors "speedlog/pkg/errors"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SPEEDLOG"

// Storage drivers.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all speedlog settings.
type Config struct {
	Interval time.Duration  `mapstructure:"interval"`
	Selector SelectorConfig `mapstructure:"selector"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Provider ProviderConfig `mapstructure:"provider"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Summary  SummaryConfig  `mapstructure:"summary"`
	Log      LogConfig      `mapstructure:"log"`
}

type SelectorConfig struct {
	Candidates int   `mapstructure:"candidates"`
	Probes     int   `mapstructure:"probes"`
	Workers    int64 `mapstructure:"workers"`
}

type ScheduleConfig struct {
	Attempts   int           `mapstructure:"attempts"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type ProviderConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type StorageConfig struct {
	// Driver is one of "file", "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`
	// Path is the log file or SQLite database path.
	Path string `mapstructure:"path"`
	// DSN is the PostgreSQL connection string.
	DSN string `mapstructure:"dsn"`
}

type MetricsConfig struct {
	// Addr is the listen address of the HTTP endpoint. Empty disables it.
	Addr string `mapstructure:"addr"`
}

type SummaryConfig struct {
	// Interval between summary reports. Zero disables them.
	Interval time.Duration `mapstructure:"interval"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// DefaultInterval is the default time between cycle starts.
const DefaultInterval = 30 * time.Minute

// DefaultLogPath is the default record log, relative to the working
// directory.
var DefaultLogPath = filepath.Join("Logs", "internet_speed_results")

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("selector.candidates", 20)
	v.SetDefault("selector.probes", 3)
	v.SetDefault("selector.workers", 1)
	v.SetDefault("schedule.attempts", 3)
	v.SetDefault("schedule.retry_delay", 10*time.Second)
	v.SetDefault("provider.timeout", 20*time.Second)
	v.SetDefault("storage.driver", DriverFile)
	v.SetDefault("storage.path", DefaultLogPath)
	v.SetDefault("storage.dsn", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("summary.interval", 24*time.Hour)
	v.SetDefault("log.level", "info")
}

// New returns a viper instance with defaults and environment binding
// configured, ready for flags to be bound to it.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the configuration. If file is empty, speedlog.yaml is
// searched for in the working directory, ~/.config/speedlog and
// /etc/speedlog; not finding one is not an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("speedlog")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := paths.ConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath("/etc/speedlog/")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting in c.
func (c *Config) Validate() error {
	switch {
	case c.Interval <= 0:
		return fmt.Errorf("interval must be positive, got %v", c.Interval)
	case c.Selector.Candidates <= 0:
		return fmt.Errorf("selector.candidates must be positive, got %d", c.Selector.Candidates)
	case c.Selector.Probes <= 0:
		return fmt.Errorf("selector.probes must be positive, got %d", c.Selector.Probes)
	case c.Selector.Workers <= 0:
		return fmt.Errorf("selector.workers must be positive, got %d", c.Selector.Workers)
	case c.Schedule.Attempts <= 0:
		return fmt.Errorf("schedule.attempts must be positive, got %d", c.Schedule.Attempts)
	case c.Schedule.RetryDelay < 0:
		return fmt.Errorf("schedule.retry_delay must not be negative, got %v", c.Schedule.RetryDelay)
	case c.Provider.Timeout <= 0:
		return fmt.Errorf("provider.timeout must be positive, got %v", c.Provider.Timeout)
	case c.Summary.Interval < 0:
		return fmt.Errorf("summary.interval must not be negative, got %v", c.Summary.Interval)
	}
	switch c.Storage.Driver {
	case DriverFile, DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path must be set for the %s driver", c.Storage.Driver)
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn: %w", pkgerrors.ErrMissingDSN)
		}
	default:
		return fmt.Errorf("storage.driver %q: %w", c.Storage.Driver, pkgerrors.ErrUnknownDriver)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}
