/*
Package config loads the server configuration.

PRIORITY:
  environment (PAYROLL_*) > config file (YAML) > defaults

  Nested keys map to env names with "." replaced by "_", e.g.
  payroll.workers -> PAYROLL_PAYROLL_WORKERS, db.path -> PAYROLL_DB_PATH.

EXAMPLE FILE:
  server:
    port: 8080
    cors:
      allow_origins: ["http://localhost:5173"]
  db:
    path: ./data/payroll.db
  log:
    level: info
    format: json
  payroll:
    workers: 8
    standard_daily_hours: 8
    top_n: 5
    scheduler:
      enabled: true
      interval: 1h
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the full server configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	DB      DBConfig      `mapstructure:"db"`
	Log     LogConfig     `mapstructure:"log"`
	Payroll PayrollConfig `mapstructure:"payroll"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

type DBConfig struct {
	// Path is the SQLite file, or ":memory:".
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

type PayrollConfig struct {
	Workers             int             `mapstructure:"workers"`
	StandardDailyHours  string          `mapstructure:"standard_daily_hours"`
	DefaultGraceMinutes int             `mapstructure:"default_grace_minutes"`
	TopN                int             `mapstructure:"top_n"`
	CompanyID           string          `mapstructure:"company_id"`
	Scheduler           SchedulerConfig `mapstructure:"scheduler"`
}

type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// DailyHours parses StandardDailyHours. Validate has already rejected bad
// values, so the error is only possible on an unvalidated Config.
func (p PayrollConfig) DailyHours() (decimal.Decimal, error) {
	return decimal.NewFromString(p.StandardDailyHours)
}

// Load reads configuration from path (optional) and the environment.
// An empty path looks for config.yaml in ./config and the working directory;
// a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173", "http://localhost:3000"})

	v.SetDefault("db.path", "payroll.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("payroll.workers", 4)
	v.SetDefault("payroll.standard_daily_hours", "8")
	v.SetDefault("payroll.default_grace_minutes", 0)
	v.SetDefault("payroll.top_n", 5)
	v.SetDefault("payroll.company_id", "")
	v.SetDefault("payroll.scheduler.enabled", false)
	v.SetDefault("payroll.scheduler.interval", "1h")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PAYROLL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the server cannot start without.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.DB.Path == "" {
		return errors.New("invalid config: db.path must not be empty")
	}
	if c.Payroll.Workers < 1 {
		return fmt.Errorf("invalid config: payroll.workers must be at least 1, got %d", c.Payroll.Workers)
	}
	hours, err := c.Payroll.DailyHours()
	if err != nil || !hours.IsPositive() {
		return fmt.Errorf("invalid config: payroll.standard_daily_hours must be a positive number, got %q", c.Payroll.StandardDailyHours)
	}
	if c.Payroll.DefaultGraceMinutes < 0 {
		return fmt.Errorf("invalid config: payroll.default_grace_minutes must not be negative")
	}
	if c.Payroll.TopN < 0 {
		return fmt.Errorf("invalid config: payroll.top_n must not be negative")
	}
	if c.Payroll.Scheduler.Enabled && c.Payroll.Scheduler.Interval <= 0 {
		return fmt.Errorf("invalid config: payroll.scheduler.interval must be positive")
	}
	return nil
}
