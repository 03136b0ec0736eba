package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Approval ApprovalConfig `mapstructure:"approval"`
	Lark     LarkConfig     `mapstructure:"lark"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	MySQL           MySQLConfig   `mapstructure:"mysql"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// MySQLConfig is read when database.driver is mysql
type MySQLConfig struct {
	Addr     string `mapstructure:"addr"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

// ApprovalConfig holds engine and background job settings
type ApprovalConfig struct {
	SystemActor       string        `mapstructure:"system_actor"`
	SweepEnabled      bool          `mapstructure:"sweep_enabled"`
	SweepSchedule     string        `mapstructure:"sweep_schedule"`
	NotificationRetry bool          `mapstructure:"notification_retry"`
	RetrySchedule     string        `mapstructure:"retry_schedule"`
	NotificationBatch int           `mapstructure:"notification_batch"`
	MaxAttempts       int           `mapstructure:"notification_max_attempts"`
	RetryAfter        time.Duration `mapstructure:"notification_retry_after"`
}

// LarkConfig holds Lark API configuration. Delivery through Lark is optional.
type LarkConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	AppID      string        `mapstructure:"app_id"`
	AppSecret  string        `mapstructure:"app_secret"`
	APITimeout time.Duration `mapstructure:"api_timeout"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables. A .env file
// next to the working directory is applied to the environment first.
// An empty configPath runs on defaults and environment only.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.path", "data/approvals.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.migrations_dir", "migrations")

	// Approval defaults
	v.SetDefault("approval.system_actor", "system")
	v.SetDefault("approval.sweep_enabled", true)
	v.SetDefault("approval.sweep_schedule", "@every 5m")
	v.SetDefault("approval.notification_retry", true)
	v.SetDefault("approval.retry_schedule", "@every 1m")
	v.SetDefault("approval.notification_batch", 50)
	v.SetDefault("approval.notification_max_attempts", 5)
	v.SetDefault("approval.notification_retry_after", "1m")

	// Lark defaults
	v.SetDefault("lark.enabled", false)
	v.SetDefault("lark.api_timeout", 30*time.Second)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	// Sensitive credentials from environment
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("database.mysql.password", "MYSQL_PASSWORD")
	_ = v.BindEnv("database.mysql.user", "MYSQL_USER")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}

	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case "mysql":
		if c.Database.MySQL.Addr == "" || c.Database.MySQL.Name == "" {
			return fmt.Errorf("database.mysql.addr and database.mysql.name are required")
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}

	if c.Approval.SweepEnabled {
		if _, err := cron.ParseStandard(c.Approval.SweepSchedule); err != nil {
			return fmt.Errorf("approval.sweep_schedule: %w", err)
		}
	}
	if c.Approval.NotificationRetry {
		if _, err := cron.ParseStandard(c.Approval.RetrySchedule); err != nil {
			return fmt.Errorf("approval.retry_schedule: %w", err)
		}
	}
	if c.Approval.NotificationBatch <= 0 {
		return fmt.Errorf("approval.notification_batch must be positive")
	}
	if c.Approval.MaxAttempts <= 0 {
		return fmt.Errorf("approval.notification_max_attempts must be positive")
	}
	if c.Approval.RetryAfter <= 0 {
		return fmt.Errorf("approval.notification_retry_after must be positive")
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required")
		}
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}
