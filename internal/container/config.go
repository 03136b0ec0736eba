// Package container wires the approval engine, its stores and background
// workers together and owns their lifecycle.
package container

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/garyjia/hr-approval/pkg/database"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	Database DatabaseConfig
	Lark     LarkConfig
	Approval ApprovalConfig
	Metrics  MetricsConfig
}

// DatabaseConfig holds connection settings plus the migrations location
type DatabaseConfig struct {
	database.Config

	// MigrationsDir holds one subdirectory of .sql files per driver.
	// Empty skips migrations.
	MigrationsDir string
}

// LarkConfig holds Lark API settings
type LarkConfig struct {
	// Enabled turns on delivery of notifications as Lark IM messages
	Enabled bool

	AppID      string
	AppSecret  string
	APITimeout time.Duration
}

// ApprovalConfig holds engine and background job settings
type ApprovalConfig struct {
	// SystemActor is recorded as the decider of automatic transitions
	SystemActor string

	SweepEnabled  bool
	SweepSchedule string

	// NotificationRetry re-sends undelivered notifications on RetrySchedule
	NotificationRetry bool
	RetrySchedule     string
	NotificationBatch int

	// MaxAttempts caps deliveries per notification; RetryAfter is the minimum
	// age of a notification before the retry job touches it
	MaxAttempts int
	RetryAfter  time.Duration
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Config: database.Config{
				Driver:          database.DriverSQLite,
				Path:            "data/approvals.db",
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
			MigrationsDir: "migrations",
		},
		Lark: LarkConfig{
			APITimeout: 30 * time.Second,
		},
		Approval: ApprovalConfig{
			SystemActor:       "system",
			SweepEnabled:      true,
			SweepSchedule:     "@every 5m",
			NotificationRetry: true,
			RetrySchedule:     "@every 1m",
			NotificationBatch: 50,
			MaxAttempts:       5,
			RetryAfter:        time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if _, err := database.DSN(c.Database.Config); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if c.Lark.Enabled && (c.Lark.AppID == "" || c.Lark.AppSecret == "") {
		return fmt.Errorf("lark.app_id and lark.app_secret are required when lark is enabled")
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
		if c.Approval.NotificationBatch <= 0 {
			return fmt.Errorf("approval.notification_batch must be positive")
		}
		if c.Approval.MaxAttempts <= 0 || c.Approval.RetryAfter <= 0 {
			return fmt.Errorf("approval.notification_max_attempts and approval.notification_retry_after must be positive")
		}
	}

	return nil
}
