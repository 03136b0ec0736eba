package config

import (
	"github.com/garyjia/hr-approval/internal/container"
	"github.com/garyjia/hr-approval/pkg/database"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Config: database.Config{
				Driver: c.Database.Driver,
				Path:   c.Database.Path,
				MySQL: database.MySQLConfig{
					Addr:     c.Database.MySQL.Addr,
					User:     c.Database.MySQL.User,
					Password: c.Database.MySQL.Password,
					Name:     c.Database.MySQL.Name,
				},
				MaxOpenConns:    c.Database.MaxOpenConns,
				MaxIdleConns:    c.Database.MaxIdleConns,
				ConnMaxLifetime: c.Database.ConnMaxLifetime,
			},
			MigrationsDir: c.Database.MigrationsDir,
		},
		Lark: container.LarkConfig{
			Enabled:    c.Lark.Enabled,
			AppID:      c.Lark.AppID,
			AppSecret:  c.Lark.AppSecret,
			APITimeout: c.Lark.APITimeout,
		},
		Approval: container.ApprovalConfig{
			SystemActor:       c.Approval.SystemActor,
			SweepEnabled:      c.Approval.SweepEnabled,
			SweepSchedule:     c.Approval.SweepSchedule,
			NotificationRetry: c.Approval.NotificationRetry,
			RetrySchedule:     c.Approval.RetrySchedule,
			NotificationBatch: c.Approval.NotificationBatch,
			MaxAttempts:       c.Approval.MaxAttempts,
			RetryAfter:        c.Approval.RetryAfter,
		},
		Metrics: container.MetricsConfig{
			Enabled: c.Metrics.Enabled,
		},
	}
}
