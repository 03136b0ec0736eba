package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

// Config holds database configuration
type Config struct {
	Driver          string
	Path            string
	MySQL           MySQLConfig
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// MySQLConfig is used when Driver is "mysql"
type MySQLConfig struct {
	Addr     string
	User     string
	Password string
	Name     string
}

// DB wraps sql.DB with additional functionality
type DB struct {
	*sql.DB
	driver string
	logger *zap.Logger
}

// New creates a new database connection
func New(cfg Config, logger *zap.Logger) (*DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		DB:     sqlDB,
		driver: driver,
		logger: logger,
	}

	logger.Info("Database connection established", zap.String("driver", driver), zap.String("target", target(cfg)))
	return db, nil
}

// DSN builds the driver-specific data source name
func DSN(cfg Config) (string, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		if cfg.Path == "" {
			return "", fmt.Errorf("database path is required for sqlite3")
		}
		// WAL for concurrent readers, foreign keys for cascades
		return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", cfg.Path), nil
	case DriverMySQL:
		if cfg.MySQL.Addr == "" || cfg.MySQL.Name == "" {
			return "", fmt.Errorf("mysql addr and name are required")
		}
		mc := mysql.NewConfig()
		mc.Net = "tcp"
		mc.Addr = cfg.MySQL.Addr
		mc.User = cfg.MySQL.User
		mc.Passwd = cfg.MySQL.Password
		mc.DBName = cfg.MySQL.Name
		mc.ParseTime = true
		mc.Loc = time.UTC
		mc.MultiStatements = true
		return mc.FormatDSN(), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func target(cfg Config) string {
	if cfg.Driver == DriverMySQL {
		return cfg.MySQL.Addr + "/" + cfg.MySQL.Name
	}
	return cfg.Path
}

// Driver returns the name the connection was opened with
func (db *DB) Driver() string {
	return db.driver
}

// WithTransaction executes a function within a transaction
func (db *DB) WithTransaction(fn func(*sql.Tx) error) error {
	tx, err := db.DB.Begin()
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	db.logger.Info("Closing database connection")
	return db.DB.Close()
}
