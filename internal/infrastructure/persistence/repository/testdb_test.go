package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/hr-approval/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/hr-approval/pkg/database"
)

// newTestDB opens a migrated SQLite database in a temp dir
func newTestDB(t *testing.T) *sqldb.DB {
	t.Helper()
	logger := zap.NewNop()

	raw, err := database.New(database.Config{
		Driver:       database.DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })

	require.NoError(t, database.NewMigrator(raw, logger).RunMigrations(filepath.Join("..", "..", "..", "..", "migrations")))
	return sqldb.NewDB(raw.DB, sqldb.DialectSQLite, logger)
}

var baseTime = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func strPtr(s string) *string   { return &s }
func fltPtr(f float64) *float64 { return &f }
