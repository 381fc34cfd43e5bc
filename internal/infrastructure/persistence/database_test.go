package persistence

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/invitely/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	mock.ExpectPing()
	cfg := &config.DatabaseConfig{MaxOpenConns: 4, MaxIdleConns: 2, ConnMaxLifetime: 10, ConnMaxIdleTime: 5}
	db, err := open(postgres.New(postgres.Config{Conn: sqlDB}), cfg, logger.Default.LogMode(logger.Silent))
	require.NoError(t, err)
	return db, mock
}

func TestDatabase_OpenAppliesPoolSettings(t *testing.T) {
	db, mock := newMockDatabase(t)

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, 4, stats.MaxOpenConnections)
	assert.True(t, db.DB.Config.TranslateError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_Ping(t *testing.T) {
	db, mock := newMockDatabase(t)

	mock.ExpectPing()
	assert.NoError(t, db.Ping())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_Transaction(t *testing.T) {
	db, mock := newMockDatabase(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error { return nil }))
	require.NoError(t, mock.ExpectationsWereMet())
}
