package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/canvasflow/config"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db
}

func testDBConfig() config.DatabaseConfig {
	cfg := config.DefaultDatabaseConfig()
	cfg.Driver = "sqlite"
	cfg.Name = ":memory:"
	return cfg
}

func TestOpen_Sqlite(t *testing.T) {
	db, err := Open(testDBConfig())
	require.NoError(t, err)
	require.NotNil(t, db)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	cfg := config.DefaultDatabaseConfig()
	cfg.Driver = "oracle"
	_, err := Open(cfg)
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestPoolManager_PingAndClose(t *testing.T) {
	pm, err := NewPoolManager(openTestDB(t), testDBConfig(), nil, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, pm.Ping(context.Background()))

	require.NoError(t, pm.Close())
	require.NoError(t, pm.Close()) // idempotent
	assert.Error(t, pm.Ping(context.Background()))
}

func TestPoolManager_NilDB(t *testing.T) {
	_, err := NewPoolManager(nil, testDBConfig(), nil, zap.NewNop())
	assert.Error(t, err)
}

func TestPoolManager_WithTransaction(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.Exec("CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)").Error)

	pm, err := NewPoolManager(db, testDBConfig(), nil, zap.NewNop())
	require.NoError(t, err)
	defer pm.Close()

	ctx := context.Background()

	err = pm.WithTransaction(ctx, func(tx *gorm.DB) error {
		return tx.Exec("INSERT INTO items (name) VALUES ('a')").Error
	})
	require.NoError(t, err)

	// A failing function rolls the transaction back.
	err = pm.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Exec("INSERT INTO items (name) VALUES ('b')").Error; err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Raw("SELECT COUNT(*) FROM items").Scan(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestPoolManager_WithTransactionRetry(t *testing.T) {
	db := openTestDB(t)
	pm, err := NewPoolManager(db, testDBConfig(), nil, zap.NewNop())
	require.NoError(t, err)
	defer pm.Close()

	ctx := context.Background()

	attempts := 0
	err = pm.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("deadlock detected")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	// Non-retryable errors fail immediately.
	attempts = 0
	err = pm.WithTransactionRetry(ctx, 3, func(tx *gorm.DB) error {
		attempts++
		return fmt.Errorf("syntax error")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestPoolManager_RetryExhaustion(t *testing.T) {
	db := openTestDB(t)
	pm, err := NewPoolManager(db, testDBConfig(), nil, zap.NewNop())
	require.NoError(t, err)
	defer pm.Close()

	attempts := 0
	err = pm.WithTransactionRetry(context.Background(), 2, func(tx *gorm.DB) error {
		attempts++
		return fmt.Errorf("lock wait timeout exceeded")
	})
	require.ErrorContains(t, err, "after 2 retries")
	assert.Equal(t, 2, attempts)
}

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		err       error
		retryable bool
	}{
		{nil, false},
		{fmt.Errorf("deadlock found when trying to get lock"), true},
		{fmt.Errorf("ERROR: serialization failure (SQLSTATE 40001)"), true},
		{fmt.Errorf("read tcp: connection reset by peer"), true},
		{fmt.Errorf("driver: bad connection"), true},
		{fmt.Errorf("lock wait timeout exceeded"), true},
		{fmt.Errorf("syntax error at or near SELECT"), false},
		{fmt.Errorf("duplicate key value violates unique constraint"), false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.retryable, isRetryableError(tc.err), "%v", tc.err)
	}
}

func TestPoolManager_AppliesPoolSettings(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	mock.ExpectQuery("SELECT version").WillReturnRows(
		sqlmock.NewRows([]string{"version"}).AddRow("PostgreSQL 16.0"))

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	cfg := config.DefaultDatabaseConfig()
	cfg.MaxOpenConns = 7
	cfg.MaxIdleConns = 3
	cfg.ConnMaxLifetime = time.Minute

	pm, err := NewPoolManager(db, cfg, nil, zap.NewNop())
	require.NoError(t, err)
	defer pm.Close()

	assert.Equal(t, 7, pm.Stats().MaxOpenConnections)
}
