package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/mission-engadi/ai-service/internal/config"
	"github.com/mission-engadi/ai-service/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// TestMigrate_CreatesTables 测试迁移创建所有表
func TestMigrate_CreatesTables(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, database.Migrate(db))

	for _, table := range []string{
		"tasks", "generated_contents", "publish_records", "translation_jobs", "content_templates",
		"workflows", "workflow_executions", "state_history", "approval_records", "events", "audit_logs",
	} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}
}

// TestMigrate_Idempotent 测试迁移可重复执行
func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.Migrate(db))
}

// TestMigrate_CreatesIndexes 测试索引创建
func TestMigrate_CreatesIndexes(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, database.Migrate(db))

	var count int64
	db.Raw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?", "idx_tasks_status_type").Scan(&count)
	assert.Equal(t, int64(1), count)
}

// TestBuildDSN 测试 DSN 构建
func TestBuildDSN(t *testing.T) {
	dsn := database.BuildDSN(config.DatabaseConfig{
		Host: "db", Port: 5432, User: "u", Password: "p", DBName: "ai", SSLMode: "disable",
	})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=ai sslmode=disable", dsn)
}

// TestGetPoolConfig 测试连接池默认值
func TestGetPoolConfig(t *testing.T) {
	pool := database.GetPoolConfig(config.DatabaseConfig{MaxOpenConns: 50})
	assert.Equal(t, 50, pool.MaxOpenConns)
	assert.Equal(t, 10, pool.MaxIdleConns)
	assert.Equal(t, 3600, pool.ConnMaxLifetime)
}

// TestConnect_SQLite 测试 sqlite 连接与健康检查
func TestConnect_SQLite(t *testing.T) {
	db, err := database.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	assert.NoError(t, database.CheckHealth(context.Background(), db))

	_, err = database.Connect(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

// TestConnectWithRetry 测试重试连接与不可重试的驱动错误
func TestConnectWithRetry(t *testing.T) {
	db, err := database.ConnectWithRetry(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, 3, time.Millisecond, nil)
	require.NoError(t, err)
	assert.NoError(t, database.CheckHealth(context.Background(), db))

	start := time.Now()
	_, err = database.ConnectWithRetry(config.DatabaseConfig{Driver: "oracle"}, 5, time.Hour, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrUnsupportedDriver)
	assert.Contains(t, err.Error(), "after 1 attempts")
	assert.Less(t, time.Since(start), time.Minute)
}
