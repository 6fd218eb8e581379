package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mission-engadi/ai-service/internal/config"
	"github.com/mission-engadi/ai-service/internal/model"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒
}

// ErrUnsupportedDriver 不支持的数据库驱动,重试无意义
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// BuildDSN 构建 PostgreSQL DSN
func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// GetPoolConfig 根据配置获取连接池参数,未配置的项使用默认值
func GetPoolConfig(cfg config.DatabaseConfig) *PoolConfig {
	pool := &PoolConfig{
		MaxIdleConns:    cfg.MaxIdleConns,
		MaxOpenConns:    cfg.MaxOpenConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
	if pool.MaxIdleConns == 0 {
		pool.MaxIdleConns = 10
	}
	if pool.MaxOpenConns == 0 {
		pool.MaxOpenConns = 100
	}
	if pool.ConnMaxLifetime == 0 {
		pool.ConnMaxLifetime = 3600
	}
	if pool.ConnMaxIdleTime == 0 {
		pool.ConnMaxIdleTime = 600
	}
	return pool
}

// Connect 连接数据库
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
	case "", "postgres":
		dialector = postgres.Open(BuildDSN(cfg))
	default:
		return nil, fmt.Errorf("%w %q", ErrUnsupportedDriver, cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	pool := GetPoolConfig(cfg)
	if cfg.Driver == "sqlite" {
		// sqlite 单写者,避免 database is locked
		pool.MaxOpenConns = 1
		pool.MaxIdleConns = 1
	}
	sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(pool.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(pool.ConnMaxIdleTime) * time.Second)

	return db, nil
}

// ConnectWithRetry 带重试的数据库连接,maxRetries 为总尝试次数
func ConnectWithRetry(cfg config.DatabaseConfig, maxRetries int, retryInterval time.Duration, logger logrus.FieldLogger) (*gorm.DB, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInterval
	policy.Multiplier = 2
	policy.MaxElapsedTime = 0

	attempt := 0
	connect := func() (*gorm.DB, error) {
		attempt++
		db, err := Connect(cfg)
		if errors.Is(err, ErrUnsupportedDriver) {
			return nil, backoff.Permanent(err)
		}
		return db, err
	}
	notify := func(err error, wait time.Duration) {
		if logger != nil {
			logger.WithError(err).WithFields(logrus.Fields{"attempt": attempt, "wait": wait.String()}).Warn("database connection failed")
		}
	}

	db, err := backoff.RetryNotifyWithData(connect, backoff.WithMaxRetries(policy, uint64(maxRetries-1)), notify)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database after %d attempts: %w", attempt, err)
	}
	return db, nil
}

// Models 所有需要迁移的模型
func Models() []interface{} {
	return []interface{}{
		&model.TaskModel{},
		&model.GeneratedContentModel{},
		&model.PublishRecordModel{},
		&model.TranslationJobModel{},
		&model.ContentTemplateModel{},
		&model.WorkflowModel{},
		&model.WorkflowExecutionModel{},
		&model.StateHistoryModel{},
		&model.ApprovalRecordModel{},
		&model.EventModel{},
		&model.AuditLogModel{},
	}
}

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB) error {
	dialector := db.Dialector.Name()

	// SQLite 不支持 jsonb，需要手动创建表
	if dialector == "sqlite" || dialector == "sqlite3" {
		if err := createSQLiteTables(db); err != nil {
			return fmt.Errorf("failed to create SQLite tables: %w", err)
		}
	} else {
		if err := db.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("failed to auto migrate: %w", err)
		}
	}

	if err := CreateIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

var sqliteTables = []struct {
	name string
	ddl  string
}{
	{"tasks", `
		CREATE TABLE IF NOT EXISTS tasks (
			id VARCHAR(64) PRIMARY KEY,
			task_type VARCHAR(32) NOT NULL,
			status VARCHAR(32) NOT NULL,
			input_data TEXT NOT NULL,
			output_data TEXT,
			prompt TEXT,
			model_used VARCHAR(64),
			tokens_used INTEGER DEFAULT 0,
			requires_approval BOOLEAN NOT NULL DEFAULT 0,
			approved BOOLEAN,
			approved_by VARCHAR(64),
			approved_at DATETIME,
			approval_comment TEXT,
			error TEXT,
			started_at DATETIME,
			completed_at DATETIME,
			processing_time REAL,
			created_by VARCHAR(64),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`},
	{"generated_contents", `
		CREATE TABLE IF NOT EXISTS generated_contents (
			id VARCHAR(64) PRIMARY KEY,
			task_id VARCHAR(64) NOT NULL,
			content_type VARCHAR(32) NOT NULL,
			language VARCHAR(8) NOT NULL,
			title VARCHAR(500),
			body TEXT NOT NULL,
			metadata TEXT,
			quality_score REAL,
			published BOOLEAN NOT NULL DEFAULT 0,
			external_id VARCHAR(128),
			publish_target VARCHAR(32),
			publish_status VARCHAR(32),
			publish_error TEXT,
			published_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`},
	{"publish_records", `
		CREATE TABLE IF NOT EXISTS publish_records (
			id VARCHAR(64) PRIMARY KEY,
			content_id VARCHAR(64) NOT NULL,
			target VARCHAR(32) NOT NULL,
			status VARCHAR(32) NOT NULL,
			external_id VARCHAR(128),
			error TEXT,
			scheduled_at DATETIME,
			created_by VARCHAR(64),
			created_at DATETIME NOT NULL
		)`},
	{"translation_jobs", `
		CREATE TABLE IF NOT EXISTS translation_jobs (
			id VARCHAR(64) PRIMARY KEY,
			task_id VARCHAR(64) NOT NULL,
			content_id VARCHAR(64),
			source_text TEXT NOT NULL,
			source_language VARCHAR(8) NOT NULL,
			target_language VARCHAR(8) NOT NULL,
			translated_text TEXT,
			status VARCHAR(32) NOT NULL,
			quality_score REAL,
			error TEXT,
			completed_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`},
	{"content_templates", `
		CREATE TABLE IF NOT EXISTS content_templates (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			content_type VARCHAR(32) NOT NULL,
			language VARCHAR(8) NOT NULL,
			platform VARCHAR(32),
			template_text TEXT NOT NULL,
			variables TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT 1,
			usage_count INTEGER NOT NULL DEFAULT 0,
			last_used_at DATETIME,
			created_by VARCHAR(64),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`},
	{"workflows", `
		CREATE TABLE IF NOT EXISTS workflows (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			workflow_type VARCHAR(64) NOT NULL,
			configuration TEXT NOT NULL,
			schedule VARCHAR(128),
			enabled BOOLEAN NOT NULL DEFAULT 1,
			run_count INTEGER NOT NULL DEFAULT 0,
			last_run_at DATETIME,
			next_run_at DATETIME,
			created_by VARCHAR(64),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`},
	{"workflow_executions", `
		CREATE TABLE IF NOT EXISTS workflow_executions (
			id VARCHAR(64) PRIMARY KEY,
			workflow_id VARCHAR(64) NOT NULL,
			task_id VARCHAR(64),
			status VARCHAR(32) NOT NULL,
			trigger_data TEXT,
			steps TEXT NOT NULL,
			halted_reason TEXT,
			triggered_by VARCHAR(64),
			started_at DATETIME NOT NULL,
			finished_at DATETIME
		)`},
	{"state_history", `
		CREATE TABLE IF NOT EXISTS state_history (
			id VARCHAR(64) PRIMARY KEY,
			task_id VARCHAR(64) NOT NULL,
			from_state VARCHAR(32),
			to_state VARCHAR(32) NOT NULL,
			reason TEXT,
			operator VARCHAR(64) NOT NULL,
			created_at DATETIME NOT NULL
		)`},
	{"approval_records", `
		CREATE TABLE IF NOT EXISTS approval_records (
			id VARCHAR(64) PRIMARY KEY,
			task_id VARCHAR(64) NOT NULL UNIQUE,
			approver VARCHAR(64) NOT NULL,
			result VARCHAR(32) NOT NULL,
			comment TEXT,
			created_at DATETIME NOT NULL
		)`},
	{"events", `
		CREATE TABLE IF NOT EXISTS events (
			id VARCHAR(64) PRIMARY KEY,
			resource_type VARCHAR(32) NOT NULL,
			resource_id VARCHAR(64) NOT NULL,
			type VARCHAR(64) NOT NULL,
			data TEXT NOT NULL,
			status VARCHAR(32) NOT NULL DEFAULT 'pending',
			retry_count INTEGER DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`},
	{"audit_logs", `
		CREATE TABLE IF NOT EXISTS audit_logs (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			action VARCHAR(64) NOT NULL,
			resource_type VARCHAR(32) NOT NULL,
			resource_id VARCHAR(64) NOT NULL,
			request_id VARCHAR(64),
			ip VARCHAR(45),
			user_agent TEXT,
			details TEXT,
			created_at DATETIME NOT NULL
		)`},
}

// createSQLiteTables 为 SQLite 手动创建表（使用 TEXT 替代 jsonb）
func createSQLiteTables(db *gorm.DB) error {
	for _, t := range sqliteTables {
		if err := db.Exec(t.ddl).Error; err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}
	return nil
}

var indexes = []struct {
	name string
	ddl  string
}{
	{"idx_tasks_status_type", "CREATE INDEX IF NOT EXISTS idx_tasks_status_type ON tasks(status, task_type)"},
	{"idx_tasks_created_by", "CREATE INDEX IF NOT EXISTS idx_tasks_created_by ON tasks(created_by)"},
	{"idx_tasks_created_at", "CREATE INDEX IF NOT EXISTS idx_tasks_created_at ON tasks(created_at)"},
	{"idx_contents_task_id", "CREATE INDEX IF NOT EXISTS idx_contents_task_id ON generated_contents(task_id)"},
	{"idx_contents_type_language", "CREATE INDEX IF NOT EXISTS idx_contents_type_language ON generated_contents(content_type, language)"},
	{"idx_publish_records_content_id", "CREATE INDEX IF NOT EXISTS idx_publish_records_content_id ON publish_records(content_id)"},
	{"idx_translation_jobs_task_id", "CREATE INDEX IF NOT EXISTS idx_translation_jobs_task_id ON translation_jobs(task_id)"},
	{"idx_translation_jobs_created_at", "CREATE INDEX IF NOT EXISTS idx_translation_jobs_created_at ON translation_jobs(created_at)"},
	{"idx_templates_type_active", "CREATE INDEX IF NOT EXISTS idx_templates_type_active ON content_templates(content_type, active)"},
	{"idx_workflows_next_run", "CREATE INDEX IF NOT EXISTS idx_workflows_next_run ON workflows(enabled, next_run_at)"},
	{"idx_executions_workflow_started", "CREATE INDEX IF NOT EXISTS idx_executions_workflow_started ON workflow_executions(workflow_id, started_at)"},
	{"idx_history_task_id", "CREATE INDEX IF NOT EXISTS idx_history_task_id ON state_history(task_id)"},
	{"idx_events_status", "CREATE INDEX IF NOT EXISTS idx_events_status ON events(status)"},
	{"idx_events_resource", "CREATE INDEX IF NOT EXISTS idx_events_resource ON events(resource_type, resource_id)"},
	{"idx_audit_resource", "CREATE INDEX IF NOT EXISTS idx_audit_resource ON audit_logs(resource_type, resource_id)"},
	{"idx_audit_user_id", "CREATE INDEX IF NOT EXISTS idx_audit_user_id ON audit_logs(user_id)"},
}

// CreateIndexes 创建数据库索引
func CreateIndexes(db *gorm.DB) error {
	for _, idx := range indexes {
		if err := db.Exec(idx.ddl).Error; err != nil {
			return fmt.Errorf("failed to create %s: %w", idx.name, err)
		}
	}

	// PostgreSQL 特定的 GIN 索引
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_tasks_input_gin ON tasks USING GIN (input_data)").Error; err != nil {
			return fmt.Errorf("failed to create idx_tasks_input_gin: %w", err)
		}
		if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_contents_metadata_gin ON generated_contents USING GIN (metadata)").Error; err != nil {
			return fmt.Errorf("failed to create idx_contents_metadata_gin: %w", err)
		}
	}

	return nil
}

// CheckHealth 检查数据库连接健康状态
func CheckHealth(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database not configured")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx)
}
