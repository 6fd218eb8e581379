package integration_test

import (
	"testing"

	"github.com/mission-engadi/ai-service/internal/database"
	"github.com/mission-engadi/ai-service/internal/integration"
	"github.com/mission-engadi/ai-service/internal/model"
	"github.com/mission-engadi/ai-service/internal/types"
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
	require.NoError(t, database.Migrate(db))
	return db
}

func newTask(taskType types.TaskType) *model.TaskModel {
	return &model.TaskModel{
		TaskType:  string(taskType),
		InputData: []byte(`{"text":"hello"}`),
		CreatedBy: "user-1",
	}
}

func createTask(t *testing.T, mgr integration.TaskManager, requiresApproval bool) *model.TaskModel {
	task := newTask(types.TaskTypeContentGeneration)
	task.RequiresApproval = requiresApproval
	require.NoError(t, mgr.Create(task, nil))
	return task
}

// completeTask 将任务推进到 completed
func completeTask(t *testing.T, mgr integration.TaskManager, requiresApproval bool) *model.TaskModel {
	task := createTask(t, mgr, requiresApproval)
	ok, err := mgr.Start(task.ID, "user-1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = mgr.Complete(task.ID, &integration.Completion{OutputData: []byte(`{"text":"done"}`)}, "user-1")
	require.NoError(t, err)
	require.True(t, ok)
	return task
}
