package integration_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mission-engadi/ai-service/internal/integration"
	"github.com/mission-engadi/ai-service/internal/model"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTaskManager_Create 测试创建任务与翻译子任务
func TestTaskManager_Create(t *testing.T) {
	db := setupTestDB(t)
	mgr := integration.NewTaskManager(db, nil)

	task := newTask(types.TaskTypeTranslation)
	task.Status = "completed"
	jobs := []*model.TranslationJobModel{
		{SourceText: "hello", SourceLanguage: "en", TargetLanguage: "es"},
		{SourceText: "hello", SourceLanguage: "en", TargetLanguage: "fr"},
	}
	require.NoError(t, mgr.Create(task, jobs))

	got, err := mgr.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, string(types.TaskStatusPending), got.Status)
	assert.Nil(t, got.Approved)

	stored, err := mgr.TranslationJobs(task.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, job := range stored {
		assert.Equal(t, string(types.TranslationStatusPending), job.Status)
		assert.Equal(t, task.ID, job.TaskID)
	}

	history, err := mgr.History(task.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, string(types.TaskStatusPending), history[0].ToState)
}

// TestTaskManager_CreateInvalid 测试非法任务不落库
func TestTaskManager_CreateInvalid(t *testing.T) {
	db := setupTestDB(t)
	mgr := integration.NewTaskManager(db, nil)

	err := mgr.Create(&model.TaskModel{TaskType: "translation"}, nil)
	assert.True(t, errors.Is(err, types.ErrValidation))

	var count int64
	db.Model(&model.TaskModel{}).Count(&count)
	assert.Zero(t, count)
}

// TestTaskManager_GetNotFound 测试任务不存在
func TestTaskManager_GetNotFound(t *testing.T) {
	mgr := integration.NewTaskManager(setupTestDB(t), nil)
	_, err := mgr.Get("missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

// TestTaskManager_Lifecycle 测试执行写回
func TestTaskManager_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	mgr := integration.NewTaskManager(db, nil)

	task := newTask(types.TaskTypeTranslation)
	require.NoError(t, mgr.Create(task, []*model.TranslationJobModel{{SourceText: "hi", SourceLanguage: "en", TargetLanguage: "es"}}))

	ok, err := mgr.Start(task.ID, "user-1")
	require.NoError(t, err)
	require.True(t, ok)

	jobs, err := mgr.TranslationJobs(task.ID)
	require.NoError(t, err)
	assert.Equal(t, string(types.TranslationStatusProcessing), jobs[0].Status)

	score := 0.85
	jobs[0].Status = string(types.TranslationStatusCompleted)
	jobs[0].TranslatedText = "hola"
	jobs[0].QualityScore = &score
	ok, err = mgr.Complete(task.ID, &integration.Completion{
		OutputData: []byte(`{"translations":[]}`),
		ModelUsed:  "gpt-4",
		TokensUsed: 12,
		Contents: []*model.GeneratedContentModel{
			{ContentType: "article", Language: "es", Body: "hola"},
		},
		Jobs: jobs,
	}, "user-1")
	require.NoError(t, err)
	require.True(t, ok)

	got, err := mgr.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, string(types.TaskStatusCompleted), got.Status)
	assert.Equal(t, 12, got.TokensUsed)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.ProcessingTime)
	assert.GreaterOrEqual(t, *got.ProcessingTime, 0.0)
	assert.JSONEq(t, `{"translations":[]}`, string(got.OutputData))

	jobs, err = mgr.TranslationJobs(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "hola", jobs[0].TranslatedText)
	assert.NotNil(t, jobs[0].CompletedAt)

	var contents []model.GeneratedContentModel
	require.NoError(t, db.Where("task_id = ?", task.ID).Find(&contents).Error)
	assert.Len(t, contents, 1)

	history, err := mgr.History(task.ID)
	require.NoError(t, err)
	var path []string
	for _, h := range history {
		path = append(path, h.ToState)
	}
	assert.Equal(t, []string{"pending", "processing", "completed"}, path)

	// 终态不能再次写回
	ok, err = mgr.Fail(task.ID, &integration.Failure{Error: "late"}, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestTaskManager_Fail 测试失败写回
func TestTaskManager_Fail(t *testing.T) {
	db := setupTestDB(t)
	mgr := integration.NewTaskManager(db, nil)

	task := newTask(types.TaskTypeTranslation)
	require.NoError(t, mgr.Create(task, []*model.TranslationJobModel{{SourceText: "hi", SourceLanguage: "en", TargetLanguage: "es"}}))
	_, err := mgr.Start(task.ID, "u")
	require.NoError(t, err)

	ok, err := mgr.Fail(task.ID, &integration.Failure{OutputData: []byte(`{"error":"boom"}`), Error: "boom"}, "u")
	require.NoError(t, err)
	require.True(t, ok)

	got, err := mgr.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, string(types.TaskStatusFailed), got.Status)
	assert.Equal(t, "boom", got.Error)

	jobs, err := mgr.TranslationJobs(task.ID)
	require.NoError(t, err)
	assert.Equal(t, string(types.TranslationStatusFailed), jobs[0].Status)
}

// TestTaskManager_ConcurrentStart 测试并发执行只有一个胜者
func TestTaskManager_ConcurrentStart(t *testing.T) {
	db := setupTestDB(t)
	mgr := integration.NewTaskManager(db, nil)
	task := createTask(t, mgr, false)

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := mgr.Start(task.ID, "u")
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners)
}

// TestTaskManager_Cancel 测试取消
func TestTaskManager_Cancel(t *testing.T) {
	db := setupTestDB(t)
	mgr := integration.NewTaskManager(db, nil)

	pending := createTask(t, mgr, false)
	got, err := mgr.Cancel(pending.ID, "no longer needed", "u")
	require.NoError(t, err)
	assert.Equal(t, string(types.TaskStatusCancelled), got.Status)

	// 取消后写回被丢弃
	processing := createTask(t, mgr, false)
	_, err = mgr.Start(processing.ID, "u")
	require.NoError(t, err)
	_, err = mgr.Cancel(processing.ID, "stop", "u")
	require.NoError(t, err)
	ok, err := mgr.Complete(processing.ID, &integration.Completion{OutputData: []byte(`{}`)}, "u")
	require.NoError(t, err)
	assert.False(t, ok)
	got, err = mgr.Get(processing.ID)
	require.NoError(t, err)
	assert.Equal(t, string(types.TaskStatusCancelled), got.Status)
	assert.Empty(t, got.OutputData)

	// 终态不可取消
	_, err = mgr.Cancel(pending.ID, "again", "u")
	assert.True(t, errors.Is(err, types.ErrInvalidState))
}

// TestTaskManager_Decide 测试审批决定
func TestTaskManager_Decide(t *testing.T) {
	db := setupTestDB(t)
	mgr := integration.NewTaskManager(db, nil)

	// 非 completed 任务不能审批,审批字段保持不变
	pending := createTask(t, mgr, true)
	_, err := mgr.Decide(pending.ID, true, "boss", "ok")
	assert.True(t, errors.Is(err, types.ErrInvalidState))
	got, _ := mgr.Get(pending.ID)
	assert.Nil(t, got.Approved)
	assert.Empty(t, got.ApprovedBy)

	completed := completeTask(t, mgr, true)
	got, err = mgr.Decide(completed.ID, true, "boss", "looks good")
	require.NoError(t, err)
	require.NotNil(t, got.Approved)
	assert.True(t, *got.Approved)
	assert.Equal(t, "boss", got.ApprovedBy)
	assert.NotNil(t, got.ApprovedAt)
	assert.Equal(t, string(types.TaskStatusCompleted), got.Status)

	record, err := mgr.ApprovalRecord(completed.ID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "approved", record.Result)

	// 已决定后不可修改
	_, err = mgr.Decide(completed.ID, false, "other", "no")
	assert.True(t, errors.Is(err, types.ErrInvalidState))
	got, _ = mgr.Get(completed.ID)
	assert.True(t, *got.Approved)
	assert.Equal(t, "boss", got.ApprovedBy)

	rejected := completeTask(t, mgr, true)
	got, err = mgr.Decide(rejected.ID, false, "boss", "off-brand")
	require.NoError(t, err)
	assert.False(t, *got.Approved)

	none, err := mgr.ApprovalRecord(pending.ID)
	require.NoError(t, err)
	assert.Nil(t, none)
}

// TestTaskManager_Delete 测试级联删除
func TestTaskManager_Delete(t *testing.T) {
	db := setupTestDB(t)
	mgr := integration.NewTaskManager(db, nil)

	task := createTask(t, mgr, false)
	_, err := mgr.Start(task.ID, "u")
	require.NoError(t, err)
	_, err = mgr.Complete(task.ID, &integration.Completion{
		OutputData: []byte(`{}`),
		Contents:   []*model.GeneratedContentModel{{ContentType: "article", Language: "en", Body: "x"}},
	}, "u")
	require.NoError(t, err)

	require.NoError(t, mgr.Delete(task.ID))
	_, err = mgr.Get(task.ID)
	assert.True(t, errors.Is(err, types.ErrNotFound))

	var count int64
	db.Model(&model.GeneratedContentModel{}).Count(&count)
	assert.Zero(t, count)
	db.Model(&model.StateHistoryModel{}).Count(&count)
	assert.Zero(t, count)

	assert.True(t, errors.Is(mgr.Delete(task.ID), types.ErrNotFound))
}

// TestTaskManager_Statistics 测试统计
func TestTaskManager_Statistics(t *testing.T) {
	db := setupTestDB(t)
	mgr := integration.NewTaskManager(db, nil)

	stats, err := mgr.Statistics()
	require.NoError(t, err)
	assert.Zero(t, stats.Total)
	assert.Nil(t, stats.AverageProcessingTime)
	assert.Equal(t, int64(0), stats.ByStatus["completed"])

	completeTask(t, mgr, true)
	completeTask(t, mgr, false)
	createTask(t, mgr, false)

	stats, err = mgr.Statistics()
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.ByStatus["completed"])
	assert.Equal(t, int64(1), stats.ByStatus["pending"])
	assert.Equal(t, int64(3), stats.ByType["content_generation"])
	assert.Equal(t, int64(0), stats.ByType["translation"])
	assert.Equal(t, int64(1), stats.PendingApproval)
	assert.NotNil(t, stats.AverageProcessingTime)
}

// TestTaskManager_ListSortValidation 测试非法排序字段
func TestTaskManager_ListSortValidation(t *testing.T) {
	mgr := integration.NewTaskManager(setupTestDB(t), nil)
	_, _, err := mgr.List(&repository.TaskFilter{SortBy: "prompt; DROP TABLE tasks"}, repository.NewPage(0, 10))
	assert.True(t, errors.Is(err, types.ErrValidation))
}
