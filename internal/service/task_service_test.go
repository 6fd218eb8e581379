package service_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mission-engadi/ai-service/internal/events"
	"github.com/mission-engadi/ai-service/internal/model"
	"github.com/mission-engadi/ai-service/internal/provider"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/service"
	"github.com/mission-engadi/ai-service/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTaskService_CreateUnknownType 测试未知任务类型不落库
func TestTaskService_CreateUnknownType(t *testing.T) {
	f := newFixture(t)

	_, err := f.tasks.Create(userCtx("user-1"), &service.CreateTaskRequest{
		TaskType:  "poetry",
		InputData: []byte(`{"text":"roses"}`),
	})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, total, err := f.tasks.List(nil, repository.NewPage(0, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

// TestTaskService_CreateInvalidInput 测试输入校验
func TestTaskService_CreateInvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.tasks.Create(userCtx("user-1"), &service.CreateTaskRequest{
		TaskType:  types.TaskTypeTranslation,
		InputData: []byte(`{"text":"Hello","source_language":"en"}`),
	})
	assert.ErrorIs(t, err, types.ErrValidation)
}

// TestTaskService_ContentGeneration 测试内容生成写回输出与生成内容
func TestTaskService_ContentGeneration(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx("user-1")

	taskID, contentID := f.generateContent(t, ctx, false)

	detail, err := f.tasks.Detail(taskID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", detail.CreatedBy)
	assert.Equal(t, "fake-model", detail.ModelUsed)
	require.Len(t, detail.Contents, 1)
	assert.Equal(t, contentID, detail.Contents[0].ID)

	var output types.TextOutput
	require.NoError(t, json.Unmarshal(detail.OutputData, &output))
	assert.Equal(t, contentID, output.ContentID)
	assert.Equal(t, []string{"#hope", "#community"}, output.Hashtags)

	history, err := f.tasks.History(taskID)
	require.NoError(t, err)
	states := make([]string, 0, len(history))
	for _, h := range history {
		states = append(states, h.ToState)
	}
	assert.ElementsMatch(t, []string{"pending", "processing", "completed"}, states)

	assert.Contains(t, f.recorder.Types(), events.TaskCreated)
	assert.Contains(t, f.recorder.Types(), events.TaskStatusChanged)
}

// TestTaskService_ConcurrentExecute 测试并发执行只调用一次 provider
func TestTaskService_ConcurrentExecute(t *testing.T) {
	f := newFixture(t)
	f.gateway.textFn = func(req provider.TextRequest) (*provider.TextResult, error) {
		time.Sleep(20 * time.Millisecond)
		return &provider.TextResult{Text: "done", Model: "fake-model"}, nil
	}

	task, err := f.tasks.Create(userCtx("user-1"), &service.CreateTaskRequest{
		TaskType:  types.TaskTypeContentGeneration,
		InputData: []byte(`{"content_type":"article","prompt":"write"}`),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.tasks.Execute(userCtx("user-1"), task.ID)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.gateway.count("text"))
	got, err := f.tasks.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, string(types.TaskStatusCompleted), got.Status)

	contents, err := f.taskMgr.Contents(task.ID)
	require.NoError(t, err)
	assert.Len(t, contents, 1)
}

// TestTaskService_ExecuteNonPending 测试非 pending 任务直接返回
func TestTaskService_ExecuteNonPending(t *testing.T) {
	f := newFixture(t)
	taskID, _ := f.generateContent(t, userCtx("user-1"), false)

	task, err := f.tasks.Execute(userCtx("user-1"), taskID)
	require.NoError(t, err)
	assert.Equal(t, string(types.TaskStatusCompleted), task.Status)
	assert.Equal(t, 1, f.gateway.count("text"))
}

// TestTaskService_ExecuteFailure 测试 provider 失败后任务为 failed
func TestTaskService_ExecuteFailure(t *testing.T) {
	f := newFixture(t)
	f.gateway.textFn = func(req provider.TextRequest) (*provider.TextResult, error) {
		return nil, types.NewProviderUnavailableError(assert.AnError)
	}

	task, err := f.tasks.CreateAndExecute(userCtx("user-1"), &service.CreateTaskRequest{
		TaskType:  types.TaskTypeContentGeneration,
		InputData: []byte(`{"content_type":"article","prompt":"write"}`),
	})
	assert.ErrorIs(t, err, types.ErrProviderUnavailable)
	require.NotNil(t, task)
	assert.Equal(t, string(types.TaskStatusFailed), task.Status)
	assert.NotEmpty(t, task.Error)

	var output types.FailureOutput
	require.NoError(t, json.Unmarshal(task.OutputData, &output))
	assert.Equal(t, types.CodeProviderUnavailable, output.ErrorCode)
}

// TestTaskService_ApproveRequiresCompleted 测试未完成任务不能审批且不修改字段
func TestTaskService_ApproveRequiresCompleted(t *testing.T) {
	f := newFixture(t)
	task, err := f.tasks.Create(userCtx("user-1"), &service.CreateTaskRequest{
		TaskType:         types.TaskTypeContentGeneration,
		InputData:        []byte(`{"content_type":"article","prompt":"write"}`),
		RequiresApproval: true,
	})
	require.NoError(t, err)

	_, err = f.tasks.Approve(adminCtx(), task.ID, &service.DecisionRequest{Comment: "ok"})
	assert.ErrorIs(t, err, types.ErrInvalidState)

	got, err := f.tasks.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, string(types.TaskStatusPending), got.Status)
	assert.Nil(t, got.Approved)
	assert.Empty(t, got.ApprovedBy)
	assert.Nil(t, got.ApprovedAt)
}

// TestTaskService_ApproveReject 测试审批与拒绝
func TestTaskService_ApproveReject(t *testing.T) {
	f := newFixture(t)

	t.Run("forbidden without approver role", func(t *testing.T) {
		taskID, _ := f.generateContent(t, userCtx("user-1"), true)
		_, err := f.tasks.Approve(userCtx("user-2"), taskID, nil)
		assert.ErrorIs(t, err, types.ErrForbidden)
	})

	t.Run("approver approves once", func(t *testing.T) {
		taskID, _ := f.generateContent(t, userCtx("user-1"), true)
		task, err := f.tasks.Approve(userCtx("reviewer", "approver"), taskID, &service.DecisionRequest{Comment: "looks good"})
		require.NoError(t, err)
		require.NotNil(t, task.Approved)
		assert.True(t, *task.Approved)
		assert.Equal(t, "reviewer", task.ApprovedBy)
		assert.NotNil(t, task.ApprovedAt)

		_, err = f.tasks.Reject(adminCtx(), taskID, nil)
		assert.ErrorIs(t, err, types.ErrInvalidState)

		detail, err := f.tasks.Detail(taskID)
		require.NoError(t, err)
		require.NotNil(t, detail.ApprovalRecord)
		assert.Equal(t, "looks good", detail.ApprovalRecord.Comment)
		assert.Contains(t, f.recorder.Types(), events.TaskApproved)
	})

	t.Run("reject", func(t *testing.T) {
		taskID, _ := f.generateContent(t, userCtx("user-1"), false)
		task, err := f.tasks.Reject(adminCtx(), taskID, &service.DecisionRequest{Comment: "off topic"})
		require.NoError(t, err)
		require.NotNil(t, task.Approved)
		assert.False(t, *task.Approved)
	})
}

// TestTaskService_CancelDelete 测试取消与删除的权限和状态
func TestTaskService_CancelDelete(t *testing.T) {
	f := newFixture(t)
	task, err := f.tasks.Create(userCtx("user-1"), &service.CreateTaskRequest{
		TaskType:  types.TaskTypeContentGeneration,
		InputData: []byte(`{"content_type":"article","prompt":"write"}`),
	})
	require.NoError(t, err)

	_, err = f.tasks.Cancel(userCtx("user-2"), task.ID, "")
	assert.ErrorIs(t, err, types.ErrForbidden)

	cancelled, err := f.tasks.Cancel(userCtx("user-1"), task.ID, "changed plans")
	require.NoError(t, err)
	assert.Equal(t, string(types.TaskStatusCancelled), cancelled.Status)

	// 终态不能再取消
	_, err = f.tasks.Cancel(userCtx("user-1"), task.ID, "")
	assert.ErrorIs(t, err, types.ErrInvalidState)

	// 已取消的任务不会再执行
	got, err := f.tasks.Execute(userCtx("user-1"), task.ID)
	require.NoError(t, err)
	assert.Equal(t, string(types.TaskStatusCancelled), got.Status)
	assert.Equal(t, 0, f.gateway.count("text"))

	assert.ErrorIs(t, f.tasks.Delete(userCtx("user-2"), task.ID), types.ErrForbidden)
	require.NoError(t, f.tasks.Delete(adminCtx(), task.ID))
	_, err = f.tasks.Get(task.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

// TestTaskService_CancelDuringExecution 测试执行中取消时丢弃 provider 结果
func TestTaskService_CancelDuringExecution(t *testing.T) {
	f := newFixture(t)
	called := make(chan struct{})
	release := make(chan struct{})
	f.gateway.textFn = func(req provider.TextRequest) (*provider.TextResult, error) {
		close(called)
		<-release
		return &provider.TextResult{Text: "late result", TokensUsed: 7, Model: "fake-model"}, nil
	}

	task, err := f.tasks.Create(userCtx("user-1"), &service.CreateTaskRequest{
		TaskType:  types.TaskTypeContentGeneration,
		InputData: []byte(`{"content_type":"article","prompt":"write"}`),
	})
	require.NoError(t, err)

	type outcome struct {
		task *model.TaskModel
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		got, err := f.tasks.Execute(userCtx("user-1"), task.ID)
		done <- outcome{got, err}
	}()

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("provider was not called")
	}

	cancelled, err := f.tasks.Cancel(userCtx("user-1"), task.ID, "no longer needed")
	require.NoError(t, err)
	assert.Equal(t, string(types.TaskStatusCancelled), cancelled.Status)

	close(release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, string(types.TaskStatusCancelled), res.task.Status)

	got, err := f.tasks.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, string(types.TaskStatusCancelled), got.Status)
	assert.Empty(t, got.OutputData)
	assert.Empty(t, got.ModelUsed)

	contents, err := f.taskMgr.Contents(task.ID)
	require.NoError(t, err)
	assert.Empty(t, contents)
}

// TestTaskService_WriteBackFailure 测试结果无法落库时任务转为 failed
func TestTaskService_WriteBackFailure(t *testing.T) {
	f := newFixture(t)
	score := 1.5
	f.tasks.RegisterExecutor(types.TaskTypeContentGeneration, service.ExecutorFunc(
		func(_ context.Context, _ *model.TaskModel, _ types.TaskInput) (*service.ExecutionResult, error) {
			return &service.ExecutionResult{
				Output: map[string]string{"text": "ok"},
				Model:  "fake-model",
				Contents: []*model.GeneratedContentModel{{
					ContentType:  string(types.ContentTypeArticle),
					Body:         "ok",
					QualityScore: &score,
				}},
			}, nil
		}))

	task, err := f.tasks.CreateAndExecute(userCtx("user-1"), &service.CreateTaskRequest{
		TaskType:  types.TaskTypeContentGeneration,
		InputData: []byte(`{"content_type":"article","prompt":"write"}`),
	})
	require.Error(t, err)
	require.NotNil(t, task)
	assert.Equal(t, string(types.TaskStatusFailed), task.Status)
	assert.Contains(t, task.Error, "write-back failed")

	contents, err := f.taskMgr.Contents(task.ID)
	require.NoError(t, err)
	assert.Empty(t, contents)
}

// TestTaskService_FailureWithInvalidJobs 测试失败明细无法落库时仍写回 failed
func TestTaskService_FailureWithInvalidJobs(t *testing.T) {
	f := newFixture(t)
	score := 1.5
	f.tasks.RegisterExecutor(types.TaskTypeContentGeneration, service.ExecutorFunc(
		func(_ context.Context, task *model.TaskModel, _ types.TaskInput) (*service.ExecutionResult, error) {
			return &service.ExecutionResult{
				Jobs: []*model.TranslationJobModel{{
					ID:             "job-invalid",
					TaskID:         task.ID,
					SourceLanguage: string(types.LanguageEnglish),
					TargetLanguage: string(types.LanguageSpanish),
					QualityScore:   &score,
				}},
			}, types.NewProviderUnavailableError(assert.AnError)
		}))

	task, err := f.tasks.CreateAndExecute(userCtx("user-1"), &service.CreateTaskRequest{
		TaskType:  types.TaskTypeContentGeneration,
		InputData: []byte(`{"content_type":"article","prompt":"write"}`),
	})
	assert.ErrorIs(t, err, types.ErrProviderUnavailable)
	require.NotNil(t, task)
	assert.Equal(t, string(types.TaskStatusFailed), task.Status)
	assert.NotEmpty(t, task.Error)
}

// TestTaskService_Translation 端到端翻译: 单目标语言
func TestTaskService_Translation(t *testing.T) {
	f := newFixture(t)

	task, err := f.tasks.CreateAndExecute(userCtx("user-1"), &service.CreateTaskRequest{
		TaskType:  types.TaskTypeTranslation,
		InputData: []byte(`{"text":"Hello","source_language":"en","target_language":"es"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, string(types.TaskStatusCompleted), task.Status)

	var output types.TranslationOutput
	require.NoError(t, json.Unmarshal(task.OutputData, &output))
	require.Len(t, output.Translations, 1)
	assert.Equal(t, "Hola", output.Translations[0].TranslatedText)

	detail, err := f.tasks.Detail(task.ID)
	require.NoError(t, err)
	require.Len(t, detail.TranslationJobs, 1)
	job := detail.TranslationJobs[0]
	assert.Equal(t, string(types.TranslationStatusCompleted), job.Status)
	assert.Equal(t, "Hola", job.TranslatedText)
	require.NotNil(t, job.QualityScore)
	assert.InDelta(t, 0.85, *job.QualityScore, 0.0001)

	stats, err := f.tasks.Statistics()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.ByType[string(types.TaskTypeTranslation)])
	assert.Equal(t, int64(1), stats.ByStatus[string(types.TaskStatusCompleted)])
}

// TestTaskService_TranslationPartialFailure 测试任一目标语言失败则任务失败,成功的子任务保留
func TestTaskService_TranslationPartialFailure(t *testing.T) {
	f := newFixture(t)
	f.gateway.translateFn = func(req provider.TranslateRequest) (*provider.TranslateResult, error) {
		if req.Target == types.LanguageFrench {
			return nil, types.NewProviderRejectedError(400, `{"error":"unsupported"}`)
		}
		return &provider.TranslateResult{TranslatedText: "Hola", QualityScore: 0.85}, nil
	}

	task, err := f.tasks.CreateAndExecute(userCtx("user-1"), &service.CreateTaskRequest{
		TaskType:  types.TaskTypeTranslation,
		InputData: []byte(`{"text":"Hello","source_language":"en","target_languages":["es","fr"]}`),
	})
	assert.ErrorIs(t, err, types.ErrProviderRejected)
	require.NotNil(t, task)
	assert.Equal(t, string(types.TaskStatusFailed), task.Status)

	jobs, err := f.taskMgr.TranslationJobs(task.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	statuses := map[string]string{}
	for _, job := range jobs {
		statuses[job.TargetLanguage] = job.Status
	}
	assert.Equal(t, string(types.TranslationStatusCompleted), statuses["es"])
	assert.Equal(t, string(types.TranslationStatusFailed), statuses["fr"])
}

// TestTaskService_ImageAndEnhancement 测试图片生成与内容增强执行器
func TestTaskService_ImageAndEnhancement(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx("user-1")

	image, err := f.tasks.CreateAndExecute(ctx, &service.CreateTaskRequest{
		TaskType:  types.TaskTypeImageGeneration,
		InputData: []byte(`{"prompt":"sunrise over a village","n":2}`),
	})
	require.NoError(t, err)
	var imageOut types.ImageOutput
	require.NoError(t, json.Unmarshal(image.OutputData, &imageOut))
	assert.Len(t, imageOut.Images, 2)
	assert.Equal(t, types.DefaultImageSize, imageOut.Size)

	enhanced, err := f.tasks.CreateAndExecute(ctx, &service.CreateTaskRequest{
		TaskType:  types.TaskTypeContentEnhancement,
		InputData: []byte(`{"text":"hello","enhancement_type":"grammar"}`),
	})
	require.NoError(t, err)
	var enhanceOut types.EnhancementOutput
	require.NoError(t, json.Unmarshal(enhanced.OutputData, &enhanceOut))
	assert.Equal(t, "HELLO", enhanceOut.EnhancedText)
	assert.Equal(t, "hello", enhanceOut.OriginalText)
}
