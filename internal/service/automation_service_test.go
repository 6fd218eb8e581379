package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/mission-engadi/ai-service/internal/events"
	"github.com/mission-engadi/ai-service/internal/provider"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/service"
	"github.com/mission-engadi/ai-service/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func steps(items ...map[string]interface{}) map[string]interface{} {
	list := make([]interface{}, 0, len(items))
	for _, item := range items {
		list = append(list, item)
	}
	return map[string]interface{}{"steps": list}
}

func step(name, action string, params map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"name": name, "action": action, "params": params}
}

func createWorkflow(t *testing.T, f *fixture, configuration map[string]interface{}, schedule string) string {
	wf, err := f.automation.Create(userCtx("user-1"), &service.CreateWorkflowRequest{
		Name:          "weekly outreach",
		WorkflowType:  "scheduled_post",
		Configuration: configuration,
		Schedule:      schedule,
	})
	require.NoError(t, err)
	return wf.ID
}

// TestAutomationService_CreateValidation 测试工作流配置校验
func TestAutomationService_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx("user-1")

	cases := map[string]*service.CreateWorkflowRequest{
		"empty steps": {Name: "a", Configuration: map[string]interface{}{"steps": []interface{}{}}},
		"unknown action": {Name: "b", Configuration: steps(
			step("x", "send_fax", nil),
		)},
		"duplicate names": {Name: "c", Configuration: steps(
			step("x", "generate_text", nil),
			step("x", "generate_text", nil),
		)},
		"invalid schedule": {Name: "d", Schedule: "every monday", Configuration: steps(
			step("x", "generate_text", nil),
		)},
		"missing name": {Configuration: steps(step("x", "generate_text", nil))},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.automation.Create(ctx, req)
			assert.ErrorIs(t, err, types.ErrValidation)
		})
	}

	_, total, err := f.automation.List(nil, repository.NewPage(0, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

// TestAutomationService_TriggerWithReferences 测试步骤输出引用与触发数据
func TestAutomationService_TriggerWithReferences(t *testing.T) {
	f := newFixture(t)
	f.gateway.textFn = func(req provider.TextRequest) (*provider.TextResult, error) {
		return &provider.TextResult{Text: "Text about " + req.Prompt, TokensUsed: 7, Model: "fake-model"}, nil
	}

	id := createWorkflow(t, f, steps(
		step("draft", "generate_text", map[string]interface{}{"prompt": "${trigger.topic}"}),
		step("post", "generate_social_post", map[string]interface{}{
			"topic":    "${steps.draft.output.text}",
			"platform": "instagram",
		}),
		step("image", "generate_image", map[string]interface{}{
			"prompt": "Photo for ${steps.0.output.text}",
			"n":      "${trigger.count}",
		}),
		step("notify", "notify", map[string]interface{}{
			"subject":    "New post",
			"message":    "Created content ${steps.post.output.content_id} using ${steps.0.output.tokens_used} tokens",
			"recipients": []interface{}{"${trigger.owner}"},
		}),
	), "")

	result, err := f.automation.Trigger(userCtx("user-1"), id, map[string]interface{}{
		"topic": "food drive",
		"count": 2,
		"owner": "ops@example.org",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Execution)
	assert.Equal(t, service.StepStatusCompleted, result.Execution.Status)
	assert.Equal(t, string(types.TaskStatusCompleted), result.Task.Status)
	assert.Equal(t, string(types.TaskTypeAutomation), result.Task.TaskType)
	require.Len(t, result.Execution.Steps, 4)

	// 单个引用保留原始类型
	require.Len(t, f.gateway.imageReqs, 1)
	assert.Equal(t, 2, f.gateway.imageReqs[0].N)
	assert.Equal(t, "Photo for Text about food drive", f.gateway.imageReqs[0].Prompt)

	contentID := result.Execution.Steps[1].Output["content_id"]
	require.NotEmpty(t, contentID)
	msg := f.notification.last()
	assert.Equal(t, "Created content "+contentID.(string)+" using 7 tokens", msg.Body)
	assert.Equal(t, []string{"ops@example.org"}, msg.Recipients)

	wf, err := f.automation.Get(id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), wf.RunCount)
	assert.NotNil(t, wf.LastRunAt)
	assert.Contains(t, f.recorder.Types(), events.WorkflowTriggered)
	assert.Contains(t, f.recorder.Types(), events.WorkflowFinished)
}

// TestAutomationService_HaltOnFailure 测试第二步失败时停止,第三步不执行
func TestAutomationService_HaltOnFailure(t *testing.T) {
	f := newFixture(t)
	f.gateway.translateFn = func(req provider.TranslateRequest) (*provider.TranslateResult, error) {
		return nil, types.NewProviderUnavailableError(assert.AnError)
	}

	id := createWorkflow(t, f, steps(
		step("draft", "generate_text", map[string]interface{}{"prompt": "write"}),
		step("translate", "translate", map[string]interface{}{
			"text":            "${steps.draft.output.text}",
			"source_language": "en",
			"target_language": "es",
		}),
		step("notify", "notify", map[string]interface{}{"message": "done"}),
	), "")

	result, err := f.automation.Trigger(userCtx("user-1"), id, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Execution)

	execution := result.Execution
	assert.Equal(t, service.StepStatusFailed, execution.Status)
	require.Len(t, execution.Steps, 2)
	assert.Equal(t, service.StepStatusCompleted, execution.Steps[0].Status)
	assert.Equal(t, service.StepStatusFailed, execution.Steps[1].Status)
	assert.NotEmpty(t, execution.Steps[1].Error)
	assert.Contains(t, execution.HaltedReason, "step 1 (translate)")
	assert.Equal(t, 0, f.notification.calls())
	assert.Equal(t, string(types.TaskStatusFailed), result.Task.Status)

	history, total, err := f.automation.History(id, repository.NewPage(0, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, execution.ID, history[0].ID)

	wf, err := f.automation.Get(id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), wf.RunCount)
}

// TestAutomationService_MissingReference 测试引用未执行的步骤时该步骤失败
func TestAutomationService_MissingReference(t *testing.T) {
	f := newFixture(t)
	id := createWorkflow(t, f, steps(
		step("draft", "generate_text", map[string]interface{}{"prompt": "${steps.later.output.text}"}),
		step("later", "generate_text", map[string]interface{}{"prompt": "write"}),
	), "")

	result, err := f.automation.Trigger(userCtx("user-1"), id, nil)
	require.NoError(t, err)
	require.Len(t, result.Execution.Steps, 1)
	assert.Contains(t, result.Execution.Steps[0].Error, "has not run")
	assert.Equal(t, 0, f.gateway.count("text"))
}

// TestAutomationService_RenderAndPublish 测试模板渲染与发布动作
func TestAutomationService_RenderAndPublish(t *testing.T) {
	f := newFixture(t)
	tpl, err := f.templates.Create(userCtx("user-1"), &service.CreateTemplateRequest{
		Name:         "Event",
		ContentType:  "social_post",
		TemplateText: "Join us for {event}",
	})
	require.NoError(t, err)

	id := createWorkflow(t, f, steps(
		step("render", "render_template", map[string]interface{}{
			"template_id": tpl.ID,
			"variables":   map[string]interface{}{"event": "${trigger.event}"},
		}),
		step("post", "generate_content", map[string]interface{}{
			"content_type": "social_post",
			"prompt":       "${steps.render.output.rendered_text}",
		}),
		step("publish", "publish", map[string]interface{}{
			"content_id":     "${steps.post.output.content_id}",
			"target_service": "social",
		}),
	), "")

	result, err := f.automation.Trigger(userCtx("user-1"), id, map[string]interface{}{"event": "the food drive"})
	require.NoError(t, err)
	require.Equal(t, service.StepStatusCompleted, result.Execution.Status, result.Execution.HaltedReason)
	assert.Equal(t, "Join us for the food drive", result.Execution.Steps[0].Output["rendered_text"])
	assert.Equal(t, true, result.Execution.Steps[2].Output["published"])
	assert.Equal(t, 1, f.social.calls())

	got, err := f.templates.Get(tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.UsageCount)
}

// TestAutomationService_DisabledAndPermissions 测试停用工作流与属主权限
func TestAutomationService_DisabledAndPermissions(t *testing.T) {
	f := newFixture(t)
	id := createWorkflow(t, f, steps(step("draft", "generate_text", map[string]interface{}{"prompt": "write"})), "")

	disabled := false
	_, err := f.automation.Update(userCtx("user-2"), id, &service.UpdateWorkflowRequest{Enabled: &disabled})
	assert.ErrorIs(t, err, types.ErrForbidden)

	wf, err := f.automation.Update(userCtx("user-1"), id, &service.UpdateWorkflowRequest{Enabled: &disabled})
	require.NoError(t, err)
	assert.False(t, wf.Enabled)

	_, err = f.automation.Trigger(userCtx("user-1"), id, nil)
	assert.ErrorIs(t, err, types.ErrInvalidState)
	assert.Equal(t, 0, f.gateway.count("text"))

	_, err = f.automation.Update(userCtx("user-1"), id, &service.UpdateWorkflowRequest{
		Configuration: steps(step("x", "unknown", nil)),
	})
	assert.ErrorIs(t, err, types.ErrValidation)

	assert.ErrorIs(t, f.automation.Delete(userCtx("user-2"), id), types.ErrForbidden)
	require.NoError(t, f.automation.Delete(adminCtx(), id))
	_, err = f.automation.Get(id)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

// TestAutomationService_RunDue 测试到期工作流触发后推进下一次执行时间
func TestAutomationService_RunDue(t *testing.T) {
	f := newFixture(t)
	id := createWorkflow(t, f, steps(step("draft", "generate_text", map[string]interface{}{"prompt": "weekly update"})), "*/5 * * * *")
	createWorkflow(t, f, steps(step("draft", "generate_text", map[string]interface{}{"prompt": "manual"})), "")

	wf, err := f.automation.Get(id)
	require.NoError(t, err)
	require.NotNil(t, wf.NextRunAt)

	now := wf.NextRunAt.Add(time.Minute)
	summary, err := f.automation.RunDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Due)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 1, f.gateway.count("text"))

	wf, err = f.automation.Get(id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), wf.RunCount)
	require.NotNil(t, wf.NextRunAt)
	assert.True(t, wf.NextRunAt.After(now))

	history, _, err := f.automation.History(id, repository.NewPage(0, 10))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "system", history[0].TriggeredBy)

	// 同一时刻再次执行不会重复触发
	summary, err = f.automation.RunDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Due)
}

// TestWorkflowScheduler 测试进程内调度器
func TestWorkflowScheduler(t *testing.T) {
	f := newFixture(t)

	disabled := service.NewWorkflowScheduler(f.automation, 0, quietLogger())
	assert.False(t, disabled.Enabled())
	disabled.Start(context.Background())
	disabled.Stop()

	createWorkflow(t, f, steps(step("draft", "generate_text", map[string]interface{}{"prompt": "tick"})), "@every 1s")
	scheduler := service.NewWorkflowScheduler(f.automation, 20*time.Millisecond, quietLogger())
	require.True(t, scheduler.Enabled())
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	assert.Eventually(t, func() bool {
		return f.gateway.count("text") >= 1
	}, 3*time.Second, 20*time.Millisecond)
}
