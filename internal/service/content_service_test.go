package service_test

import (
	"errors"
	"testing"
	"time"

	"github.com/mission-engadi/ai-service/internal/auth"
	"github.com/mission-engadi/ai-service/internal/events"
	"github.com/mission-engadi/ai-service/internal/integration"
	"github.com/mission-engadi/ai-service/internal/model"
	"github.com/mission-engadi/ai-service/internal/publisher"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/service"
	"github.com/mission-engadi/ai-service/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestContentService_PublishTwice 测试重复发布不会再次调用目标服务
func TestContentService_PublishTwice(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx("user-1")
	_, contentID := f.generateContent(t, ctx, false)

	scheduled := time.Now().Add(time.Hour).UTC()
	result, err := f.contents.Publish(ctx, contentID, &service.PublishRequest{
		TargetService: "social",
		ScheduledAt:   &scheduled,
	})
	require.NoError(t, err)
	assert.True(t, result.Content.Published)
	assert.Equal(t, "social-ext-1", result.Content.ExternalID)
	assert.Equal(t, "social", result.Content.PublishTarget)
	assert.NotNil(t, result.Content.PublishedAt)
	assert.Equal(t, "success", result.Record.Status)

	// 平台取自生成时的元数据
	req := f.social.last()
	assert.Equal(t, "instagram", req.Platform)
	assert.Equal(t, contentID, req.ContentID)
	require.NotNil(t, req.ScheduledAt)

	_, err = f.contents.Publish(ctx, contentID, &service.PublishRequest{TargetService: "social"})
	assert.ErrorIs(t, err, types.ErrInvalidState)
	assert.Equal(t, 1, f.social.calls())

	_, err = f.contents.Publish(ctx, contentID, &service.PublishRequest{TargetService: "content"})
	assert.ErrorIs(t, err, types.ErrInvalidState)
	assert.Equal(t, 0, f.content.calls())
}

// TestContentService_PublishFailure 测试发布失败后记录状态并可重试
func TestContentService_PublishFailure(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx("user-1")
	_, contentID := f.generateContent(t, ctx, false)

	f.content.setFail(errors.New("content service returned 503"))
	_, err := f.contents.Publish(ctx, contentID, &service.PublishRequest{TargetService: "content"})
	assert.ErrorIs(t, err, types.ErrPublishTarget)

	content, err := f.contents.Get(contentID)
	require.NoError(t, err)
	assert.False(t, content.Published)
	assert.Equal(t, model.PublishStatusFailed, content.PublishStatus)
	assert.Contains(t, content.PublishError, "503")
	assert.Contains(t, f.recorder.Types(), events.ContentPublishFailed)

	f.content.setFail(nil)
	result, err := f.contents.Publish(ctx, contentID, &service.PublishRequest{TargetService: "content_service"})
	require.NoError(t, err)
	assert.True(t, result.Content.Published)
	assert.Equal(t, 2, f.content.calls())

	records, err := f.contents.PublishRecords(contentID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

// unrecordedContentManager 发布结果无法写库的内容管理器
type unrecordedContentManager struct {
	integration.ContentManager
	fail bool
}

func (m *unrecordedContentManager) MarkPublished(id string, target string, externalID string, record *model.PublishRecordModel) error {
	if m.fail {
		return errors.New("database is locked")
	}
	return m.ContentManager.MarkPublished(id, target, externalID, record)
}

// TestContentService_PublishUnrecorded 测试结果写库失败时释放发布权
func TestContentService_PublishUnrecorded(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx("user-1")
	_, contentID := f.generateContent(t, ctx, false)

	mgr := &unrecordedContentManager{ContentManager: integration.NewContentManager(f.db), fail: true}
	contents := service.NewContentService(mgr, f.taskMgr, publisher.NewRegistry(f.content),
		auth.NewRoleAuthorizer(nil, "", nil), nil, f.recorder, quietLogger())

	_, err := contents.Publish(ctx, contentID, &service.PublishRequest{TargetService: "content"})
	require.Error(t, err)

	content, err := contents.Get(contentID)
	require.NoError(t, err)
	assert.False(t, content.Published)
	assert.Equal(t, model.PublishStatusFailed, content.PublishStatus)
	assert.Contains(t, content.PublishError, "content-ext-1")

	mgr.fail = false
	result, err := contents.Publish(ctx, contentID, &service.PublishRequest{TargetService: "content"})
	require.NoError(t, err)
	assert.True(t, result.Content.Published)
	assert.Equal(t, 2, f.content.calls())
}

// TestContentService_PublishValidation 测试未知目标、不存在的内容与审批要求
func TestContentService_PublishValidation(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx("user-1")

	_, err := f.contents.Publish(ctx, "missing", &service.PublishRequest{TargetService: "social"})
	assert.ErrorIs(t, err, types.ErrNotFound)

	taskID, contentID := f.generateContent(t, ctx, true)
	_, err = f.contents.Publish(ctx, contentID, &service.PublishRequest{TargetService: "fax"})
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = f.contents.Publish(ctx, contentID, &service.PublishRequest{TargetService: "social"})
	assert.ErrorIs(t, err, types.ErrInvalidState)
	assert.Equal(t, 0, f.social.calls())

	_, err = f.tasks.Approve(adminCtx(), taskID, nil)
	require.NoError(t, err)
	_, err = f.contents.Publish(ctx, contentID, &service.PublishRequest{TargetService: "social"})
	require.NoError(t, err)
	assert.Equal(t, 1, f.social.calls())
}

// TestContentService_UpdateDelete 测试内容编辑、统计与删除
func TestContentService_UpdateDelete(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx("user-1")
	_, contentID := f.generateContent(t, ctx, false)

	body := "Edited body"
	_, err := f.contents.Update(userCtx("user-2"), contentID, &service.UpdateContentRequest{Body: &body})
	assert.ErrorIs(t, err, types.ErrForbidden)

	quality := 0.9
	updated, err := f.contents.Update(ctx, contentID, &service.UpdateContentRequest{
		Body:         &body,
		QualityScore: &quality,
		Metadata:     map[string]interface{}{"campaign": "spring"},
	})
	require.NoError(t, err)
	assert.Equal(t, body, updated.Body)
	assert.JSONEq(t, `{"campaign":"spring"}`, string(updated.Metadata))

	empty := " "
	_, err = f.contents.Update(ctx, contentID, &service.UpdateContentRequest{Body: &empty})
	assert.ErrorIs(t, err, types.ErrValidation)

	contentType := string(types.ContentTypeSocialPost)
	items, total, err := f.contents.List(&repository.ContentFilter{ContentType: &contentType}, repository.NewPage(0, 10))
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, items, 1)

	stats, err := f.contents.Statistics()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, int64(1), stats.ByType[contentType])

	require.NoError(t, f.contents.Delete(ctx, contentID))
	_, err = f.contents.Get(contentID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}
