package integration_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mission-engadi/ai-service/internal/cache"
	"github.com/mission-engadi/ai-service/internal/integration"
	"github.com/mission-engadi/ai-service/internal/model"
	"github.com/mission-engadi/ai-service/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTemplate() *model.ContentTemplateModel {
	return &model.ContentTemplateModel{
		Name:         "Weekly update",
		ContentType:  "newsletter",
		Language:     "en",
		TemplateText: "Hello {name}",
		Variables:    []byte(`["name"]`),
		Active:       true,
	}
}

// TestTemplateManager_CRUD 测试模板增删改查
func TestTemplateManager_CRUD(t *testing.T) {
	mgr := integration.NewTemplateManager(setupTestDB(t), nil, 0)

	tpl := newTemplate()
	tpl.UsageCount = 99
	require.NoError(t, mgr.Create(tpl))
	assert.NotEmpty(t, tpl.ID)

	got, err := mgr.Get(tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.UsageCount)
	assert.Equal(t, []string{"name"}, integration.TemplateVariables(got))

	got.Name = "Renamed"
	require.NoError(t, mgr.Update(got))
	got, err = mgr.Get(tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)

	require.NoError(t, mgr.Delete(tpl.ID))
	_, err = mgr.Get(tpl.ID)
	assert.True(t, errors.Is(err, types.ErrNotFound))
	assert.True(t, errors.Is(mgr.Delete(tpl.ID), types.ErrNotFound))
}

// TestTemplateManager_RecordUsage 测试使用次数递增
func TestTemplateManager_RecordUsage(t *testing.T) {
	mgr := integration.NewTemplateManager(setupTestDB(t), nil, 0)
	tpl := newTemplate()
	require.NoError(t, mgr.Create(tpl))

	require.NoError(t, mgr.RecordUsage(tpl.ID))
	require.NoError(t, mgr.RecordUsage(tpl.ID))

	got, err := mgr.Get(tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.UsageCount)
	assert.NotNil(t, got.LastUsedAt)

	assert.True(t, errors.Is(mgr.RecordUsage("missing"), types.ErrNotFound))
}

// TestTemplateManager_LookupCache 测试渲染读取走缓存并在更新后失效
func TestTemplateManager_LookupCache(t *testing.T) {
	db := setupTestDB(t)
	mgr := integration.NewTemplateManager(db, cache.NewMemoryCache(), time.Minute)
	ctx := context.Background()

	tpl := newTemplate()
	require.NoError(t, mgr.Create(tpl))

	got, err := mgr.Lookup(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello {name}", got.TemplateText)

	// 绕过管理器直接修改,缓存仍返回旧值
	require.NoError(t, db.Model(&model.ContentTemplateModel{}).Where("id = ?", tpl.ID).Update("template_text", "Hi {name}").Error)
	got, err = mgr.Lookup(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello {name}", got.TemplateText)
	assert.Equal(t, []string{"name"}, integration.TemplateVariables(got))

	// 通过管理器更新后缓存失效
	fresh, err := mgr.Get(tpl.ID)
	require.NoError(t, err)
	fresh.TemplateText = "Hey {name}"
	require.NoError(t, mgr.Update(fresh))
	got, err = mgr.Lookup(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hey {name}", got.TemplateText)

	_, err = mgr.Lookup(ctx, "missing")
	assert.True(t, errors.Is(err, types.ErrNotFound))
}
