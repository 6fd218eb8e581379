package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mission-engadi/ai-service/internal/cache"
	"github.com/mission-engadi/ai-service/internal/model"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/types"
	"gorm.io/gorm"
)

const templateNamespace = "template"

// TemplateManager 内容模板持久化
type TemplateManager interface {
	Create(tpl *model.ContentTemplateModel) error
	Get(id string) (*model.ContentTemplateModel, error)
	// Lookup 读取模板用于渲染,优先走缓存
	Lookup(ctx context.Context, id string) (*model.ContentTemplateModel, error)
	Update(tpl *model.ContentTemplateModel) error
	Delete(id string) error
	List(filter *repository.TemplateFilter, page repository.Page) ([]*model.ContentTemplateModel, int64, error)
	Active(contentType string, language *string, platform *string) ([]*model.ContentTemplateModel, error)
	// RecordUsage 原子递增使用次数
	RecordUsage(id string) error
}

// dbTemplateManager 基于数据库的模板管理器
type dbTemplateManager struct {
	db           *gorm.DB
	templateRepo repository.TemplateRepository
	cache        cache.Cache
	ttl          time.Duration
}

// NewTemplateManager 创建模板管理器,c 为 nil 时不缓存
func NewTemplateManager(db *gorm.DB, c cache.Cache, ttl time.Duration) TemplateManager {
	return &dbTemplateManager{
		db:           db,
		templateRepo: repository.NewTemplateRepository(db),
		cache:        c,
		ttl:          ttl,
	}
}

// TemplateVariables 解析模板声明的变量列表
func TemplateVariables(tpl *model.ContentTemplateModel) []string {
	var vars []string
	if len(tpl.Variables) > 0 {
		_ = json.Unmarshal(tpl.Variables, &vars)
	}
	return vars
}

// Create 创建模板
func (m *dbTemplateManager) Create(tpl *model.ContentTemplateModel) error {
	now := time.Now().UTC()
	if tpl.ID == "" {
		tpl.ID = uuid.New().String()
	}
	tpl.UsageCount = 0
	tpl.LastUsedAt = nil
	tpl.CreatedAt = now
	tpl.UpdatedAt = now
	if err := tpl.Validate(); err != nil {
		return types.NewValidationError("%v", err)
	}

	if err := m.templateRepo.Create(tpl); err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

// Get 获取模板
func (m *dbTemplateManager) Get(id string) (*model.ContentTemplateModel, error) {
	tpl, err := m.templateRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewNotFoundError("template", id)
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}
	return tpl, nil
}

// cachedTemplate 缓存中的模板,Variables 在模型 JSON 中不输出,需要单独保存
type cachedTemplate struct {
	Template  *model.ContentTemplateModel `json:"template"`
	Variables []string                    `json:"variables"`
}

// Lookup 读取模板用于渲染,使用次数等统计字段可能滞后
func (m *dbTemplateManager) Lookup(ctx context.Context, id string) (*model.ContentTemplateModel, error) {
	key := cache.NamespaceKey(templateNamespace, id)
	if m.cache != nil {
		if data, found, err := m.cache.Get(ctx, key); err == nil && found {
			var entry cachedTemplate
			if err := json.Unmarshal(data, &entry); err == nil && entry.Template != nil {
				entry.Template.Variables, _ = json.Marshal(entry.Variables)
				return entry.Template, nil
			}
		}
	}

	tpl, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	if m.cache != nil {
		data, err := json.Marshal(cachedTemplate{Template: tpl, Variables: TemplateVariables(tpl)})
		if err == nil {
			_ = m.cache.Set(ctx, key, data, m.ttl)
		}
	}
	return tpl, nil
}

// Update 更新模板并清除缓存,使用统计只通过 RecordUsage 修改
func (m *dbTemplateManager) Update(tpl *model.ContentTemplateModel) error {
	tpl.UpdatedAt = time.Now().UTC()
	if err := tpl.Validate(); err != nil {
		return types.NewValidationError("%v", err)
	}
	err := m.db.Model(&model.ContentTemplateModel{}).
		Where("id = ?", tpl.ID).
		Updates(map[string]interface{}{
			"name":          tpl.Name,
			"description":   tpl.Description,
			"content_type":  tpl.ContentType,
			"language":      tpl.Language,
			"platform":      tpl.Platform,
			"template_text": tpl.TemplateText,
			"variables":     tpl.Variables,
			"active":        tpl.Active,
			"updated_at":    tpl.UpdatedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	m.invalidate(tpl.ID)
	return nil
}

// Delete 删除模板并清除缓存
func (m *dbTemplateManager) Delete(id string) error {
	if _, err := m.Get(id); err != nil {
		return err
	}
	if err := m.templateRepo.Delete(id); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	m.invalidate(id)
	return nil
}

func (m *dbTemplateManager) invalidate(id string) {
	if m.cache != nil {
		_ = m.cache.Delete(context.Background(), cache.NamespaceKey(templateNamespace, id))
	}
}

// List 分页查询模板
func (m *dbTemplateManager) List(filter *repository.TemplateFilter, page repository.Page) ([]*model.ContentTemplateModel, int64, error) {
	return m.templateRepo.FindByFilter(filter, page)
}

// Active 查询启用的模板
func (m *dbTemplateManager) Active(contentType string, language *string, platform *string) ([]*model.ContentTemplateModel, error) {
	return m.templateRepo.FindActive(contentType, language, platform)
}

// RecordUsage 原子递增使用次数
func (m *dbTemplateManager) RecordUsage(id string) error {
	ok, err := m.templateRepo.IncrementUsage(id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record template usage: %w", err)
	}
	if !ok {
		return types.NewNotFoundError("template", id)
	}
	return nil
}
