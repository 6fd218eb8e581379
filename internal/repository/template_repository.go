package repository

import (
	"time"

	"github.com/mission-engadi/ai-service/internal/model"
	"gorm.io/gorm"
)

// TemplateRepository 内容模板仓储接口
type TemplateRepository interface {
	Create(tpl *model.ContentTemplateModel) error
	Save(tpl *model.ContentTemplateModel) error
	FindByID(id string) (*model.ContentTemplateModel, error)
	FindByFilter(filter *TemplateFilter, page Page) ([]*model.ContentTemplateModel, int64, error)
	FindActive(contentType string, language *string, platform *string) ([]*model.ContentTemplateModel, error)
	IncrementUsage(id string, at time.Time) (bool, error)
	Delete(id string) error
}

// TemplateFilter 模板查询过滤器
type TemplateFilter struct {
	ContentType *string
	Language    *string
	Platform    *string
	Active      *bool
}

// templateRepository 模板仓储实现
type templateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository 创建模板仓储
func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{db: db}
}

// Create 创建模板
func (r *templateRepository) Create(tpl *model.ContentTemplateModel) error {
	return r.db.Create(tpl).Error
}

// Save 保存模板
func (r *templateRepository) Save(tpl *model.ContentTemplateModel) error {
	return r.db.Save(tpl).Error
}

// FindByID 根据 ID 查找模板
func (r *templateRepository) FindByID(id string) (*model.ContentTemplateModel, error) {
	var tpl model.ContentTemplateModel
	if err := r.db.Where("id = ?", id).First(&tpl).Error; err != nil {
		return nil, err
	}
	return &tpl, nil
}

// FindByFilter 分页查找模板,按使用次数、创建时间倒序
func (r *templateRepository) FindByFilter(filter *TemplateFilter, page Page) ([]*model.ContentTemplateModel, int64, error) {
	query := r.db.Model(&model.ContentTemplateModel{})
	if filter != nil {
		if filter.ContentType != nil {
			query = query.Where("content_type = ?", *filter.ContentType)
		}
		if filter.Language != nil {
			query = query.Where("language = ?", *filter.Language)
		}
		if filter.Platform != nil {
			query = query.Where("platform = ?", *filter.Platform)
		}
		if filter.Active != nil {
			query = query.Where("active = ?", *filter.Active)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var templates []*model.ContentTemplateModel
	err := page.apply(query.Order("usage_count DESC").Order("created_at DESC").Order("id ASC")).Find(&templates).Error
	return templates, total, err
}

// FindActive 查找某内容类型下的全部启用模板
func (r *templateRepository) FindActive(contentType string, language *string, platform *string) ([]*model.ContentTemplateModel, error) {
	query := r.db.Where("content_type = ? AND active = ?", contentType, true)
	if language != nil {
		query = query.Where("language = ?", *language)
	}
	if platform != nil {
		query = query.Where("platform = ?", *platform)
	}
	var templates []*model.ContentTemplateModel
	err := query.Order("id ASC").Find(&templates).Error
	return templates, err
}

// IncrementUsage 原子递增使用次数并记录使用时间
func (r *templateRepository) IncrementUsage(id string, at time.Time) (bool, error) {
	result := r.db.Model(&model.ContentTemplateModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"usage_count":  gorm.Expr("usage_count + ?", 1),
			"last_used_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Delete 删除模板
func (r *templateRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&model.ContentTemplateModel{}).Error
}
