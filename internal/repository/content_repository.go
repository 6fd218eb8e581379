package repository

import (
	"time"

	"github.com/mission-engadi/ai-service/internal/model"
	"gorm.io/gorm"
)

// ContentSortFields 允许排序的内容字段
var ContentSortFields = []string{"created_at", "updated_at", "published_at", "content_type", "language"}

// GeneratedContentRepository 生成内容仓储接口
type GeneratedContentRepository interface {
	Create(content *model.GeneratedContentModel) error
	Save(content *model.GeneratedContentModel) error
	FindByID(id string) (*model.GeneratedContentModel, error)
	FindByTaskID(taskID string) ([]*model.GeneratedContentModel, error)
	FindByFilter(filter *ContentFilter, page Page) ([]*model.GeneratedContentModel, int64, error)
	ClaimPublish(id string, target string) (bool, error)
	MarkPublished(id string, target string, externalID string, at time.Time) error
	MarkPublishFailed(id string, target string, reason string) error
	Delete(id string) error
	DeleteByTaskID(taskID string) error
	Count() (int64, error)
	CountByType() (map[string]int64, error)
	CountByLanguage() (map[string]int64, error)
	CountPublished() (int64, error)
}

// ContentFilter 生成内容查询过滤器
type ContentFilter struct {
	TaskID      *string
	ContentType *string
	Language    *string
	Published   *bool
	SortBy      string
	Order       string
}

// generatedContentRepository 生成内容仓储实现
type generatedContentRepository struct {
	db *gorm.DB
}

// NewGeneratedContentRepository 创建生成内容仓储
func NewGeneratedContentRepository(db *gorm.DB) GeneratedContentRepository {
	return &generatedContentRepository{db: db}
}

// Create 创建内容
func (r *generatedContentRepository) Create(content *model.GeneratedContentModel) error {
	return r.db.Create(content).Error
}

// Save 保存内容
func (r *generatedContentRepository) Save(content *model.GeneratedContentModel) error {
	return r.db.Save(content).Error
}

// FindByID 根据 ID 查找内容
func (r *generatedContentRepository) FindByID(id string) (*model.GeneratedContentModel, error) {
	var content model.GeneratedContentModel
	if err := r.db.Where("id = ?", id).First(&content).Error; err != nil {
		return nil, err
	}
	return &content, nil
}

// FindByTaskID 查找任务产生的全部内容
func (r *generatedContentRepository) FindByTaskID(taskID string) ([]*model.GeneratedContentModel, error) {
	var contents []*model.GeneratedContentModel
	err := r.db.Where("task_id = ?", taskID).Order("created_at ASC").Order("id ASC").Find(&contents).Error
	return contents, err
}

// FindByFilter 根据过滤器分页查找内容
func (r *generatedContentRepository) FindByFilter(filter *ContentFilter, page Page) ([]*model.GeneratedContentModel, int64, error) {
	query := r.db.Model(&model.GeneratedContentModel{})
	if filter == nil {
		filter = &ContentFilter{}
	}

	if filter.TaskID != nil {
		query = query.Where("task_id = ?", *filter.TaskID)
	}
	if filter.ContentType != nil {
		query = query.Where("content_type = ?", *filter.ContentType)
	}
	if filter.Language != nil {
		query = query.Where("language = ?", *filter.Language)
	}
	if filter.Published != nil {
		query = query.Where("published = ?", *filter.Published)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query, err := applySort(query, filter.SortBy, filter.Order, ContentSortFields, "created_at")
	if err != nil {
		return nil, 0, err
	}

	var contents []*model.GeneratedContentModel
	if err := page.apply(query).Find(&contents).Error; err != nil {
		return nil, 0, err
	}
	return contents, total, nil
}

// ClaimPublish 抢占发布权: 未发布且没有进行中的发布时置为 publishing
func (r *generatedContentRepository) ClaimPublish(id string, target string) (bool, error) {
	result := r.db.Model(&model.GeneratedContentModel{}).
		Where("id = ? AND published = ? AND (publish_status IS NULL OR publish_status IN ?)",
			id, false, []string{model.PublishStatusNone, model.PublishStatusFailed}).
		Updates(map[string]interface{}{
			"publish_status": model.PublishStatusPublishing,
			"publish_target": target,
			"publish_error":  "",
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkPublished 记录发布成功
func (r *generatedContentRepository) MarkPublished(id string, target string, externalID string, at time.Time) error {
	return r.db.Model(&model.GeneratedContentModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"published":      true,
			"external_id":    externalID,
			"published_at":   at,
			"publish_target": target,
			"publish_status": model.PublishStatusPublished,
			"publish_error":  "",
			"updated_at":     at,
		}).Error
}

// MarkPublishFailed 记录发布失败,published 保持 false
func (r *generatedContentRepository) MarkPublishFailed(id string, target string, reason string) error {
	return r.db.Model(&model.GeneratedContentModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"publish_target": target,
			"publish_status": model.PublishStatusFailed,
			"publish_error":  reason,
			"updated_at":     time.Now(),
		}).Error
}

// Delete 删除内容
func (r *generatedContentRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&model.GeneratedContentModel{}).Error
}

// DeleteByTaskID 删除任务的全部内容
func (r *generatedContentRepository) DeleteByTaskID(taskID string) error {
	return r.db.Where("task_id = ?", taskID).Delete(&model.GeneratedContentModel{}).Error
}

// Count 内容总数
func (r *generatedContentRepository) Count() (int64, error) {
	var total int64
	err := r.db.Model(&model.GeneratedContentModel{}).Count(&total).Error
	return total, err
}

// CountByType 按内容类型统计
func (r *generatedContentRepository) CountByType() (map[string]int64, error) {
	return countBy(r.db.Model(&model.GeneratedContentModel{}), "content_type")
}

// CountByLanguage 按语言统计
func (r *generatedContentRepository) CountByLanguage() (map[string]int64, error) {
	return countBy(r.db.Model(&model.GeneratedContentModel{}), "language")
}

// CountPublished 已发布数量
func (r *generatedContentRepository) CountPublished() (int64, error) {
	var total int64
	err := r.db.Model(&model.GeneratedContentModel{}).Where("published = ?", true).Count(&total).Error
	return total, err
}
