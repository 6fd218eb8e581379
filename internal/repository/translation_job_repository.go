package repository

import (
	"time"

	"github.com/mission-engadi/ai-service/internal/model"
	"gorm.io/gorm"
)

// TranslationJobRepository 翻译任务仓储接口
type TranslationJobRepository interface {
	Create(job *model.TranslationJobModel) error
	Save(job *model.TranslationJobModel) error
	FindByTaskID(taskID string) ([]*model.TranslationJobModel, error)
	FindByFilter(filter *TranslationJobFilter, page Page) ([]*model.TranslationJobModel, int64, error)
	UpdateStatusByTaskID(taskID string, from string, to string) error
	DeleteByTaskID(taskID string) error
}

// TranslationJobFilter 翻译任务查询过滤器
type TranslationJobFilter struct {
	TaskID         *string
	ContentID      *string
	SourceLanguage *string
	TargetLanguage *string
	Status         *string
}

// translationJobRepository 翻译任务仓储实现
type translationJobRepository struct {
	db *gorm.DB
}

// NewTranslationJobRepository 创建翻译任务仓储
func NewTranslationJobRepository(db *gorm.DB) TranslationJobRepository {
	return &translationJobRepository{db: db}
}

// Create 创建翻译任务
func (r *translationJobRepository) Create(job *model.TranslationJobModel) error {
	return r.db.Create(job).Error
}

// Save 保存翻译任务
func (r *translationJobRepository) Save(job *model.TranslationJobModel) error {
	return r.db.Save(job).Error
}

// FindByTaskID 根据任务 ID 查找翻译任务
func (r *translationJobRepository) FindByTaskID(taskID string) ([]*model.TranslationJobModel, error) {
	var jobs []*model.TranslationJobModel
	err := r.db.Where("task_id = ?", taskID).Order("created_at ASC").Order("target_language ASC").Find(&jobs).Error
	return jobs, err
}

// FindByFilter 分页查询翻译历史,最新的在前
func (r *translationJobRepository) FindByFilter(filter *TranslationJobFilter, page Page) ([]*model.TranslationJobModel, int64, error) {
	query := r.db.Model(&model.TranslationJobModel{})
	if filter != nil {
		if filter.TaskID != nil {
			query = query.Where("task_id = ?", *filter.TaskID)
		}
		if filter.ContentID != nil {
			query = query.Where("content_id = ?", *filter.ContentID)
		}
		if filter.SourceLanguage != nil {
			query = query.Where("source_language = ?", *filter.SourceLanguage)
		}
		if filter.TargetLanguage != nil {
			query = query.Where("target_language = ?", *filter.TargetLanguage)
		}
		if filter.Status != nil {
			query = query.Where("status = ?", *filter.Status)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobs []*model.TranslationJobModel
	err := page.apply(query.Order("created_at DESC").Order("id ASC")).Find(&jobs).Error
	return jobs, total, err
}

// UpdateStatusByTaskID 批量推进任务下处于 from 状态的翻译任务
func (r *translationJobRepository) UpdateStatusByTaskID(taskID string, from string, to string) error {
	return r.db.Model(&model.TranslationJobModel{}).
		Where("task_id = ? AND status = ?", taskID, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()}).Error
}

// DeleteByTaskID 删除任务的翻译任务
func (r *translationJobRepository) DeleteByTaskID(taskID string) error {
	return r.db.Where("task_id = ?", taskID).Delete(&model.TranslationJobModel{}).Error
}
