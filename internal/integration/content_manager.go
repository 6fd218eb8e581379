package integration

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mission-engadi/ai-service/internal/metrics"
	"github.com/mission-engadi/ai-service/internal/model"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/types"
	"gorm.io/gorm"
)

// ContentManager 生成内容与发布状态持久化
type ContentManager interface {
	Get(id string) (*model.GeneratedContentModel, error)
	ListByTask(taskID string) ([]*model.GeneratedContentModel, error)
	List(filter *repository.ContentFilter, page repository.Page) ([]*model.GeneratedContentModel, int64, error)
	Update(content *model.GeneratedContentModel) error
	Delete(id string) error
	Statistics() (*ContentStatistics, error)
	// ClaimPublish 抢占发布权,已发布或发布中返回 false
	ClaimPublish(id string, target string) (bool, error)
	MarkPublished(id string, target string, externalID string, record *model.PublishRecordModel) error
	MarkPublishFailed(id string, target string, reason string, record *model.PublishRecordModel) error
	// ReleasePublish 结果无法落库时释放发布权,内容可再次发布
	ReleasePublish(id string, target string, reason string) error
	PublishRecords(id string) ([]*model.PublishRecordModel, error)
	TranslationJobs(filter *repository.TranslationJobFilter, page repository.Page) ([]*model.TranslationJobModel, int64, error)
}

// ContentStatistics 生成内容统计
type ContentStatistics struct {
	Total          int64            `json:"total_content"`
	ByType         map[string]int64 `json:"by_type"`
	ByLanguage     map[string]int64 `json:"by_language"`
	PublishedCount int64            `json:"published_count"`
}

// dbContentManager 基于数据库的内容管理器
type dbContentManager struct {
	db          *gorm.DB
	contentRepo repository.GeneratedContentRepository
	publishRepo repository.PublishRecordRepository
	jobRepo     repository.TranslationJobRepository
}

// NewContentManager 创建内容管理器
func NewContentManager(db *gorm.DB) ContentManager {
	return &dbContentManager{
		db:          db,
		contentRepo: repository.NewGeneratedContentRepository(db),
		publishRepo: repository.NewPublishRecordRepository(db),
		jobRepo:     repository.NewTranslationJobRepository(db),
	}
}

// Get 获取内容
func (m *dbContentManager) Get(id string) (*model.GeneratedContentModel, error) {
	content, err := m.contentRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewNotFoundError("content", id)
		}
		return nil, fmt.Errorf("failed to get content: %w", err)
	}
	return content, nil
}

// ListByTask 任务生成的全部内容
func (m *dbContentManager) ListByTask(taskID string) ([]*model.GeneratedContentModel, error) {
	return m.contentRepo.FindByTaskID(taskID)
}

// List 分页查询内容
func (m *dbContentManager) List(filter *repository.ContentFilter, page repository.Page) ([]*model.GeneratedContentModel, int64, error) {
	return m.contentRepo.FindByFilter(filter, page)
}

// Update 更新可编辑字段,发布状态不在此修改
func (m *dbContentManager) Update(content *model.GeneratedContentModel) error {
	content.UpdatedAt = time.Now().UTC()
	if err := content.Validate(); err != nil {
		return types.NewValidationError("%v", err)
	}
	err := m.db.Model(&model.GeneratedContentModel{}).
		Where("id = ?", content.ID).
		Updates(map[string]interface{}{
			"title":         content.Title,
			"body":          content.Body,
			"metadata":      content.Metadata,
			"quality_score": content.QualityScore,
			"updated_at":    content.UpdatedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update content: %w", err)
	}
	return nil
}

// Delete 删除内容及其发布记录
func (m *dbContentManager) Delete(id string) error {
	if _, err := m.Get(id); err != nil {
		return err
	}
	return m.db.Transaction(func(tx *gorm.DB) error {
		if err := repository.NewPublishRecordRepository(tx).DeleteByContentID(id); err != nil {
			return err
		}
		return repository.NewGeneratedContentRepository(tx).Delete(id)
	})
}

// Statistics 内容统计
func (m *dbContentManager) Statistics() (*ContentStatistics, error) {
	total, err := m.contentRepo.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to count content: %w", err)
	}
	byType, err := m.contentRepo.CountByType()
	if err != nil {
		return nil, fmt.Errorf("failed to count content by type: %w", err)
	}
	byLanguage, err := m.contentRepo.CountByLanguage()
	if err != nil {
		return nil, fmt.Errorf("failed to count content by language: %w", err)
	}
	published, err := m.contentRepo.CountPublished()
	if err != nil {
		return nil, fmt.Errorf("failed to count published content: %w", err)
	}
	return &ContentStatistics{Total: total, ByType: byType, ByLanguage: byLanguage, PublishedCount: published}, nil
}

// ClaimPublish 抢占发布权
func (m *dbContentManager) ClaimPublish(id string, target string) (bool, error) {
	ok, err := m.contentRepo.ClaimPublish(id, target)
	if err != nil {
		return false, fmt.Errorf("failed to claim publish: %w", err)
	}
	return ok, nil
}

// MarkPublished 记录发布成功及发布记录
func (m *dbContentManager) MarkPublished(id string, target string, externalID string, record *model.PublishRecordModel) error {
	now := time.Now().UTC()
	err := m.db.Transaction(func(tx *gorm.DB) error {
		if err := repository.NewGeneratedContentRepository(tx).MarkPublished(id, target, externalID, now); err != nil {
			return err
		}
		return savePublishRecord(tx, id, target, "success", externalID, "", record, now)
	})
	if err != nil {
		return fmt.Errorf("failed to mark content published: %w", err)
	}
	metrics.RecordPublish(target, "success")
	return nil
}

// MarkPublishFailed 记录发布失败及发布记录
func (m *dbContentManager) MarkPublishFailed(id string, target string, reason string, record *model.PublishRecordModel) error {
	now := time.Now().UTC()
	err := m.db.Transaction(func(tx *gorm.DB) error {
		if err := repository.NewGeneratedContentRepository(tx).MarkPublishFailed(id, target, reason); err != nil {
			return err
		}
		return savePublishRecord(tx, id, target, "failed", "", reason, record, now)
	})
	if err != nil {
		return fmt.Errorf("failed to mark content publish failure: %w", err)
	}
	metrics.RecordPublish(target, "failed")
	return nil
}

// ReleasePublish 将 publishing 状态置为 failed,不写发布记录
func (m *dbContentManager) ReleasePublish(id string, target string, reason string) error {
	if err := m.contentRepo.MarkPublishFailed(id, target, reason); err != nil {
		return fmt.Errorf("failed to release publish claim: %w", err)
	}
	return nil
}

func savePublishRecord(tx *gorm.DB, contentID, target, status, externalID, reason string, record *model.PublishRecordModel, at time.Time) error {
	if record == nil {
		record = &model.PublishRecordModel{}
	}
	record.ID = uuid.New().String()
	record.ContentID = contentID
	record.Target = target
	record.Status = status
	record.ExternalID = externalID
	record.Error = reason
	record.CreatedAt = at
	return repository.NewPublishRecordRepository(tx).Save(record)
}

// PublishRecords 内容的发布记录
func (m *dbContentManager) PublishRecords(id string) ([]*model.PublishRecordModel, error) {
	return m.publishRepo.FindByContentID(id)
}

// TranslationJobs 翻译历史
func (m *dbContentManager) TranslationJobs(filter *repository.TranslationJobFilter, page repository.Page) ([]*model.TranslationJobModel, int64, error) {
	return m.jobRepo.FindByFilter(filter, page)
}
