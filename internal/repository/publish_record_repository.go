package repository

import (
	"github.com/mission-engadi/ai-service/internal/model"
	"gorm.io/gorm"
)

// PublishRecordRepository 发布记录仓储接口
type PublishRecordRepository interface {
	Save(record *model.PublishRecordModel) error
	FindByContentID(contentID string) ([]*model.PublishRecordModel, error)
	DeleteByContentID(contentID string) error
}

// publishRecordRepository 发布记录仓储实现
type publishRecordRepository struct {
	db *gorm.DB
}

// NewPublishRecordRepository 创建发布记录仓储
func NewPublishRecordRepository(db *gorm.DB) PublishRecordRepository {
	return &publishRecordRepository{db: db}
}

// Save 保存发布记录
func (r *publishRecordRepository) Save(record *model.PublishRecordModel) error {
	return r.db.Save(record).Error
}

// FindByContentID 根据内容 ID 查找发布记录
func (r *publishRecordRepository) FindByContentID(contentID string) ([]*model.PublishRecordModel, error) {
	var records []*model.PublishRecordModel
	err := r.db.Where("content_id = ?", contentID).Order("created_at ASC").Find(&records).Error
	return records, err
}

// DeleteByContentID 删除内容的发布记录
func (r *publishRecordRepository) DeleteByContentID(contentID string) error {
	return r.db.Where("content_id = ?", contentID).Delete(&model.PublishRecordModel{}).Error
}
