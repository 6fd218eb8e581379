package repository

import (
	"github.com/mission-engadi/ai-service/internal/model"
	"gorm.io/gorm"
)

// AuditLogFilter 审计日志查询条件,nil 字段不参与过滤
type AuditLogFilter struct {
	UserID       *string
	Action       *string
	ResourceType *string
	ResourceID   *string
	RequestID    *string
}

// AuditLogRepository 审计日志仓储接口,日志只追加不修改
type AuditLogRepository interface {
	Append(entry *model.AuditLogModel) error
	List(filter *AuditLogFilter, page Page) ([]*model.AuditLogModel, int64, error)
}

type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository 创建审计日志仓储
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

// Append 写入一条审计日志
func (r *auditLogRepository) Append(entry *model.AuditLogModel) error {
	return r.db.Create(entry).Error
}

// List 分页查询审计日志,最新的在前
func (r *auditLogRepository) List(filter *AuditLogFilter, page Page) ([]*model.AuditLogModel, int64, error) {
	query := r.db.Model(&model.AuditLogModel{})
	if filter != nil {
		for column, value := range map[string]*string{
			"user_id":       filter.UserID,
			"action":        filter.Action,
			"resource_type": filter.ResourceType,
			"resource_id":   filter.ResourceID,
			"request_id":    filter.RequestID,
		} {
			if value != nil {
				query = query.Where(column+" = ?", *value)
			}
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []*model.AuditLogModel
	err := page.apply(query.Order("created_at DESC").Order("id DESC")).Find(&entries).Error
	return entries, total, err
}
