package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mission-engadi/ai-service/internal/model"
	"github.com/mission-engadi/ai-service/internal/repository"
)

// AuditLogService 审计日志服务
type AuditLogService interface {
	RecordAction(ctx context.Context, action string, resourceType string, resourceID string, details interface{}) error
	List(filter *repository.AuditLogFilter, page repository.Page) ([]*model.AuditLogModel, int64, error)
}

// auditLogService 审计日志服务实现
type auditLogService struct {
	auditRepo repository.AuditLogRepository
}

// NewAuditLogService 创建审计日志服务
func NewAuditLogService(auditRepo repository.AuditLogRepository) AuditLogService {
	return &auditLogService{
		auditRepo: auditRepo,
	}
}

// RecordAction 记录操作审计日志,操作人取自 context 中的身份
func (s *auditLogService) RecordAction(
	ctx context.Context,
	action string,
	resourceType string,
	resourceID string,
	details interface{},
) error {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}

	meta := RequestMetaFrom(ctx)
	auditLog := &model.AuditLogModel{
		ID:           uuid.New().String(),
		UserID:       operatorOf(ctx),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    meta.RequestID,
		IP:           meta.IP,
		UserAgent:    meta.UserAgent,
		Details:      detailsJSON,
		CreatedAt:    time.Now(),
	}
	if err := auditLog.Validate(); err != nil {
		return err
	}

	return s.auditRepo.Append(auditLog)
}

// List 按条件分页查询审计日志
func (s *auditLogService) List(filter *repository.AuditLogFilter, page repository.Page) ([]*model.AuditLogModel, int64, error) {
	return s.auditRepo.List(filter, page)
}

// recordAudit 审计失败不影响业务结果
func recordAudit(ctx context.Context, svc AuditLogService, action, resourceType, resourceID string, details interface{}) {
	if svc == nil {
		return
	}
	_ = svc.RecordAction(ctx, action, resourceType, resourceID, details)
}
