package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mission-engadi/ai-service/internal/auth"
	"github.com/mission-engadi/ai-service/internal/events"
	"github.com/mission-engadi/ai-service/internal/integration"
	"github.com/mission-engadi/ai-service/internal/model"
	"github.com/mission-engadi/ai-service/internal/publisher"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/types"
	"github.com/sirupsen/logrus"
)

// ContentService 生成内容管理与发布
type ContentService interface {
	Get(id string) (*model.GeneratedContentModel, error)
	List(filter *repository.ContentFilter, page repository.Page) ([]*model.GeneratedContentModel, int64, error)
	Update(ctx context.Context, id string, req *UpdateContentRequest) (*model.GeneratedContentModel, error)
	Delete(ctx context.Context, id string) error
	Statistics() (*integration.ContentStatistics, error)
	// Publish 发布到下游服务,单次尝试不重试
	Publish(ctx context.Context, id string, req *PublishRequest) (*PublishResult, error)
	PublishRecords(id string) ([]*model.PublishRecordModel, error)
}

// UpdateContentRequest 更新生成内容请求
type UpdateContentRequest struct {
	Title        *string                `json:"title"`
	Body         *string                `json:"body"`
	Metadata     map[string]interface{} `json:"metadata" swaggertype:"object"`
	QualityScore *float64               `json:"quality_score" example:"0.9"`
}

// PublishRequest 发布请求
// @Description 发布生成内容到下游服务(content、social、notification)
type PublishRequest struct {
	TargetService    string     `json:"target_service" example:"social" binding:"required"` // 目标服务
	ScheduledAt      *time.Time `json:"scheduled_at"`                                       // 定时发布时间
	Platform         string     `json:"platform" example:"instagram"`                       // 社交平台
	MediaURLs        []string   `json:"media_urls"`                                         // 附带的图片
	NotificationType string     `json:"notification_type" example:"email"`                  // 通知类型
	Recipients       []string   `json:"recipients"`                                         // 通知接收人
	Subject          string     `json:"subject"`                                            // 通知标题
}

// PublishResult 发布结果
type PublishResult struct {
	Content *ContentView              `json:"content"`
	Record  *model.PublishRecordModel `json:"record"`
}

// contentService 生成内容服务实现
type contentService struct {
	contentMgr  integration.ContentManager
	taskMgr     integration.TaskManager
	registry    *publisher.Registry
	authorizer  auth.Authorizer
	auditLogSvc AuditLogService
	events      eventEmitter
	logger      logrus.FieldLogger
}

// NewContentService 创建生成内容服务
func NewContentService(
	contentMgr integration.ContentManager,
	taskMgr integration.TaskManager,
	registry *publisher.Registry,
	authorizer auth.Authorizer,
	auditLogSvc AuditLogService,
	eventPublisher events.Publisher,
	logger logrus.FieldLogger,
) ContentService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if authorizer == nil {
		authorizer = auth.NewRoleAuthorizer(nil, "", nil)
	}
	return &contentService{
		contentMgr:  contentMgr,
		taskMgr:     taskMgr,
		registry:    registry,
		authorizer:  authorizer,
		auditLogSvc: auditLogSvc,
		events:      newEventEmitter(eventPublisher, logger),
		logger:      logger.WithField("component", "content_service"),
	}
}

// Get 获取内容
func (s *contentService) Get(id string) (*model.GeneratedContentModel, error) {
	return s.contentMgr.Get(id)
}

// List 分页查询内容
func (s *contentService) List(filter *repository.ContentFilter, page repository.Page) ([]*model.GeneratedContentModel, int64, error) {
	return s.contentMgr.List(filter, page)
}

// owner 内容归属于生成它的任务的创建者
func (s *contentService) owner(content *model.GeneratedContentModel) string {
	task, err := s.taskMgr.Get(content.TaskID)
	if err != nil {
		return ""
	}
	return task.CreatedBy
}

// Update 更新内容
func (s *contentService) Update(ctx context.Context, id string, req *UpdateContentRequest) (*model.GeneratedContentModel, error) {
	content, err := s.contentMgr.Get(id)
	if err != nil {
		return nil, err
	}
	if !s.authorizer.CanAccess(identityOf(ctx), s.owner(content)) {
		return nil, types.NewForbiddenError("not allowed to update content %s", id)
	}

	if req.Title != nil {
		content.Title = *req.Title
	}
	if req.Body != nil {
		if strings.TrimSpace(*req.Body) == "" {
			return nil, types.NewValidationError("body must not be empty")
		}
		content.Body = *req.Body
	}
	if req.Metadata != nil {
		data, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, types.NewValidationError("invalid metadata: %v", err)
		}
		content.Metadata = data
	}
	if req.QualityScore != nil {
		content.QualityScore = req.QualityScore
	}
	if err := s.contentMgr.Update(content); err != nil {
		return nil, err
	}

	recordAudit(ctx, s.auditLogSvc, "update", events.ResourceContent, id, nil)
	return s.contentMgr.Get(id)
}

// Delete 删除内容
func (s *contentService) Delete(ctx context.Context, id string) error {
	content, err := s.contentMgr.Get(id)
	if err != nil {
		return err
	}
	if !s.authorizer.CanAccess(identityOf(ctx), s.owner(content)) {
		return types.NewForbiddenError("not allowed to delete content %s", id)
	}
	if err := s.contentMgr.Delete(id); err != nil {
		return fmt.Errorf("failed to delete content: %w", err)
	}
	recordAudit(ctx, s.auditLogSvc, "delete", events.ResourceContent, id, nil)
	return nil
}

// Statistics 内容统计
func (s *contentService) Statistics() (*integration.ContentStatistics, error) {
	return s.contentMgr.Statistics()
}

// PublishRecords 发布记录
func (s *contentService) PublishRecords(id string) ([]*model.PublishRecordModel, error) {
	if _, err := s.contentMgr.Get(id); err != nil {
		return nil, err
	}
	return s.contentMgr.PublishRecords(id)
}

// Publish 发布内容
func (s *contentService) Publish(ctx context.Context, id string, req *PublishRequest) (*PublishResult, error) {
	// 1. 内容必须存在
	content, err := s.contentMgr.Get(id)
	if err != nil {
		return nil, err
	}

	// 2. 目标服务必须已知
	target, ok := s.registry.Get(req.TargetService)
	if !ok {
		return nil, types.NewValidationError("unknown target_service %q, expected one of %s",
			req.TargetService, strings.Join(s.registry.Names(), ", "))
	}

	// 3. 需要审批的任务必须已通过
	task, err := s.taskMgr.Get(content.TaskID)
	if err != nil {
		return nil, err
	}
	if task.RequiresApproval && (task.Approved == nil || !*task.Approved) {
		return nil, types.NewInvalidStateError("content %s requires an approved task before publishing", id)
	}

	// 4. 抢占发布权
	if content.Published {
		return nil, types.NewInvalidStateError("content %s is already published", id)
	}
	claimed, err := s.contentMgr.ClaimPublish(id, target.Name())
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, types.NewInvalidStateError("content %s is already published or being published", id)
	}

	// 5. 调用目标服务
	publishReq := publisher.Request{
		ContentID:        content.ID,
		ContentType:      content.ContentType,
		Language:         content.Language,
		Title:            content.Title,
		Body:             content.Body,
		Platform:         req.Platform,
		MediaURLs:        req.MediaURLs,
		ScheduledAt:      req.ScheduledAt,
		NotificationType: req.NotificationType,
		Recipients:       req.Recipients,
		Subject:          req.Subject,
	}
	if len(content.Metadata) > 0 {
		_ = json.Unmarshal(content.Metadata, &publishReq.Metadata)
	}
	if publishReq.Platform == "" && publishReq.Metadata != nil {
		publishReq.Platform, _ = publishReq.Metadata["platform"].(string)
	}
	if identity := identityOf(ctx); identity != nil {
		publishReq.AuthToken = identity.Token
	}
	record := &model.PublishRecordModel{ScheduledAt: req.ScheduledAt, CreatedBy: operatorOf(ctx)}

	res, publishErr := target.Publish(ctx, publishReq)
	if publishErr != nil {
		if err := s.contentMgr.MarkPublishFailed(id, target.Name(), publishErr.Error(), record); err != nil {
			s.releaseClaim(id, target.Name(), publishErr.Error())
			return nil, err
		}
		s.logger.WithFields(logrus.Fields{
			"content_id": id,
			"target":     target.Name(),
		}).WithError(publishErr).Warn("publish failed")
		s.events.emit(ctx, events.ContentPublishFailed, events.ResourceContent, id, map[string]interface{}{
			"target": target.Name(),
			"error":  publishErr.Error(),
		})
		return nil, types.NewPublishTargetError(target.Name(), publishErr)
	}

	// 6. 记录发布结果
	if err := s.contentMgr.MarkPublished(id, target.Name(), res.ExternalID, record); err != nil {
		s.logger.WithFields(logrus.Fields{
			"content_id":  id,
			"target":      target.Name(),
			"external_id": res.ExternalID,
		}).WithError(err).Error("published to target but failed to record result")
		s.releaseClaim(id, target.Name(), fmt.Sprintf("published as %s but result was not recorded: %v", res.ExternalID, err))
		return nil, err
	}
	recordAudit(ctx, s.auditLogSvc, "publish", events.ResourceContent, id, map[string]interface{}{
		"target":      target.Name(),
		"external_id": res.ExternalID,
	})
	s.events.emit(ctx, events.ContentPublished, events.ResourceContent, id, map[string]interface{}{
		"target":      target.Name(),
		"external_id": res.ExternalID,
	})

	published, err := s.contentMgr.Get(id)
	if err != nil {
		return nil, err
	}
	return &PublishResult{Content: NewContentView(published), Record: record}, nil
}

// releaseClaim 结果写库失败时释放 publishing 状态,否则后续发布会被一直拒绝
func (s *contentService) releaseClaim(id, target, reason string) {
	if err := s.contentMgr.ReleasePublish(id, target, reason); err != nil {
		s.logger.WithField("content_id", id).WithError(err).Error("failed to release publish claim")
	}
}
