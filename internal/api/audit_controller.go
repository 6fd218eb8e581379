package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/service"
)

// AuditController 审计日志控制器
type AuditController struct {
	auditLogSvc service.AuditLogService
}

// NewAuditController 创建审计日志控制器
func NewAuditController(auditLogSvc service.AuditLogService) *AuditController {
	return &AuditController{auditLogSvc: auditLogSvc}
}

// List 审计日志列表
// @Summary      审计日志列表
// @Description  仅管理员,最新的在前
// @Tags         运维
// @Produce      json
// @Param        user_id query string false "操作人"
// @Param        action query string false "操作"
// @Param        resource_type query string false "资源类型" Enums(task, template, workflow, content)
// @Param        resource_id query string false "资源 ID"
// @Param        request_id query string false "请求 ID"
// @Param        skip query int false "跳过条数" default(0)
// @Param        limit query int false "每页数量" default(20)
// @Success      200  {object}  ListResponse{items=[]model.AuditLogModel}
// @Failure      403  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /audit-logs [get]
// @Security     BearerAuth
func (c *AuditController) List(ctx *gin.Context) {
	page, err := pageFromQuery(ctx)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	filter := &repository.AuditLogFilter{
		UserID:       optionalQuery(ctx, "user_id"),
		Action:       optionalQuery(ctx, "action"),
		ResourceType: optionalQuery(ctx, "resource_type"),
		ResourceID:   optionalQuery(ctx, "resource_id"),
		RequestID:    optionalQuery(ctx, "request_id"),
	}

	entries, total, err := c.auditLogSvc.List(filter, page)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	List(ctx, entries, total, page)
}
