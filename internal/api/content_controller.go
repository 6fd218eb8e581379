package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/service"
)

// ContentController 生成内容控制器
type ContentController struct {
	contentService service.ContentService
}

// NewContentController 创建生成内容控制器
func NewContentController(contentService service.ContentService) *ContentController {
	return &ContentController{contentService: contentService}
}

// List 生成内容列表
// @Summary      生成内容列表
// @Tags         生成内容
// @Produce      json
// @Param        task_id query string false "任务 ID"
// @Param        content_type query string false "内容类型"
// @Param        language query string false "语言"
// @Param        published query bool false "是否已发布"
// @Param        sort_by query string false "排序字段" default(created_at)
// @Param        order query string false "排序方向" Enums(asc, desc) default(desc)
// @Param        skip query int false "跳过条数" default(0)
// @Param        limit query int false "每页数量" default(20)
// @Success      200  {object}  ListResponse{items=[]service.ContentView}
// @Failure      422  {object}  ErrorResponse
// @Router       /generated [get]
// @Security     BearerAuth
func (c *ContentController) List(ctx *gin.Context) {
	page, err := pageFromQuery(ctx)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	filter := &repository.ContentFilter{
		TaskID:      optionalQuery(ctx, "task_id"),
		ContentType: optionalQuery(ctx, "content_type"),
		Language:    optionalQuery(ctx, "language"),
		SortBy:      ctx.Query("sort_by"),
		Order:       ctx.Query("order"),
	}
	if filter.Published, err = optionalBoolQuery(ctx, "published"); err != nil {
		HandleError(ctx, err)
		return
	}

	contents, total, err := c.contentService.List(filter, page)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	List(ctx, service.NewContentViews(contents), total, page)
}

// Get 获取生成内容
// @Summary      获取生成内容
// @Tags         生成内容
// @Produce      json
// @Param        id path string true "内容 ID"
// @Success      200  {object}  service.ContentView
// @Failure      404  {object}  ErrorResponse
// @Router       /generated/{id} [get]
// @Security     BearerAuth
func (c *ContentController) Get(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	content, err := c.contentService.Get(id)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, service.NewContentView(content))
}

// Update 编辑生成内容
// @Summary      编辑生成内容
// @Tags         生成内容
// @Accept       json
// @Produce      json
// @Param        id path string true "内容 ID"
// @Param        request body service.UpdateContentRequest true "更新内容"
// @Success      200  {object}  service.ContentView
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /generated/{id} [put]
// @Security     BearerAuth
func (c *ContentController) Update(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	var req service.UpdateContentRequest
	if !bindJSON(ctx, &req) {
		return
	}

	content, err := c.contentService.Update(ctx.Request.Context(), id, &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, service.NewContentView(content))
}

// Delete 删除生成内容
// @Summary      删除生成内容
// @Tags         生成内容
// @Param        id path string true "内容 ID"
// @Success      204
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /generated/{id} [delete]
// @Security     BearerAuth
func (c *ContentController) Delete(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	if err := c.contentService.Delete(ctx.Request.Context(), id); err != nil {
		HandleError(ctx, err)
		return
	}
	NoContent(ctx)
}

// Publish 发布生成内容
// @Summary      发布生成内容
// @Description  推送到 content、social 或 notification 服务;已发布的内容不能再次发布,失败不自动重试
// @Tags         生成内容
// @Accept       json
// @Produce      json
// @Param        id path string true "内容 ID"
// @Param        request body service.PublishRequest true "发布参数"
// @Success      200  {object}  service.PublishResult
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Failure      502  {object}  ErrorResponse
// @Router       /generated/{id}/publish [post]
// @Security     BearerAuth
func (c *ContentController) Publish(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	var req service.PublishRequest
	if !bindJSON(ctx, &req) {
		return
	}

	result, err := c.contentService.Publish(ctx.Request.Context(), id, &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, result)
}

// PublishRecords 发布记录
// @Summary      发布记录
// @Tags         生成内容
// @Produce      json
// @Param        id path string true "内容 ID"
// @Success      200  {array}   model.PublishRecordModel
// @Failure      404  {object}  ErrorResponse
// @Router       /generated/{id}/publish-records [get]
// @Security     BearerAuth
func (c *ContentController) PublishRecords(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	records, err := c.contentService.PublishRecords(id)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, records)
}

// Statistics 生成内容统计
// @Summary      生成内容统计
// @Description  按类型、语言统计及已发布数量
// @Tags         生成内容
// @Produce      json
// @Success      200  {object}  integration.ContentStatistics
// @Router       /generated/statistics [get]
// @Security     BearerAuth
func (c *ContentController) Statistics(ctx *gin.Context) {
	stats, err := c.contentService.Statistics()
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, stats)
}
