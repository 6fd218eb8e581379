package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mission-engadi/ai-service/internal/model"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/service"
)

// TemplateController 模板控制器
type TemplateController struct {
	templateService service.TemplateService
}

// NewTemplateController 创建模板控制器
func NewTemplateController(templateService service.TemplateService) *TemplateController {
	return &TemplateController{
		templateService: templateService,
	}
}

// Create 创建模板
// @Summary      创建内容模板
// @Description  variables 省略时由模板文本推导;声明的变量必须与文本中的占位符一致
// @Tags         模板管理
// @Accept       json
// @Produce      json
// @Param        request body service.CreateTemplateRequest true "模板信息"
// @Success      201  {object}  service.TemplateView
// @Failure      401  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /templates [post]
// @Security     BearerAuth
func (c *TemplateController) Create(ctx *gin.Context) {
	var req service.CreateTemplateRequest
	if !bindJSON(ctx, &req) {
		return
	}

	tpl, err := c.templateService.Create(ctx.Request.Context(), &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Created(ctx, service.NewTemplateView(tpl))
}

// Get 获取模板
// @Summary      获取模板详情
// @Tags         模板管理
// @Produce      json
// @Param        id path string true "模板 ID"
// @Success      200  {object}  service.TemplateView
// @Failure      404  {object}  ErrorResponse
// @Router       /templates/{id} [get]
// @Security     BearerAuth
func (c *TemplateController) Get(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	tpl, err := c.templateService.Get(id)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, service.NewTemplateView(tpl))
}

// List 模板列表
// @Summary      获取模板列表
// @Description  按使用次数、最近使用时间排序
// @Tags         模板管理
// @Produce      json
// @Param        content_type query string false "内容类型"
// @Param        language query string false "语言"
// @Param        platform query string false "平台"
// @Param        active query bool false "是否启用"
// @Param        skip query int false "跳过条数" default(0)
// @Param        limit query int false "每页数量" default(20)
// @Success      200  {object}  ListResponse{items=[]service.TemplateView}
// @Failure      422  {object}  ErrorResponse
// @Router       /templates [get]
// @Security     BearerAuth
func (c *TemplateController) List(ctx *gin.Context) {
	page, err := pageFromQuery(ctx)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	filter := &repository.TemplateFilter{
		ContentType: optionalQuery(ctx, "content_type"),
		Language:    optionalQuery(ctx, "language"),
		Platform:    optionalQuery(ctx, "platform"),
	}
	if filter.Active, err = optionalBoolQuery(ctx, "active"); err != nil {
		HandleError(ctx, err)
		return
	}

	templates, total, err := c.templateService.List(filter, page)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	List(ctx, templateViews(templates), total, page)
}

// Update 更新模板
// @Summary      更新模板
// @Description  仅创建者或管理员可更新;修改文本时按声明的变量重新校验
// @Tags         模板管理
// @Accept       json
// @Produce      json
// @Param        id path string true "模板 ID"
// @Param        request body service.UpdateTemplateRequest true "更新内容"
// @Success      200  {object}  service.TemplateView
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /templates/{id} [put]
// @Security     BearerAuth
func (c *TemplateController) Update(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	var req service.UpdateTemplateRequest
	if !bindJSON(ctx, &req) {
		return
	}

	tpl, err := c.templateService.Update(ctx.Request.Context(), id, &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, service.NewTemplateView(tpl))
}

// Delete 删除模板
// @Summary      删除模板
// @Tags         模板管理
// @Param        id path string true "模板 ID"
// @Success      204
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /templates/{id} [delete]
// @Security     BearerAuth
func (c *TemplateController) Delete(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	if err := c.templateService.Delete(ctx.Request.Context(), id); err != nil {
		HandleError(ctx, err)
		return
	}
	NoContent(ctx)
}

// Apply 应用模板
// @Summary      渲染模板
// @Description  缺失变量返回 422;未声明的变量被忽略并在 warning 中说明;preview=true 时不计入使用次数
// @Tags         模板管理
// @Accept       json
// @Produce      json
// @Param        id path string true "模板 ID"
// @Param        preview query bool false "仅预览"
// @Param        request body service.ApplyRequest true "变量取值"
// @Success      200  {object}  service.ApplyResult
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /templates/{id}/apply [post]
// @Security     BearerAuth
func (c *TemplateController) Apply(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	var req service.ApplyRequest
	if !bindJSON(ctx, &req) {
		return
	}
	preview, err := optionalBoolQuery(ctx, "preview")
	if err != nil {
		HandleError(ctx, err)
		return
	}

	apply := c.templateService.Apply
	if preview != nil && *preview {
		apply = c.templateService.Preview
	}
	result, err := apply(ctx.Request.Context(), id, req.Variables)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, result)
}

// Suggest 推荐模板
// @Summary      推荐模板
// @Description  按关键词重合度、最近使用、使用次数排序,最多返回 limit 个
// @Tags         模板管理
// @Accept       json
// @Produce      json
// @Param        request body service.SuggestRequest true "推荐条件"
// @Success      200  {array}   service.TemplateSuggestion
// @Failure      422  {object}  ErrorResponse
// @Router       /templates/suggest [post]
// @Security     BearerAuth
func (c *TemplateController) Suggest(ctx *gin.Context) {
	var req service.SuggestRequest
	if !bindJSON(ctx, &req) {
		return
	}

	suggestions, err := c.templateService.Suggest(ctx.Request.Context(), &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, suggestions)
}

func templateViews(templates []*model.ContentTemplateModel) []*service.TemplateView {
	views := make([]*service.TemplateView, 0, len(templates))
	for _, t := range templates {
		views = append(views, service.NewTemplateView(t))
	}
	return views
}
