package api

import (
	"encoding/json"

	"github.com/gin-gonic/gin"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/service"
	"github.com/mission-engadi/ai-service/internal/types"
)

// ContentKinds 内容生成路径与内容类型的对应关系
var ContentKinds = map[string]types.ContentType{
	"social":              types.ContentTypeSocialPost,
	"article":             types.ContentTypeArticle,
	"story":               types.ContentTypeStory,
	"donor-communication": types.ContentTypeDonorLetter,
	"newsletter":          types.ContentTypeNewsletter,
	"prayer-request":      types.ContentTypePrayerRequest,
	"campaign-copy":       types.ContentTypeCampaignCopy,
}

// EnhancementKinds 内容增强路径
var EnhancementKinds = []types.EnhancementType{
	types.EnhancementGrammar,
	types.EnhancementTone,
	types.EnhancementSEO,
	types.EnhancementSummarize,
	types.EnhancementImprove,
}

// approvalFlag 请求体中与输入并列的审批标记
type approvalFlag struct {
	RequiresApproval bool `json:"requires_approval"`
}

// DetectRequest 语言检测请求
type DetectRequest struct {
	Text string `json:"text" example:"Hola, ¿cómo estás?" binding:"required"`
}

// BatchResponse 批量请求结果
type BatchResponse struct {
	Results   []*service.BatchItemResult `json:"results"`
	Succeeded int                        `json:"succeeded"`
	Failed    int                        `json:"failed"`
}

// ContentBatchRequest 批量内容生成请求
type ContentBatchRequest struct {
	Items            []*types.ContentGenerationInput `json:"items" binding:"required,min=1,max=20"`
	RequiresApproval bool                            `json:"requires_approval"`
}

// TranslationBatchRequest 批量翻译请求
type TranslationBatchRequest struct {
	Items            []*types.TranslationInput `json:"items" binding:"required,min=1,max=20"`
	RequiresApproval bool                      `json:"requires_approval"`
}

// EnhancementBatchRequest 批量增强请求
type EnhancementBatchRequest struct {
	Items            []*types.EnhancementInput `json:"items" binding:"required,min=1,max=20"`
	RequiresApproval bool                      `json:"requires_approval"`
}

// GenerationController 内容生成、翻译、图片与增强控制器
type GenerationController struct {
	generation service.GenerationService
	tasks      service.TaskService
}

// NewGenerationController 创建生成控制器
func NewGenerationController(generation service.GenerationService, tasks service.TaskService) *GenerationController {
	return &GenerationController{generation: generation, tasks: tasks}
}

// GenerateContent 生成指定类型的内容
// @Summary      生成内容
// @Description  kind 取值 social、article、story、donor-communication、newsletter、prayer-request、campaign-copy
// @Tags         内容生成
// @Accept       json
// @Produce      json
// @Param        kind path string true "内容类型"
// @Param        request body types.ContentGenerationInput true "生成参数"
// @Success      201  {object}  service.TaskDetail
// @Failure      422  {object}  ErrorResponse
// @Failure      502  {object}  ErrorResponse
// @Failure      503  {object}  ErrorResponse
// @Router       /content/generate/{kind} [post]
// @Security     BearerAuth
func (c *GenerationController) GenerateContent(contentType types.ContentType) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var input types.ContentGenerationInput
		flag, ok := bindInput(ctx, &input)
		if !ok {
			return
		}
		input.ContentType = contentType
		c.run(ctx, &input, flag.RequiresApproval)
	}
}

// BatchContent 批量生成内容
// @Summary      批量生成内容
// @Description  并发执行,单项失败不影响其他项
// @Tags         内容生成
// @Accept       json
// @Produce      json
// @Param        request body ContentBatchRequest true "批量参数"
// @Success      200  {object}  BatchResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /content/generate/batch [post]
// @Security     BearerAuth
func (c *GenerationController) BatchContent(ctx *gin.Context) {
	var req ContentBatchRequest
	if !bindJSON(ctx, &req) {
		return
	}
	inputs := make([]types.TaskInput, 0, len(req.Items))
	for _, item := range req.Items {
		inputs = append(inputs, item)
	}
	c.batch(ctx, inputs, req.RequiresApproval)
}

// GetContentTask 获取内容生成任务
// @Summary      获取内容生成任务
// @Tags         内容生成
// @Produce      json
// @Param        id path string true "任务 ID"
// @Success      200  {object}  service.TaskDetail
// @Failure      404  {object}  ErrorResponse
// @Router       /content/generate/{id} [get]
// @Security     BearerAuth
func (c *GenerationController) GetContentTask(ctx *gin.Context) {
	c.getTask(ctx, types.TaskTypeContentGeneration)
}

// ListContentTasks 内容生成任务列表
// @Summary      内容生成任务列表
// @Tags         内容生成
// @Produce      json
// @Param        status query string false "任务状态"
// @Param        skip query int false "跳过条数" default(0)
// @Param        limit query int false "每页数量" default(20)
// @Success      200  {object}  ListResponse{items=[]service.TaskView}
// @Router       /content/generate [get]
// @Security     BearerAuth
func (c *GenerationController) ListContentTasks(ctx *gin.Context) {
	c.listTasks(ctx, types.TaskTypeContentGeneration)
}

// Translate 翻译文本
// @Summary      翻译文本
// @Description  支持 target_language 或 target_languages,每个目标语言对应一个翻译子任务
// @Tags         翻译
// @Accept       json
// @Produce      json
// @Param        request body types.TranslationInput true "翻译参数"
// @Success      201  {object}  service.TaskDetail
// @Failure      422  {object}  ErrorResponse
// @Failure      502  {object}  ErrorResponse
// @Failure      503  {object}  ErrorResponse
// @Router       /translation/translate [post]
// @Security     BearerAuth
func (c *GenerationController) Translate(ctx *gin.Context) {
	var input types.TranslationInput
	flag, ok := bindInput(ctx, &input)
	if !ok {
		return
	}
	c.run(ctx, &input, flag.RequiresApproval)
}

// BatchTranslate 批量翻译
// @Summary      批量翻译
// @Tags         翻译
// @Accept       json
// @Produce      json
// @Param        request body TranslationBatchRequest true "批量参数"
// @Success      200  {object}  BatchResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /translation/batch [post]
// @Security     BearerAuth
func (c *GenerationController) BatchTranslate(ctx *gin.Context) {
	var req TranslationBatchRequest
	if !bindJSON(ctx, &req) {
		return
	}
	inputs := make([]types.TaskInput, 0, len(req.Items))
	for _, item := range req.Items {
		inputs = append(inputs, item)
	}
	c.batch(ctx, inputs, req.RequiresApproval)
}

// Detect 语言检测
// @Summary      检测语言
// @Tags         翻译
// @Accept       json
// @Produce      json
// @Param        request body DetectRequest true "待检测文本"
// @Success      200  {object}  service.DetectResult
// @Failure      422  {object}  ErrorResponse
// @Failure      503  {object}  ErrorResponse
// @Router       /translation/detect [post]
// @Security     BearerAuth
func (c *GenerationController) Detect(ctx *gin.Context) {
	var req DetectRequest
	if !bindJSON(ctx, &req) {
		return
	}

	result, err := c.generation.DetectLanguage(ctx.Request.Context(), req.Text)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, result)
}

// AutoTranslate 自动翻译已生成内容
// @Summary      自动翻译
// @Description  将生成内容翻译为除其自身语言外的每个目标语言,默认目标语言由配置决定
// @Tags         翻译
// @Accept       json
// @Produce      json
// @Param        request body service.AutoTranslateRequest true "自动翻译参数"
// @Success      201  {object}  service.TaskDetail
// @Failure      404  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /translation/auto-translate [post]
// @Security     BearerAuth
func (c *GenerationController) AutoTranslate(ctx *gin.Context) {
	var req service.AutoTranslateRequest
	if !bindJSON(ctx, &req) {
		return
	}

	task, err := c.generation.AutoTranslate(ctx.Request.Context(), &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	c.respondDetail(ctx, task.ID)
}

// TranslationHistory 翻译历史
// @Summary      翻译历史
// @Description  按内容、语言、状态过滤的翻译子任务
// @Tags         翻译
// @Produce      json
// @Param        content_id query string false "源内容 ID"
// @Param        task_id query string false "任务 ID"
// @Param        source_language query string false "源语言"
// @Param        target_language query string false "目标语言"
// @Param        status query string false "状态"
// @Param        skip query int false "跳过条数" default(0)
// @Param        limit query int false "每页数量" default(20)
// @Success      200  {object}  ListResponse{items=[]model.TranslationJobModel}
// @Router       /translation/history [get]
// @Security     BearerAuth
func (c *GenerationController) TranslationHistory(ctx *gin.Context) {
	page, err := pageFromQuery(ctx)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	filter := &repository.TranslationJobFilter{
		ContentID:      optionalQuery(ctx, "content_id"),
		TaskID:         optionalQuery(ctx, "task_id"),
		SourceLanguage: optionalQuery(ctx, "source_language"),
		TargetLanguage: optionalQuery(ctx, "target_language"),
		Status:         optionalQuery(ctx, "status"),
	}

	jobs, total, err := c.generation.TranslationHistory(filter, page)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	List(ctx, jobs, total, page)
}

// GenerateImage 生成图片
// @Summary      生成图片
// @Description  尺寸 256x256、512x512、1024x1024、1024x1792、1792x1024,n 取 1 到 4
// @Tags         图片
// @Accept       json
// @Produce      json
// @Param        request body types.ImageGenerationInput true "图片参数"
// @Success      201  {object}  service.TaskDetail
// @Failure      422  {object}  ErrorResponse
// @Failure      502  {object}  ErrorResponse
// @Router       /images/generate [post]
// @Security     BearerAuth
func (c *GenerationController) GenerateImage(ctx *gin.Context) {
	var input types.ImageGenerationInput
	flag, ok := bindInput(ctx, &input)
	if !ok {
		return
	}
	if input.IsVariation() {
		HandleError(ctx, types.NewValidationError("source_image_url is only accepted by /images/variation"))
		return
	}
	c.run(ctx, &input, flag.RequiresApproval)
}

// ImageVariation 生成图片变体
// @Summary      生成图片变体
// @Description  基于 source_image_url 生成变体,n 取 1 到 10
// @Tags         图片
// @Accept       json
// @Produce      json
// @Param        request body types.ImageGenerationInput true "变体参数"
// @Success      201  {object}  service.TaskDetail
// @Failure      422  {object}  ErrorResponse
// @Router       /images/variation [post]
// @Security     BearerAuth
func (c *GenerationController) ImageVariation(ctx *gin.Context) {
	var input types.ImageGenerationInput
	flag, ok := bindInput(ctx, &input)
	if !ok {
		return
	}
	if !input.IsVariation() {
		HandleError(ctx, types.NewValidationError("source_image_url is required"))
		return
	}
	c.run(ctx, &input, flag.RequiresApproval)
}

// GetImageTask 获取图片任务
// @Summary      获取图片任务
// @Tags         图片
// @Produce      json
// @Param        id path string true "任务 ID"
// @Success      200  {object}  service.TaskDetail
// @Failure      404  {object}  ErrorResponse
// @Router       /images/{id} [get]
// @Security     BearerAuth
func (c *GenerationController) GetImageTask(ctx *gin.Context) {
	c.getTask(ctx, types.TaskTypeImageGeneration)
}

// ListImageTasks 图片任务列表
// @Summary      图片任务列表
// @Tags         图片
// @Produce      json
// @Param        status query string false "任务状态"
// @Param        skip query int false "跳过条数" default(0)
// @Param        limit query int false "每页数量" default(20)
// @Success      200  {object}  ListResponse{items=[]service.TaskView}
// @Router       /images [get]
// @Security     BearerAuth
func (c *GenerationController) ListImageTasks(ctx *gin.Context) {
	c.listTasks(ctx, types.TaskTypeImageGeneration)
}

// Enhance 内容增强
// @Summary      内容增强
// @Description  kind 取值 grammar、tone(需要 target_tone)、seo、summarize、improve
// @Tags         内容增强
// @Accept       json
// @Produce      json
// @Param        kind path string true "增强类型"
// @Param        request body types.EnhancementInput true "增强参数"
// @Success      201  {object}  service.TaskDetail
// @Failure      422  {object}  ErrorResponse
// @Failure      502  {object}  ErrorResponse
// @Router       /enhancement/{kind} [post]
// @Security     BearerAuth
func (c *GenerationController) Enhance(kind types.EnhancementType) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var input types.EnhancementInput
		flag, ok := bindInput(ctx, &input)
		if !ok {
			return
		}
		input.EnhancementType = kind
		c.run(ctx, &input, flag.RequiresApproval)
	}
}

// BatchEnhance 批量增强
// @Summary      批量增强
// @Tags         内容增强
// @Accept       json
// @Produce      json
// @Param        request body EnhancementBatchRequest true "批量参数"
// @Success      200  {object}  BatchResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /enhancement/batch [post]
// @Security     BearerAuth
func (c *GenerationController) BatchEnhance(ctx *gin.Context) {
	var req EnhancementBatchRequest
	if !bindJSON(ctx, &req) {
		return
	}
	inputs := make([]types.TaskInput, 0, len(req.Items))
	for _, item := range req.Items {
		inputs = append(inputs, item)
	}
	c.batch(ctx, inputs, req.RequiresApproval)
}

// EnhancementHistory 增强历史
// @Summary      增强历史
// @Tags         内容增强
// @Produce      json
// @Param        status query string false "任务状态"
// @Param        skip query int false "跳过条数" default(0)
// @Param        limit query int false "每页数量" default(20)
// @Success      200  {object}  ListResponse{items=[]service.TaskView}
// @Router       /enhancement/history [get]
// @Security     BearerAuth
func (c *GenerationController) EnhancementHistory(ctx *gin.Context) {
	c.listTasks(ctx, types.TaskTypeContentEnhancement)
}

// bindInput 解析任务输入与 requires_approval 标记
// TranslationInput 自定义了 UnmarshalJSON,不能与标记放在同一个结构体中
func bindInput(ctx *gin.Context, input types.TaskInput) (approvalFlag, bool) {
	var flag approvalFlag
	raw, err := ctx.GetRawData()
	if err != nil || len(raw) == 0 {
		HandleError(ctx, types.NewValidationError("request body is required"))
		return flag, false
	}
	if err := json.Unmarshal(raw, input); err != nil {
		HandleError(ctx, types.NewValidationError("invalid request: %v", err))
		return flag, false
	}
	if err := json.Unmarshal(raw, &flag); err != nil {
		HandleError(ctx, types.NewValidationError("invalid request: %v", err))
		return flag, false
	}
	return flag, true
}

// run 创建并执行任务,provider 错误在任务写回 failed 后返回
func (c *GenerationController) run(ctx *gin.Context, input types.TaskInput, requiresApproval bool) {
	task, err := c.generation.Run(ctx.Request.Context(), input, requiresApproval)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	c.respondDetail(ctx, task.ID)
}

func (c *GenerationController) respondDetail(ctx *gin.Context, taskID string) {
	detail, err := c.tasks.Detail(taskID)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Created(ctx, detail)
}

func (c *GenerationController) batch(ctx *gin.Context, inputs []types.TaskInput, requiresApproval bool) {
	results := c.generation.Batch(ctx.Request.Context(), inputs, requiresApproval)
	resp := BatchResponse{Results: results}
	for _, r := range results {
		if r.Error != "" {
			resp.Failed++
		} else {
			resp.Succeeded++
		}
	}
	Success(ctx, resp)
}

// getTask 按类型读取任务,类型不符视为不存在
func (c *GenerationController) getTask(ctx *gin.Context, taskType types.TaskType) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	detail, err := c.tasks.Detail(id)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	if detail.TaskType != string(taskType) {
		HandleError(ctx, types.NewNotFoundError(string(taskType)+" task", id))
		return
	}
	Success(ctx, detail)
}

func (c *GenerationController) listTasks(ctx *gin.Context, taskType types.TaskType) {
	page, err := pageFromQuery(ctx)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	typ := string(taskType)
	filter := &repository.TaskFilter{
		TaskType:  &typ,
		Status:    optionalQuery(ctx, "status"),
		CreatedBy: optionalQuery(ctx, "created_by"),
	}

	tasks, total, err := c.tasks.List(filter, page)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	List(ctx, taskViews(tasks), total, page)
}
