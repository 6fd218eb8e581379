package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mission-engadi/ai-service/internal/model"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/service"
)

// AutomationController 自动化工作流控制器
type AutomationController struct {
	automation service.AutomationService
}

// NewAutomationController 创建自动化控制器
func NewAutomationController(automation service.AutomationService) *AutomationController {
	return &AutomationController{automation: automation}
}

// Create 创建工作流
// @Summary      创建工作流
// @Description  configuration.steps 为按顺序执行的步骤,参数可通过 ${steps.<name>.output.<field>} 引用前序步骤输出
// @Tags         自动化
// @Accept       json
// @Produce      json
// @Param        request body service.CreateWorkflowRequest true "工作流定义"
// @Success      201  {object}  service.WorkflowView
// @Failure      422  {object}  ErrorResponse
// @Router       /automation/workflows [post]
// @Security     BearerAuth
func (c *AutomationController) Create(ctx *gin.Context) {
	var req service.CreateWorkflowRequest
	if !bindJSON(ctx, &req) {
		return
	}

	wf, err := c.automation.Create(ctx.Request.Context(), &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Created(ctx, service.NewWorkflowView(wf))
}

// Get 获取工作流
// @Summary      获取工作流
// @Tags         自动化
// @Produce      json
// @Param        id path string true "工作流 ID"
// @Success      200  {object}  service.WorkflowView
// @Failure      404  {object}  ErrorResponse
// @Router       /automation/workflows/{id} [get]
// @Security     BearerAuth
func (c *AutomationController) Get(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	wf, err := c.automation.Get(id)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, service.NewWorkflowView(wf))
}

// List 工作流列表
// @Summary      工作流列表
// @Tags         自动化
// @Produce      json
// @Param        workflow_type query string false "工作流类型"
// @Param        enabled query bool false "是否启用"
// @Param        skip query int false "跳过条数" default(0)
// @Param        limit query int false "每页数量" default(20)
// @Success      200  {object}  ListResponse{items=[]service.WorkflowView}
// @Failure      422  {object}  ErrorResponse
// @Router       /automation/workflows [get]
// @Security     BearerAuth
func (c *AutomationController) List(ctx *gin.Context) {
	page, err := pageFromQuery(ctx)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	filter := &repository.WorkflowFilter{WorkflowType: optionalQuery(ctx, "workflow_type")}
	if filter.Enabled, err = optionalBoolQuery(ctx, "enabled"); err != nil {
		HandleError(ctx, err)
		return
	}

	workflows, total, err := c.automation.List(filter, page)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	views := make([]*service.WorkflowView, 0, len(workflows))
	for _, wf := range workflows {
		views = append(views, service.NewWorkflowView(wf))
	}
	List(ctx, views, total, page)
}

// Update 更新工作流
// @Summary      更新工作流
// @Tags         自动化
// @Accept       json
// @Produce      json
// @Param        id path string true "工作流 ID"
// @Param        request body service.UpdateWorkflowRequest true "更新内容"
// @Success      200  {object}  service.WorkflowView
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /automation/workflows/{id} [put]
// @Security     BearerAuth
func (c *AutomationController) Update(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	var req service.UpdateWorkflowRequest
	if !bindJSON(ctx, &req) {
		return
	}

	wf, err := c.automation.Update(ctx.Request.Context(), id, &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, service.NewWorkflowView(wf))
}

// Delete 删除工作流
// @Summary      删除工作流
// @Tags         自动化
// @Param        id path string true "工作流 ID"
// @Success      204
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /automation/workflows/{id} [delete]
// @Security     BearerAuth
func (c *AutomationController) Delete(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	if err := c.automation.Delete(ctx.Request.Context(), id); err != nil {
		HandleError(ctx, err)
		return
	}
	NoContent(ctx)
}

// Execute 手动触发工作流
// @Summary      触发工作流
// @Description  按顺序执行步骤,首个失败的步骤之后不再执行;停止原因记录在 execution.halted_reason
// @Tags         自动化
// @Accept       json
// @Produce      json
// @Param        id path string true "工作流 ID"
// @Param        request body service.TriggerRequest false "触发数据"
// @Success      200  {object}  service.TriggerResult
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /automation/workflows/{id}/execute [post]
// @Security     BearerAuth
func (c *AutomationController) Execute(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	var req service.TriggerRequest
	if ctx.Request.ContentLength > 0 && !bindJSON(ctx, &req) {
		return
	}

	result, err := c.automation.Trigger(ctx.Request.Context(), id, req.TriggerData)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, result)
}

// History 执行历史
// @Summary      工作流执行历史
// @Tags         自动化
// @Produce      json
// @Param        id path string true "工作流 ID"
// @Param        skip query int false "跳过条数" default(0)
// @Param        limit query int false "每页数量" default(20)
// @Success      200  {object}  ListResponse{items=[]service.ExecutionView}
// @Failure      404  {object}  ErrorResponse
// @Router       /automation/workflows/{id}/history [get]
// @Security     BearerAuth
func (c *AutomationController) History(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	page, err := pageFromQuery(ctx)
	if err != nil {
		HandleError(ctx, err)
		return
	}

	executions, total, err := c.automation.History(id, page)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	List(ctx, executionViews(executions), total, page)
}

// RunDue 执行到期工作流
// @Summary      执行到期工作流
// @Description  供外部 cron 调用,仅管理员
// @Tags         自动化
// @Produce      json
// @Success      200  {object}  service.RunDueSummary
// @Failure      403  {object}  ErrorResponse
// @Router       /automation/run-due [post]
// @Security     BearerAuth
func (c *AutomationController) RunDue(ctx *gin.Context) {
	summary, err := c.automation.RunDue(ctx.Request.Context(), time.Now().UTC())
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, summary)
}

func executionViews(executions []*model.WorkflowExecutionModel) []*service.ExecutionView {
	views := make([]*service.ExecutionView, 0, len(executions))
	for _, e := range executions {
		views = append(views, service.NewExecutionView(e))
	}
	return views
}
