package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/mission-engadi/ai-service/internal/model"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/service"
)

// TaskController 任务控制器
type TaskController struct {
	taskService service.TaskService
}

// NewTaskController 创建任务控制器
func NewTaskController(taskService service.TaskService) *TaskController {
	return &TaskController{
		taskService: taskService,
	}
}

// Create 创建任务
// @Summary      创建 AI 任务
// @Description  校验 task_type 与 input_data 后创建 pending 状态的任务
// @Tags         任务管理
// @Accept       json
// @Produce      json
// @Param        request body service.CreateTaskRequest true "任务信息"
// @Success      201  {object}  service.TaskView
// @Failure      401  {object}  ErrorResponse
// @Failure      422  {object}  ErrorResponse
// @Router       /tasks [post]
// @Security     BearerAuth
func (c *TaskController) Create(ctx *gin.Context) {
	var req service.CreateTaskRequest
	if !bindJSON(ctx, &req) {
		return
	}

	task, err := c.taskService.Create(ctx.Request.Context(), &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Created(ctx, service.NewTaskView(task))
}

// Get 获取任务
// @Summary      获取任务详情
// @Description  返回任务及其生成内容、翻译子任务和审批记录
// @Tags         任务管理
// @Produce      json
// @Param        id path string true "任务 ID"
// @Success      200  {object}  service.TaskDetail
// @Failure      404  {object}  ErrorResponse
// @Router       /tasks/{id} [get]
// @Security     BearerAuth
func (c *TaskController) Get(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	detail, err := c.taskService.Detail(id)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, detail)
}

// List 任务列表
// @Summary      获取任务列表
// @Description  按类型、状态、审批情况过滤的分页列表
// @Tags         任务管理
// @Produce      json
// @Param        task_type query string false "任务类型"
// @Param        status query string false "任务状态"
// @Param        requires_approval query bool false "是否需要审批"
// @Param        approved query bool false "是否已审批"
// @Param        created_by query string false "创建人"
// @Param        sort_by query string false "排序字段" default(created_at)
// @Param        order query string false "排序方向" Enums(asc, desc) default(desc)
// @Param        skip query int false "跳过条数" default(0)
// @Param        limit query int false "每页数量" default(20)
// @Success      200  {object}  ListResponse{items=[]service.TaskView}
// @Failure      422  {object}  ErrorResponse
// @Router       /tasks [get]
// @Security     BearerAuth
func (c *TaskController) List(ctx *gin.Context) {
	page, err := pageFromQuery(ctx)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	filter := &repository.TaskFilter{
		TaskType:  optionalQuery(ctx, "task_type"),
		Status:    optionalQuery(ctx, "status"),
		CreatedBy: optionalQuery(ctx, "created_by"),
		SortBy:    ctx.Query("sort_by"),
		Order:     ctx.Query("order"),
	}
	if filter.RequiresApproval, err = optionalBoolQuery(ctx, "requires_approval"); err != nil {
		HandleError(ctx, err)
		return
	}
	if filter.Approved, err = optionalBoolQuery(ctx, "approved"); err != nil {
		HandleError(ctx, err)
		return
	}

	tasks, total, err := c.taskService.List(filter, page)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	List(ctx, taskViews(tasks), total, page)
}

// Execute 执行任务
// @Summary      执行任务
// @Description  pending 任务进入 processing 并调用 AI provider;并发重复调用只会执行一次
// @Tags         任务管理
// @Produce      json
// @Param        id path string true "任务 ID"
// @Success      200  {object}  service.TaskView
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Failure      502  {object}  ErrorResponse
// @Failure      503  {object}  ErrorResponse
// @Router       /tasks/{id}/execute [post]
// @Security     BearerAuth
func (c *TaskController) Execute(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	task, err := c.taskService.Execute(ctx.Request.Context(), id)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, service.NewTaskView(task))
}

// Cancel 取消任务
// @Summary      取消任务
// @Description  取消 pending 或 processing 状态的任务
// @Tags         任务管理
// @Accept       json
// @Produce      json
// @Param        id path string true "任务 ID"
// @Param        request body service.CancelRequest false "取消原因"
// @Success      200  {object}  service.TaskView
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /tasks/{id}/cancel [post]
// @Security     BearerAuth
func (c *TaskController) Cancel(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	var req service.CancelRequest
	if ctx.Request.ContentLength > 0 && !bindJSON(ctx, &req) {
		return
	}

	task, err := c.taskService.Cancel(ctx.Request.Context(), id, req.Reason)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, service.NewTaskView(task))
}

// Approve 审批同意
// @Summary      审批同意
// @Description  只能审批 completed 且需要审批的任务
// @Tags         任务管理
// @Accept       json
// @Produce      json
// @Param        id path string true "任务 ID"
// @Param        request body service.DecisionRequest false "审批意见"
// @Success      200  {object}  service.TaskView
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /tasks/{id}/approve [post]
// @Security     BearerAuth
func (c *TaskController) Approve(ctx *gin.Context) {
	c.decide(ctx, c.taskService.Approve)
}

// Reject 审批拒绝
// @Summary      审批拒绝
// @Description  拒绝 completed 且需要审批的任务,任务进入 rejected
// @Tags         任务管理
// @Accept       json
// @Produce      json
// @Param        id path string true "任务 ID"
// @Param        request body service.DecisionRequest false "拒绝原因"
// @Success      200  {object}  service.TaskView
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /tasks/{id}/reject [post]
// @Security     BearerAuth
func (c *TaskController) Reject(ctx *gin.Context) {
	c.decide(ctx, c.taskService.Reject)
}

type decisionFunc func(ctx context.Context, id string, req *service.DecisionRequest) (*model.TaskModel, error)

func (c *TaskController) decide(ctx *gin.Context, fn decisionFunc) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	var req service.DecisionRequest
	if ctx.Request.ContentLength > 0 && !bindJSON(ctx, &req) {
		return
	}

	task, err := fn(ctx.Request.Context(), id, &req)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, service.NewTaskView(task))
}

// Delete 删除任务
// @Summary      删除任务
// @Description  删除任务及其生成内容、翻译子任务和历史,处理中的任务不能删除
// @Tags         任务管理
// @Param        id path string true "任务 ID"
// @Success      204
// @Failure      400  {object}  ErrorResponse
// @Failure      403  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse
// @Router       /tasks/{id} [delete]
// @Security     BearerAuth
func (c *TaskController) Delete(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	if err := c.taskService.Delete(ctx.Request.Context(), id); err != nil {
		HandleError(ctx, err)
		return
	}
	NoContent(ctx)
}

// Statistics 任务统计
// @Summary      任务统计
// @Description  按状态与类型统计任务数量及平均处理时长
// @Tags         任务管理
// @Produce      json
// @Success      200  {object}  integration.TaskStatistics
// @Router       /tasks/statistics [get]
// @Security     BearerAuth
func (c *TaskController) Statistics(ctx *gin.Context) {
	stats, err := c.taskService.Statistics()
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, stats)
}

// History 状态历史
// @Summary      任务状态历史
// @Tags         任务管理
// @Produce      json
// @Param        id path string true "任务 ID"
// @Success      200  {array}   model.StateHistoryModel
// @Failure      404  {object}  ErrorResponse
// @Router       /tasks/{id}/history [get]
// @Security     BearerAuth
func (c *TaskController) History(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}

	history, err := c.taskService.History(id)
	if err != nil {
		HandleError(ctx, err)
		return
	}
	Success(ctx, history)
}

func taskViews(tasks []*model.TaskModel) []*service.TaskView {
	views := make([]*service.TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, service.NewTaskView(t))
	}
	return views
}
