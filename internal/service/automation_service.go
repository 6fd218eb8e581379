package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mission-engadi/ai-service/internal/auth"
	"github.com/mission-engadi/ai-service/internal/events"
	"github.com/mission-engadi/ai-service/internal/integration"
	"github.com/mission-engadi/ai-service/internal/metrics"
	"github.com/mission-engadi/ai-service/internal/model"
	"github.com/mission-engadi/ai-service/internal/provider"
	"github.com/mission-engadi/ai-service/internal/publisher"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/types"
	"github.com/mission-engadi/ai-service/internal/utils"
	"github.com/sirupsen/logrus"
)

// DefaultWorkflowType 未指定类型时的工作流类型
const DefaultWorkflowType = "custom"

// AutomationService 自动化工作流服务
type AutomationService interface {
	Create(ctx context.Context, req *CreateWorkflowRequest) (*model.WorkflowModel, error)
	Get(id string) (*model.WorkflowModel, error)
	List(filter *repository.WorkflowFilter, page repository.Page) ([]*model.WorkflowModel, int64, error)
	Update(ctx context.Context, id string, req *UpdateWorkflowRequest) (*model.WorkflowModel, error)
	Delete(ctx context.Context, id string) error
	// Trigger 按顺序执行步骤,首个失败即停止;停止不视为调用错误,结果记录在执行历史中
	Trigger(ctx context.Context, id string, triggerData map[string]interface{}) (*TriggerResult, error)
	History(id string, page repository.Page) ([]*model.WorkflowExecutionModel, int64, error)
	// RunDue 触发所有到期的工作流并推进下一次执行时间
	RunDue(ctx context.Context, now time.Time) (*RunDueSummary, error)
	// Executor automation 任务的执行器
	Executor() Executor
}

// CreateWorkflowRequest 创建工作流请求
// @Description configuration.steps 为按顺序执行的步骤列表
type CreateWorkflowRequest struct {
	Name          string                 `json:"name" example:"weekly outreach" binding:"required"` // 工作流名称
	Description   string                 `json:"description"`                                       // 描述
	WorkflowType  string                 `json:"workflow_type" example:"scheduled_post"`            // 工作流类型
	Configuration map[string]interface{} `json:"configuration" swaggertype:"object" binding:"required"`
	Schedule      string                 `json:"schedule" example:"0 9 * * 1"` // 5 段 cron 表达式
	Enabled       *bool                  `json:"enabled"`                      // 缺省为 true
}

// UpdateWorkflowRequest 更新工作流请求
type UpdateWorkflowRequest struct {
	Name          *string                `json:"name"`
	Description   *string                `json:"description"`
	WorkflowType  *string                `json:"workflow_type"`
	Configuration map[string]interface{} `json:"configuration" swaggertype:"object"`
	Schedule      *string                `json:"schedule"`
	Enabled       *bool                  `json:"enabled"`
}

// TriggerRequest 手动触发请求
type TriggerRequest struct {
	TriggerData map[string]interface{} `json:"trigger_data" swaggertype:"object"`
}

// TriggerResult 触发结果
type TriggerResult struct {
	Task      *TaskView      `json:"task"`
	Execution *ExecutionView `json:"execution,omitempty"`
}

// RunDueSummary 到期工作流的执行汇总
type RunDueSummary struct {
	Due       int      `json:"due"`
	Completed int      `json:"completed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// automationService 自动化服务实现
type automationService struct {
	workflowMgr integration.WorkflowManager
	tasks       TaskService
	generation  GenerationService
	templates   TemplateService
	contents    ContentService
	gateway     provider.Gateway
	registry    *publisher.Registry
	authorizer  auth.Authorizer
	auditLogSvc AuditLogService
	events      eventEmitter
	logger      logrus.FieldLogger
	actions     map[string]Action
}

// AutomationDeps 自动化服务依赖
type AutomationDeps struct {
	Workflows   integration.WorkflowManager
	Tasks       TaskService
	Generation  GenerationService
	Templates   TemplateService
	Contents    ContentService
	Gateway     provider.Gateway
	Registry    *publisher.Registry
	Authorizer  auth.Authorizer
	AuditLogSvc AuditLogService
	Publisher   events.Publisher
	Logger      logrus.FieldLogger
}

// NewAutomationService 创建自动化服务
func NewAutomationService(deps AutomationDeps) AutomationService {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	authorizer := deps.Authorizer
	if authorizer == nil {
		authorizer = auth.NewRoleAuthorizer(nil, "", nil)
	}
	s := &automationService{
		workflowMgr: deps.Workflows,
		tasks:       deps.Tasks,
		generation:  deps.Generation,
		templates:   deps.Templates,
		contents:    deps.Contents,
		gateway:     deps.Gateway,
		registry:    deps.Registry,
		authorizer:  authorizer,
		auditLogSvc: deps.AuditLogSvc,
		events:      newEventEmitter(deps.Publisher, logger),
		logger:      logger.WithField("component", "automation_service"),
	}
	s.actions = s.defaultActions()
	return s
}

// Create 创建工作流
func (s *automationService) Create(ctx context.Context, req *CreateWorkflowRequest) (*model.WorkflowModel, error) {
	// 1. 校验配置
	if err := utils.ValidateName(req.Name); err != nil {
		return nil, types.NewValidationError("invalid name: %v", err)
	}
	configuration, err := json.Marshal(req.Configuration)
	if err != nil {
		return nil, types.NewValidationError("invalid configuration: %v", err)
	}
	if _, err := parseConfiguration(configuration, s.actions); err != nil {
		return nil, err
	}

	// 2. 构建并保存,计划校验与下一次执行时间由管理器处理
	wf := &model.WorkflowModel{
		Name:          req.Name,
		Description:   req.Description,
		WorkflowType:  req.WorkflowType,
		Configuration: configuration,
		Schedule:      strings.TrimSpace(req.Schedule),
		Enabled:       true,
		CreatedBy:     operatorOf(ctx),
	}
	if wf.WorkflowType == "" {
		wf.WorkflowType = DefaultWorkflowType
	}
	if req.Enabled != nil {
		wf.Enabled = *req.Enabled
	}
	if err := s.workflowMgr.Create(wf); err != nil {
		return nil, err
	}

	recordAudit(ctx, s.auditLogSvc, "create", events.ResourceWorkflow, wf.ID, map[string]interface{}{
		"name":     wf.Name,
		"schedule": wf.Schedule,
	})
	return wf, nil
}

// Get 获取工作流
func (s *automationService) Get(id string) (*model.WorkflowModel, error) {
	return s.workflowMgr.Get(id)
}

// List 分页查询工作流
func (s *automationService) List(filter *repository.WorkflowFilter, page repository.Page) ([]*model.WorkflowModel, int64, error) {
	return s.workflowMgr.List(filter, page)
}

// Update 更新工作流,仅创建者或管理员
func (s *automationService) Update(ctx context.Context, id string, req *UpdateWorkflowRequest) (*model.WorkflowModel, error) {
	wf, err := s.workflowMgr.Get(id)
	if err != nil {
		return nil, err
	}
	if !s.authorizer.CanAccess(identityOf(ctx), wf.CreatedBy) {
		return nil, types.NewForbiddenError("not allowed to update workflow %s", id)
	}

	if req.Name != nil {
		if err := utils.ValidateName(*req.Name); err != nil {
			return nil, types.NewValidationError("invalid name: %v", err)
		}
		wf.Name = *req.Name
	}
	if req.Description != nil {
		wf.Description = *req.Description
	}
	if req.WorkflowType != nil && *req.WorkflowType != "" {
		wf.WorkflowType = *req.WorkflowType
	}
	if req.Configuration != nil {
		configuration, err := json.Marshal(req.Configuration)
		if err != nil {
			return nil, types.NewValidationError("invalid configuration: %v", err)
		}
		if _, err := parseConfiguration(configuration, s.actions); err != nil {
			return nil, err
		}
		wf.Configuration = configuration
	}
	if req.Schedule != nil {
		wf.Schedule = strings.TrimSpace(*req.Schedule)
	}
	if req.Enabled != nil {
		wf.Enabled = *req.Enabled
	}

	if err := s.workflowMgr.Update(wf); err != nil {
		return nil, err
	}
	recordAudit(ctx, s.auditLogSvc, "update", events.ResourceWorkflow, id, nil)
	return s.workflowMgr.Get(id)
}

// Delete 删除工作流及执行历史
func (s *automationService) Delete(ctx context.Context, id string) error {
	wf, err := s.workflowMgr.Get(id)
	if err != nil {
		return err
	}
	if !s.authorizer.CanAccess(identityOf(ctx), wf.CreatedBy) {
		return types.NewForbiddenError("not allowed to delete workflow %s", id)
	}
	if err := s.workflowMgr.Delete(id); err != nil {
		return err
	}
	recordAudit(ctx, s.auditLogSvc, "delete", events.ResourceWorkflow, id, nil)
	return nil
}

// History 执行历史
func (s *automationService) History(id string, page repository.Page) ([]*model.WorkflowExecutionModel, int64, error) {
	return s.workflowMgr.History(id, page)
}

// Trigger 触发工作流,执行过程由一个 automation 任务跟踪
func (s *automationService) Trigger(ctx context.Context, id string, triggerData map[string]interface{}) (*TriggerResult, error) {
	// 1. 工作流必须存在且启用
	wf, err := s.workflowMgr.Get(id)
	if err != nil {
		return nil, err
	}
	if !wf.Enabled {
		return nil, types.NewInvalidStateError("workflow %s is disabled", id)
	}
	if triggerData == nil {
		triggerData = map[string]interface{}{}
	}

	// 2. 创建并执行跟踪任务
	input, err := json.Marshal(&types.AutomationInput{WorkflowID: id, TriggerData: triggerData})
	if err != nil {
		return nil, fmt.Errorf("failed to encode trigger data: %w", err)
	}
	s.events.emit(ctx, events.WorkflowTriggered, events.ResourceWorkflow, id, map[string]interface{}{
		"trigger_data": triggerData,
	})
	task, execErr := s.tasks.CreateAndExecute(ctx, &CreateTaskRequest{
		TaskType:  types.TaskTypeAutomation,
		InputData: input,
	})
	if task == nil {
		return nil, execErr
	}

	// 3. 读取执行历史
	result := &TriggerResult{Task: NewTaskView(task)}
	var output types.AutomationOutput
	if len(task.OutputData) > 0 && json.Unmarshal(task.OutputData, &output) == nil && output.ExecutionID != "" {
		execution, err := s.workflowMgr.Execution(output.ExecutionID)
		if err != nil {
			return nil, err
		}
		result.Execution = NewExecutionView(execution)
	}
	if result.Execution == nil && execErr != nil {
		return nil, execErr
	}
	return result, nil
}

// RunDue 执行到期工作流,先推进 next_run_at 以免重复触发
func (s *automationService) RunDue(ctx context.Context, now time.Time) (*RunDueSummary, error) {
	due, err := s.workflowMgr.Due(now)
	if err != nil {
		return nil, fmt.Errorf("failed to load due workflows: %w", err)
	}

	summary := &RunDueSummary{Due: len(due)}
	if _, ok := auth.IdentityFrom(ctx); !ok {
		ctx = auth.WithIdentity(ctx, auth.SystemIdentity())
	}
	for _, wf := range due {
		logger := s.logger.WithFields(logrus.Fields{"workflow_id": wf.ID, "name": wf.Name})
		if err := s.workflowMgr.Advance(wf, now); err != nil {
			logger.WithError(err).Error("failed to advance workflow schedule")
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", wf.ID, err))
			continue
		}

		result, err := s.Trigger(ctx, wf.ID, map[string]interface{}{"scheduled_at": now.UTC().Format(time.RFC3339)})
		if err != nil {
			logger.WithError(err).Error("scheduled workflow run failed")
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", wf.ID, err))
			continue
		}
		if result.Execution != nil && result.Execution.Status == StepStatusFailed {
			logger.WithField("halted_reason", result.Execution.HaltedReason).Warn("scheduled workflow halted")
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %s", wf.ID, result.Execution.HaltedReason))
			continue
		}
		summary.Completed++
	}

	s.logger.WithFields(logrus.Fields{
		"due":       summary.Due,
		"completed": summary.Completed,
		"failed":    summary.Failed,
	}).Info("due workflows processed")
	return summary, nil
}

// Executor automation 任务执行器
func (s *automationService) Executor() Executor {
	return ExecutorFunc(s.execute)
}

// execute 运行步骤并写入执行历史,步骤失败时返回停止原因
func (s *automationService) execute(ctx context.Context, task *model.TaskModel, input types.TaskInput) (*ExecutionResult, error) {
	in, ok := input.(*types.AutomationInput)
	if !ok {
		return nil, types.NewValidationError("unexpected input for %s", task.TaskType)
	}

	// 1. 加载配置
	wf, err := s.workflowMgr.Get(in.WorkflowID)
	if err != nil {
		return nil, err
	}
	cfg, err := parseConfiguration(wf.Configuration, s.actions)
	if err != nil {
		return nil, err
	}

	// 2. 顺序执行
	started := time.Now().UTC()
	steps, haltErr := s.runSteps(ctx, cfg.Steps, in.TriggerData)
	finished := time.Now().UTC()

	// 3. 写入执行历史并递增执行次数
	status := StepStatusCompleted
	haltedReason := ""
	if haltErr != nil {
		status = StepStatusFailed
		haltedReason = haltErr.Error()
	}
	triggerData, _ := json.Marshal(in.TriggerData)
	stepsData, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("failed to encode step results: %w", err)
	}
	execution := &model.WorkflowExecutionModel{
		ID:           uuid.New().String(),
		WorkflowID:   wf.ID,
		TaskID:       task.ID,
		Status:       status,
		TriggerData:  triggerData,
		Steps:        stepsData,
		HaltedReason: haltedReason,
		TriggeredBy:  operatorOf(ctx),
		StartedAt:    started,
		FinishedAt:   &finished,
	}
	if err := s.workflowMgr.RecordExecution(execution); err != nil {
		return nil, err
	}
	metrics.RecordWorkflowRun(status)

	s.logger.WithFields(logrus.Fields{
		"workflow_id":  wf.ID,
		"execution_id": execution.ID,
		"status":       status,
		"steps_run":    len(steps),
	}).Info("workflow finished")
	s.events.emit(ctx, events.WorkflowFinished, events.ResourceWorkflow, wf.ID, map[string]interface{}{
		"execution_id":  execution.ID,
		"task_id":       task.ID,
		"status":        status,
		"halted_reason": haltedReason,
	})

	return &ExecutionResult{
		Output: types.AutomationOutput{
			WorkflowID:   wf.ID,
			ExecutionID:  execution.ID,
			Status:       status,
			StepsRun:     len(steps),
			HaltedReason: haltedReason,
		},
	}, haltErr
}

// runSteps 严格按顺序执行,首个失败的步骤之后不再执行
func (s *automationService) runSteps(ctx context.Context, steps []WorkflowStep, trigger map[string]interface{}) ([]StepResult, error) {
	scope := &stepScope{trigger: trigger}
	results := make([]StepResult, 0, len(steps))

	for i, step := range steps {
		res := StepResult{
			Index:     i,
			Name:      step.Name,
			Action:    step.Action,
			StartedAt: time.Now().UTC(),
		}

		output, err := s.runStep(ctx, scope, step)
		res.FinishedAt = time.Now().UTC()
		if err != nil {
			res.Status = StepStatusFailed
			res.Error = err.Error()
			results = append(results, res)
			return results, fmt.Errorf("step %d (%s) failed: %w", i, stepLabel(step), err)
		}

		res.Status = StepStatusCompleted
		res.Output = output
		results = append(results, res)
		scope.steps = results
	}
	return results, nil
}

func (s *automationService) runStep(ctx context.Context, scope *stepScope, step WorkflowStep) (map[string]interface{}, error) {
	action, ok := s.actions[step.Action]
	if !ok {
		return nil, types.NewValidationError("unknown action %q", step.Action)
	}
	params := step.Params
	if params == nil {
		params = map[string]interface{}{}
	}
	resolved, err := scope.resolve(params)
	if err != nil {
		return nil, err
	}
	return action(ctx, resolved.(map[string]interface{}))
}

func stepLabel(step WorkflowStep) string {
	if step.Name != "" {
		return step.Name
	}
	return step.Action
}
