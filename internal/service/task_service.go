package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mission-engadi/ai-service/internal/auth"
	"github.com/mission-engadi/ai-service/internal/events"
	"github.com/mission-engadi/ai-service/internal/integration"
	"github.com/mission-engadi/ai-service/internal/model"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/types"
	"github.com/sirupsen/logrus"
)

// TaskService 任务服务接口
type TaskService interface {
	Create(ctx context.Context, req *CreateTaskRequest) (*model.TaskModel, error)
	// CreateAndExecute 创建并立即执行,执行失败时任务已写回 failed
	CreateAndExecute(ctx context.Context, req *CreateTaskRequest) (*model.TaskModel, error)
	Execute(ctx context.Context, id string) (*model.TaskModel, error)
	Cancel(ctx context.Context, id string, reason string) (*model.TaskModel, error)
	Approve(ctx context.Context, id string, req *DecisionRequest) (*model.TaskModel, error)
	Reject(ctx context.Context, id string, req *DecisionRequest) (*model.TaskModel, error)
	Delete(ctx context.Context, id string) error
	Get(id string) (*model.TaskModel, error)
	Detail(id string) (*TaskDetail, error)
	List(filter *repository.TaskFilter, page repository.Page) ([]*model.TaskModel, int64, error)
	Statistics() (*integration.TaskStatistics, error)
	History(id string) ([]*model.StateHistoryModel, error)
	// RegisterExecutor 注册任务类型的执行器
	RegisterExecutor(taskType types.TaskType, executor Executor)
}

// CreateTaskRequest 创建任务请求
// @Description 创建 AI 任务的请求参数,input_data 的结构由 task_type 决定
type CreateTaskRequest struct {
	TaskType         types.TaskType  `json:"task_type" example:"translation" binding:"required"`        // 任务类型
	InputData        json.RawMessage `json:"input_data" swaggertype:"object" binding:"required"`      // 任务输入
	RequiresApproval bool            `json:"requires_approval" example:"false"`                       // 是否需要审批
}

// DecisionRequest 审批/拒绝请求
// @Description 审批同意或拒绝的请求参数
type DecisionRequest struct {
	Comment string `json:"comment" example:"looks good"` // 审批意见或拒绝原因
}

// CancelRequest 取消请求
type CancelRequest struct {
	Reason string `json:"reason" example:"no longer needed"` // 取消原因
}

// Executor 按任务类型执行 provider 调用
// 返回 error 时,result 中已有的部分结果(如翻译子任务)也会写回
type Executor interface {
	Execute(ctx context.Context, task *model.TaskModel, input types.TaskInput) (*ExecutionResult, error)
}

// ExecutorFunc 函数适配为 Executor
type ExecutorFunc func(ctx context.Context, task *model.TaskModel, input types.TaskInput) (*ExecutionResult, error)

// Execute 实现 Executor
func (f ExecutorFunc) Execute(ctx context.Context, task *model.TaskModel, input types.TaskInput) (*ExecutionResult, error) {
	return f(ctx, task, input)
}

// ExecutionResult 执行结果
type ExecutionResult struct {
	Output     interface{}
	Prompt     string
	Model      string
	TokensUsed int
	Contents   []*model.GeneratedContentModel
	Jobs       []*model.TranslationJobModel
}

// taskService 任务服务实现
type taskService struct {
	taskMgr     integration.TaskManager
	authorizer  auth.Authorizer
	relations   auth.PermissionChecker
	auditLogSvc AuditLogService
	events      eventEmitter
	logger      logrus.FieldLogger

	mu        sync.RWMutex
	executors map[types.TaskType]Executor
}

// NewTaskService 创建任务服务
// relations 为 nil 时不写入 OpenFGA 关系
func NewTaskService(
	taskMgr integration.TaskManager,
	authorizer auth.Authorizer,
	relations auth.PermissionChecker,
	auditLogSvc AuditLogService,
	publisher events.Publisher,
	logger logrus.FieldLogger,
) TaskService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if authorizer == nil {
		authorizer = auth.NewRoleAuthorizer(nil, "", nil)
	}
	return &taskService{
		taskMgr:     taskMgr,
		authorizer:  authorizer,
		relations:   relations,
		auditLogSvc: auditLogSvc,
		events:      newEventEmitter(publisher, logger),
		logger:      logger.WithField("component", "task_service"),
		executors:   make(map[types.TaskType]Executor),
	}
}

// RegisterExecutor 注册执行器
func (s *taskService) RegisterExecutor(taskType types.TaskType, executor Executor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executors[taskType] = executor
}

func (s *taskService) executor(taskType types.TaskType) (Executor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.executors[taskType]
	return e, ok
}

// Create 创建任务
func (s *taskService) Create(ctx context.Context, req *CreateTaskRequest) (*model.TaskModel, error) {
	// 1. 校验任务类型与输入
	input, err := types.DecodeTaskInput(req.TaskType, req.InputData)
	if err != nil {
		return nil, err
	}
	normalized, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input_data: %w", err)
	}

	// 2. 翻译任务为每个目标语言创建子任务
	var jobs []*model.TranslationJobModel
	if in, ok := input.(*types.TranslationInput); ok {
		for _, target := range in.Targets() {
			jobs = append(jobs, &model.TranslationJobModel{
				ContentID:      in.ContentID,
				SourceText:     in.Text,
				SourceLanguage: string(in.SourceLanguage),
				TargetLanguage: string(target),
			})
		}
	}

	// 3. 持久化
	task := &model.TaskModel{
		TaskType:         string(req.TaskType),
		InputData:        normalized,
		RequiresApproval: req.RequiresApproval,
		CreatedBy:        operatorOf(ctx),
	}
	if err := s.taskMgr.Create(task, jobs); err != nil {
		return nil, err
	}

	// 4. 记录创建者关系
	if s.relations != nil {
		if err := s.relations.SetRelation(ctx, task.CreatedBy, auth.RelationCreator, auth.ObjectTask, task.ID); err != nil {
			s.logger.WithField("task_id", task.ID).WithError(err).Warn("failed to write creator relation")
		}
	}

	recordAudit(ctx, s.auditLogSvc, "create", events.ResourceTask, task.ID, map[string]interface{}{
		"task_type":         task.TaskType,
		"requires_approval": task.RequiresApproval,
	})
	s.events.emit(ctx, events.TaskCreated, events.ResourceTask, task.ID, map[string]interface{}{
		"task_type": task.TaskType,
		"status":    task.Status,
	})
	return task, nil
}

// CreateAndExecute 创建并执行
func (s *taskService) CreateAndExecute(ctx context.Context, req *CreateTaskRequest) (*model.TaskModel, error) {
	task, err := s.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, task.ID)
}

// Execute 执行任务
// 只有抢到 pending -> processing 的调用会请求 provider,其他调用直接返回当前任务
func (s *taskService) Execute(ctx context.Context, id string) (*model.TaskModel, error) {
	task, err := s.taskMgr.Get(id)
	if err != nil {
		return nil, err
	}
	if task.Status != string(types.TaskStatusPending) {
		return task, nil
	}

	taskType := types.TaskType(task.TaskType)
	executor, ok := s.executor(taskType)
	if !ok {
		return nil, fmt.Errorf("no executor registered for task type %s", taskType)
	}
	input, err := types.DecodeTaskInput(taskType, task.InputData)
	if err != nil {
		return nil, err
	}

	// 1. 抢占执行权
	operator := operatorOf(ctx)
	won, err := s.taskMgr.Start(id, operator)
	if err != nil {
		return nil, err
	}
	if !won {
		return s.taskMgr.Get(id)
	}
	s.emitStatus(ctx, id, types.TaskStatusPending, types.TaskStatusProcessing)

	// 2. 调用执行器
	task.Status = string(types.TaskStatusProcessing)
	result, execErr := executor.Execute(ctx, task, input)

	// 3. 写回结果
	if execErr != nil {
		return s.fail(ctx, task, result, execErr, operator)
	}
	return s.complete(ctx, task, result, operator)
}

func (s *taskService) complete(ctx context.Context, task *model.TaskModel, result *ExecutionResult, operator string) (*model.TaskModel, error) {
	if result == nil {
		result = &ExecutionResult{}
	}
	output, err := json.Marshal(result.Output)
	if err != nil {
		return s.fail(ctx, task, nil, fmt.Errorf("failed to encode output: %w", err), operator)
	}

	won, err := s.taskMgr.Complete(task.ID, &integration.Completion{
		OutputData: output,
		Prompt:     result.Prompt,
		ModelUsed:  result.Model,
		TokensUsed: result.TokensUsed,
		Contents:   result.Contents,
		Jobs:       result.Jobs,
	}, operator)
	if err != nil {
		// 写回失败时任务不能停留在 processing
		failed, failErr := s.fail(ctx, task, nil, fmt.Errorf("write-back failed: %w", err), operator)
		if failed == nil {
			s.logger.WithField("task_id", task.ID).WithError(failErr).Error("failed to mark task failed after write-back error")
		}
		return failed, err
	}
	if !won {
		s.logger.WithField("task_id", task.ID).Warn("task left processing during execution, provider result discarded")
		return s.taskMgr.Get(task.ID)
	}

	s.emitStatus(ctx, task.ID, types.TaskStatusProcessing, types.TaskStatusCompleted)
	recordAudit(ctx, s.auditLogSvc, "execute", events.ResourceTask, task.ID, map[string]interface{}{
		"status":      types.TaskStatusCompleted,
		"tokens_used": result.TokensUsed,
	})
	return s.taskMgr.Get(task.ID)
}

// fail 写回失败,返回执行错误供调用方映射状态码
func (s *taskService) fail(ctx context.Context, task *model.TaskModel, result *ExecutionResult, execErr error, operator string) (*model.TaskModel, error) {
	var output interface{} = types.FailureOutput{Error: execErr.Error(), ErrorCode: types.CodeOf(execErr)}
	failure := &integration.Failure{Error: execErr.Error()}
	if result != nil {
		if result.Output != nil {
			output = result.Output
		}
		failure.Prompt = result.Prompt
		failure.Jobs = result.Jobs
	}
	data, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("failed to encode failure output: %w", err)
	}
	failure.OutputData = data

	won, err := s.taskMgr.Fail(task.ID, failure, operator)
	if err != nil && len(failure.Jobs) > 0 {
		// 翻译明细无法落库时只写回失败状态
		s.logger.WithField("task_id", task.ID).WithError(err).Warn("failed to save translation jobs with failure, retrying without them")
		failure.Jobs = nil
		won, err = s.taskMgr.Fail(task.ID, failure, operator)
	}
	if err != nil {
		return nil, err
	}
	if !won {
		s.logger.WithField("task_id", task.ID).Warn("task left processing during execution, failure discarded")
		return s.taskMgr.Get(task.ID)
	}

	s.logger.WithFields(logrus.Fields{
		"task_id":   task.ID,
		"task_type": task.TaskType,
	}).WithError(execErr).Warn("task execution failed")
	s.emitStatus(ctx, task.ID, types.TaskStatusProcessing, types.TaskStatusFailed)
	recordAudit(ctx, s.auditLogSvc, "execute", events.ResourceTask, task.ID, map[string]interface{}{
		"status": types.TaskStatusFailed,
		"error":  execErr.Error(),
	})

	failed, err := s.taskMgr.Get(task.ID)
	if err != nil {
		return nil, err
	}
	return failed, execErr
}

func (s *taskService) emitStatus(ctx context.Context, id string, from, to types.TaskStatus) {
	s.events.emit(ctx, events.TaskStatusChanged, events.ResourceTask, id, map[string]interface{}{
		"from": from,
		"to":   to,
	})
}

// Cancel 取消任务
func (s *taskService) Cancel(ctx context.Context, id string, reason string) (*model.TaskModel, error) {
	before, err := s.taskMgr.Get(id)
	if err != nil {
		return nil, err
	}
	if !s.authorizer.CanAccess(identityOf(ctx), before.CreatedBy) {
		return nil, types.NewForbiddenError("only the creator or an admin can cancel task %s", id)
	}
	if reason == "" {
		reason = "cancelled by user"
	}

	task, err := s.taskMgr.Cancel(id, reason, operatorOf(ctx))
	if err != nil {
		return nil, err
	}

	recordAudit(ctx, s.auditLogSvc, "cancel", events.ResourceTask, id, map[string]interface{}{"reason": reason})
	s.emitStatus(ctx, id, types.TaskStatus(before.Status), types.TaskStatusCancelled)
	return task, nil
}

// Approve 审批同意
func (s *taskService) Approve(ctx context.Context, id string, req *DecisionRequest) (*model.TaskModel, error) {
	return s.decide(ctx, id, true, req)
}

// Reject 审批拒绝
func (s *taskService) Reject(ctx context.Context, id string, req *DecisionRequest) (*model.TaskModel, error) {
	return s.decide(ctx, id, false, req)
}

func (s *taskService) decide(ctx context.Context, id string, approved bool, req *DecisionRequest) (*model.TaskModel, error) {
	if req == nil {
		req = &DecisionRequest{}
	}

	// 1. 任务必须存在
	if _, err := s.taskMgr.Get(id); err != nil {
		return nil, err
	}

	// 2. 权限检查
	identity := identityOf(ctx)
	allowed, err := s.authorizer.CanApprove(ctx, identity, id)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, types.NewForbiddenError("user %s is not allowed to approve task %s", operatorOf(ctx), id)
	}

	// 3. 写入决定
	task, err := s.taskMgr.Decide(id, approved, operatorOf(ctx), req.Comment)
	if err != nil {
		return nil, err
	}

	action, eventType := "approve", events.TaskApproved
	if !approved {
		action, eventType = "reject", events.TaskRejected
	}
	recordAudit(ctx, s.auditLogSvc, action, events.ResourceTask, id, map[string]interface{}{"comment": req.Comment})
	s.events.emit(ctx, eventType, events.ResourceTask, id, map[string]interface{}{
		"approved_by": task.ApprovedBy,
		"comment":     req.Comment,
	})
	return task, nil
}

// Delete 删除任务,仅创建者或管理员
func (s *taskService) Delete(ctx context.Context, id string) error {
	task, err := s.taskMgr.Get(id)
	if err != nil {
		return err
	}
	if !s.authorizer.CanAccess(identityOf(ctx), task.CreatedBy) {
		return types.NewForbiddenError("only the creator or an admin can delete task %s", id)
	}
	if err := s.taskMgr.Delete(id); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	if s.relations != nil && task.CreatedBy != "" {
		if err := s.relations.DeleteRelation(ctx, task.CreatedBy, auth.RelationCreator, auth.ObjectTask, id); err != nil {
			s.logger.WithField("task_id", id).WithError(err).Warn("failed to delete creator relation")
		}
	}
	recordAudit(ctx, s.auditLogSvc, "delete", events.ResourceTask, id, nil)
	s.events.emit(ctx, events.TaskDeleted, events.ResourceTask, id, nil)
	return nil
}

// Get 获取任务
func (s *taskService) Get(id string) (*model.TaskModel, error) {
	return s.taskMgr.Get(id)
}

// Detail 任务详情
func (s *taskService) Detail(id string) (*TaskDetail, error) {
	task, err := s.taskMgr.Get(id)
	if err != nil {
		return nil, err
	}
	jobs, err := s.taskMgr.TranslationJobs(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load translation jobs: %w", err)
	}
	contents, err := s.taskMgr.Contents(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load generated content: %w", err)
	}
	record, err := s.taskMgr.ApprovalRecord(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load approval record: %w", err)
	}
	return &TaskDetail{
		TaskView:        NewTaskView(task),
		Contents:        NewContentViews(contents),
		TranslationJobs: jobs,
		ApprovalRecord:  record,
	}, nil
}

// List 分页查询任务
func (s *taskService) List(filter *repository.TaskFilter, page repository.Page) ([]*model.TaskModel, int64, error) {
	return s.taskMgr.List(filter, page)
}

// Statistics 任务统计
func (s *taskService) Statistics() (*integration.TaskStatistics, error) {
	return s.taskMgr.Statistics()
}

// History 任务状态变更历史
func (s *taskService) History(id string) ([]*model.StateHistoryModel, error) {
	return s.taskMgr.History(id)
}
