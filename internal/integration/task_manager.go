package integration

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mission-engadi/ai-service/internal/metrics"
	"github.com/mission-engadi/ai-service/internal/model"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/statemachine"
	"github.com/mission-engadi/ai-service/internal/types"
	"gorm.io/gorm"
)

// TaskManager 任务持久化与状态转换
// 所有状态变更都通过带状态条件的更新完成,保证同一任务上的并发操作线性化
type TaskManager interface {
	// Create 创建 pending 任务及其翻译子任务
	Create(task *model.TaskModel, jobs []*model.TranslationJobModel) error
	Get(id string) (*model.TaskModel, error)
	List(filter *repository.TaskFilter, page repository.Page) ([]*model.TaskModel, int64, error)
	// Start pending -> processing,返回是否抢到执行权
	Start(id string, operator string) (bool, error)
	// Complete processing -> completed,连同生成内容与翻译结果一起写回
	Complete(id string, result *Completion, operator string) (bool, error)
	// Fail processing -> failed
	Fail(id string, failure *Failure, operator string) (bool, error)
	Cancel(id string, reason string, operator string) (*model.TaskModel, error)
	// Decide 写入审批决定,只对 completed 且未决定的任务生效
	Decide(id string, approved bool, approver string, comment string) (*model.TaskModel, error)
	Delete(id string) error
	History(id string) ([]*model.StateHistoryModel, error)
	ApprovalRecord(id string) (*model.ApprovalRecordModel, error)
	TranslationJobs(id string) ([]*model.TranslationJobModel, error)
	Contents(id string) ([]*model.GeneratedContentModel, error)
	Statistics() (*TaskStatistics, error)
}

// Completion 成功执行的写回内容
type Completion struct {
	OutputData []byte
	Prompt     string
	ModelUsed  string
	TokensUsed int
	Contents   []*model.GeneratedContentModel
	Jobs       []*model.TranslationJobModel
}

// Failure 失败执行的写回内容
type Failure struct {
	OutputData []byte
	Error      string
	Prompt     string
	Jobs       []*model.TranslationJobModel
}

// TaskStatistics 任务统计
type TaskStatistics struct {
	Total                 int64            `json:"total_tasks"`
	ByStatus              map[string]int64 `json:"by_status"`
	ByType                map[string]int64 `json:"by_type"`
	PendingApproval       int64            `json:"pending_approval"`
	AverageProcessingTime *float64         `json:"avg_processing_time"`
}

// dbTaskManager 基于数据库的任务管理器
type dbTaskManager struct {
	db           *gorm.DB
	stateMachine statemachine.StateMachine
	taskRepo     repository.TaskRepository
	historyRepo  repository.StateHistoryRepository
	recordRepo   repository.ApprovalRecordRepository
	jobRepo      repository.TranslationJobRepository
	contentRepo  repository.GeneratedContentRepository
	now          func() time.Time
}

// NewTaskManager 创建任务管理器
func NewTaskManager(db *gorm.DB, stateMachine statemachine.StateMachine) TaskManager {
	// 如果没有提供状态机,创建默认实例
	if stateMachine == nil {
		stateMachine = statemachine.NewStateMachine()
	}

	return &dbTaskManager{
		db:           db,
		stateMachine: stateMachine,
		taskRepo:     repository.NewTaskRepository(db),
		historyRepo:  repository.NewStateHistoryRepository(db),
		recordRepo:   repository.NewApprovalRecordRepository(db),
		jobRepo:      repository.NewTranslationJobRepository(db),
		contentRepo:  repository.NewGeneratedContentRepository(db),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Create 创建任务
func (m *dbTaskManager) Create(task *model.TaskModel, jobs []*model.TranslationJobModel) error {
	now := m.now()
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	task.Status = string(types.TaskStatusPending)
	task.Approved = nil
	task.CreatedAt = now
	task.UpdatedAt = now
	if err := task.Validate(); err != nil {
		return types.NewValidationError("%v", err)
	}

	err := m.db.Transaction(func(tx *gorm.DB) error {
		// 1. 保存任务
		if err := repository.NewTaskRepository(tx).Create(task); err != nil {
			return fmt.Errorf("failed to save task: %w", err)
		}

		// 2. 保存翻译子任务
		jobRepo := repository.NewTranslationJobRepository(tx)
		for _, job := range jobs {
			if job.ID == "" {
				job.ID = uuid.New().String()
			}
			job.TaskID = task.ID
			job.Status = string(types.TranslationStatusPending)
			job.CreatedAt = now
			job.UpdatedAt = now
			if err := job.Validate(); err != nil {
				return types.NewValidationError("%v", err)
			}
			if err := jobRepo.Create(job); err != nil {
				return fmt.Errorf("failed to save translation job: %w", err)
			}
		}

		// 3. 记录初始状态
		return saveStateHistory(tx, task.ID, "", types.TaskStatusPending, "task created", task.CreatedBy, now)
	})
	if err != nil {
		return err
	}

	metrics.RecordTaskCreated(task.TaskType)
	return nil
}

// Get 获取任务
func (m *dbTaskManager) Get(id string) (*model.TaskModel, error) {
	task, err := m.taskRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewNotFoundError("task", id)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// List 分页查询任务
func (m *dbTaskManager) List(filter *repository.TaskFilter, page repository.Page) ([]*model.TaskModel, int64, error) {
	return m.taskRepo.FindByFilter(filter, page)
}

// Start 抢占执行权,并发调用中只有一个返回 true
func (m *dbTaskManager) Start(id string, operator string) (bool, error) {
	if err := m.stateMachine.Transition(types.TaskStatusPending, types.TaskStatusProcessing); err != nil {
		return false, err
	}

	now := m.now()
	won := false
	err := m.db.Transaction(func(tx *gorm.DB) error {
		ok, err := repository.NewTaskRepository(tx).CompareAndSetStatus(id, types.TaskStatusPending, map[string]interface{}{
			"status":     string(types.TaskStatusProcessing),
			"started_at": now,
			"updated_at": now,
		})
		if err != nil || !ok {
			return err
		}
		won = true

		if err := repository.NewTranslationJobRepository(tx).UpdateStatusByTaskID(id,
			string(types.TranslationStatusPending), string(types.TranslationStatusProcessing)); err != nil {
			return fmt.Errorf("failed to update translation jobs: %w", err)
		}
		return saveStateHistory(tx, id, types.TaskStatusPending, types.TaskStatusProcessing, "execution started", operator, now)
	})
	if err != nil {
		return false, fmt.Errorf("failed to start task: %w", err)
	}

	if won {
		metrics.RecordTaskTransition(string(types.TaskStatusPending), string(types.TaskStatusProcessing))
	}
	return won, nil
}

// finish 写回终态,只对仍处于 processing 的任务生效
func (m *dbTaskManager) finish(id string, to types.TaskStatus, updates map[string]interface{}, reason string, operator string, children func(tx *gorm.DB, now time.Time) error) (bool, error) {
	if err := m.stateMachine.Transition(types.TaskStatusProcessing, to); err != nil {
		return false, err
	}

	now := m.now()
	won := false
	err := m.db.Transaction(func(tx *gorm.DB) error {
		taskRepo := repository.NewTaskRepository(tx)
		current, err := taskRepo.FindByID(id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if current.Status != string(types.TaskStatusProcessing) {
			return nil
		}

		updates["status"] = string(to)
		updates["completed_at"] = now
		updates["updated_at"] = now
		if current.StartedAt != nil {
			updates["processing_time"] = now.Sub(*current.StartedAt).Seconds()
		}

		ok, err := taskRepo.CompareAndSetStatus(id, types.TaskStatusProcessing, updates)
		if err != nil || !ok {
			return err
		}
		won = true

		if children != nil {
			if err := children(tx, now); err != nil {
				return err
			}
		}
		return saveStateHistory(tx, id, types.TaskStatusProcessing, to, reason, operator, now)
	})
	if err != nil {
		return false, fmt.Errorf("failed to finish task: %w", err)
	}

	if won {
		metrics.RecordTaskTransition(string(types.TaskStatusProcessing), string(to))
	}
	return won, nil
}

// Complete 写回成功结果
func (m *dbTaskManager) Complete(id string, result *Completion, operator string) (bool, error) {
	updates := map[string]interface{}{
		"output_data": result.OutputData,
		"tokens_used": result.TokensUsed,
		"model_used":  result.ModelUsed,
		"error":       "",
	}
	if result.Prompt != "" {
		updates["prompt"] = result.Prompt
	}

	return m.finish(id, types.TaskStatusCompleted, updates, "execution completed", operator, func(tx *gorm.DB, now time.Time) error {
		contentRepo := repository.NewGeneratedContentRepository(tx)
		for _, content := range result.Contents {
			if content.ID == "" {
				content.ID = uuid.New().String()
			}
			content.TaskID = id
			content.CreatedAt = now
			content.UpdatedAt = now
			if err := content.Validate(); err != nil {
				return types.NewValidationError("%v", err)
			}
			if err := contentRepo.Create(content); err != nil {
				return fmt.Errorf("failed to save generated content: %w", err)
			}
		}
		return saveJobs(tx, result.Jobs, now)
	})
}

// Fail 写回失败结果
func (m *dbTaskManager) Fail(id string, failure *Failure, operator string) (bool, error) {
	updates := map[string]interface{}{
		"output_data": failure.OutputData,
		"error":       failure.Error,
	}
	if failure.Prompt != "" {
		updates["prompt"] = failure.Prompt
	}

	return m.finish(id, types.TaskStatusFailed, updates, failure.Error, operator, func(tx *gorm.DB, now time.Time) error {
		if err := saveJobs(tx, failure.Jobs, now); err != nil {
			return err
		}
		return repository.NewTranslationJobRepository(tx).UpdateStatusByTaskID(id,
			string(types.TranslationStatusProcessing), string(types.TranslationStatusFailed))
	})
}

func saveJobs(tx *gorm.DB, jobs []*model.TranslationJobModel, now time.Time) error {
	jobRepo := repository.NewTranslationJobRepository(tx)
	for _, job := range jobs {
		job.UpdatedAt = now
		if job.Status == string(types.TranslationStatusCompleted) && job.CompletedAt == nil {
			job.CompletedAt = &now
		}
		if err := job.Validate(); err != nil {
			return types.NewValidationError("%v", err)
		}
		if err := jobRepo.Save(job); err != nil {
			return fmt.Errorf("failed to save translation job: %w", err)
		}
	}
	return nil
}

// Cancel 取消任务,processing 状态下的取消是建议性的: 正在进行的 provider 调用结果会在写回时被丢弃
func (m *dbTaskManager) Cancel(id string, reason string, operator string) (*model.TaskModel, error) {
	// 状态可能在读取与更新之间变化,重试一次
	for attempt := 0; attempt < 2; attempt++ {
		task, err := m.Get(id)
		if err != nil {
			return nil, err
		}

		from := types.TaskStatus(task.Status)
		if err := m.stateMachine.Transition(from, types.TaskStatusCancelled); err != nil {
			return nil, err
		}

		now := m.now()
		won := false
		err = m.db.Transaction(func(tx *gorm.DB) error {
			updates := map[string]interface{}{
				"status":       string(types.TaskStatusCancelled),
				"completed_at": now,
				"updated_at":   now,
			}
			if task.StartedAt != nil {
				updates["processing_time"] = now.Sub(*task.StartedAt).Seconds()
			}
			ok, err := repository.NewTaskRepository(tx).CompareAndSetStatus(id, from, updates)
			if err != nil || !ok {
				return err
			}
			won = true

			jobRepo := repository.NewTranslationJobRepository(tx)
			for _, status := range []types.TranslationStatus{types.TranslationStatusPending, types.TranslationStatusProcessing} {
				if err := jobRepo.UpdateStatusByTaskID(id, string(status), string(types.TranslationStatusFailed)); err != nil {
					return err
				}
			}
			return saveStateHistory(tx, id, from, types.TaskStatusCancelled, reason, operator, now)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to cancel task: %w", err)
		}
		if won {
			metrics.RecordTaskTransition(string(from), string(types.TaskStatusCancelled))
			return m.Get(id)
		}
	}

	return nil, types.NewInvalidStateError("task %s changed state concurrently, cancel aborted", id)
}

// Decide 审批或拒绝
func (m *dbTaskManager) Decide(id string, approved bool, approver string, comment string) (*model.TaskModel, error) {
	// 1. 获取任务
	task, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	// 2. 验证任务状态(只有 completed 且未决定的任务才能审批)
	if task.Status != string(types.TaskStatusCompleted) {
		return nil, types.NewInvalidStateError("task %s is %s, only completed tasks can be approved or rejected", id, task.Status)
	}
	if task.Approved != nil {
		return nil, types.NewInvalidStateError("task %s has already been %s", id, types.DecisionOf(task.Approved))
	}

	// 3. 写入决定与审批记录
	now := m.now()
	result := types.ApprovalRejected
	if approved {
		result = types.ApprovalApproved
	}
	err = m.db.Transaction(func(tx *gorm.DB) error {
		ok, err := repository.NewTaskRepository(tx).Decide(id, approved, approver, comment, now)
		if err != nil {
			return err
		}
		if !ok {
			return types.NewInvalidStateError("task %s was decided or changed concurrently", id)
		}

		record := &model.ApprovalRecordModel{
			ID:        uuid.New().String(),
			TaskID:    id,
			Approver:  approver,
			Result:    string(result),
			Comment:   comment,
			CreatedAt: now,
		}
		if err := repository.NewApprovalRecordRepository(tx).Save(record); err != nil {
			return fmt.Errorf("failed to save approval record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordApproval(string(result))
	return m.Get(id)
}

// Delete 删除任务及其生成内容、发布记录、翻译子任务与历史
func (m *dbTaskManager) Delete(id string) error {
	if _, err := m.Get(id); err != nil {
		return err
	}

	return m.db.Transaction(func(tx *gorm.DB) error {
		contentRepo := repository.NewGeneratedContentRepository(tx)
		publishRepo := repository.NewPublishRecordRepository(tx)

		contents, err := contentRepo.FindByTaskID(id)
		if err != nil {
			return err
		}
		for _, content := range contents {
			if err := publishRepo.DeleteByContentID(content.ID); err != nil {
				return err
			}
		}
		if err := contentRepo.DeleteByTaskID(id); err != nil {
			return err
		}
		if err := repository.NewTranslationJobRepository(tx).DeleteByTaskID(id); err != nil {
			return err
		}
		if err := repository.NewStateHistoryRepository(tx).DeleteByTaskID(id); err != nil {
			return err
		}
		if err := repository.NewApprovalRecordRepository(tx).DeleteByTaskID(id); err != nil {
			return err
		}
		return repository.NewTaskRepository(tx).Delete(id)
	})
}

// History 任务状态变更历史
func (m *dbTaskManager) History(id string) ([]*model.StateHistoryModel, error) {
	if _, err := m.Get(id); err != nil {
		return nil, err
	}
	return m.historyRepo.FindByTaskID(id)
}

// ApprovalRecord 任务的审批记录,未决定时返回 nil
func (m *dbTaskManager) ApprovalRecord(id string) (*model.ApprovalRecordModel, error) {
	record, err := m.recordRepo.FindByTaskID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return record, err
}

// TranslationJobs 任务的翻译子任务
func (m *dbTaskManager) TranslationJobs(id string) ([]*model.TranslationJobModel, error) {
	return m.jobRepo.FindByTaskID(id)
}

// Contents 任务生成的内容
func (m *dbTaskManager) Contents(id string) ([]*model.GeneratedContentModel, error) {
	return m.contentRepo.FindByTaskID(id)
}

// Statistics 任务统计,所有状态与类型都会出现在结果中
func (m *dbTaskManager) Statistics() (*TaskStatistics, error) {
	total, err := m.taskRepo.Count()
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	byStatus, err := m.taskRepo.CountByStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks by status: %w", err)
	}
	byType, err := m.taskRepo.CountByType()
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks by type: %w", err)
	}
	pending, err := m.taskRepo.CountPendingApproval()
	if err != nil {
		return nil, fmt.Errorf("failed to count pending approvals: %w", err)
	}
	avg, err := m.taskRepo.AverageProcessingTime()
	if err != nil {
		return nil, fmt.Errorf("failed to compute processing time: %w", err)
	}

	for _, s := range types.TaskStatuses {
		if _, ok := byStatus[string(s)]; !ok {
			byStatus[string(s)] = 0
		}
	}
	for _, t := range types.TaskTypes {
		if _, ok := byType[string(t)]; !ok {
			byType[string(t)] = 0
		}
	}

	return &TaskStatistics{
		Total:                 total,
		ByStatus:              byStatus,
		ByType:                byType,
		PendingApproval:       pending,
		AverageProcessingTime: avg,
	}, nil
}

// saveStateHistory 保存状态历史到数据库
func saveStateHistory(tx *gorm.DB, taskID string, from, to types.TaskStatus, reason string, operator string, at time.Time) error {
	if operator == "" {
		operator = "system"
	}
	history := &model.StateHistoryModel{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		FromState: string(from),
		ToState:   string(to),
		Reason:    reason,
		Operator:  operator,
		CreatedAt: at,
	}
	if err := history.Validate(); err != nil {
		return err
	}
	if err := repository.NewStateHistoryRepository(tx).Save(history); err != nil {
		return fmt.Errorf("failed to save state history: %w", err)
	}
	return nil
}
