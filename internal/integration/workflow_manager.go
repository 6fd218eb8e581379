package integration

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mission-engadi/ai-service/internal/model"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/types"
	"gorm.io/gorm"
)

// WorkflowManager 工作流与执行历史持久化
type WorkflowManager interface {
	Create(wf *model.WorkflowModel) error
	Get(id string) (*model.WorkflowModel, error)
	Update(wf *model.WorkflowModel) error
	Delete(id string) error
	List(filter *repository.WorkflowFilter, page repository.Page) ([]*model.WorkflowModel, int64, error)
	// RecordExecution 追加执行历史并原子递增执行次数
	RecordExecution(execution *model.WorkflowExecutionModel) error
	History(workflowID string, page repository.Page) ([]*model.WorkflowExecutionModel, int64, error)
	Execution(id string) (*model.WorkflowExecutionModel, error)
	Due(now time.Time) ([]*model.WorkflowModel, error)
	// Advance 推进下一次执行时间
	Advance(wf *model.WorkflowModel, from time.Time) error
}

// dbWorkflowManager 基于数据库的工作流管理器
type dbWorkflowManager struct {
	db            *gorm.DB
	workflowRepo  repository.WorkflowRepository
	executionRepo repository.WorkflowExecutionRepository
}

// NewWorkflowManager 创建工作流管理器
func NewWorkflowManager(db *gorm.DB) WorkflowManager {
	return &dbWorkflowManager{
		db:            db,
		workflowRepo:  repository.NewWorkflowRepository(db),
		executionRepo: repository.NewWorkflowExecutionRepository(db),
	}
}

// scheduleNext 启用且有计划时计算下一次执行时间
func scheduleNext(wf *model.WorkflowModel, from time.Time) error {
	if err := ValidateSchedule(wf.Schedule); err != nil {
		return err
	}
	if !wf.Enabled {
		wf.NextRunAt = nil
		return nil
	}
	next, err := NextRun(wf.Schedule, from)
	if err != nil {
		return err
	}
	wf.NextRunAt = next
	return nil
}

// Create 创建工作流
func (m *dbWorkflowManager) Create(wf *model.WorkflowModel) error {
	now := time.Now().UTC()
	if wf.ID == "" {
		wf.ID = uuid.New().String()
	}
	wf.RunCount = 0
	wf.LastRunAt = nil
	wf.CreatedAt = now
	wf.UpdatedAt = now
	if err := wf.Validate(); err != nil {
		return types.NewValidationError("%v", err)
	}
	if err := scheduleNext(wf, now); err != nil {
		return err
	}

	if err := m.workflowRepo.Create(wf); err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}
	return nil
}

// Get 获取工作流
func (m *dbWorkflowManager) Get(id string) (*model.WorkflowModel, error) {
	wf, err := m.workflowRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewNotFoundError("workflow", id)
		}
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}
	return wf, nil
}

// Update 更新工作流,run_count 等执行统计只通过 RecordExecution 修改
func (m *dbWorkflowManager) Update(wf *model.WorkflowModel) error {
	now := time.Now().UTC()
	wf.UpdatedAt = now
	if err := wf.Validate(); err != nil {
		return types.NewValidationError("%v", err)
	}
	if err := scheduleNext(wf, now); err != nil {
		return err
	}

	err := m.db.Model(&model.WorkflowModel{}).
		Where("id = ?", wf.ID).
		Updates(map[string]interface{}{
			"name":          wf.Name,
			"description":   wf.Description,
			"workflow_type": wf.WorkflowType,
			"configuration": wf.Configuration,
			"schedule":      wf.Schedule,
			"enabled":       wf.Enabled,
			"next_run_at":   wf.NextRunAt,
			"updated_at":    wf.UpdatedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	return nil
}

// Delete 删除工作流及其执行历史
func (m *dbWorkflowManager) Delete(id string) error {
	if _, err := m.Get(id); err != nil {
		return err
	}
	return m.db.Transaction(func(tx *gorm.DB) error {
		if err := repository.NewWorkflowExecutionRepository(tx).DeleteByWorkflowID(id); err != nil {
			return fmt.Errorf("failed to delete workflow history: %w", err)
		}
		return repository.NewWorkflowRepository(tx).Delete(id)
	})
}

// List 分页查询工作流
func (m *dbWorkflowManager) List(filter *repository.WorkflowFilter, page repository.Page) ([]*model.WorkflowModel, int64, error) {
	return m.workflowRepo.FindByFilter(filter, page)
}

// RecordExecution 追加执行历史
func (m *dbWorkflowManager) RecordExecution(execution *model.WorkflowExecutionModel) error {
	if execution.ID == "" {
		execution.ID = uuid.New().String()
	}
	at := execution.StartedAt
	if execution.FinishedAt != nil {
		at = *execution.FinishedAt
	}

	return m.db.Transaction(func(tx *gorm.DB) error {
		if err := repository.NewWorkflowExecutionRepository(tx).Create(execution); err != nil {
			return fmt.Errorf("failed to save workflow execution: %w", err)
		}
		if err := repository.NewWorkflowRepository(tx).IncrementRunCount(execution.WorkflowID, at); err != nil {
			return fmt.Errorf("failed to increment run count: %w", err)
		}
		return nil
	})
}

// History 执行历史,最新的在前
func (m *dbWorkflowManager) History(workflowID string, page repository.Page) ([]*model.WorkflowExecutionModel, int64, error) {
	if _, err := m.Get(workflowID); err != nil {
		return nil, 0, err
	}
	return m.executionRepo.FindByWorkflowID(workflowID, page)
}

// Execution 获取单条执行记录
func (m *dbWorkflowManager) Execution(id string) (*model.WorkflowExecutionModel, error) {
	execution, err := m.executionRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewNotFoundError("workflow execution", id)
		}
		return nil, fmt.Errorf("failed to get workflow execution: %w", err)
	}
	return execution, nil
}

// Due 到期的工作流
func (m *dbWorkflowManager) Due(now time.Time) ([]*model.WorkflowModel, error) {
	return m.workflowRepo.FindDue(now)
}

// Advance 推进下一次执行时间
func (m *dbWorkflowManager) Advance(wf *model.WorkflowModel, from time.Time) error {
	next, err := NextRun(wf.Schedule, from)
	if err != nil {
		return err
	}
	wf.NextRunAt = next
	return m.workflowRepo.SetNextRun(wf.ID, next)
}
