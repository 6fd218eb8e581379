package repository

import (
	"github.com/mission-engadi/ai-service/internal/model"
	"gorm.io/gorm"
)

// WorkflowExecutionRepository 工作流执行历史仓储接口
type WorkflowExecutionRepository interface {
	Create(execution *model.WorkflowExecutionModel) error
	FindByID(id string) (*model.WorkflowExecutionModel, error)
	FindByWorkflowID(workflowID string, page Page) ([]*model.WorkflowExecutionModel, int64, error)
	DeleteByWorkflowID(workflowID string) error
}

// workflowExecutionRepository 工作流执行历史仓储实现
type workflowExecutionRepository struct {
	db *gorm.DB
}

// NewWorkflowExecutionRepository 创建工作流执行历史仓储
func NewWorkflowExecutionRepository(db *gorm.DB) WorkflowExecutionRepository {
	return &workflowExecutionRepository{db: db}
}

// Create 追加执行记录
func (r *workflowExecutionRepository) Create(execution *model.WorkflowExecutionModel) error {
	return r.db.Create(execution).Error
}

// FindByID 根据 ID 查找执行记录
func (r *workflowExecutionRepository) FindByID(id string) (*model.WorkflowExecutionModel, error) {
	var execution model.WorkflowExecutionModel
	if err := r.db.Where("id = ?", id).First(&execution).Error; err != nil {
		return nil, err
	}
	return &execution, nil
}

// FindByWorkflowID 分页查询执行历史,最新的在前
func (r *workflowExecutionRepository) FindByWorkflowID(workflowID string, page Page) ([]*model.WorkflowExecutionModel, int64, error) {
	query := r.db.Model(&model.WorkflowExecutionModel{}).Where("workflow_id = ?", workflowID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var executions []*model.WorkflowExecutionModel
	err := page.apply(query.Order("started_at DESC").Order("id DESC")).Find(&executions).Error
	return executions, total, err
}

// DeleteByWorkflowID 删除工作流的执行历史
func (r *workflowExecutionRepository) DeleteByWorkflowID(workflowID string) error {
	return r.db.Where("workflow_id = ?", workflowID).Delete(&model.WorkflowExecutionModel{}).Error
}
