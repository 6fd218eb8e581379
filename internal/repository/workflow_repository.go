package repository

import (
	"time"

	"github.com/mission-engadi/ai-service/internal/model"
	"gorm.io/gorm"
)

// WorkflowRepository 工作流仓储接口
type WorkflowRepository interface {
	Create(wf *model.WorkflowModel) error
	Save(wf *model.WorkflowModel) error
	FindByID(id string) (*model.WorkflowModel, error)
	FindByFilter(filter *WorkflowFilter, page Page) ([]*model.WorkflowModel, int64, error)
	FindDue(now time.Time) ([]*model.WorkflowModel, error)
	IncrementRunCount(id string, at time.Time) error
	SetNextRun(id string, next *time.Time) error
	Delete(id string) error
}

// WorkflowFilter 工作流查询过滤器
type WorkflowFilter struct {
	WorkflowType *string
	Enabled      *bool
}

// workflowRepository 工作流仓储实现
type workflowRepository struct {
	db *gorm.DB
}

// NewWorkflowRepository 创建工作流仓储
func NewWorkflowRepository(db *gorm.DB) WorkflowRepository {
	return &workflowRepository{db: db}
}

// Create 创建工作流
func (r *workflowRepository) Create(wf *model.WorkflowModel) error {
	return r.db.Create(wf).Error
}

// Save 保存工作流
func (r *workflowRepository) Save(wf *model.WorkflowModel) error {
	return r.db.Save(wf).Error
}

// FindByID 根据 ID 查找工作流
func (r *workflowRepository) FindByID(id string) (*model.WorkflowModel, error) {
	var wf model.WorkflowModel
	if err := r.db.Where("id = ?", id).First(&wf).Error; err != nil {
		return nil, err
	}
	return &wf, nil
}

// FindByFilter 分页查找工作流
func (r *workflowRepository) FindByFilter(filter *WorkflowFilter, page Page) ([]*model.WorkflowModel, int64, error) {
	query := r.db.Model(&model.WorkflowModel{})
	if filter != nil {
		if filter.WorkflowType != nil {
			query = query.Where("workflow_type = ?", *filter.WorkflowType)
		}
		if filter.Enabled != nil {
			query = query.Where("enabled = ?", *filter.Enabled)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var workflows []*model.WorkflowModel
	err := page.apply(query.Order("created_at DESC").Order("id ASC")).Find(&workflows).Error
	return workflows, total, err
}

// FindDue 查找已到执行时间的启用工作流
func (r *workflowRepository) FindDue(now time.Time) ([]*model.WorkflowModel, error) {
	var workflows []*model.WorkflowModel
	err := r.db.Where("enabled = ? AND next_run_at IS NOT NULL AND next_run_at <= ?", true, now).
		Order("next_run_at ASC").
		Find(&workflows).Error
	return workflows, err
}

// IncrementRunCount 原子递增执行次数
func (r *workflowRepository) IncrementRunCount(id string, at time.Time) error {
	return r.db.Model(&model.WorkflowModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"run_count":   gorm.Expr("run_count + ?", 1),
			"last_run_at": at,
		}).Error
}

// SetNextRun 设置下次执行时间
func (r *workflowRepository) SetNextRun(id string, next *time.Time) error {
	return r.db.Model(&model.WorkflowModel{}).
		Where("id = ?", id).
		Update("next_run_at", next).Error
}

// Delete 删除工作流
func (r *workflowRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&model.WorkflowModel{}).Error
}
