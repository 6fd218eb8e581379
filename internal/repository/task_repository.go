package repository

import (
	"database/sql"
	"time"

	"github.com/mission-engadi/ai-service/internal/model"
	"github.com/mission-engadi/ai-service/internal/types"
	"gorm.io/gorm"
)

// TaskSortFields 允许排序的任务字段
var TaskSortFields = []string{"created_at", "updated_at", "completed_at", "status", "task_type"}

// TaskRepository 任务仓储接口
type TaskRepository interface {
	Create(task *model.TaskModel) error
	Save(task *model.TaskModel) error
	FindByID(id string) (*model.TaskModel, error)
	FindByFilter(filter *TaskFilter, page Page) ([]*model.TaskModel, int64, error)
	CompareAndSetStatus(id string, from types.TaskStatus, updates map[string]interface{}) (bool, error)
	Decide(id string, approved bool, approver string, comment string, at time.Time) (bool, error)
	Delete(id string) error
	Count() (int64, error)
	CountByStatus() (map[string]int64, error)
	CountByType() (map[string]int64, error)
	CountPendingApproval() (int64, error)
	AverageProcessingTime() (*float64, error)
}

// TaskFilter 任务查询过滤器
type TaskFilter struct {
	TaskType         *string
	Status           *string
	RequiresApproval *bool
	Approved         *bool
	CreatedBy        *string
	SortBy           string
	Order            string
}

// taskRepository 任务仓储实现
type taskRepository struct {
	db *gorm.DB
}

// NewTaskRepository 创建任务仓储
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

// Create 创建任务
func (r *taskRepository) Create(task *model.TaskModel) error {
	return r.db.Create(task).Error
}

// Save 保存任务
func (r *taskRepository) Save(task *model.TaskModel) error {
	return r.db.Save(task).Error
}

// FindByID 根据 ID 查找任务
func (r *taskRepository) FindByID(id string) (*model.TaskModel, error) {
	var task model.TaskModel
	if err := r.db.Where("id = ?", id).First(&task).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

// FindByFilter 根据过滤器分页查找任务
func (r *taskRepository) FindByFilter(filter *TaskFilter, page Page) ([]*model.TaskModel, int64, error) {
	query := r.db.Model(&model.TaskModel{})
	if filter == nil {
		filter = &TaskFilter{}
	}

	if filter.TaskType != nil {
		query = query.Where("task_type = ?", *filter.TaskType)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.RequiresApproval != nil {
		query = query.Where("requires_approval = ?", *filter.RequiresApproval)
	}
	if filter.Approved != nil {
		query = query.Where("approved = ?", *filter.Approved)
	}
	if filter.CreatedBy != nil {
		query = query.Where("created_by = ?", *filter.CreatedBy)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query, err := applySort(query, filter.SortBy, filter.Order, TaskSortFields, "created_at")
	if err != nil {
		return nil, 0, err
	}

	var tasks []*model.TaskModel
	if err := page.apply(query).Find(&tasks).Error; err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// CompareAndSetStatus 仅当任务当前状态为 from 时更新,返回是否命中
func (r *taskRepository) CompareAndSetStatus(id string, from types.TaskStatus, updates map[string]interface{}) (bool, error) {
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	result := r.db.Model(&model.TaskModel{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Decide 写入审批决定,仅对已完成且未决定的任务生效
func (r *taskRepository) Decide(id string, approved bool, approver string, comment string, at time.Time) (bool, error) {
	result := r.db.Model(&model.TaskModel{}).
		Where("id = ? AND status = ? AND approved IS NULL", id, string(types.TaskStatusCompleted)).
		Updates(map[string]interface{}{
			"approved":         approved,
			"approved_by":      approver,
			"approved_at":      at,
			"approval_comment": comment,
			"updated_at":       at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Delete 删除任务
func (r *taskRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&model.TaskModel{}).Error
}

// Count 任务总数
func (r *taskRepository) Count() (int64, error) {
	var total int64
	err := r.db.Model(&model.TaskModel{}).Count(&total).Error
	return total, err
}

// CountByStatus 按状态统计
func (r *taskRepository) CountByStatus() (map[string]int64, error) {
	return countBy(r.db.Model(&model.TaskModel{}), "status")
}

// CountByType 按类型统计
func (r *taskRepository) CountByType() (map[string]int64, error) {
	return countBy(r.db.Model(&model.TaskModel{}), "task_type")
}

// CountPendingApproval 统计已完成、需要审批但尚未决定的任务
func (r *taskRepository) CountPendingApproval() (int64, error) {
	var total int64
	err := r.db.Model(&model.TaskModel{}).
		Where("status = ? AND requires_approval = ? AND approved IS NULL", string(types.TaskStatusCompleted), true).
		Count(&total).Error
	return total, err
}

// AverageProcessingTime 终态任务的平均处理时长(秒),没有样本时返回 nil
func (r *taskRepository) AverageProcessingTime() (*float64, error) {
	var avg sql.NullFloat64
	terminal := []string{
		string(types.TaskStatusCompleted),
		string(types.TaskStatusFailed),
		string(types.TaskStatusCancelled),
	}
	err := r.db.Model(&model.TaskModel{}).
		Where("status IN ? AND processing_time IS NOT NULL", terminal).
		Select("AVG(processing_time)").
		Row().Scan(&avg)
	if err != nil {
		return nil, err
	}
	if !avg.Valid {
		return nil, nil
	}
	v := avg.Float64
	return &v, nil
}
