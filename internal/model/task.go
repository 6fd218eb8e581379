package model

import (
	"errors"
	"time"
)

// TaskModel 任务数据模型
// status 为生命周期状态; approved 为独立的审批决定(NULL 表示未决定)
type TaskModel struct {
	ID               string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TaskType         string     `gorm:"type:varchar(32);not null;index" json:"task_type"`
	Status           string     `gorm:"type:varchar(32);not null;index" json:"status"`
	InputData        []byte     `gorm:"type:jsonb;not null" json:"-"`
	OutputData       []byte     `gorm:"type:jsonb" json:"-"`
	Prompt           string     `gorm:"type:text" json:"prompt,omitempty"`
	ModelUsed        string     `gorm:"type:varchar(64)" json:"model_used,omitempty"`
	TokensUsed       int        `gorm:"type:int;default:0" json:"tokens_used"`
	RequiresApproval bool       `gorm:"not null;default:false" json:"requires_approval"`
	Approved         *bool      `gorm:"index" json:"approved"`
	ApprovedBy       string     `gorm:"type:varchar(64)" json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	ApprovalComment  string     `gorm:"type:text" json:"approval_comment,omitempty"`
	Error            string     `gorm:"type:text" json:"error,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	ProcessingTime   *float64   `json:"processing_time,omitempty"` // 秒
	CreatedBy        string     `gorm:"type:varchar(64);index" json:"created_by,omitempty"`
	CreatedAt        time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (TaskModel) TableName() string {
	return "tasks"
}

// Validate 验证任务模型
func (tm *TaskModel) Validate() error {
	if tm.ID == "" {
		return errors.New("task ID is required")
	}
	if tm.TaskType == "" {
		return errors.New("task type is required")
	}
	if tm.Status == "" {
		return errors.New("task status is required")
	}
	if len(tm.InputData) == 0 {
		return errors.New("task input data is required")
	}
	return nil
}
