package model

import (
	"errors"
	"time"
)

// WorkflowModel 自动化工作流定义
type WorkflowModel struct {
	ID            string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name          string     `gorm:"type:varchar(255);not null" json:"name"`
	Description   string     `gorm:"type:text" json:"description,omitempty"`
	WorkflowType  string     `gorm:"type:varchar(64);not null;index" json:"workflow_type"`
	Configuration []byte     `gorm:"type:jsonb;not null" json:"-"`
	Schedule      string     `gorm:"type:varchar(128)" json:"schedule,omitempty"`
	Enabled       bool       `gorm:"not null;index" json:"enabled"`
	RunCount      int64      `gorm:"not null;default:0" json:"run_count"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `gorm:"index" json:"next_run_at,omitempty"`
	CreatedBy     string     `gorm:"type:varchar(64)" json:"created_by,omitempty"`
	CreatedAt     time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (WorkflowModel) TableName() string {
	return "workflows"
}

// Validate 验证工作流模型
func (m *WorkflowModel) Validate() error {
	if m.ID == "" {
		return errors.New("workflow ID is required")
	}
	if m.Name == "" {
		return errors.New("workflow name is required")
	}
	if len(m.Configuration) == 0 {
		return errors.New("workflow configuration is required")
	}
	return nil
}

// WorkflowExecutionModel 工作流执行历史,只追加
type WorkflowExecutionModel struct {
	ID           string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	WorkflowID   string     `gorm:"type:varchar(64);not null;index" json:"workflow_id"`
	TaskID       string     `gorm:"type:varchar(64);index" json:"task_id,omitempty"`
	Status       string     `gorm:"type:varchar(32);not null" json:"status"` // completed/failed
	TriggerData  []byte     `gorm:"type:jsonb" json:"-"`
	Steps        []byte     `gorm:"type:jsonb;not null" json:"-"`
	HaltedReason string     `gorm:"type:text" json:"halted_reason,omitempty"`
	TriggeredBy  string     `gorm:"type:varchar(64)" json:"triggered_by,omitempty"`
	StartedAt    time.Time  `gorm:"not null;index" json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// TableName 指定表名
func (WorkflowExecutionModel) TableName() string {
	return "workflow_executions"
}
