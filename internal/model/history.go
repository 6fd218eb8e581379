package model

import (
	"encoding/json"
	"errors"
	"time"
)

// StateHistoryModel 任务状态变更历史
type StateHistoryModel struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TaskID    string    `gorm:"type:varchar(64);not null;index" json:"task_id"`
	FromState string    `gorm:"type:varchar(32)" json:"from_state"`
	ToState   string    `gorm:"type:varchar(32);not null" json:"to_state"`
	Reason    string    `gorm:"type:text" json:"reason,omitempty"`
	Operator  string    `gorm:"type:varchar(64);not null" json:"operator"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

// TableName 指定表名
func (StateHistoryModel) TableName() string {
	return "state_history"
}

// Validate 验证状态历史模型
func (shm *StateHistoryModel) Validate() error {
	if shm.TaskID == "" {
		return errors.New("task ID is required")
	}
	if shm.ToState == "" {
		return errors.New("to state is required")
	}
	if shm.Operator == "" {
		return errors.New("operator is required")
	}
	return nil
}

// ApprovalRecordModel 审批决定记录,每个任务最多一条
type ApprovalRecordModel struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TaskID    string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"task_id"`
	Approver  string    `gorm:"type:varchar(64);not null;index" json:"approver"`
	Result    string    `gorm:"type:varchar(32);not null" json:"result"` // approved/rejected
	Comment   string    `gorm:"type:text" json:"comment,omitempty"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

// TableName 指定表名
func (ApprovalRecordModel) TableName() string {
	return "approval_records"
}

// AuditLogModel 审计日志
type AuditLogModel struct {
	ID           string          `gorm:"primaryKey;type:varchar(64)" json:"id"`
	UserID       string          `gorm:"type:varchar(64);not null;index" json:"user_id"`
	Action       string          `gorm:"type:varchar(64);not null;index" json:"action"`  // create/execute/approve/publish/trigger...
	ResourceType string          `gorm:"type:varchar(32);not null" json:"resource_type"` // task/template/workflow/content
	ResourceID   string          `gorm:"type:varchar(64);not null;index" json:"resource_id"`
	RequestID    string          `gorm:"type:varchar(64);index" json:"request_id,omitempty"`
	IP           string          `gorm:"type:varchar(45)" json:"ip,omitempty"`
	UserAgent    string          `gorm:"type:text" json:"user_agent,omitempty"`
	Details      json.RawMessage `gorm:"type:jsonb" json:"details,omitempty" swaggertype:"object"`
	CreatedAt    time.Time       `gorm:"not null;index" json:"created_at"`
}

// TableName 指定表名
func (AuditLogModel) TableName() string {
	return "audit_logs"
}

// Validate 验证审计日志模型
func (alm *AuditLogModel) Validate() error {
	if alm.ID == "" || alm.UserID == "" || alm.Action == "" {
		return errors.New("audit log ID, user ID and action are required")
	}
	if alm.ResourceType == "" || alm.ResourceID == "" {
		return errors.New("resource type and ID are required")
	}
	return nil
}
