package model

import (
	"errors"
	"time"
)

// 事件投递状态
const (
	EventStatusPending = "pending"
	EventStatusSuccess = "success"
	EventStatusFailed  = "failed"
	EventStatusSkipped = "skipped" // 未配置事件流
)

// EventModel 领域事件,业务写库后单独持久化,由事件分发器异步投递到 Kafka
type EventModel struct {
	ID           string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ResourceType string    `gorm:"type:varchar(32);not null" json:"resource_type"`
	ResourceID   string    `gorm:"type:varchar(64);not null;index" json:"resource_id"`
	Type         string    `gorm:"type:varchar(64);not null;index" json:"type"`
	Data         []byte    `gorm:"type:jsonb;not null" json:"-"`
	Status       string    `gorm:"type:varchar(32);not null;default:'pending'" json:"status"`
	RetryCount   int       `gorm:"type:int;default:0" json:"retry_count"`
	CreatedAt    time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (EventModel) TableName() string {
	return "events"
}

// Validate 验证事件模型
func (em *EventModel) Validate() error {
	if em.ID == "" {
		return errors.New("event ID is required")
	}
	if em.ResourceID == "" {
		return errors.New("resource ID is required")
	}
	if em.Type == "" {
		return errors.New("event type is required")
	}
	if len(em.Data) == 0 {
		return errors.New("event data is required")
	}
	if em.Status == "" {
		em.Status = EventStatusPending
	}
	return nil
}
