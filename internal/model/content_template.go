package model

import (
	"errors"
	"time"
)

// ContentTemplateModel 可复用的提示词/输出模板
type ContentTemplateModel struct {
	ID           string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name         string     `gorm:"type:varchar(255);not null;index" json:"name"`
	Description  string     `gorm:"type:text" json:"description,omitempty"`
	ContentType  string     `gorm:"type:varchar(32);not null;index" json:"content_type"`
	Language     string     `gorm:"type:varchar(8);not null" json:"language"`
	Platform     *string    `gorm:"type:varchar(32)" json:"platform"`
	TemplateText string     `gorm:"type:text;not null" json:"template_text"`
	Variables    []byte     `gorm:"type:jsonb;not null" json:"-"`
	Active       bool       `gorm:"not null;index" json:"active"`
	UsageCount   int64      `gorm:"not null;default:0" json:"usage_count"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	CreatedBy    string     `gorm:"type:varchar(64)" json:"created_by,omitempty"`
	CreatedAt    time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (ContentTemplateModel) TableName() string {
	return "content_templates"
}

// Validate 验证模板模型
func (m *ContentTemplateModel) Validate() error {
	if m.ID == "" {
		return errors.New("template ID is required")
	}
	if m.Name == "" {
		return errors.New("template name is required")
	}
	if m.TemplateText == "" {
		return errors.New("template text is required")
	}
	if m.UsageCount < 0 {
		return errors.New("usage count must not be negative")
	}
	return nil
}
