package model

import (
	"errors"
	"time"
)

// 发布状态
const (
	PublishStatusNone       = ""
	PublishStatusPublishing = "publishing"
	PublishStatusPublished  = "published"
	PublishStatusFailed     = "failed"
)

// GeneratedContentModel AI 生成的内容
type GeneratedContentModel struct {
	ID            string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TaskID        string     `gorm:"type:varchar(64);not null;index" json:"task_id"`
	ContentType   string     `gorm:"type:varchar(32);not null;index" json:"content_type"`
	Language      string     `gorm:"type:varchar(8);not null;index" json:"language"`
	Title         string     `gorm:"type:varchar(500)" json:"title,omitempty"`
	Body          string     `gorm:"type:text;not null" json:"body"`
	Metadata      []byte     `gorm:"type:jsonb" json:"-"`
	QualityScore  *float64   `json:"quality_score,omitempty"`
	Published     bool       `gorm:"not null;default:false;index" json:"published"`
	ExternalID    string     `gorm:"type:varchar(128)" json:"external_id,omitempty"`
	PublishTarget string     `gorm:"type:varchar(32)" json:"publish_target,omitempty"`
	PublishStatus string     `gorm:"type:varchar(32)" json:"publish_status,omitempty"`
	PublishError  string     `gorm:"type:text" json:"publish_error,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	CreatedAt     time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (GeneratedContentModel) TableName() string {
	return "generated_contents"
}

// Validate 验证生成内容模型
func (m *GeneratedContentModel) Validate() error {
	if m.ID == "" {
		return errors.New("content ID is required")
	}
	if m.TaskID == "" {
		return errors.New("task ID is required")
	}
	if m.ContentType == "" {
		return errors.New("content type is required")
	}
	if m.QualityScore != nil && (*m.QualityScore < 0 || *m.QualityScore > 1) {
		return errors.New("quality score must be within [0,1]")
	}
	return nil
}

// PublishRecordModel 每次发布尝试的结果
type PublishRecordModel struct {
	ID          string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ContentID   string     `gorm:"type:varchar(64);not null;index" json:"content_id"`
	Target      string     `gorm:"type:varchar(32);not null" json:"target"`
	Status      string     `gorm:"type:varchar(32);not null" json:"status"` // success/failed
	ExternalID  string     `gorm:"type:varchar(128)" json:"external_id,omitempty"`
	Error       string     `gorm:"type:text" json:"error,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	CreatedBy   string     `gorm:"type:varchar(64)" json:"created_by,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;index" json:"created_at"`
}

// TableName 指定表名
func (PublishRecordModel) TableName() string {
	return "publish_records"
}

// TranslationJobModel 单个目标语言的翻译任务
type TranslationJobModel struct {
	ID             string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	TaskID         string     `gorm:"type:varchar(64);not null;index" json:"task_id"`
	ContentID      string     `gorm:"type:varchar(64);index" json:"content_id,omitempty"`
	SourceText     string     `gorm:"type:text;not null" json:"source_text"`
	SourceLanguage string     `gorm:"type:varchar(8);not null" json:"source_language"`
	TargetLanguage string     `gorm:"type:varchar(8);not null;index" json:"target_language"`
	TranslatedText string     `gorm:"type:text" json:"translated_text,omitempty"`
	Status         string     `gorm:"type:varchar(32);not null;index" json:"status"`
	QualityScore   *float64   `json:"quality_score,omitempty"`
	Error          string     `gorm:"type:text" json:"error,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (TranslationJobModel) TableName() string {
	return "translation_jobs"
}

// Validate 验证翻译任务模型
func (m *TranslationJobModel) Validate() error {
	if m.ID == "" {
		return errors.New("translation job ID is required")
	}
	if m.TaskID == "" {
		return errors.New("task ID is required")
	}
	if m.SourceLanguage == "" || m.TargetLanguage == "" {
		return errors.New("source and target language are required")
	}
	if m.QualityScore != nil && (*m.QualityScore < 0 || *m.QualityScore > 1) {
		return errors.New("quality score must be within [0,1]")
	}
	return nil
}
