package types

import (
	"encoding/json"
	"strings"
)

// TaskInput 任务输入,按 task_type 区分的标签联合
type TaskInput interface {
	TaskType() TaskType
	Validate() error
}

// DecodeTaskInput 按任务类型解析并校验输入
func DecodeTaskInput(taskType TaskType, raw json.RawMessage) (TaskInput, error) {
	if !taskType.Valid() {
		return nil, NewValidationError("unknown task_type %q", taskType)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, NewValidationError("input_data is required")
	}

	var in TaskInput
	switch taskType {
	case TaskTypeContentGeneration:
		in = &ContentGenerationInput{}
	case TaskTypeTranslation:
		in = &TranslationInput{}
	case TaskTypeImageGeneration:
		in = &ImageGenerationInput{}
	case TaskTypeContentEnhancement:
		in = &EnhancementInput{}
	case TaskTypeAutomation:
		in = &AutomationInput{}
	}
	if err := json.Unmarshal(raw, in); err != nil {
		return nil, NewValidationError("invalid input_data: %v", err)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}

// ContentGenerationInput 内容生成输入
type ContentGenerationInput struct {
	ContentType     ContentType       `json:"content_type" example:"social_post"`
	Language        Language          `json:"language,omitempty" example:"en"`
	Title           string            `json:"title,omitempty"`
	Prompt          string            `json:"prompt,omitempty"`
	Topic           string            `json:"topic,omitempty" example:"community outreach"`
	Platform        string            `json:"platform,omitempty" example:"instagram"`
	Tone            string            `json:"tone,omitempty" example:"inspirational"`
	Audience        string            `json:"audience,omitempty"`
	MaxLength       int               `json:"max_length,omitempty"`
	IncludeHashtags bool              `json:"include_hashtags,omitempty"`
	TemplateID      string            `json:"template_id,omitempty"`
	Variables       map[string]string `json:"variables,omitempty"`
	SystemMessage   string            `json:"system_message,omitempty"`
	MaxTokens       int               `json:"max_tokens,omitempty"`
	Temperature     *float64          `json:"temperature,omitempty"`
}

func (in *ContentGenerationInput) TaskType() TaskType { return TaskTypeContentGeneration }

// Validate 校验内容生成输入
func (in *ContentGenerationInput) Validate() error {
	if !in.ContentType.Valid() {
		return NewValidationError("content_type %q is not supported", in.ContentType)
	}
	if in.Language == "" {
		in.Language = LanguageEnglish
	}
	if !in.Language.Valid() {
		return NewValidationError("language %q is not supported", in.Language)
	}
	if strings.TrimSpace(in.Prompt) == "" && strings.TrimSpace(in.Topic) == "" {
		return NewValidationError("prompt or topic is required")
	}
	if in.MaxLength < 0 || in.MaxTokens < 0 {
		return NewValidationError("max_length and max_tokens must not be negative")
	}
	if in.Temperature != nil && (*in.Temperature < 0 || *in.Temperature > 2) {
		return NewValidationError("temperature must be within [0,2]")
	}
	return nil
}

// TranslationInput 翻译输入
// 兼容 source/target 简写字段
type TranslationInput struct {
	Text               string     `json:"text" example:"Hello"`
	SourceLanguage     Language   `json:"source_language" example:"en"`
	TargetLanguage     Language   `json:"target_language,omitempty" example:"es"`
	TargetLanguages    []Language `json:"target_languages,omitempty"`
	ContentID          string     `json:"content_id,omitempty"`
	PreserveFormatting bool       `json:"preserve_formatting,omitempty"`
}

func (in *TranslationInput) TaskType() TaskType { return TaskTypeTranslation }

// UnmarshalJSON 支持 source/target 简写
func (in *TranslationInput) UnmarshalJSON(data []byte) error {
	type plain TranslationInput
	var aux struct {
		plain
		Source Language `json:"source"`
		Target Language `json:"target"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*in = TranslationInput(aux.plain)
	if in.SourceLanguage == "" {
		in.SourceLanguage = aux.Source
	}
	if in.TargetLanguage == "" {
		in.TargetLanguage = aux.Target
	}
	return nil
}

// Targets 去重后的目标语言列表
func (in *TranslationInput) Targets() []Language {
	seen := make(map[Language]bool)
	var out []Language
	add := func(l Language) {
		if l == "" || seen[l] {
			return
		}
		seen[l] = true
		out = append(out, l)
	}
	add(in.TargetLanguage)
	for _, l := range in.TargetLanguages {
		add(l)
	}
	return out
}

// Validate 校验翻译输入
func (in *TranslationInput) Validate() error {
	if strings.TrimSpace(in.Text) == "" {
		return NewValidationError("text is required")
	}
	if in.SourceLanguage == "" {
		return NewValidationError("source_language is required")
	}
	if !in.SourceLanguage.Valid() {
		return NewValidationError("source_language %q is not supported", in.SourceLanguage)
	}
	targets := in.Targets()
	if len(targets) == 0 {
		return NewValidationError("target_language is required")
	}
	for _, t := range targets {
		if !t.Valid() {
			return NewValidationError("target_language %q is not supported", t)
		}
		if t == in.SourceLanguage {
			return NewValidationError("target_language must differ from source_language")
		}
	}
	return nil
}

// ImageGenerationInput 图片生成输入
type ImageGenerationInput struct {
	Prompt         string `json:"prompt,omitempty" example:"sunrise over a village"`
	Size           string `json:"size,omitempty" example:"1024x1024"`
	Style          string `json:"style,omitempty"`
	N              int    `json:"n,omitempty"`
	SourceImageURL string `json:"source_image_url,omitempty"`
}

func (in *ImageGenerationInput) TaskType() TaskType { return TaskTypeImageGeneration }

// IsVariation 是否为变体生成
func (in *ImageGenerationInput) IsVariation() bool {
	return in.SourceImageURL != ""
}

// Validate 校验图片生成输入
func (in *ImageGenerationInput) Validate() error {
	if !in.IsVariation() && strings.TrimSpace(in.Prompt) == "" {
		return NewValidationError("prompt is required")
	}
	if in.Size == "" {
		in.Size = DefaultImageSize
	}
	if !ValidImageSize(in.Size) {
		return NewValidationError("size %q is not supported", in.Size)
	}
	if in.N == 0 {
		in.N = 1
	}
	maxN := 4
	if in.IsVariation() {
		maxN = 10
	}
	if in.N < 1 || in.N > maxN {
		return NewValidationError("n must be between 1 and %d", maxN)
	}
	return nil
}

// EnhancementInput 内容增强输入
type EnhancementInput struct {
	Text            string          `json:"text" example:"their going to the event"`
	EnhancementType EnhancementType `json:"enhancement_type" example:"grammar"`
	TargetTone      string          `json:"target_tone,omitempty"`
	Context         string          `json:"context,omitempty"`
	Keywords        []string        `json:"keywords,omitempty"`
	MaxLength       int             `json:"max_length,omitempty"`
}

func (in *EnhancementInput) TaskType() TaskType { return TaskTypeContentEnhancement }

// Validate 校验内容增强输入
func (in *EnhancementInput) Validate() error {
	if strings.TrimSpace(in.Text) == "" {
		return NewValidationError("text is required")
	}
	if in.EnhancementType == "" {
		in.EnhancementType = EnhancementImprove
	}
	if !in.EnhancementType.Valid() {
		return NewValidationError("enhancement_type %q is not supported", in.EnhancementType)
	}
	if in.EnhancementType == EnhancementTone && strings.TrimSpace(in.TargetTone) == "" {
		return NewValidationError("target_tone is required for tone enhancement")
	}
	if in.MaxLength < 0 {
		return NewValidationError("max_length must not be negative")
	}
	return nil
}

// AutomationInput 自动化任务输入,对应一次工作流触发
type AutomationInput struct {
	WorkflowID  string                 `json:"workflow_id"`
	TriggerData map[string]interface{} `json:"trigger_data,omitempty"`
}

func (in *AutomationInput) TaskType() TaskType { return TaskTypeAutomation }

// Validate 校验自动化输入
func (in *AutomationInput) Validate() error {
	if strings.TrimSpace(in.WorkflowID) == "" {
		return NewValidationError("workflow_id is required")
	}
	return nil
}

// TextOutput 文本生成结果
type TextOutput struct {
	Text       string   `json:"text"`
	Title      string   `json:"title,omitempty"`
	Hashtags   []string `json:"hashtags,omitempty"`
	ContentID  string   `json:"content_id,omitempty"`
	TokensUsed int      `json:"tokens_used"`
	Model      string   `json:"model,omitempty"`
}

// TranslationResult 单个目标语言的翻译结果
type TranslationResult struct {
	JobID          string            `json:"job_id"`
	TargetLanguage Language          `json:"target_language"`
	TranslatedText string            `json:"translated_text,omitempty"`
	QualityScore   *float64          `json:"quality_score,omitempty"`
	Status         TranslationStatus `json:"status"`
	Error          string            `json:"error,omitempty"`
}

// TranslationOutput 翻译结果
type TranslationOutput struct {
	SourceLanguage Language            `json:"source_language"`
	Translations   []TranslationResult `json:"translations"`
	TokensUsed     int                 `json:"tokens_used"`
	Model          string              `json:"model,omitempty"`
}

// EnhancementOutput 内容增强结果
type EnhancementOutput struct {
	EnhancementType EnhancementType `json:"enhancement_type"`
	OriginalText    string          `json:"original_text"`
	EnhancedText    string          `json:"enhanced_text"`
	TokensUsed      int             `json:"tokens_used"`
	Model           string          `json:"model,omitempty"`
}

// Image 单张图片
type Image struct {
	URL           string `json:"url"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// ImageOutput 图片生成结果
type ImageOutput struct {
	Images []Image `json:"images"`
	Size   string  `json:"size"`
	Model  string  `json:"model,omitempty"`
}

// AutomationOutput 工作流执行结果
type AutomationOutput struct {
	WorkflowID   string `json:"workflow_id"`
	ExecutionID  string `json:"execution_id"`
	Status       string `json:"status"`
	StepsRun     int    `json:"steps_run"`
	HaltedReason string `json:"halted_reason,omitempty"`
}

// FailureOutput 失败任务的输出
type FailureOutput struct {
	Error     string    `json:"error"`
	ErrorCode ErrorCode `json:"error_code,omitempty"`
}
