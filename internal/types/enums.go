package types

// TaskType 任务类型
type TaskType string

const (
	TaskTypeContentGeneration  TaskType = "content_generation"
	TaskTypeTranslation        TaskType = "translation"
	TaskTypeImageGeneration    TaskType = "image_generation"
	TaskTypeContentEnhancement TaskType = "content_enhancement"
	TaskTypeAutomation         TaskType = "automation"
)

// TaskTypes 所有任务类型
var TaskTypes = []TaskType{
	TaskTypeContentGeneration,
	TaskTypeTranslation,
	TaskTypeImageGeneration,
	TaskTypeContentEnhancement,
	TaskTypeAutomation,
}

// Valid 是否为已知任务类型
func (t TaskType) Valid() bool {
	for _, v := range TaskTypes {
		if v == t {
			return true
		}
	}
	return false
}

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// TaskStatuses 所有任务状态
var TaskStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusProcessing,
	TaskStatusCompleted,
	TaskStatusFailed,
	TaskStatusCancelled,
}

// Valid 是否为已知状态
func (s TaskStatus) Valid() bool {
	for _, v := range TaskStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ContentType 生成内容类型
type ContentType string

const (
	ContentTypeSocialPost    ContentType = "social_post"
	ContentTypeArticle       ContentType = "article"
	ContentTypeStory         ContentType = "story"
	ContentTypeDonorLetter   ContentType = "donor_letter"
	ContentTypeNewsletter    ContentType = "newsletter"
	ContentTypePrayerRequest ContentType = "prayer_request"
	ContentTypeCampaignCopy  ContentType = "campaign_copy"
)

// ContentTypes 所有内容类型
var ContentTypes = []ContentType{
	ContentTypeSocialPost,
	ContentTypeArticle,
	ContentTypeStory,
	ContentTypeDonorLetter,
	ContentTypeNewsletter,
	ContentTypePrayerRequest,
	ContentTypeCampaignCopy,
}

// Valid 是否为已知内容类型
func (c ContentType) Valid() bool {
	for _, v := range ContentTypes {
		if v == c {
			return true
		}
	}
	return false
}

// Language 支持的语言
type Language string

const (
	LanguageEnglish    Language = "en"
	LanguageSpanish    Language = "es"
	LanguageFrench     Language = "fr"
	LanguagePortuguese Language = "pt"
)

var languageNames = map[Language]string{
	LanguageEnglish:    "English",
	LanguageSpanish:    "Spanish",
	LanguageFrench:     "French",
	LanguagePortuguese: "Portuguese",
}

// Languages 所有支持的语言
var Languages = []Language{LanguageEnglish, LanguageSpanish, LanguageFrench, LanguagePortuguese}

// Valid 是否为支持的语言
func (l Language) Valid() bool {
	_, ok := languageNames[l]
	return ok
}

// Name 语言的英文名称
func (l Language) Name() string {
	if name, ok := languageNames[l]; ok {
		return name
	}
	return string(l)
}

// TranslationStatus 翻译任务状态,独立于父任务状态
type TranslationStatus string

const (
	TranslationStatusPending    TranslationStatus = "pending"
	TranslationStatusProcessing TranslationStatus = "processing"
	TranslationStatusCompleted  TranslationStatus = "completed"
	TranslationStatusFailed     TranslationStatus = "failed"
)

// EnhancementType 内容增强类型
type EnhancementType string

const (
	EnhancementGrammar   EnhancementType = "grammar"
	EnhancementTone      EnhancementType = "tone"
	EnhancementSEO       EnhancementType = "seo"
	EnhancementSummarize EnhancementType = "summarize"
	EnhancementImprove   EnhancementType = "improve"
)

// Valid 是否为已知增强类型
func (e EnhancementType) Valid() bool {
	switch e {
	case EnhancementGrammar, EnhancementTone, EnhancementSEO, EnhancementSummarize, EnhancementImprove:
		return true
	}
	return false
}

// ImageSizes 支持的图片尺寸
var ImageSizes = []string{"256x256", "512x512", "1024x1024", "1024x1792", "1792x1024"}

// DefaultImageSize 默认图片尺寸
const DefaultImageSize = "1024x1024"

// ValidImageSize 是否为支持的图片尺寸
func ValidImageSize(size string) bool {
	for _, s := range ImageSizes {
		if s == size {
			return true
		}
	}
	return false
}

// ApprovalDecision 审批决定: 未设置/同意/拒绝
type ApprovalDecision string

const (
	ApprovalUnset    ApprovalDecision = "unset"
	ApprovalApproved ApprovalDecision = "approved"
	ApprovalRejected ApprovalDecision = "rejected"
)

// DecisionOf 将可空布尔转换为审批决定
func DecisionOf(approved *bool) ApprovalDecision {
	if approved == nil {
		return ApprovalUnset
	}
	if *approved {
		return ApprovalApproved
	}
	return ApprovalRejected
}
