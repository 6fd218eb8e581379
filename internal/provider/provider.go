// Package provider 封装第三方 LLM provider 调用
package provider

import (
	"context"

	"github.com/mission-engadi/ai-service/internal/types"
)

// Gateway AI provider 网关,无状态
type Gateway interface {
	GenerateText(ctx context.Context, req TextRequest) (*TextResult, error)
	Translate(ctx context.Context, req TranslateRequest) (*TranslateResult, error)
	Enhance(ctx context.Context, req EnhanceRequest) (*EnhanceResult, error)
	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error)
}

// TextRequest 文本生成请求
type TextRequest struct {
	Prompt        string
	SystemMessage string
	MaxTokens     int
	Temperature   *float64
}

// TextResult 文本生成结果
type TextResult struct {
	Text       string
	TokensUsed int
	Model      string
}

// TranslateRequest 翻译请求
type TranslateRequest struct {
	Text               string
	Source             types.Language
	Target             types.Language
	PreserveFormatting bool
}

// TranslateResult 翻译结果
type TranslateResult struct {
	TranslatedText string
	QualityScore   float64
	TokensUsed     int
	Model          string
}

// EnhanceRequest 内容增强请求
type EnhanceRequest struct {
	Text       string
	Type       types.EnhancementType
	TargetTone string
	Context    string
	Keywords   []string
	MaxLength  int
}

// EnhanceResult 内容增强结果
type EnhanceResult struct {
	EnhancedText string
	TokensUsed   int
	Model        string
}

// ImageRequest 图片生成请求,SourceImageURL 非空时为变体生成
type ImageRequest struct {
	Prompt         string
	Size           string
	Style          string
	N              int
	SourceImageURL string
}

// ImageResult 图片生成结果
type ImageResult struct {
	Images []types.Image
	Model  string
}
