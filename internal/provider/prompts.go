package provider

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mission-engadi/ai-service/internal/types"
)

// 各操作的采样温度与系统消息
const (
	TranslateTemperature = 0.3
	EnhanceTemperature   = 0.5

	// DefaultTranslationQuality provider 不返回质量分时使用的默认值
	DefaultTranslationQuality = 0.85

	defaultSystemMessage   = "You are a helpful AI assistant."
	translatorSystemPrompt = "You are a professional translator."
	editorSystemPrompt     = "You are an expert editor and content strategist."
	SocialSystemPrompt     = "You are a social media expert creating engaging posts."
	WriterSystemPrompt     = "You are a skilled writer for a non-profit mission organization."
)

var hashtagPattern = regexp.MustCompile(`#\w+`)

// TranslatePrompt 构建翻译提示词
func TranslatePrompt(text string, source, target types.Language, preserveFormatting bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Translate the following text from %s to %s.\n", source.Name(), target.Name())
	b.WriteString("Provide ONLY the translation, no explanations.\n")
	if preserveFormatting {
		b.WriteString("Preserve the original formatting, line breaks and markup.\n")
	}
	fmt.Fprintf(&b, "\nText to translate:\n%s\n\nTranslation:", text)
	return b.String()
}

// EnhancePrompt 构建内容增强提示词
func EnhancePrompt(req EnhanceRequest) string {
	var instruction string
	switch req.Type {
	case types.EnhancementGrammar:
		instruction = "Fix all grammar, spelling, and punctuation errors in the following text. Keep the same tone and style:"
	case types.EnhancementTone:
		tone := req.TargetTone
		if tone == "" {
			tone = "professional and friendly"
		}
		instruction = fmt.Sprintf("Adjust the tone of the following text to be %s:", tone)
	case types.EnhancementSEO:
		instruction = "Optimize the following text for SEO. Add relevant keywords naturally and improve readability:"
		if len(req.Keywords) > 0 {
			instruction = fmt.Sprintf("Optimize the following text for SEO using these keywords: %s. Add them naturally and improve readability:",
				strings.Join(req.Keywords, ", "))
		}
	case types.EnhancementSummarize:
		instruction = "Provide a concise summary of the following text:"
		if req.MaxLength > 0 {
			instruction = fmt.Sprintf("Provide a concise summary of the following text in at most %d characters:", req.MaxLength)
		}
	default:
		instruction = "Improve the following text by making it clearer, more engaging, and more impactful:"
	}

	var b strings.Builder
	b.WriteString(instruction)
	if req.Context != "" {
		fmt.Fprintf(&b, "\nContext: %s", req.Context)
	}
	fmt.Fprintf(&b, "\n\n%s\n\nEnhanced version:", req.Text)
	return b.String()
}

// SocialPostPrompt 构建社交媒体帖子提示词
func SocialPostPrompt(platform, topic, tone string, maxLength int, includeHashtags bool) string {
	if platform == "" {
		platform = "social media"
	}
	if tone == "" {
		tone = "inspirational"
	}
	if maxLength <= 0 {
		maxLength = 280
	}
	hashtagInstruction := ""
	if includeHashtags {
		hashtagInstruction = "Include 3-5 relevant hashtags at the end."
	}
	return fmt.Sprintf("Create an engaging %s post about: %s\n\nTone: %s\nMaximum length: %d characters\n%s\n\nPost:",
		platform, topic, tone, maxLength, hashtagInstruction)
}

// ContentPrompt 构建长文本(文章、故事、捐赠者信件、简报等)提示词
func ContentPrompt(contentType types.ContentType, title, topic, audience, tone string, language types.Language) string {
	kind := strings.ReplaceAll(string(contentType), "_", " ")
	var b strings.Builder
	fmt.Fprintf(&b, "Write a %s", kind)
	if title != "" {
		fmt.Fprintf(&b, " titled %q", title)
	}
	if topic != "" {
		fmt.Fprintf(&b, " about: %s", topic)
	}
	b.WriteString("\n")
	if audience != "" {
		fmt.Fprintf(&b, "\nTarget audience: %s", audience)
	}
	if tone != "" {
		fmt.Fprintf(&b, "\nTone: %s", tone)
	}
	if language != "" && language != types.LanguageEnglish {
		fmt.Fprintf(&b, "\nWrite it in %s.", language.Name())
	}
	b.WriteString("\n\nContent:")
	return b.String()
}

// DetectLanguagePrompt 构建语言检测提示词
func DetectLanguagePrompt(text string) string {
	codes := make([]string, 0, len(types.Languages))
	for _, l := range types.Languages {
		codes = append(codes, string(l))
	}
	return fmt.Sprintf("Identify the language of the following text. Answer with ONLY one ISO 639-1 code from this list: %s.\n\nText:\n%s\n\nLanguage code:",
		strings.Join(codes, ", "), text)
}

// ExtractHashtags 提取文本中的话题标签,按首次出现排序去重
func ExtractHashtags(text string) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, tag := range hashtagPattern.FindAllString(text, -1) {
		if seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}
