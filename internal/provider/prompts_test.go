package provider_test

import (
	"testing"

	"github.com/mission-engadi/ai-service/internal/provider"
	"github.com/mission-engadi/ai-service/internal/types"
	"github.com/stretchr/testify/assert"
)

// TestTranslatePrompt 测试翻译提示词
func TestTranslatePrompt(t *testing.T) {
	prompt := provider.TranslatePrompt("Hello", types.LanguageEnglish, types.LanguageSpanish, true)
	assert.Contains(t, prompt, "from English to Spanish")
	assert.Contains(t, prompt, "Preserve the original formatting")
	assert.Contains(t, prompt, "Hello")
}

// TestEnhancePrompt 测试各增强类型的提示词
func TestEnhancePrompt(t *testing.T) {
	assert.Contains(t, provider.EnhancePrompt(provider.EnhanceRequest{Text: "x", Type: types.EnhancementGrammar}), "Fix all grammar")
	assert.Contains(t, provider.EnhancePrompt(provider.EnhanceRequest{Text: "x", Type: types.EnhancementTone, TargetTone: "warm"}), "to be warm")
	assert.Contains(t, provider.EnhancePrompt(provider.EnhanceRequest{Text: "x", Type: types.EnhancementSEO, Keywords: []string{"faith", "hope"}}), "faith, hope")
	assert.Contains(t, provider.EnhancePrompt(provider.EnhanceRequest{Text: "x", Type: types.EnhancementSummarize, MaxLength: 100}), "at most 100 characters")
	assert.Contains(t, provider.EnhancePrompt(provider.EnhanceRequest{Text: "x", Type: types.EnhancementImprove, Context: "donors"}), "Context: donors")
}

// TestSocialPostPrompt 测试社交帖子提示词
func TestSocialPostPrompt(t *testing.T) {
	prompt := provider.SocialPostPrompt("instagram", "clean water", "hopeful", 200, true)
	assert.Contains(t, prompt, "Create an engaging instagram post about: clean water")
	assert.Contains(t, prompt, "Maximum length: 200 characters")
	assert.Contains(t, prompt, "hashtags")

	assert.NotContains(t, provider.SocialPostPrompt("", "x", "", 0, false), "hashtags")
}

// TestExtractHashtags 测试话题标签提取
func TestExtractHashtags(t *testing.T) {
	tags := provider.ExtractHashtags("Join us! #hope #CleanWater today #hope")
	assert.Equal(t, []string{"#hope", "#CleanWater"}, tags)
	assert.Nil(t, provider.ExtractHashtags("no tags"))
}
