package types_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/mission-engadi/ai-service/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDecodeTaskInput_UnknownType 测试未知任务类型
func TestDecodeTaskInput_UnknownType(t *testing.T) {
	_, err := types.DecodeTaskInput("unknown_type", json.RawMessage(`{"text":"x"}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
}

// TestDecodeTaskInput_EmptyInput 测试空输入
func TestDecodeTaskInput_EmptyInput(t *testing.T) {
	_, err := types.DecodeTaskInput(types.TaskTypeTranslation, nil)
	assert.True(t, errors.Is(err, types.ErrValidation))

	_, err = types.DecodeTaskInput(types.TaskTypeTranslation, json.RawMessage(`null`))
	assert.True(t, errors.Is(err, types.ErrValidation))
}

// TestDecodeTaskInput_TranslationAliases 测试翻译输入的简写字段
func TestDecodeTaskInput_TranslationAliases(t *testing.T) {
	in, err := types.DecodeTaskInput(types.TaskTypeTranslation, json.RawMessage(`{"text":"Hello","source":"en","target":"es"}`))
	require.NoError(t, err)

	tr, ok := in.(*types.TranslationInput)
	require.True(t, ok)
	assert.Equal(t, types.LanguageEnglish, tr.SourceLanguage)
	assert.Equal(t, []types.Language{types.LanguageSpanish}, tr.Targets())
}

// TestDecodeTaskInput_TranslationRequiredFields 测试翻译必填字段
func TestDecodeTaskInput_TranslationRequiredFields(t *testing.T) {
	cases := []string{
		`{"source_language":"en","target_language":"es"}`,
		`{"text":"Hi","target_language":"es"}`,
		`{"text":"Hi","source_language":"en"}`,
		`{"text":"Hi","source_language":"en","target_language":"de"}`,
		`{"text":"Hi","source_language":"en","target_language":"en"}`,
	}
	for _, c := range cases {
		_, err := types.DecodeTaskInput(types.TaskTypeTranslation, json.RawMessage(c))
		assert.True(t, errors.Is(err, types.ErrValidation), c)
	}
}

// TestTranslationInput_TargetsDedup 测试目标语言去重
func TestTranslationInput_TargetsDedup(t *testing.T) {
	in := &types.TranslationInput{
		TargetLanguage:  types.LanguageSpanish,
		TargetLanguages: []types.Language{types.LanguageFrench, types.LanguageSpanish, types.LanguagePortuguese},
	}
	assert.Equal(t, []types.Language{types.LanguageSpanish, types.LanguageFrench, types.LanguagePortuguese}, in.Targets())
}

// TestDecodeTaskInput_ContentGeneration 测试内容生成输入默认值与校验
func TestDecodeTaskInput_ContentGeneration(t *testing.T) {
	in, err := types.DecodeTaskInput(types.TaskTypeContentGeneration, json.RawMessage(`{"content_type":"article","topic":"water wells"}`))
	require.NoError(t, err)
	assert.Equal(t, types.LanguageEnglish, in.(*types.ContentGenerationInput).Language)

	_, err = types.DecodeTaskInput(types.TaskTypeContentGeneration, json.RawMessage(`{"content_type":"poem","topic":"x"}`))
	assert.True(t, errors.Is(err, types.ErrValidation))

	_, err = types.DecodeTaskInput(types.TaskTypeContentGeneration, json.RawMessage(`{"content_type":"article"}`))
	assert.True(t, errors.Is(err, types.ErrValidation))
}

// TestDecodeTaskInput_Image 测试图片输入
func TestDecodeTaskInput_Image(t *testing.T) {
	in, err := types.DecodeTaskInput(types.TaskTypeImageGeneration, json.RawMessage(`{"prompt":"a lighthouse"}`))
	require.NoError(t, err)
	img := in.(*types.ImageGenerationInput)
	assert.Equal(t, types.DefaultImageSize, img.Size)
	assert.Equal(t, 1, img.N)

	_, err = types.DecodeTaskInput(types.TaskTypeImageGeneration, json.RawMessage(`{"prompt":"x","size":"100x100"}`))
	assert.True(t, errors.Is(err, types.ErrValidation))

	_, err = types.DecodeTaskInput(types.TaskTypeImageGeneration, json.RawMessage(`{"prompt":"x","n":5}`))
	assert.True(t, errors.Is(err, types.ErrValidation))

	in, err = types.DecodeTaskInput(types.TaskTypeImageGeneration, json.RawMessage(`{"source_image_url":"https://img/1.png","n":8}`))
	require.NoError(t, err)
	assert.True(t, in.(*types.ImageGenerationInput).IsVariation())
}

// TestDecodeTaskInput_Enhancement 测试增强输入
func TestDecodeTaskInput_Enhancement(t *testing.T) {
	in, err := types.DecodeTaskInput(types.TaskTypeContentEnhancement, json.RawMessage(`{"text":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, types.EnhancementImprove, in.(*types.EnhancementInput).EnhancementType)

	_, err = types.DecodeTaskInput(types.TaskTypeContentEnhancement, json.RawMessage(`{"text":"abc","enhancement_type":"tone"}`))
	assert.True(t, errors.Is(err, types.ErrValidation))
}

// TestError_Is 测试错误匹配
func TestError_Is(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", types.NewNotFoundError("task", "t1"))
	assert.True(t, errors.Is(err, types.ErrNotFound))
	assert.False(t, errors.Is(err, types.ErrValidation))
	assert.Equal(t, types.CodeNotFound, types.CodeOf(err))
	assert.Equal(t, types.ErrorCode(""), types.CodeOf(errors.New("plain")))

	missing := types.NewMissingVariableError([]string{"city", "name"})
	assert.Contains(t, missing.Error(), "city, name")
}
