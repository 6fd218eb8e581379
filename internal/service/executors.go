package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mission-engadi/ai-service/internal/integration"
	"github.com/mission-engadi/ai-service/internal/model"
	"github.com/mission-engadi/ai-service/internal/provider"
	"github.com/mission-engadi/ai-service/internal/types"
)

// ContentExecutor 内容生成执行器
type ContentExecutor struct {
	gateway   provider.Gateway
	templates TemplateService
}

// NewContentExecutor 创建内容生成执行器,templates 为 nil 时不支持 template_id
func NewContentExecutor(gateway provider.Gateway, templates TemplateService) *ContentExecutor {
	return &ContentExecutor{gateway: gateway, templates: templates}
}

// buildPrompt 模板优先,其次是显式 prompt,最后按内容类型生成
func (e *ContentExecutor) buildPrompt(ctx context.Context, in *types.ContentGenerationInput) (string, string, error) {
	system := in.SystemMessage
	if system == "" {
		system = provider.WriterSystemPrompt
		if in.ContentType == types.ContentTypeSocialPost {
			system = provider.SocialSystemPrompt
		}
	}

	if in.TemplateID != "" {
		if e.templates == nil {
			return "", "", types.NewValidationError("templates are not available")
		}
		values := make(map[string]interface{}, len(in.Variables))
		for k, v := range in.Variables {
			values[k] = v
		}
		rendered, err := e.templates.Apply(ctx, in.TemplateID, values)
		if err != nil {
			return "", "", err
		}
		return rendered.Text, system, nil
	}

	topic := in.Topic
	if topic == "" {
		topic = in.Prompt
	}
	switch {
	case in.ContentType == types.ContentTypeSocialPost && in.Prompt == "":
		return provider.SocialPostPrompt(in.Platform, topic, in.Tone, in.MaxLength, in.IncludeHashtags), system, nil
	case in.Prompt != "":
		return in.Prompt, system, nil
	default:
		return provider.ContentPrompt(in.ContentType, in.Title, topic, in.Audience, in.Tone, in.Language), system, nil
	}
}

// Execute 实现 Executor
func (e *ContentExecutor) Execute(ctx context.Context, task *model.TaskModel, input types.TaskInput) (*ExecutionResult, error) {
	in, ok := input.(*types.ContentGenerationInput)
	if !ok {
		return nil, types.NewValidationError("unexpected input for %s", task.TaskType)
	}

	prompt, system, err := e.buildPrompt(ctx, in)
	if err != nil {
		return nil, err
	}
	result := &ExecutionResult{Prompt: prompt}

	text, err := e.gateway.GenerateText(ctx, provider.TextRequest{
		Prompt:        prompt,
		SystemMessage: system,
		MaxTokens:     in.MaxTokens,
		Temperature:   in.Temperature,
	})
	if err != nil {
		return result, err
	}

	body := strings.TrimSpace(text.Text)
	var hashtags []string
	if in.ContentType == types.ContentTypeSocialPost {
		hashtags = provider.ExtractHashtags(body)
	}
	metadata, _ := json.Marshal(map[string]interface{}{
		"platform": in.Platform,
		"tone":     in.Tone,
		"topic":    in.Topic,
		"hashtags": hashtags,
	})
	content := &model.GeneratedContentModel{
		ID:          uuid.New().String(),
		ContentType: string(in.ContentType),
		Language:    string(in.Language),
		Title:       in.Title,
		Body:        body,
		Metadata:    metadata,
	}

	result.Output = types.TextOutput{
		Text:       body,
		Title:      in.Title,
		Hashtags:   hashtags,
		ContentID:  content.ID,
		TokensUsed: text.TokensUsed,
		Model:      text.Model,
	}
	result.Model = text.Model
	result.TokensUsed = text.TokensUsed
	result.Contents = []*model.GeneratedContentModel{content}
	return result, nil
}

// TranslationExecutor 翻译执行器,每个目标语言对应一个翻译子任务
type TranslationExecutor struct {
	gateway  provider.Gateway
	tasks    integration.TaskManager
	contents integration.ContentManager
}

// NewTranslationExecutor 创建翻译执行器
func NewTranslationExecutor(gateway provider.Gateway, tasks integration.TaskManager, contents integration.ContentManager) *TranslationExecutor {
	return &TranslationExecutor{gateway: gateway, tasks: tasks, contents: contents}
}

// Execute 依次翻译每个目标语言,任一目标失败则任务失败,已完成的子任务保留结果
func (e *TranslationExecutor) Execute(ctx context.Context, task *model.TaskModel, input types.TaskInput) (*ExecutionResult, error) {
	in, ok := input.(*types.TranslationInput)
	if !ok {
		return nil, types.NewValidationError("unexpected input for %s", task.TaskType)
	}
	jobs, err := e.tasks.TranslationJobs(task.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load translation jobs: %w", err)
	}

	// 自动翻译时为每个目标语言生成新内容
	var source *model.GeneratedContentModel
	if in.ContentID != "" {
		source, err = e.contents.Get(in.ContentID)
		if err != nil {
			return nil, err
		}
	}

	output := types.TranslationOutput{SourceLanguage: in.SourceLanguage, Translations: []types.TranslationResult{}}
	result := &ExecutionResult{Output: output, Jobs: jobs}
	var firstErr error
	for _, job := range jobs {
		target := types.Language(job.TargetLanguage)
		translated, err := e.gateway.Translate(ctx, provider.TranslateRequest{
			Text:               job.SourceText,
			Source:             types.Language(job.SourceLanguage),
			Target:             target,
			PreserveFormatting: in.PreserveFormatting,
		})
		if err != nil {
			job.Status = string(types.TranslationStatusFailed)
			job.Error = err.Error()
			output.Translations = append(output.Translations, types.TranslationResult{
				JobID:          job.ID,
				TargetLanguage: target,
				Status:         types.TranslationStatusFailed,
				Error:          err.Error(),
			})
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		now := time.Now().UTC()
		quality := translated.QualityScore
		job.TranslatedText = translated.TranslatedText
		job.QualityScore = &quality
		job.Status = string(types.TranslationStatusCompleted)
		job.Error = ""
		job.CompletedAt = &now
		output.Translations = append(output.Translations, types.TranslationResult{
			JobID:          job.ID,
			TargetLanguage: target,
			TranslatedText: translated.TranslatedText,
			QualityScore:   &quality,
			Status:         types.TranslationStatusCompleted,
		})
		output.TokensUsed += translated.TokensUsed
		output.Model = translated.Model

		if source != nil {
			result.Contents = append(result.Contents, translatedContent(source, job, translated.TranslatedText, quality))
		}
	}

	result.Output = output
	result.Model = output.Model
	result.TokensUsed = output.TokensUsed
	if firstErr != nil {
		return result, firstErr
	}
	return result, nil
}

// translatedContent 由源内容派生的目标语言内容
func translatedContent(source *model.GeneratedContentModel, job *model.TranslationJobModel, text string, quality float64) *model.GeneratedContentModel {
	metadata := map[string]interface{}{}
	if len(source.Metadata) > 0 {
		_ = json.Unmarshal(source.Metadata, &metadata)
	}
	metadata["source_content_id"] = source.ID
	metadata["translation_job_id"] = job.ID
	data, _ := json.Marshal(metadata)

	return &model.GeneratedContentModel{
		ID:           uuid.New().String(),
		ContentType:  source.ContentType,
		Language:     job.TargetLanguage,
		Title:        source.Title,
		Body:         text,
		Metadata:     data,
		QualityScore: &quality,
	}
}

// ImageExecutor 图片生成执行器
type ImageExecutor struct {
	gateway provider.Gateway
}

// NewImageExecutor 创建图片生成执行器
func NewImageExecutor(gateway provider.Gateway) *ImageExecutor {
	return &ImageExecutor{gateway: gateway}
}

// Execute 实现 Executor
func (e *ImageExecutor) Execute(ctx context.Context, task *model.TaskModel, input types.TaskInput) (*ExecutionResult, error) {
	in, ok := input.(*types.ImageGenerationInput)
	if !ok {
		return nil, types.NewValidationError("unexpected input for %s", task.TaskType)
	}
	result := &ExecutionResult{Prompt: in.Prompt}

	images, err := e.gateway.GenerateImage(ctx, provider.ImageRequest{
		Prompt:         in.Prompt,
		Size:           in.Size,
		Style:          in.Style,
		N:              in.N,
		SourceImageURL: in.SourceImageURL,
	})
	if err != nil {
		return result, err
	}

	result.Output = types.ImageOutput{Images: images.Images, Size: in.Size, Model: images.Model}
	result.Model = images.Model
	return result, nil
}

// EnhancementExecutor 内容增强执行器
type EnhancementExecutor struct {
	gateway provider.Gateway
}

// NewEnhancementExecutor 创建内容增强执行器
func NewEnhancementExecutor(gateway provider.Gateway) *EnhancementExecutor {
	return &EnhancementExecutor{gateway: gateway}
}

// Execute 实现 Executor
func (e *EnhancementExecutor) Execute(ctx context.Context, task *model.TaskModel, input types.TaskInput) (*ExecutionResult, error) {
	in, ok := input.(*types.EnhancementInput)
	if !ok {
		return nil, types.NewValidationError("unexpected input for %s", task.TaskType)
	}
	req := provider.EnhanceRequest{
		Text:       in.Text,
		Type:       in.EnhancementType,
		TargetTone: in.TargetTone,
		Context:    in.Context,
		Keywords:   in.Keywords,
		MaxLength:  in.MaxLength,
	}
	result := &ExecutionResult{Prompt: provider.EnhancePrompt(req)}

	enhanced, err := e.gateway.Enhance(ctx, req)
	if err != nil {
		return result, err
	}

	result.Output = types.EnhancementOutput{
		EnhancementType: in.EnhancementType,
		OriginalText:    in.Text,
		EnhancedText:    strings.TrimSpace(enhanced.EnhancedText),
		TokensUsed:      enhanced.TokensUsed,
		Model:           enhanced.Model,
	}
	result.Model = enhanced.Model
	result.TokensUsed = enhanced.TokensUsed
	return result, nil
}
