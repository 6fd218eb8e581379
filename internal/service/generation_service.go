package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mission-engadi/ai-service/internal/integration"
	"github.com/mission-engadi/ai-service/internal/model"
	"github.com/mission-engadi/ai-service/internal/provider"
	"github.com/mission-engadi/ai-service/internal/repository"
	"github.com/mission-engadi/ai-service/internal/types"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchWorkers 批量请求的默认并发数
const DefaultBatchWorkers = 4

// GenerationService 内容生成、翻译、图片与增强的便捷入口,每个请求对应一个任务
type GenerationService interface {
	// Run 创建并执行一个任务
	Run(ctx context.Context, input types.TaskInput, requiresApproval bool) (*model.TaskModel, error)
	// Batch 并发执行多个任务,单项失败不影响其他项
	Batch(ctx context.Context, inputs []types.TaskInput, requiresApproval bool) []*BatchItemResult
	DetectLanguage(ctx context.Context, text string) (*DetectResult, error)
	// AutoTranslate 将已有内容翻译为除其自身语言外的每个目标语言
	AutoTranslate(ctx context.Context, req *AutoTranslateRequest) (*model.TaskModel, error)
	TranslationHistory(filter *repository.TranslationJobFilter, page repository.Page) ([]*model.TranslationJobModel, int64, error)
}

// BatchItemResult 批量请求中单项的结果
type BatchItemResult struct {
	Index int       `json:"index"`
	Task  *TaskView `json:"task,omitempty"`
	Error string    `json:"error,omitempty"`
}

// DetectResult 语言检测结果
type DetectResult struct {
	Language     types.Language `json:"language"`
	LanguageName string         `json:"language_name"`
	Confidence   float64        `json:"confidence"`
}

// AutoTranslateRequest 自动翻译请求
type AutoTranslateRequest struct {
	ContentID       string           `json:"content_id" binding:"required"`
	TargetLanguages []types.Language `json:"target_languages"`
}

// generationService 生成服务实现
type generationService struct {
	tasks            TaskService
	contents         integration.ContentManager
	gateway          provider.Gateway
	workers          int
	defaultLanguages []types.Language
}

// NewGenerationService 创建生成服务
func NewGenerationService(
	tasks TaskService,
	contents integration.ContentManager,
	gateway provider.Gateway,
	workers int,
	defaultLanguages []string,
) GenerationService {
	if workers <= 0 {
		workers = DefaultBatchWorkers
	}
	langs := make([]types.Language, 0, len(defaultLanguages))
	for _, l := range defaultLanguages {
		langs = append(langs, types.Language(l))
	}
	return &generationService{
		tasks:            tasks,
		contents:         contents,
		gateway:          gateway,
		workers:          workers,
		defaultLanguages: langs,
	}
}

// Run 创建并执行任务
func (s *generationService) Run(ctx context.Context, input types.TaskInput, requiresApproval bool) (*model.TaskModel, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input: %w", err)
	}
	return s.tasks.CreateAndExecute(ctx, &CreateTaskRequest{
		TaskType:         input.TaskType(),
		InputData:        data,
		RequiresApproval: requiresApproval,
	})
}

// Batch 使用 errgroup 限制并发,错误按项收集
func (s *generationService) Batch(ctx context.Context, inputs []types.TaskInput, requiresApproval bool) []*BatchItemResult {
	results := make([]*BatchItemResult, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, input := range inputs {
		i, input := i, input
		g.Go(func() error {
			item := &BatchItemResult{Index: i}
			task, err := s.Run(gctx, input, requiresApproval)
			if task != nil {
				item.Task = NewTaskView(task)
			}
			if err != nil {
				item.Error = err.Error()
			}
			results[i] = item
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// DetectLanguage 通过 provider 识别文本语言
func (s *generationService) DetectLanguage(ctx context.Context, text string) (*DetectResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, types.NewValidationError("text is required")
	}
	temperature := 0.0
	result, err := s.gateway.GenerateText(ctx, provider.TextRequest{
		Prompt:      provider.DetectLanguagePrompt(text),
		MaxTokens:   5,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, err
	}

	answer := strings.ToLower(strings.Trim(strings.TrimSpace(result.Text), ".\"'"))
	lang := types.Language(answer)
	confidence := 0.95
	if !lang.Valid() {
		// 回答不在支持列表内时取前两个字母再试一次
		if len(answer) >= 2 {
			lang = types.Language(answer[:2])
		}
		confidence = 0.5
		if !lang.Valid() {
			lang = types.LanguageEnglish
			confidence = 0.0
		}
	}
	return &DetectResult{Language: lang, LanguageName: lang.Name(), Confidence: confidence}, nil
}

// AutoTranslate 自动翻译已有内容
func (s *generationService) AutoTranslate(ctx context.Context, req *AutoTranslateRequest) (*model.TaskModel, error) {
	content, err := s.contents.Get(req.ContentID)
	if err != nil {
		return nil, err
	}

	source := types.Language(content.Language)
	requested := req.TargetLanguages
	if len(requested) == 0 {
		requested = s.defaultLanguages
	}
	var targets []types.Language
	for _, l := range requested {
		if l != source {
			targets = append(targets, l)
		}
	}
	if len(targets) == 0 {
		return nil, types.NewValidationError("no target languages other than the content language %s", source)
	}

	return s.Run(ctx, &types.TranslationInput{
		Text:            content.Body,
		SourceLanguage:  source,
		TargetLanguages: targets,
		ContentID:       content.ID,
	}, false)
}

// TranslationHistory 翻译历史
func (s *generationService) TranslationHistory(filter *repository.TranslationJobFilter, page repository.Page) ([]*model.TranslationJobModel, int64, error) {
	return s.contents.TranslationJobs(filter, page)
}
