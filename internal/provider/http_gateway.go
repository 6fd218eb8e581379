package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mission-engadi/ai-service/internal/config"
	"github.com/mission-engadi/ai-service/internal/metrics"
	"github.com/mission-engadi/ai-service/internal/types"
	"github.com/sirupsen/logrus"
)

// Options HTTP 网关参数
type Options struct {
	BaseURL        string
	APIKey         string
	Model          string
	ImageModel     string
	MaxTokens      int
	Temperature    float64
	Timeout        time.Duration // 单次尝试超时
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// OptionsFromConfig 从配置构建网关参数
func OptionsFromConfig(cfg config.AIConfig) Options {
	return Options{
		BaseURL:        cfg.BaseURL,
		APIKey:         cfg.APIKey,
		Model:          cfg.Model,
		ImageModel:     cfg.ImageModel,
		MaxTokens:      cfg.MaxTokens,
		Temperature:    cfg.Temperature,
		Timeout:        cfg.Timeout,
		MaxRetries:     cfg.MaxRetries,
		BackoffInitial: cfg.BackoffInitial,
		BackoffMax:     cfg.BackoffMax,
	}
}

// httpGateway OpenAI 兼容接口的网关实现
type httpGateway struct {
	opts       Options
	httpClient *http.Client
	logger     logrus.FieldLogger
}

// NewHTTPGateway 创建 HTTP 网关
func NewHTTPGateway(opts Options, logger logrus.FieldLogger) Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = 500 * time.Millisecond
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 10 * time.Second
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2000
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &httpGateway{
		opts:       opts,
		httpClient: &http.Client{},
		logger:     logger.WithField("component", "provider"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type imageRequest struct {
	Model          string `json:"model,omitempty"`
	Prompt         string `json:"prompt,omitempty"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	Style          string `json:"style,omitempty"`
	SourceImageURL string `json:"image_url,omitempty"`
}

type imageResponse struct {
	Data []struct {
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// GenerateText 文本生成
func (g *httpGateway) GenerateText(ctx context.Context, req TextRequest) (*TextResult, error) {
	return g.chat(ctx, "generate_text", req)
}

// Translate 翻译
func (g *httpGateway) Translate(ctx context.Context, req TranslateRequest) (*TranslateResult, error) {
	temperature := TranslateTemperature
	result, err := g.chat(ctx, "translate", TextRequest{
		Prompt:        TranslatePrompt(req.Text, req.Source, req.Target, req.PreserveFormatting),
		SystemMessage: translatorSystemPrompt,
		Temperature:   &temperature,
	})
	if err != nil {
		return nil, err
	}
	return &TranslateResult{
		TranslatedText: strings.TrimSpace(result.Text),
		QualityScore:   DefaultTranslationQuality,
		TokensUsed:     result.TokensUsed,
		Model:          result.Model,
	}, nil
}

// Enhance 内容增强
func (g *httpGateway) Enhance(ctx context.Context, req EnhanceRequest) (*EnhanceResult, error) {
	temperature := EnhanceTemperature
	result, err := g.chat(ctx, "enhance", TextRequest{
		Prompt:        EnhancePrompt(req),
		SystemMessage: editorSystemPrompt,
		Temperature:   &temperature,
	})
	if err != nil {
		return nil, err
	}
	return &EnhanceResult{
		EnhancedText: strings.TrimSpace(result.Text),
		TokensUsed:   result.TokensUsed,
		Model:        result.Model,
	}, nil
}

// GenerateImage 图片生成与变体
func (g *httpGateway) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	path := "/images/generations"
	operation := "generate_image"
	if req.SourceImageURL != "" {
		path = "/images/variations"
		operation = "image_variation"
	}

	var resp imageResponse
	err := g.do(ctx, operation, path, imageRequest{
		Model:          g.opts.ImageModel,
		Prompt:         req.Prompt,
		N:              req.N,
		Size:           req.Size,
		Style:          req.Style,
		SourceImageURL: req.SourceImageURL,
	}, &resp)
	if err != nil {
		return nil, err
	}

	images := make([]types.Image, 0, len(resp.Data))
	for _, d := range resp.Data {
		images = append(images, types.Image{URL: d.URL, RevisedPrompt: d.RevisedPrompt})
	}
	return &ImageResult{Images: images, Model: g.opts.ImageModel}, nil
}

func (g *httpGateway) chat(ctx context.Context, operation string, req TextRequest) (*TextResult, error) {
	system := req.SystemMessage
	if system == "" {
		system = defaultSystemMessage
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.opts.MaxTokens
	}
	temperature := g.opts.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	var resp chatResponse
	err := g.do(ctx, operation, "/chat/completions", chatRequest{
		Model: g.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: req.Prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, types.NewProviderUnavailableError(errors.New("provider returned no choices"))
	}

	model := resp.Model
	if model == "" {
		model = g.opts.Model
	}
	return &TextResult{
		Text:       resp.Choices[0].Message.Content,
		TokensUsed: resp.Usage.TotalTokens,
		Model:      model,
	}, nil
}

// do 发送请求: 超时、传输错误与 5xx 按抖动指数退避重试,4xx 直接返回
func (g *httpGateway) do(ctx context.Context, operation, path string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	start := time.Now()
	call := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, strings.TrimRight(g.opts.BaseURL, "/")+path, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if g.opts.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+g.opts.APIKey)
		}

		resp, err := g.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 500 {
			return fmt.Errorf("provider error %d: %s", resp.StatusCode, string(data))
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(types.NewProviderRejectedError(resp.StatusCode, string(data)))
		}

		if err := json.Unmarshal(data, out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = g.opts.BackoffInitial
	policy.MaxInterval = g.opts.BackoffMax
	policy.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		metrics.RecordProviderRetry(operation)
		g.logger.WithFields(logrus.Fields{
			"operation": operation,
			"wait":      wait.String(),
		}).WithError(err).Warn("provider call failed, retrying")
	}

	err = backoff.RetryNotify(call, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(g.opts.MaxRetries)), ctx), notify)
	elapsed := time.Since(start).Seconds()
	if err == nil {
		metrics.RecordProviderCall(operation, "success", elapsed)
		return nil
	}

	if errors.Is(err, types.ErrProviderRejected) {
		metrics.RecordProviderCall(operation, "rejected", elapsed)
		g.logger.WithField("operation", operation).WithError(err).Warn("provider rejected request")
		return err
	}

	metrics.RecordProviderCall(operation, "unavailable", elapsed)
	g.logger.WithField("operation", operation).WithError(err).Error("provider unavailable")
	return types.NewProviderUnavailableError(err)
}
