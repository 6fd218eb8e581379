package publisher

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

	"github.com/mission-engadi/ai-service/internal/config"
)

// httpTarget 基于 JSON-HTTP 的发布目标
type httpTarget struct {
	name       string
	url        string
	token      string
	httpClient *http.Client
	build      func(Request) interface{}
}

// newHTTPTarget 创建 HTTP 发布目标
func newHTTPTarget(name, baseURL, path, token string, timeout time.Duration, build func(Request) interface{}) Target {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	url := ""
	if baseURL != "" {
		url = strings.TrimRight(baseURL, "/") + path
	}
	return &httpTarget{
		name:       name,
		url:        url,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		build:      build,
	}
}

// NewContentTarget 内容服务: POST /api/v1/content
func NewContentTarget(baseURL, token string, timeout time.Duration) Target {
	return newHTTPTarget(TargetContent, baseURL, "/api/v1/content", token, timeout, func(req Request) interface{} {
		return map[string]interface{}{
			"source_id":    req.ContentID,
			"content_type": req.ContentType,
			"language":     req.Language,
			"title":        req.Title,
			"body":         req.Body,
			"metadata":     req.Metadata,
			"publish_at":   req.ScheduledAt,
		}
	})
}

// NewSocialTarget 社交媒体服务: POST /api/v1/posts
func NewSocialTarget(baseURL, token string, timeout time.Duration) Target {
	return newHTTPTarget(TargetSocial, baseURL, "/api/v1/posts", token, timeout, func(req Request) interface{} {
		mediaURLs := req.MediaURLs
		if mediaURLs == nil {
			mediaURLs = []string{}
		}
		return map[string]interface{}{
			"platform":      req.Platform,
			"content":       req.Body,
			"media_urls":    mediaURLs,
			"schedule_time": req.ScheduledAt,
		}
	})
}

// NewNotificationTarget 通知服务: POST /api/v1/notifications
func NewNotificationTarget(baseURL, token string, timeout time.Duration) Target {
	return newHTTPTarget(TargetNotification, baseURL, "/api/v1/notifications", token, timeout, func(req Request) interface{} {
		notificationType := req.NotificationType
		if notificationType == "" {
			notificationType = "email"
		}
		subject := req.Subject
		if subject == "" {
			subject = req.Title
		}
		recipients := req.Recipients
		if recipients == nil {
			recipients = []string{}
		}
		return map[string]interface{}{
			"type":       notificationType,
			"recipients": recipients,
			"subject":    subject,
			"content":    req.Body,
		}
	})
}

// NewRegistryFromConfig 根据配置注册全部目标
func NewRegistryFromConfig(cfg config.ServicesConfig) *Registry {
	return NewRegistry(
		NewContentTarget(cfg.ContentURL, cfg.Token, cfg.Timeout),
		NewSocialTarget(cfg.SocialURL, cfg.Token, cfg.Timeout),
		NewNotificationTarget(cfg.NotificationURL, cfg.Token, cfg.Timeout),
	)
}

// Name 目标名称
func (t *httpTarget) Name() string {
	return t.name
}

// Publish 发布,不重试
func (t *httpTarget) Publish(ctx context.Context, req Request) (*Result, error) {
	if t.url == "" {
		return nil, fmt.Errorf("%s service url is not configured", t.name)
	}

	body, err := json.Marshal(t.build(req))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	token := req.AuthToken
	if token == "" {
		token = t.token
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s service returned %d: %s", t.name, resp.StatusCode, string(data))
	}

	result := &Result{Response: map[string]interface{}{}}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &result.Response); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	result.ExternalID = externalID(result.Response)
	if result.ExternalID == "" {
		return nil, errors.New("response carries no identifier")
	}
	return result, nil
}

// externalID 从下游响应中提取资源 ID
func externalID(resp map[string]interface{}) string {
	for _, key := range []string{"id", "external_id", "post_id", "notification_id"} {
		switch v := resp[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	if data, ok := resp["data"].(map[string]interface{}); ok {
		return externalID(data)
	}
	return ""
}
