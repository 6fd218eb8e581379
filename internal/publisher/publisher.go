// Package publisher 将生成内容发布到下游服务(内容服务、社交媒体服务、通知服务)
package publisher

import (
	"context"
	"sort"
	"strings"
	"time"
)

// 发布目标名称
const (
	TargetContent      = "content"
	TargetSocial       = "social"
	TargetNotification = "notification"
)

var targetAliases = map[string]string{
	"content":              TargetContent,
	"content_service":      TargetContent,
	"social":               TargetSocial,
	"social_media":         TargetSocial,
	"social_media_service": TargetSocial,
	"notification":         TargetNotification,
	"notification_service": TargetNotification,
}

// NormalizeTarget 归一化目标名称,未知名称返回空字符串
func NormalizeTarget(name string) string {
	return targetAliases[strings.ToLower(strings.TrimSpace(name))]
}

// Request 发布请求
type Request struct {
	ContentID   string
	ContentType string
	Language    string
	Title       string
	Body        string
	Platform    string
	MediaURLs   []string
	Metadata    map[string]interface{}
	ScheduledAt *time.Time
	AuthToken   string // 透传调用方令牌,为空时使用服务令牌

	// 通知服务
	NotificationType string
	Recipients       []string
	Subject          string
}

// Result 发布结果
type Result struct {
	ExternalID string
	Response   map[string]interface{}
}

// Target 发布目标
type Target interface {
	Name() string
	Publish(ctx context.Context, req Request) (*Result, error)
}

// Registry 发布目标注册表
type Registry struct {
	targets map[string]Target
}

// NewRegistry 创建注册表
func NewRegistry(targets ...Target) *Registry {
	r := &Registry{targets: make(map[string]Target, len(targets))}
	for _, t := range targets {
		r.targets[t.Name()] = t
	}
	return r
}

// Get 按名称(支持别名)查找目标
func (r *Registry) Get(name string) (Target, bool) {
	t, ok := r.targets[NormalizeTarget(name)]
	return t, ok
}

// Names 已注册的目标名称
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.targets))
	for name := range r.targets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
