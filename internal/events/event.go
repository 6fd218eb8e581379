package events

import (
	"context"
	"sync"
	"time"
)

// 资源类型
const (
	ResourceTask     = "task"
	ResourceContent  = "content"
	ResourceTemplate = "template"
	ResourceWorkflow = "workflow"
)

// 事件类型
const (
	TaskCreated          = "task.created"
	TaskStatusChanged    = "task.status_changed"
	TaskApproved         = "task.approved"
	TaskRejected         = "task.rejected"
	TaskDeleted          = "task.deleted"
	ContentPublished     = "content.published"
	ContentPublishFailed = "content.publish_failed"
	TemplateApplied      = "template.applied"
	WorkflowTriggered    = "workflow.triggered"
	WorkflowFinished     = "workflow.finished"
)

// Event 领域事件
type Event struct {
	ID           string                 `json:"id"`
	Type         string                 `json:"type"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	UserID       string                 `json:"user_id,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// Publisher 事件发布接口,业务层在事务提交后调用
type Publisher interface {
	Publish(ctx context.Context, evt *Event) error
}

// Sink 事件外部投递目标
type Sink interface {
	Name() string
	Deliver(ctx context.Context, evt *Event) error
	Close() error
}

// Discard 丢弃所有事件
type Discard struct{}

// Publish 实现 Publisher
func (Discard) Publish(context.Context, *Event) error { return nil }

// Recorder 记录已发布的事件,用于测试与调试
type Recorder struct {
	mu     sync.Mutex
	events []*Event
}

// Publish 实现 Publisher
func (r *Recorder) Publish(_ context.Context, evt *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// Events 已记录事件的副本
func (r *Recorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Event(nil), r.events...)
}

// Types 已记录事件的类型列表
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		types = append(types, evt.Type)
	}
	return types
}
