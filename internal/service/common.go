package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mission-engadi/ai-service/internal/auth"
	"github.com/mission-engadi/ai-service/internal/events"
	"github.com/sirupsen/logrus"
)

// RequestMeta 请求元信息,由 API 层写入 context 供审计日志使用
type RequestMeta struct {
	RequestID string
	IP        string
	UserAgent string
}

type requestMetaKey struct{}

// WithRequestMeta 将请求元信息写入 context
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom 读取请求元信息
func RequestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}

// operatorOf 当前操作人,无身份时为 system
func operatorOf(ctx context.Context) string {
	if identity, ok := auth.IdentityFrom(ctx); ok && identity.UserID != "" {
		return identity.UserID
	}
	return "system"
}

// identityOf 当前身份,无身份时返回 nil
func identityOf(ctx context.Context) *auth.Identity {
	identity, _ := auth.IdentityFrom(ctx)
	return identity
}

// toMap 通过 JSON 将结构体转换为 map,用于工作流步骤输出
func toMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{})
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("output is not an object: %w", err)
	}
	return out, nil
}

// eventEmitter 在事务提交后发布领域事件,发布失败只记录日志
type eventEmitter struct {
	publisher events.Publisher
	logger    logrus.FieldLogger
}

func newEventEmitter(publisher events.Publisher, logger logrus.FieldLogger) eventEmitter {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return eventEmitter{publisher: publisher, logger: logger}
}

func (e eventEmitter) emit(ctx context.Context, eventType, resourceType, resourceID string, data map[string]interface{}) {
	evt := &events.Event{
		Type:         eventType,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		UserID:       operatorOf(ctx),
		Data:         data,
	}
	if err := e.publisher.Publish(ctx, evt); err != nil {
		e.logger.WithFields(logrus.Fields{
			"event_type":  eventType,
			"resource_id": resourceID,
		}).WithError(err).Warn("failed to publish event")
	}
}
