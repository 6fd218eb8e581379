package websocket

import (
	"encoding/json"
	"time"
)

// Message 推送给客户端的事件消息
type Message struct {
	Type         string          `json:"type"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	UserID       string          `json:"user_id,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}
