package websocket

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// Hub 管理所有 WebSocket 连接
type Hub struct {
	// 已注册的客户端
	clients map[*Client]bool

	broadcast  chan *Message
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once

	// 互斥锁，保护 clients map
	mu     sync.RWMutex
	logger logrus.FieldLogger
}

// NewHub 创建新的 Hub
func NewHub(logger logrus.FieldLogger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		logger:     logger.WithField("component", "websocket_hub"),
	}
}

// Run 运行 Hub,直到 Stop 被调用
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.WithFields(logrus.Fields{"client_id": client.ID, "user_id": client.UserID}).Debug("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.deliver(msg)

		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				h.remove(client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop 停止 Hub 并断开所有客户端
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.stop:
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stop:
	}
}

// Notify 投递消息,队列满时丢弃,不阻塞调用方
func (h *Hub) Notify(msg *Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.WithFields(logrus.Fields{"type": msg.Type, "resource_id": msg.ResourceID}).Warn("broadcast queue full, dropping message")
	}
}

// deliver 发送到所有订阅了该资源的客户端,发送缓冲满的客户端被断开
func (h *Hub) deliver(msg *Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.WithError(err).Error("failed to marshal websocket message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.Accepts(msg) {
			continue
		}
		select {
		case client.send <- payload:
		default:
			h.remove(client)
		}
	}
}

// BroadcastToUser 向特定用户广播消息
func (h *Hub) BroadcastToUser(userID string, msg *Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.WithError(err).Error("failed to marshal websocket message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if client.UserID != userID {
			continue
		}
		select {
		case client.send <- payload:
		default:
			h.remove(client)
		}
	}
}

// remove 调用方必须持有写锁
func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

// HasClient 检查客户端是否存在
func (h *Hub) HasClient(clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.ID == clientID {
			return true
		}
	}
	return false
}

// GetClientCount 获取客户端数量
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}
