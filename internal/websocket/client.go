package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	// 写超时时间
	writeWait = 10 * time.Second

	// 读超时时间
	pongWait = 60 * time.Second

	// ping 周期 (必须小于 pongWait)
	pingPeriod = (pongWait * 9) / 10

	// 客户端只发送控制帧
	maxMessageSize = 4 * 1024
)

// Client WebSocket 客户端
type Client struct {
	// ID 客户端 ID
	ID string

	// UserID 用户 ID
	UserID string

	// TaskID 只接收该任务的事件,为空时接收全部
	TaskID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewClient 创建新的客户端
func NewClient(id string, userID string, taskID string, hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:     id,
		UserID: userID,
		TaskID: taskID,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
	}
}

// Accepts 判断消息是否属于该客户端的订阅
func (c *Client) Accepts(msg *Message) bool {
	if c.TaskID == "" {
		return true
	}
	return msg.ResourceID == c.TaskID
}

// ReadPump 从 WebSocket 连接读取消息
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.WithError(err).WithField("client_id", c.ID).Warn("websocket read error")
			}
			return
		}
	}
}

// WritePump 向 WebSocket 连接写入消息,每条消息一个帧
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了 channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
