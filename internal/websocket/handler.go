package websocket

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/mission-engadi/ai-service/internal/auth"
)

var upgrader = gorillaWS.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// 来源由 CORS 中间件与 token 共同约束
		return true
	},
}

func reject(c *gin.Context, detail string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"detail":     detail,
		"error_code": "UNAUTHORIZED",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

// WebSocketHandler WebSocket 处理器
// validator 为 nil 时不做认证(开发模式),可通过 task_id 参数只订阅单个任务
//
// @Summary      订阅任务事件
// @Description  升级为 WebSocket 连接并推送任务状态、审批和发布事件
// @Tags         事件
// @Param        token    query  string  false  "访问令牌"
// @Param        task_id  query  string  false  "只接收该任务的事件"
// @Success      101  {string}  string  "Switching Protocols"
// @Failure      401  {object}  map[string]interface{}
// @Router       /ws/tasks [get]
func WebSocketHandler(hub *Hub, validator auth.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := "anonymous"

		// 1. 从 query 参数或 Authorization 头获取 token
		if validator != nil {
			token := c.Query("token")
			if token == "" {
				token = strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
			}
			if token == "" {
				reject(c, "missing token")
				return
			}

			// 2. 验证 token
			identity, err := validator.ValidateToken(token)
			if err != nil {
				reject(c, "invalid token")
				return
			}
			userID = identity.UserID
		}

		// 3. 升级连接,失败时 upgrader 已写回错误响应
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.logger.WithError(err).Warn("failed to upgrade websocket connection")
			return
		}

		// 4. 创建并注册客户端
		client := NewClient(uuid.New().String(), userID, c.Query("task_id"), hub, conn)
		hub.Register(client)

		// 5. 启动 readPump 和 writePump
		go client.ReadPump()
		go client.WritePump()
	}
}
