package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mission-engadi/ai-service/internal/auth"
	"github.com/mission-engadi/ai-service/internal/metrics"
	"github.com/mission-engadi/ai-service/internal/service"
	"github.com/sirupsen/logrus"
)

// HeaderRequestID 请求 ID 头
const HeaderRequestID = "X-Request-ID"

const (
	contextRequestID = "request_id"
	contextLogger    = "logger"
)

// RequestIDMiddleware 生成或透传请求 ID,并写入请求元信息供审计日志使用
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.New().String()
		}
		c.Set(contextRequestID, requestID)
		c.Header(HeaderRequestID, requestID)

		ctx := service.WithRequestMeta(c.Request.Context(), service.RequestMeta{
			RequestID: requestID,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequestLogMiddleware 请求日志中间件
func RequestLogMiddleware(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(contextLogger, logger.WithField("request_id", c.GetString(contextRequestID)))

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		// 使用路由模板,避免 ID 造成指标基数膨胀
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordAPIRequest(c.Request.Method, path, status, latency.Seconds())

		entry := logger.WithFields(logrus.Fields{
			"request_id": c.GetString(contextRequestID),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency":    latency.String(),
			"ip":         c.ClientIP(),
		})
		if userID, ok := c.Get(auth.ContextUserID); ok {
			entry = entry.WithField("user_id", userID)
		}

		switch {
		case status >= 500:
			entry.Error("API request")
		case status >= 400:
			entry.Warn("API request")
		default:
			entry.Info("API request")
		}
	}
}
