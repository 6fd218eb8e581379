package api_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mission-engadi/ai-service/internal/api"
	"github.com/mission-engadi/ai-service/internal/config"
	"github.com/mission-engadi/ai-service/internal/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiddlewareRouter(middleware ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(middleware...)
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return router
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCORSMiddleware(t *testing.T) {
	t.Run("通配源", func(t *testing.T) {
		router := newMiddlewareRouter(api.CORSMiddleware(config.CORSConfig{AllowedOrigins: []string{"*"}}))
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("Origin", "https://app.example.org")

		w := serve(router, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("白名单源", func(t *testing.T) {
		router := newMiddlewareRouter(api.CORSMiddleware(config.CORSConfig{AllowedOrigins: []string{"https://app.example.org"}}))

		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("Origin", "https://app.example.org")
		w := serve(router, req)
		assert.Equal(t, "https://app.example.org", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

		req = httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		w = serve(router, req)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("预检请求", func(t *testing.T) {
		router := newMiddlewareRouter(api.CORSMiddleware(config.CORSConfig{AllowedOrigins: []string{"*"}, MaxAge: 600}))
		req := httptest.NewRequest(http.MethodOptions, "/ping", nil)

		w := serve(router, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), api.HeaderRequestID)
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := api.NewRateLimiter(1, 2)
	router := newMiddlewareRouter(api.RateLimitMiddleware(limiter))

	for i := 0; i < 2; i++ {
		w := serve(router, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := serve(router, httptest.NewRequest(http.MethodGet, "/ping", nil))
	requireError(t, w, http.StatusTooManyRequests, "RATE_LIMITED")

	// 热更新为不限流
	limiter.Update(0, 0)
	w = serve(router, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	router := newMiddlewareRouter(api.RequestIDMiddleware())

	w := serve(router, httptest.NewRequest(http.MethodGet, "/ping", nil))
	generated := w.Header().Get(api.HeaderRequestID)
	assert.Len(t, generated, 36)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(api.HeaderRequestID, "req-123")
	w = serve(router, req)
	assert.Equal(t, "req-123", w.Header().Get(api.HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(api.HeaderRequestID, strings.Repeat("x", 200))
	w = serve(router, req)
	assert.Len(t, w.Header().Get(api.HeaderRequestID), 36)
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	router := newMiddlewareRouter(api.SecurityHeadersMiddleware())

	w := serve(router, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	w = serve(router, req)
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		code types.ErrorCode
		want int
	}{
		{types.CodeValidation, http.StatusUnprocessableEntity},
		{types.CodeMissingVariable, http.StatusUnprocessableEntity},
		{types.CodeUnknownVariable, http.StatusUnprocessableEntity},
		{types.CodeNotFound, http.StatusNotFound},
		{types.CodeInvalidState, http.StatusBadRequest},
		{types.CodeForbidden, http.StatusForbidden},
		{types.CodeProviderRejected, http.StatusBadGateway},
		{types.CodePublishTarget, http.StatusBadGateway},
		{types.CodeProviderUnavailable, http.StatusServiceUnavailable},
		{types.ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, api.StatusOf(tt.code), tt.code)
	}
}

func TestHandleError(t *testing.T) {
	logger := quietLogger()
	router := gin.New()
	router.Use(api.RequestIDMiddleware(), api.RequestLogMiddleware(logger), api.ErrorHandlerMiddleware())
	router.GET("/internal", func(c *gin.Context) {
		api.HandleError(c, errors.New("dial tcp: connection refused"))
	})
	router.GET("/wrapped", func(c *gin.Context) {
		_ = c.Error(types.NewNotFoundError("task", "abc"))
	})

	w := serve(router, httptest.NewRequest(http.MethodGet, "/internal", nil))
	body := requireError(t, w, http.StatusInternalServerError, api.CodeInternal)
	// 内部错误细节不返回给客户端
	assert.NotContains(t, body["detail"], "connection refused")

	w = serve(router, httptest.NewRequest(http.MethodGet, "/wrapped", nil))
	requireError(t, w, http.StatusNotFound, string(types.CodeNotFound))
}

func TestNewLoggerFromConfig(t *testing.T) {
	logger, err := api.NewLoggerFromConfig(&config.LogConfig{Level: "debug", Format: "text", Output: "stdout"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	api.ApplyLogLevel(logger, "not-a-level")
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}
