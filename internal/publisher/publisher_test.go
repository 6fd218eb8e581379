package publisher_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mission-engadi/ai-service/internal/config"
	"github.com/mission-engadi/ai-service/internal/publisher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSocialTarget_Publish 测试社交媒体发布
func TestSocialTarget_Publish(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/posts", r.URL.Path)
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"post-123"}`))
	}))
	defer server.Close()

	target := publisher.NewSocialTarget(server.URL, "service-token", time.Second)
	result, err := target.Publish(context.Background(), publisher.Request{
		ContentID: "c1", Body: "Hello #hope", Platform: "twitter", AuthToken: "user-token",
	})
	require.NoError(t, err)
	assert.Equal(t, "post-123", result.ExternalID)
	assert.Equal(t, "twitter", got["platform"])
	assert.Equal(t, "Hello #hope", got["content"])
}

// TestContentTarget_ServiceToken 测试使用服务令牌与嵌套 ID
func TestContentTarget_ServiceToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/content", r.URL.Path)
		assert.Equal(t, "Bearer service-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"id":42}}`))
	}))
	defer server.Close()

	target := publisher.NewContentTarget(server.URL+"/", "service-token", time.Second)
	result, err := target.Publish(context.Background(), publisher.Request{ContentID: "c1", Body: "b"})
	require.NoError(t, err)
	assert.Equal(t, "42", result.ExternalID)
}

// TestTarget_Errors 测试下游错误
func TestTarget_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer server.Close()

	target := publisher.NewNotificationTarget(server.URL, "", time.Second)
	_, err := target.Publish(context.Background(), publisher.Request{Body: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream down")

	unconfigured := publisher.NewNotificationTarget("", "", time.Second)
	_, err = unconfigured.Publish(context.Background(), publisher.Request{Body: "b"})
	assert.Error(t, err)
}

// TestRegistry 测试注册表与别名
func TestRegistry(t *testing.T) {
	registry := publisher.NewRegistryFromConfig(config.ServicesConfig{})
	assert.Equal(t, []string{"content", "notification", "social"}, registry.Names())

	target, ok := registry.Get("social_media")
	require.True(t, ok)
	assert.Equal(t, publisher.TargetSocial, target.Name())

	_, ok = registry.Get("fax")
	assert.False(t, ok)
}
