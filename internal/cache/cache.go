package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache 键值缓存,模板缓存与权限缓存共用
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// NamespaceKey 构建带命名空间的缓存 key,例如 "template:<id>"
func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}
