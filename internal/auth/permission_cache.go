package auth

import (
	"context"
	"time"

	"github.com/mission-engadi/ai-service/internal/cache"
)

const permissionNamespace = "perm"

var (
	allowedValue = []byte("1")
	deniedValue  = []byte("0")
)

// CachedPermissionChecker 带缓存的权限检查,缓存后端可以是进程内或 Redis
type CachedPermissionChecker struct {
	checker PermissionChecker
	cache   cache.Cache
	ttl     time.Duration
}

// NewCachedPermissionChecker 创建带缓存的权限检查
func NewCachedPermissionChecker(checker PermissionChecker, c cache.Cache, ttl time.Duration) *CachedPermissionChecker {
	return &CachedPermissionChecker{checker: checker, cache: c, ttl: ttl}
}

func permissionKey(userID, relation, objectType, objectID string) string {
	return cache.NamespaceKey(permissionNamespace, "user:"+userID+":"+relation+":"+objectType+":"+objectID)
}

// CheckPermission 检查权限（带缓存）
func (c *CachedPermissionChecker) CheckPermission(ctx context.Context, userID, relation, objectType, objectID string) (bool, error) {
	key := permissionKey(userID, relation, objectType, objectID)

	// 缓存读取失败时直接回源
	if value, found, err := c.cache.Get(ctx, key); err == nil && found {
		return string(value) == string(allowedValue), nil
	}

	allowed, err := c.checker.CheckPermission(ctx, userID, relation, objectType, objectID)
	if err != nil {
		return false, err
	}

	value := deniedValue
	if allowed {
		value = allowedValue
	}
	_ = c.cache.Set(ctx, key, value, c.ttl)

	return allowed, nil
}

// SetRelation 设置权限关系（清除相关缓存）
func (c *CachedPermissionChecker) SetRelation(ctx context.Context, userID, relation, objectType, objectID string) error {
	if err := c.checker.SetRelation(ctx, userID, relation, objectType, objectID); err != nil {
		return err
	}
	return c.cache.Delete(ctx, permissionKey(userID, relation, objectType, objectID))
}

// DeleteRelation 删除权限关系（清除相关缓存）
func (c *CachedPermissionChecker) DeleteRelation(ctx context.Context, userID, relation, objectType, objectID string) error {
	if err := c.checker.DeleteRelation(ctx, userID, relation, objectType, objectID); err != nil {
		return err
	}
	return c.cache.Delete(ctx, permissionKey(userID, relation, objectType, objectID))
}
