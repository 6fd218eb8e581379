package auth

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

// gin 上下文中的用户信息 key
const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextEmail    = "email"
	ContextName     = "name"
	ContextRoles    = "roles"
	ContextToken    = "token"
)

// 内置角色
const (
	RoleAdmin    = "admin"
	RoleApprover = "approver"
)

// Identity 认证后的调用方身份
type Identity struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Name     string   `json:"name,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	Token    string   `json:"-"`
}

// HasRole 是否拥有任一角色(忽略大小写)
func (i *Identity) HasRole(roles ...string) bool {
	if i == nil {
		return false
	}
	for _, have := range i.Roles {
		for _, want := range roles {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}

// SystemIdentity 后台任务(定时工作流等)使用的身份
func SystemIdentity() *Identity {
	return &Identity{UserID: "system", Username: "system", Roles: []string{RoleAdmin}}
}

type identityKey struct{}

// WithIdentity 将身份写入 context
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFrom 从 context 读取身份
func IdentityFrom(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	return identity, ok && identity != nil
}

// setIdentity 将身份写入 gin 上下文与请求 context
func setIdentity(c *gin.Context, identity *Identity) {
	c.Set(ContextUserID, identity.UserID)
	c.Set(ContextUsername, identity.Username)
	c.Set(ContextEmail, identity.Email)
	c.Set(ContextName, identity.Name)
	c.Set(ContextRoles, identity.Roles)
	c.Set(ContextToken, identity.Token)
	c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), identity))
}

// FromGin 从 gin 上下文读取身份
func FromGin(c *gin.Context) (*Identity, bool) {
	return IdentityFrom(c.Request.Context())
}
