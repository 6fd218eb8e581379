package auth

import (
	"context"
	"fmt"
)

// Authorizer 业务层授权判断
type Authorizer interface {
	// IsAdmin 是否为管理员
	IsAdmin(identity *Identity) bool
	// CanApprove 是否可以审批任务
	CanApprove(ctx context.Context, identity *Identity, taskID string) (bool, error)
	// CanAccess 是否可以访问他人创建的资源
	CanAccess(identity *Identity, ownerID string) bool
}

// RoleAuthorizer 基于角色的授权,可选叠加 OpenFGA 关系检查
type RoleAuthorizer struct {
	adminRoles   []string
	approverRole string
	checker      PermissionChecker
}

// NewRoleAuthorizer 创建授权器,checker 为 nil 时只按角色判断
func NewRoleAuthorizer(adminRoles []string, approverRole string, checker PermissionChecker) *RoleAuthorizer {
	if len(adminRoles) == 0 {
		adminRoles = []string{RoleAdmin}
	}
	if approverRole == "" {
		approverRole = RoleApprover
	}
	return &RoleAuthorizer{adminRoles: adminRoles, approverRole: approverRole, checker: checker}
}

// IsAdmin 是否为管理员
func (a *RoleAuthorizer) IsAdmin(identity *Identity) bool {
	return identity.HasRole(a.adminRoles...)
}

// CanApprove 审批权限: 管理员、审批角色,或 OpenFGA 中对该任务有 approver 关系
func (a *RoleAuthorizer) CanApprove(ctx context.Context, identity *Identity, taskID string) (bool, error) {
	if identity == nil {
		return false, nil
	}
	if a.IsAdmin(identity) || identity.HasRole(a.approverRole) {
		return true, nil
	}
	if a.checker == nil {
		return false, nil
	}
	allowed, err := a.checker.CheckPermission(ctx, identity.UserID, RelationApprover, ObjectTask, taskID)
	if err != nil {
		return false, fmt.Errorf("approver check for task %s: %w", taskID, err)
	}
	return allowed, nil
}

// CanAccess 资源属主或管理员可以访问
func (a *RoleAuthorizer) CanAccess(identity *Identity, ownerID string) bool {
	if identity == nil {
		return false
	}
	return ownerID == "" || identity.UserID == ownerID || a.IsAdmin(identity)
}
