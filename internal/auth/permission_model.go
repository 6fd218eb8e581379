package auth

// GetPermissionModel 获取 OpenFGA 权限模型定义
func GetPermissionModel() string {
	return `model
  schema 1.1

type user

type task
  relations
    define creator: [user]
    define approver: [user]
    define viewer: [user] or creator or approver

type template
  relations
    define owner: [user]
    define editor: [user] or owner

type workflow
  relations
    define owner: [user]
    define operator: [user] or owner`
}
