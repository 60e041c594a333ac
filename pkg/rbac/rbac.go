package rbac

// 全局角色（users.role）
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleHRManager Role = "HR_MANAGER"
	RoleRecruiter Role = "RECRUITER"
	RoleViewer    Role = "VIEWER"
)

// 项目成员角色（project_members.role）
type MemberRole string

const (
	MemberOwner         MemberRole = "OWNER"
	MemberRecruiter     MemberRole = "RECRUITER"
	MemberHiringManager MemberRole = "HIRING_MANAGER"
	MemberViewer        MemberRole = "VIEWER"
)

// 权限常量
const (
	PermissionReadPipeline  = "pipeline:read"
	PermissionWritePipeline = "pipeline:write"
)

// 项目成员角色权限映射
var memberPermissions = map[MemberRole][]string{
	MemberOwner:         {PermissionReadPipeline, PermissionWritePipeline},
	MemberRecruiter:     {PermissionReadPipeline, PermissionWritePipeline},
	MemberHiringManager: {PermissionReadPipeline, PermissionWritePipeline},
	MemberViewer:        {PermissionReadPipeline},
}

// Valid 是否为已知的全局角色
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleHRManager, RoleRecruiter, RoleViewer:
		return true
	}
	return false
}

// Valid 是否为已知的成员角色
func (m MemberRole) Valid() bool {
	_, ok := memberPermissions[m]
	return ok
}

// IsGlobal ADMIN / HR_MANAGER（或 superuser）不受项目成员关系限制
func IsGlobal(role Role, superuser bool) bool {
	return superuser || role == RoleAdmin || role == RoleHRManager
}

// MemberHasPermission 检查项目成员角色是否有指定权限
func MemberHasPermission(role MemberRole, permission string) bool {
	for _, p := range memberPermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}
