package model

// PermissionWildcard grants every permission to the role holding it.
const PermissionWildcard = "all.*"

// RolePermission grants a permission code to a role name.
type RolePermission struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	Role           string `gorm:"type:varchar(50);not null;uniqueIndex:idx_role_permission" json:"role"`
	PermissionCode string `gorm:"type:varchar(100);not null;uniqueIndex:idx_role_permission" json:"permission_code"`
}
