package model

import "time"

// User is an actor of the workflow. Credentials live with the identity
// provider that issues the access tokens.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	RoleID    int       `gorm:"not null;index" json:"role_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// UserRoleAudit tracks every role assignment change
type UserRoleAudit struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ActorUserID  *uint     `gorm:"index" json:"actor_user_id"`
	TargetUserID uint      `gorm:"not null;index" json:"target_user_id"`
	Action       string    `gorm:"type:varchar(50);not null" json:"action"`
	OldRoleID    *int      `json:"old_role_id"`
	NewRoleID    *int      `json:"new_role_id"`
	Metadata     string    `gorm:"type:jsonb" json:"metadata"`
	CreatedAt    time.Time `json:"created_at"`
}

func (UserRoleAudit) TableName() string {
	return "user_role_audit"
}
