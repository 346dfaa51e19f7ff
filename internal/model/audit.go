package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionPermissionDenied = "PERMISSION_DENIED"
	ActionChangeRole       = "CHANGE_ROLE"

	SeverityInfo = "info"
	SeverityHigh = "high"
)

// AuditLog records security relevant events, separate from the per-mail history.
type AuditLog struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID     *uint     `gorm:"index" json:"user_id"` // nil for anonymous or system actors
	Username   string    `gorm:"type:varchar(255)" json:"username"`
	Action     string    `gorm:"type:varchar(50);not null;index" json:"action"`
	Module     string    `gorm:"type:varchar(50)" json:"module"`
	EntityType string    `gorm:"type:varchar(50)" json:"entity_type,omitempty"`
	EntityID   string    `gorm:"type:varchar(50);index" json:"entity_id,omitempty"`
	Severity   string    `gorm:"type:varchar(20);not null;default:'info'" json:"severity"`
	Success    bool      `gorm:"not null" json:"success"`
	IP         string    `gorm:"type:varchar(64)" json:"ip"`
	UserAgent  string    `gorm:"type:text" json:"user_agent"`
	Meta       string    `gorm:"type:jsonb" json:"meta"` // serialized JSON payload
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}
