package model

import (
	"time"

	"github.com/google/uuid"
)

// History actions written by the workflow core
const (
	HistoryActionValidated       = "Courrier validé et prêt pour archivage"
	HistoryActionAutoValidated   = "Courrier validé lors de l'archivage"
	HistoryActionArchived        = "Archivage du courrier"
	HistoryActionLinkedArchiving = "Archivage lié (entrant archivé)"
)

const EntityOutgoingMail = "courriers_sortants"

// MailHistory is an append-only trail row for an incoming mail.
type MailHistory struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MailID     uint      `gorm:"not null;index" json:"mail_id"`
	Action     string    `gorm:"type:varchar(255);not null" json:"action"`
	UserID     *uint     `gorm:"index" json:"user_id"`
	UserName   string    `gorm:"type:varchar(255)" json:"user_name"`
	Details    string    `gorm:"type:jsonb" json:"details"`
	IPAddress  string    `gorm:"type:varchar(64)" json:"ip_address"`
	UserAgent  string    `gorm:"type:text" json:"user_agent"`
	ActionHash string    `gorm:"type:char(64)" json:"action_hash"`
	Timestamp  time.Time `gorm:"not null;index" json:"timestamp"`
}

func (MailHistory) TableName() string {
	return "mail_history"
}

// EntityHistory is the same trail for any other entity, keyed by type and id.
type EntityHistory struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	EntityType string    `gorm:"type:varchar(50);not null;index:idx_entity_history_entity" json:"entity_type"`
	EntityID   string    `gorm:"type:varchar(50);not null;index:idx_entity_history_entity" json:"entity_id"`
	Action     string    `gorm:"type:varchar(255);not null" json:"action"`
	UserID     *uint     `json:"user_id"`
	UserName   string    `gorm:"type:varchar(255)" json:"user_name"`
	Details    string    `gorm:"type:jsonb" json:"details"`
	IPAddress  string    `gorm:"type:varchar(64)" json:"ip_address"`
	UserAgent  string    `gorm:"type:text" json:"user_agent"`
	ActionHash string    `gorm:"type:char(64)" json:"action_hash"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (EntityHistory) TableName() string {
	return "entity_history"
}
