package model

import "time"

// Archive is the immutable snapshot written once per archived incoming mail.
// The unique index on IncomingMailID backs the at-most-once guarantee.
type Archive struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Reference      string    `gorm:"type:varchar(150);uniqueIndex;not null" json:"reference"`
	Type           string    `gorm:"type:varchar(100)" json:"type"`
	Date           time.Time `gorm:"type:date;not null" json:"date"`
	Description    string    `gorm:"type:text" json:"description"`
	Category       string    `gorm:"type:varchar(100)" json:"category"`
	Classeur       string    `gorm:"type:varchar(100)" json:"classeur"`
	FilePath       string    `gorm:"type:text" json:"file_path"`
	Status         string    `gorm:"type:varchar(30)" json:"status"`
	Sender         string    `gorm:"type:varchar(255)" json:"sender"`
	ServiceCode    string    `gorm:"type:varchar(50)" json:"service_code"`
	IncomingMailID uint      `gorm:"uniqueIndex;not null" json:"incoming_mail_id"`
	ExtractedText  string    `gorm:"type:text" json:"-"`
	Classification string    `gorm:"type:varchar(100)" json:"classification"`
	ExecutedTask   string    `gorm:"type:text" json:"executed_task"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
