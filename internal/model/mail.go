package model

import "time"

// MailStatus is the lifecycle status of an incoming mail (statut_global).
type MailStatus string

const (
	StatusAcquis       MailStatus = "Acquis"
	StatusIndexe       MailStatus = "Indexé"
	StatusEnTraitement MailStatus = "En Traitement"
	StatusTraite       MailStatus = "Traité"
	StatusValidation   MailStatus = "Validation"
	StatusArchive      MailStatus = "Archivé"
)

// IncomingMail is a piece of correspondence under workflow control.
// Status and ArchivedAt are only written by the workflow services.
type IncomingMail struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	RefCode                string     `gorm:"type:varchar(100);uniqueIndex;not null" json:"ref_code"`
	Subject                string     `gorm:"type:text;not null" json:"subject"`
	Sender                 string     `gorm:"type:varchar(255);not null" json:"sender"`
	Recipient              string     `gorm:"type:varchar(255)" json:"recipient"`
	TypeCourrier           string     `gorm:"type:varchar(100)" json:"type_courrier"`
	Category               string     `gorm:"type:varchar(100)" json:"category"`
	Classification         string     `gorm:"type:varchar(100)" json:"classification"`
	Classeur               string     `gorm:"type:varchar(100)" json:"classeur"`
	FilePath               string     `gorm:"type:text" json:"file_path"`
	ExtractedText          string     `gorm:"type:text" json:"-"`
	Status                 MailStatus `gorm:"column:statut_global;type:varchar(30);not null;default:'Acquis';index" json:"statut_global"`
	AssignedService        string     `gorm:"type:varchar(50);index" json:"assigned_service"`
	AssignedTo             string     `gorm:"type:varchar(255)" json:"assigned_to"`
	Comment                string     `gorm:"type:text" json:"comment"`
	IndexedBy              string     `gorm:"type:varchar(255)" json:"indexed_by"`
	DateReception          *time.Time `json:"date_reception"`
	DateIndexation         *time.Time `json:"date_indexation"`
	TreatmentStartedAt     *time.Time `json:"treatment_started_at"`
	TreatmentCompletedAt   *time.Time `json:"treatment_completed_at"`
	ArchivedAt             *time.Time `gorm:"column:date_archivage;index" json:"date_archivage"`
	NumeroArchivageGeneral *string    `gorm:"type:varchar(150)" json:"numero_archivage_general"`
	ResponseOutgoingID     *uint      `gorm:"index" json:"response_outgoing_id"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// ReceivedAt returns the reception date used by the archival sweep.
func (m IncomingMail) ReceivedAt() time.Time {
	if m.DateReception != nil {
		return *m.DateReception
	}
	return m.CreatedAt
}

// OutgoingMail is a reply or outbound letter. An incoming mail may point at
// one through ResponseOutgoingID.
type OutgoingMail struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Reference  string     `gorm:"type:varchar(100);index" json:"reference"`
	Subject    string     `gorm:"type:text" json:"subject"`
	Recipient  string     `gorm:"type:varchar(255)" json:"recipient"`
	Status     string     `gorm:"type:varchar(30)" json:"status"`
	ArchivedAt *time.Time `json:"archived_at"`
	ArchivedBy *uint      `json:"archived_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (OutgoingMail) TableName() string {
	return "courriers_sortants"
}
