package repository

import (
	"context"
	"time"

	"mailflow/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MailRepository is the persistence port for incoming mails. Status writes
// are conditional on the expected current value so that two racing writers
// cannot both win.
type MailRepository interface {
	FindByID(ctx context.Context, id uint) (*model.IncomingMail, error)
	FindByIDForUpdate(ctx context.Context, id uint) (*model.IncomingMail, error)
	UpdateStatus(ctx context.Context, id uint, from, to model.MailStatus, comment *string) (bool, error)
	UpdateComment(ctx context.Context, id uint, comment string) error
	MarkArchived(ctx context.Context, id uint, at time.Time, archiveRef string, comment *string) (bool, error)
	ListArchivalCandidates(ctx context.Context, receivedBefore time.Time) ([]model.IncomingMail, error)
}

type mailRepository struct {
	db *gorm.DB
}

func NewMailRepository(db *gorm.DB) MailRepository {
	return &mailRepository{db: db}
}

func (r *mailRepository) FindByID(ctx context.Context, id uint) (*model.IncomingMail, error) {
	var mail model.IncomingMail
	if err := GetDB(ctx, r.db).First(&mail, id).Error; err != nil {
		return nil, err
	}
	return &mail, nil
}

// FindByIDForUpdate locks the row until the surrounding transaction ends.
func (r *mailRepository) FindByIDForUpdate(ctx context.Context, id uint) (*model.IncomingMail, error) {
	var mail model.IncomingMail
	if err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&mail, id).Error; err != nil {
		return nil, err
	}
	return &mail, nil
}

func (r *mailRepository) UpdateStatus(ctx context.Context, id uint, from, to model.MailStatus, comment *string) (bool, error) {
	updates := map[string]interface{}{
		"statut_global": to,
		"updated_at":    time.Now(),
	}
	if comment != nil {
		updates["comment"] = *comment
	}

	res := GetDB(ctx, r.db).Model(&model.IncomingMail{}).
		Where("id = ? AND statut_global = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *mailRepository) UpdateComment(ctx context.Context, id uint, comment string) error {
	return GetDB(ctx, r.db).Model(&model.IncomingMail{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"comment": comment, "updated_at": time.Now()}).Error
}

// MarkArchived stamps the archival fields only when the mail has never been
// archived. An existing archive number is preserved.
func (r *mailRepository) MarkArchived(ctx context.Context, id uint, at time.Time, archiveRef string, comment *string) (bool, error) {
	updates := map[string]interface{}{
		"statut_global":            model.StatusArchive,
		"date_archivage":           at,
		"numero_archivage_general": gorm.Expr("COALESCE(numero_archivage_general, ?)", archiveRef),
		"updated_at":               at,
	}
	if comment != nil {
		updates["comment"] = *comment
	}

	res := GetDB(ctx, r.db).Model(&model.IncomingMail{}).
		Where("id = ? AND date_archivage IS NULL", id).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListArchivalCandidates returns processed, unarchived mails received on or
// before the cutoff, oldest first.
func (r *mailRepository) ListArchivalCandidates(ctx context.Context, receivedBefore time.Time) ([]model.IncomingMail, error) {
	var mails []model.IncomingMail
	if err := GetDB(ctx, r.db).
		Where("statut_global = ? AND date_archivage IS NULL", model.StatusTraite).
		Where("COALESCE(date_reception, created_at) <= ?", receivedBefore).
		Order("COALESCE(date_reception, created_at) asc, id asc").
		Find(&mails).Error; err != nil {
		return nil, err
	}
	return mails, nil
}
