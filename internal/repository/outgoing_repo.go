package repository

import (
	"context"
	"time"

	"mailflow/internal/model"

	"gorm.io/gorm"
)

type OutgoingMailRepository interface {
	StampArchived(ctx context.Context, id uint, at time.Time, by *uint) (bool, error)
}

type outgoingMailRepository struct {
	db *gorm.DB
}

func NewOutgoingMailRepository(db *gorm.DB) OutgoingMailRepository {
	return &outgoingMailRepository{db: db}
}

// StampArchived marks the outgoing mail archived unless it already is.
// The boolean is false when nothing was updated.
func (r *outgoingMailRepository) StampArchived(ctx context.Context, id uint, at time.Time, by *uint) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.OutgoingMail{}).
		Where("id = ? AND archived_at IS NULL", id).
		Updates(map[string]interface{}{
			"archived_at": at,
			"archived_by": by,
			"updated_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
