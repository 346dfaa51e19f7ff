package repository

import (
	"context"

	"mailflow/internal/model"

	"gorm.io/gorm"
)

type ArchiveRepository interface {
	Create(ctx context.Context, archive *model.Archive) error
	FindByMailID(ctx context.Context, mailID uint) (*model.Archive, error)
}

type archiveRepository struct {
	db *gorm.DB
}

func NewArchiveRepository(db *gorm.DB) ArchiveRepository {
	return &archiveRepository{db: db}
}

func (r *archiveRepository) Create(ctx context.Context, archive *model.Archive) error {
	return GetDB(ctx, r.db).Create(archive).Error
}

func (r *archiveRepository) FindByMailID(ctx context.Context, mailID uint) (*model.Archive, error) {
	var archive model.Archive
	if err := GetDB(ctx, r.db).Where("incoming_mail_id = ?", mailID).First(&archive).Error; err != nil {
		return nil, err
	}
	return &archive, nil
}
