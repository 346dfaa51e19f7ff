package repository

import (
	"context"
	"time"

	"mailflow/internal/model"

	"gorm.io/gorm"
)

// HistoryFilter narrows the global history listing.
type HistoryFilter struct {
	MailID *uint
	UserID *uint
	Action string
	From   *time.Time
	To     *time.Time
}

type HistoryRepository interface {
	CreateMailHistory(ctx context.Context, entry *model.MailHistory) error
	CreateEntityHistory(ctx context.Context, entry *model.EntityHistory) error
	ListByMail(ctx context.Context, mailID uint, page, limit int) ([]model.MailHistory, int64, error)
	List(ctx context.Context, filter HistoryFilter, page, limit int) ([]model.MailHistory, int64, error)
}

type historyRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &historyRepository{db: db}
}

func (r *historyRepository) CreateMailHistory(ctx context.Context, entry *model.MailHistory) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *historyRepository) CreateEntityHistory(ctx context.Context, entry *model.EntityHistory) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *historyRepository) ListByMail(ctx context.Context, mailID uint, page, limit int) ([]model.MailHistory, int64, error) {
	id := mailID
	return r.List(ctx, HistoryFilter{MailID: &id}, page, limit)
}

func (r *historyRepository) List(ctx context.Context, filter HistoryFilter, page, limit int) ([]model.MailHistory, int64, error) {
	var entries []model.MailHistory
	var total int64

	query := GetDB(ctx, r.db).Model(&model.MailHistory{})
	if filter.MailID != nil {
		query = query.Where("mail_id = ?", *filter.MailID)
	}
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Action != "" {
		query = query.Where("action ILIKE ?", "%"+filter.Action+"%")
	}
	if filter.From != nil {
		query = query.Where("timestamp >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("timestamp <= ?", *filter.To)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("timestamp desc").Offset(offset).Limit(limit).Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
