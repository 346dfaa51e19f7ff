package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"mailflow/internal/model"
	"mailflow/internal/rbac"
	"mailflow/internal/repository"
	"mailflow/pkg/apperror"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HistoryRecorder appends trail entries. Callers pass a transactional
// context so the entry commits or rolls back with the change it describes.
type HistoryRecorder interface {
	RecordMail(ctx context.Context, mailID uint, action string, actor rbac.Actor, details map[string]interface{}) error
	RecordEntity(ctx context.Context, entityType, entityID, action string, actor rbac.Actor, details map[string]interface{}) error
}

// --- DTOs ---

type HistoryQuery struct {
	MailID *uint
	UserID *uint
	Action string
	From   *time.Time
	To     *time.Time
	Page   int
	Limit  int
}

// --- Interface ---

type HistoryService interface {
	HistoryRecorder
	ListMailHistory(ctx context.Context, actor rbac.Actor, mailID uint, page, limit int) ([]model.MailHistory, int64, error)
	ListHistory(ctx context.Context, query HistoryQuery) ([]model.MailHistory, int64, error)
}

type historyService struct {
	repo  repository.HistoryRepository
	mails repository.MailRepository
	now   func() time.Time
}

func NewHistoryService(repo repository.HistoryRepository, mails repository.MailRepository) HistoryService {
	return &historyService{repo: repo, mails: mails, now: time.Now}
}

// --- Implementation ---

func (s *historyService) RecordMail(ctx context.Context, mailID uint, action string, actor rbac.Actor, details map[string]interface{}) error {
	payload, err := encodeDetails(details)
	if err != nil {
		return err
	}

	ts := s.now().UTC()
	entry := &model.MailHistory{
		ID:        uuid.New(),
		MailID:    mailID,
		Action:    action,
		UserID:    actor.UserID(),
		UserName:  actor.Username,
		Details:   payload,
		IPAddress: actor.ClientIP,
		UserAgent: actor.UserAgent,
		Timestamp: ts,
	}
	entry.ActionHash = actionHash(strconv.FormatUint(uint64(mailID), 10), action, actor, payload, ts)

	if err := s.repo.CreateMailHistory(ctx, entry); err != nil {
		return fmt.Errorf("failed to write mail history: %w", err)
	}
	return nil
}

func (s *historyService) RecordEntity(ctx context.Context, entityType, entityID, action string, actor rbac.Actor, details map[string]interface{}) error {
	payload, err := encodeDetails(details)
	if err != nil {
		return err
	}

	ts := s.now().UTC()
	entry := &model.EntityHistory{
		ID:         uuid.New(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		UserID:     actor.UserID(),
		UserName:   actor.Username,
		Details:    payload,
		IPAddress:  actor.ClientIP,
		UserAgent:  actor.UserAgent,
		CreatedAt:  ts,
	}
	entry.ActionHash = actionHash(entityType+":"+entityID, action, actor, payload, ts)

	if err := s.repo.CreateEntityHistory(ctx, entry); err != nil {
		return fmt.Errorf("failed to write %s history: %w", entityType, err)
	}
	return nil
}

// ListMailHistory returns the trail of one mail, newest first, to actors
// allowed to read that mail.
func (s *historyService) ListMailHistory(ctx context.Context, actor rbac.Actor, mailID uint, page, limit int) ([]model.MailHistory, int64, error) {
	mail, err := s.mails.FindByID(ctx, mailID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, apperror.NotFound("mail", mailID)
		}
		return nil, 0, fmt.Errorf("failed to load mail: %w", err)
	}
	if !rbac.CanViewMail(actor, *mail) {
		return nil, 0, &apperror.ForbiddenError{RequiredService: serviceOrNA(mail.AssignedService)}
	}

	return s.repo.ListByMail(ctx, mailID, page, limit)
}

func (s *historyService) ListHistory(ctx context.Context, query HistoryQuery) ([]model.MailHistory, int64, error) {
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 20
	}
	return s.repo.List(ctx, repository.HistoryFilter{
		MailID: query.MailID,
		UserID: query.UserID,
		Action: query.Action,
		From:   query.From,
		To:     query.To,
	}, query.Page, query.Limit)
}

func encodeDetails(details map[string]interface{}) (string, error) {
	if len(details) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("failed to encode history details: %w", err)
	}
	return string(b), nil
}

// actionHash fingerprints a trail row so later edits are detectable.
func actionHash(subject, action string, actor rbac.Actor, details string, ts time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s|%s|%s",
		subject, action, actor.ID, actor.Username, details, ts.Format(time.RFC3339Nano))))
	return hex.EncodeToString(sum[:])
}

func serviceOrNA(service string) string {
	if svc := rbac.NormalizeService(service); svc != "" {
		return svc
	}
	return apperror.NotApplicable
}
