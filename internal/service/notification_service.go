package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mailflow/internal/events"
	"mailflow/internal/metrics"
	"mailflow/internal/model"
	"mailflow/internal/rbac"
	"mailflow/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StatusNotifier tells interested users that a mail changed status. It runs
// after commit and its errors never reach the caller of the operation.
type StatusNotifier interface {
	NotifyStatusChange(ctx context.Context, mail model.IncomingMail, newStatus model.MailStatus, extra map[string]interface{}) error
}

type NotificationService interface {
	StatusNotifier
	ListForUser(ctx context.Context, userID uint, page, limit int) ([]model.Notification, int64, error)
}

type notificationService struct {
	repo       repository.NotificationRepository
	users      repository.UserRepository
	publishers []events.Publisher
	logger     *zap.Logger
}

func NewNotificationService(repo repository.NotificationRepository, users repository.UserRepository, logger *zap.Logger, publishers ...events.Publisher) NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &notificationService{repo: repo, users: users, publishers: publishers, logger: logger}
}

// NotifyStatusChange stores one notification per recipient then pushes the
// event to every publisher. Publisher failures are logged and skipped.
func (s *notificationService) NotifyStatusChange(ctx context.Context, mail model.IncomingMail, newStatus model.MailStatus, extra map[string]interface{}) error {
	recipients, err := s.recipients(ctx, mail, newStatus)
	if err != nil {
		return err
	}

	title, message := notificationText(mail, newStatus)
	mailID := mail.ID
	rows := make([]model.Notification, 0, len(recipients))
	for _, uid := range recipients {
		rows = append(rows, model.Notification{
			UserID:  uid,
			Type:    events.TypeStatusChanged,
			Title:   title,
			Message: message,
			MailID:  &mailID,
		})
	}
	if err := s.repo.CreateBatch(ctx, rows); err != nil {
		return fmt.Errorf("failed to store notifications: %w", err)
	}

	event := events.StatusChanged{
		Type:       events.TypeStatusChanged,
		MailID:     mail.ID,
		RefCode:    mail.RefCode,
		Subject:    mail.Subject,
		NewStatus:  string(newStatus),
		Service:    mail.AssignedService,
		Recipients: recipients,
		Extra:      extra,
		OccurredAt: time.Now().UTC(),
	}
	for _, p := range s.publishers {
		if err := p.Publish(ctx, event); err != nil {
			s.logger.Warn("status event not published",
				zap.Uint("mail_id", mail.ID),
				zap.String("status", string(newStatus)),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *notificationService) ListForUser(ctx context.Context, userID uint, page, limit int) ([]model.Notification, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListByUser(ctx, userID, page, limit)
}

// recipients resolves who hears about a status: admin and coordination for
// workflow milestones, the assignee when treatment starts.
func (s *notificationService) recipients(ctx context.Context, mail model.IncomingMail, status model.MailStatus) ([]uint, error) {
	switch status {
	case model.StatusIndexe, model.StatusTraite, model.StatusValidation, model.StatusArchive:
		ids, err := s.users.ListIDsByRoleIDs(ctx, []int{rbac.RoleIDAdmin, rbac.RoleIDCoordonnateur})
		if err != nil {
			return nil, fmt.Errorf("failed to resolve notification recipients: %w", err)
		}
		return ids, nil
	case model.StatusEnTraitement:
		assignee := strings.TrimSpace(mail.AssignedTo)
		if assignee == "" {
			return nil, nil
		}
		if id, err := strconv.ParseUint(assignee, 10, 64); err == nil {
			return []uint{uint(id)}, nil
		}
		id, err := s.users.FindIDByUsername(ctx, assignee)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve assignee %q: %w", assignee, err)
		}
		return []uint{id}, nil
	default:
		return nil, nil
	}
}

func notificationText(mail model.IncomingMail, status model.MailStatus) (string, string) {
	ref := mail.RefCode
	if ref == "" {
		ref = "#" + strconv.FormatUint(uint64(mail.ID), 10)
	}
	switch status {
	case model.StatusArchive:
		return "Courrier archivé", fmt.Sprintf("Le courrier %s (%s) a été archivé.", ref, mail.Subject)
	case model.StatusValidation:
		return "Courrier validé", fmt.Sprintf("Le courrier %s (%s) est validé et prêt pour archivage.", ref, mail.Subject)
	case model.StatusEnTraitement:
		return "Courrier assigné", fmt.Sprintf("Le courrier %s (%s) vous a été assigné.", ref, mail.Subject)
	default:
		return "Statut du courrier", fmt.Sprintf("Le courrier %s est passé au statut %s.", ref, status)
	}
}

// notifyAsync fires a status notification on its own goroutine with a
// detached, bounded context so the request can return immediately.
func notifyAsync(notifier StatusNotifier, logger *zap.Logger, m *metrics.Metrics, timeout time.Duration, mail model.IncomingMail, status model.MailStatus, extra map[string]interface{}) {
	if notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := notifier.NotifyStatusChange(ctx, mail, status, extra); err != nil {
			m.ObserveNotification("error")
			logger.Warn("status notification failed",
				zap.Uint("mail_id", mail.ID),
				zap.String("status", string(status)),
				zap.Error(err),
			)
			return
		}
		m.ObserveNotification("sent")
	}()
}
