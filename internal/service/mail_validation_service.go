package service

import (
	"context"

	"mailflow/internal/model"
	"mailflow/internal/rbac"
	"mailflow/pkg/apperror"

	"go.uber.org/zap"
)

// --- DTOs ---

type ValidateMailInput struct {
	Comment     *string `json:"comment"`
	Category    string  `json:"category"`
	Classeur    string  `json:"classeur"`
	AutoArchive *bool   `json:"auto_archive"`
}

type ValidationResult struct {
	NewStatus model.MailStatus `json:"new_status"`
	ArchiveID *uint            `json:"archive_id,omitempty"`
}

// --- Interface ---

type MailValidationService interface {
	Validate(ctx context.Context, actor rbac.Actor, mailID uint, input ValidateMailInput) (ValidationResult, error)
}

type mailValidationService struct {
	deps        WorkflowDeps
	autoArchive bool
}

// NewMailValidationService builds the validation operation. autoArchive is
// used when a request does not say whether to archive right away.
func NewMailValidationService(deps WorkflowDeps, autoArchive bool) MailValidationService {
	return &mailValidationService{deps: deps.withDefaults(), autoArchive: autoArchive}
}

// --- Implementation ---

// Validate moves a processed mail to Validation and, unless disabled,
// archives it in the same transaction. Validating a mail already in
// Validation only applies the comment.
func (s *mailValidationService) Validate(ctx context.Context, actor rbac.Actor, mailID uint, input ValidateMailInput) (ValidationResult, error) {
	input.Comment = normalizeComment(input.Comment)
	autoArchive := s.autoArchive
	if input.AutoArchive != nil {
		autoArchive = *input.AutoArchive
	}

	var (
		result   ValidationResult
		mail     model.IncomingMail
		previous model.MailStatus
	)

	err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		found, err := lockMail(txCtx, s.deps.Mails, mailID)
		if err != nil {
			return err
		}
		if err := rbac.AuthorizeService(actor, found.AssignedService); err != nil {
			return err
		}
		previous = found.Status

		switch found.Status {
		case model.StatusTraite:
			if err := applyTransition(txCtx, s.deps, found, model.StatusValidation, input.Comment,
				model.HistoryActionValidated, actor, nil); err != nil {
				return err
			}
		case model.StatusValidation:
			if input.Comment != nil {
				if err := s.deps.Mails.UpdateComment(txCtx, found.ID, *input.Comment); err != nil {
					return err
				}
				found.Comment = *input.Comment
			}
		default:
			return &apperror.InvalidStateError{Operation: "validate", Actual: string(found.Status)}
		}

		result = ValidationResult{NewStatus: model.StatusValidation}
		if autoArchive {
			archived, err := archiveMail(txCtx, s.deps, found, actor, ArchiveMailInput{
				Comment:  input.Comment,
				Category: input.Category,
				Classeur: input.Classeur,
			})
			if err != nil {
				return err
			}
			id := archived.ArchiveID
			result = ValidationResult{NewStatus: model.StatusArchive, ArchiveID: &id}
		}

		mail = *found
		return nil
	})
	if err != nil {
		s.deps.Metrics.ObserveValidation(outcomeOf(err))
		return ValidationResult{}, err
	}

	if previous == result.NewStatus {
		s.deps.Metrics.ObserveValidation("noop")
		return result, nil
	}

	s.deps.Metrics.ObserveValidation(outcomeFor(result.NewStatus))
	s.deps.Logger.Info("mail validated",
		zap.Uint("mail_id", mailID),
		zap.String("new_status", string(result.NewStatus)),
		zap.Uint("user_id", actor.ID),
	)

	extra := map[string]interface{}{"previous_status": previous}
	if result.ArchiveID != nil {
		extra["archive_id"] = *result.ArchiveID
	}
	notifyAsync(s.deps.Notifier, s.deps.Logger, s.deps.Metrics, s.deps.NotifyTimeout, mail, result.NewStatus, extra)
	return result, nil
}

func outcomeFor(status model.MailStatus) string {
	if status == model.StatusArchive {
		return "archived"
	}
	return "validated"
}
