package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"mailflow/internal/lifecycle"
	"mailflow/internal/metrics"
	"mailflow/internal/model"
	"mailflow/internal/rbac"
	"mailflow/internal/repository"
	"mailflow/pkg/apperror"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultSweepDays     = 7
	defaultNotifyTimeout = 10 * time.Second
	defaultArchiveType   = "Courrier Entrant"
	unknownLabel         = "INCONNU"
)

// WorkflowDeps are the collaborators shared by the validation and archival
// operations.
type WorkflowDeps struct {
	Tx            repository.TransactionManager
	Mails         repository.MailRepository
	Archives      repository.ArchiveRepository
	Outgoing      repository.OutgoingMailRepository
	History       HistoryRecorder
	Notifier      StatusNotifier
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
	Now           func() time.Time
	NotifyTimeout time.Duration
}

func (d WorkflowDeps) withDefaults() WorkflowDeps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NotifyTimeout <= 0 {
		d.NotifyTimeout = defaultNotifyTimeout
	}
	return d
}

// --- DTOs ---

type ArchiveMailInput struct {
	Comment  *string `json:"comment"`
	Category string  `json:"category"`
	Classeur string  `json:"classeur"`
}

type ArchiveResult struct {
	ArchiveID       uint   `json:"archive_id"`
	Reference       string `json:"archive_reference"`
	AlreadyArchived bool   `json:"already_archived"`
}

type SweepArchived struct {
	ID        uint   `json:"id"`
	RefCode   string `json:"ref_code"`
	Subject   string `json:"subject"`
	Sender    string `json:"sender"`
	ArchiveID uint   `json:"archive_id"`
}

type SweepFailure struct {
	ID    uint   `json:"id"`
	Error string `json:"error"`
}

type SweepResult struct {
	Success       bool            `json:"success"`
	ArchivedCount int             `json:"archived_count"`
	FailedCount   int             `json:"failed_count"`
	Archived      []SweepArchived `json:"archived"`
	Failed        []SweepFailure  `json:"failed"`
}

// --- Interface ---

type MailArchiveService interface {
	Archive(ctx context.Context, actor rbac.Actor, mailID uint, input ArchiveMailInput) (ArchiveResult, error)
	Sweep(ctx context.Context, actor rbac.Actor, days int, input ArchiveMailInput) (SweepResult, error)
}

type mailArchiveService struct {
	deps WorkflowDeps
}

func NewMailArchiveService(deps WorkflowDeps) MailArchiveService {
	return &mailArchiveService{deps: deps.withDefaults()}
}

// --- Implementation ---

// Archive snapshots a validated (or processed) mail into the archive and
// stamps it archived, all in one transaction. Archiving an archived mail
// returns the existing record.
func (s *mailArchiveService) Archive(ctx context.Context, actor rbac.Actor, mailID uint, input ArchiveMailInput) (ArchiveResult, error) {
	input.Comment = normalizeComment(input.Comment)

	var (
		result ArchiveResult
		mail   model.IncomingMail
	)

	err := s.deps.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		found, err := lockMail(txCtx, s.deps.Mails, mailID)
		if err != nil {
			return err
		}
		if err := rbac.AuthorizeService(actor, found.AssignedService); err != nil {
			return err
		}

		result, err = archiveMail(txCtx, s.deps, found, actor, input)
		mail = *found
		return err
	})
	if err != nil {
		s.deps.Metrics.ObserveArchive(outcomeOf(err))
		return ArchiveResult{}, err
	}

	if result.AlreadyArchived {
		s.deps.Metrics.ObserveArchive("noop")
		return result, nil
	}

	s.deps.Metrics.ObserveArchive("archived")
	s.deps.Logger.Info("mail archived",
		zap.Uint("mail_id", mailID),
		zap.Uint("archive_id", result.ArchiveID),
		zap.Uint("user_id", actor.ID),
	)
	notifyAsync(s.deps.Notifier, s.deps.Logger, s.deps.Metrics, s.deps.NotifyTimeout, mail, model.StatusArchive,
		map[string]interface{}{"archive_id": result.ArchiveID})
	return result, nil
}

// Sweep archives every processed mail received at least days ago. Each mail
// runs in its own transaction; a failure is reported and the sweep goes on.
// input is applied to every archived mail.
func (s *mailArchiveService) Sweep(ctx context.Context, actor rbac.Actor, days int, input ArchiveMailInput) (SweepResult, error) {
	if days < 0 {
		days = DefaultSweepDays
	}
	cutoff := s.deps.Now().AddDate(0, 0, -days)

	candidates, err := s.deps.Mails.ListArchivalCandidates(ctx, cutoff)
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to list archival candidates: %w", err)
	}

	result := SweepResult{
		Archived: make([]SweepArchived, 0, len(candidates)),
		Failed:   make([]SweepFailure, 0),
	}
	for _, c := range candidates {
		res, err := s.Archive(ctx, actor, c.ID, input)
		if err != nil {
			s.deps.Metrics.ObserveSweepItem("failed")
			s.deps.Logger.Warn("sweep item failed", zap.Uint("mail_id", c.ID), zap.Error(err))
			result.Failed = append(result.Failed, SweepFailure{ID: c.ID, Error: err.Error()})
			continue
		}
		s.deps.Metrics.ObserveSweepItem("archived")
		result.Archived = append(result.Archived, SweepArchived{
			ID:        c.ID,
			RefCode:   c.RefCode,
			Subject:   c.Subject,
			Sender:    c.Sender,
			ArchiveID: res.ArchiveID,
		})
	}

	result.ArchivedCount = len(result.Archived)
	result.FailedCount = len(result.Failed)
	result.Success = result.FailedCount == 0

	s.deps.Logger.Info("archive sweep finished",
		zap.Int("days", days),
		zap.Int("archived", result.ArchivedCount),
		zap.Int("failed", result.FailedCount),
	)
	return result, nil
}

func lockMail(ctx context.Context, mails repository.MailRepository, id uint) (*model.IncomingMail, error) {
	mail, err := mails.FindByIDForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("mail", id)
		}
		return nil, fmt.Errorf("failed to load mail: %w", err)
	}
	return mail, nil
}

// archiveMail runs the archival steps inside the caller's transaction. It
// does not notify; the public entry points do that after commit.
func archiveMail(ctx context.Context, d WorkflowDeps, mail *model.IncomingMail, actor rbac.Actor, input ArchiveMailInput) (ArchiveResult, error) {
	if mail.ArchivedAt != nil {
		existing, err := d.Archives.FindByMailID(ctx, mail.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ArchiveResult{}, fmt.Errorf("mail %d stamped archived without archive record: %w", mail.ID, apperror.ErrConflict)
			}
			return ArchiveResult{}, fmt.Errorf("failed to load archive: %w", err)
		}
		return ArchiveResult{ArchiveID: existing.ID, Reference: existing.Reference, AlreadyArchived: true}, nil
	}

	switch mail.Status {
	case model.StatusTraite:
		// processed mails reach the archive through validation
		if err := applyTransition(ctx, d, mail, model.StatusValidation, nil, model.HistoryActionAutoValidated, actor, nil); err != nil {
			return ArchiveResult{}, err
		}
	case model.StatusValidation, model.StatusArchive:
	default:
		return ArchiveResult{}, &apperror.InvalidStateError{Operation: "archive", Actual: string(mail.Status)}
	}

	previous := mail.Status
	if previous != model.StatusArchive {
		if err := lifecycle.Transition(previous, model.StatusArchive); err != nil {
			return ArchiveResult{}, err
		}
	}

	now := d.Now()
	archive := buildArchive(*mail, input, archiveReference(*mail, now), now)
	if err := d.Archives.Create(ctx, archive); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ArchiveResult{}, fmt.Errorf("mail %d already has an archive record: %w", mail.ID, apperror.ErrConflict)
		}
		return ArchiveResult{}, fmt.Errorf("failed to create archive: %w", err)
	}

	stamped, err := d.Mails.MarkArchived(ctx, mail.ID, now, archive.Reference, input.Comment)
	if err != nil {
		return ArchiveResult{}, fmt.Errorf("failed to stamp mail archived: %w", err)
	}
	if !stamped {
		return ArchiveResult{}, fmt.Errorf("mail %d archived concurrently: %w", mail.ID, apperror.ErrConflict)
	}

	details := map[string]interface{}{
		"previous_status":   previous,
		"new_status":        model.StatusArchive,
		"archive_id":        archive.ID,
		"archive_reference": archive.Reference,
	}
	if input.Comment != nil {
		details["comment"] = *input.Comment
	}
	if err := d.History.RecordMail(ctx, mail.ID, model.HistoryActionArchived, actor, details); err != nil {
		return ArchiveResult{}, err
	}

	mail.Status = model.StatusArchive
	mail.ArchivedAt = &now
	if input.Comment != nil {
		mail.Comment = *input.Comment
	}

	if mail.ResponseOutgoingID != nil {
		linkOutgoing(ctx, d, *mail, actor, archive.ID, now)
	}

	return ArchiveResult{ArchiveID: archive.ID, Reference: archive.Reference}, nil
}

// applyTransition moves mail along one lifecycle edge with a conditional
// write and records the matching history entry.
func applyTransition(ctx context.Context, d WorkflowDeps, mail *model.IncomingMail, to model.MailStatus, comment *string, action string, actor rbac.Actor, extra map[string]interface{}) error {
	from := mail.Status
	if err := lifecycle.Transition(from, to); err != nil {
		return err
	}

	ok, err := d.Mails.UpdateStatus(ctx, mail.ID, from, to, comment)
	if err != nil {
		return fmt.Errorf("failed to update mail status: %w", err)
	}
	if !ok {
		return fmt.Errorf("mail %d changed status concurrently: %w", mail.ID, apperror.ErrConflict)
	}

	details := map[string]interface{}{
		"previous_status": from,
		"new_status":      to,
	}
	if comment != nil {
		details["comment"] = *comment
	}
	for k, v := range extra {
		details[k] = v
	}
	if err := d.History.RecordMail(ctx, mail.ID, action, actor, details); err != nil {
		return err
	}

	mail.Status = to
	if comment != nil {
		mail.Comment = *comment
	}
	return nil
}

// linkOutgoing stamps the reply linked to an archived mail. It runs in a
// savepoint: a failure is logged and rolled back alone.
func linkOutgoing(ctx context.Context, d WorkflowDeps, mail model.IncomingMail, actor rbac.Actor, archiveID uint, at time.Time) {
	outgoingID := *mail.ResponseOutgoingID
	err := d.Tx.RunInTx(ctx, func(linkCtx context.Context) error {
		stamped, err := d.Outgoing.StampArchived(linkCtx, outgoingID, at, actor.UserID())
		if err != nil {
			return err
		}
		if !stamped {
			return nil
		}
		return d.History.RecordEntity(linkCtx, model.EntityOutgoingMail, strconv.FormatUint(uint64(outgoingID), 10),
			model.HistoryActionLinkedArchiving, actor, map[string]interface{}{
				"incoming_mail_id": mail.ID,
				"archive_id":       archiveID,
			})
	})
	if err != nil {
		d.Logger.Warn("linked outgoing mail not archived",
			zap.Uint("mail_id", mail.ID),
			zap.Uint("outgoing_id", outgoingID),
			zap.Error(err),
		)
	}
}

func buildArchive(mail model.IncomingMail, input ArchiveMailInput, reference string, now time.Time) *model.Archive {
	category := firstNonEmpty(input.Category, mail.Category, mail.Classification, unknownLabel)
	classeur := firstNonEmpty(input.Classeur, mail.Classeur)
	executed := mail.Comment
	if input.Comment != nil {
		executed = *input.Comment
	}

	date := now
	if mail.DateReception != nil {
		date = *mail.DateReception
	}

	return &model.Archive{
		Reference:      reference,
		Type:           firstNonEmpty(mail.TypeCourrier, defaultArchiveType),
		Date:           date,
		Description:    mail.Subject,
		Category:       category,
		Classeur:       classeur,
		FilePath:       mail.FilePath,
		Status:         string(model.StatusArchive),
		Sender:         archiveSender(mail),
		ServiceCode:    firstNonEmpty(rbac.NormalizeService(mail.AssignedService), unknownLabel),
		IncomingMailID: mail.ID,
		ExtractedText:  mail.ExtractedText,
		Classification: mail.Classification,
		ExecutedTask:   executed,
	}
}

// normalizeComment treats a blank comment as absent so the stored one is kept.
func normalizeComment(comment *string) *string {
	if comment == nil || strings.TrimSpace(*comment) == "" {
		return nil
	}
	return comment
}

// archiveReference builds ARCH-<ref>-<YYMM>-<6 hex>.
func archiveReference(mail model.IncomingMail, now time.Time) string {
	ref := strings.TrimSpace(mail.RefCode)
	if ref == "" {
		ref = strconv.FormatUint(uint64(mail.ID), 10)
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("ARCH-%s-%s-%s", ref, now.Format("0601"), strings.ToUpper(suffix))
}

var senderLine = regexp.MustCompile(`(?im)^\s*(?:exp[ée]diteur|de|from)\s*:\s*(.+?)\s*$`)

// archiveSender falls back to the sender line of the extracted text when the
// mail was registered without a usable sender.
func archiveSender(mail model.IncomingMail) string {
	sender := strings.TrimSpace(mail.Sender)
	if sender != "" && !strings.EqualFold(sender, "inconnu") && !strings.EqualFold(sender, "unknown") {
		return sender
	}
	if m := senderLine.FindStringSubmatch(mail.ExtractedText); m != nil {
		return m[1]
	}
	return firstNonEmpty(sender, "Inconnu")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func outcomeOf(err error) string {
	var forbidden *apperror.ForbiddenError
	var invalid *apperror.InvalidStateError
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return "not_found"
	case errors.As(err, &forbidden):
		return "forbidden"
	case errors.As(err, &invalid):
		return "invalid_state"
	case errors.Is(err, apperror.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
