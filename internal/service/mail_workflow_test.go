package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"mailflow/internal/lifecycle"
	"mailflow/internal/metrics"
	"mailflow/internal/model"
	"mailflow/internal/rbac"
	"mailflow/pkg/apperror"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
)

// =============================================================================
// Mail Workflow Test Suite
// =============================================================================
// Validation and archival run against in-memory repositories that honour
// rollback, so atomicity and failure isolation can be asserted directly.

var fixedNow = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

type MailWorkflowSuite struct {
	suite.Suite
	store     *memStore
	tx        *fakeTx
	notifier  *fakeNotifier
	metrics   *metrics.Metrics
	validator MailValidationService
	archiver  MailArchiveService

	comptable rbac.Actor
	caisse    rbac.Actor
	admin     rbac.Actor
}

func TestMailWorkflowSuite(t *testing.T) {
	suite.Run(t, new(MailWorkflowSuite))
}

func (s *MailWorkflowSuite) SetupTest() {
	s.store = newMemStore()
	s.tx = &fakeTx{store: s.store}
	s.notifier = &fakeNotifier{}
	s.metrics = metrics.New(prometheus.NewRegistry())

	deps := WorkflowDeps{
		Tx:            s.tx,
		Mails:         s.store,
		Archives:      s.store,
		Outgoing:      s.store,
		History:       NewHistoryService(s.store, s.store),
		Notifier:      s.notifier,
		Metrics:       s.metrics,
		Now:           func() time.Time { return fixedNow },
		NotifyTimeout: time.Second,
	}
	s.validator = NewMailValidationService(deps, true)
	s.archiver = NewMailArchiveService(deps)

	s.comptable = rbac.Actor{ID: 40, Username: "compta", RoleID: 4, ClientIP: "10.0.0.4", UserAgent: "test"}
	s.caisse = rbac.Actor{ID: 50, Username: "caisse", RoleID: 5}
	s.admin = rbac.Actor{ID: 1, Username: "admin", RoleID: 1}
}

func (s *MailWorkflowSuite) seed(id uint, status model.MailStatus, service string) model.IncomingMail {
	received := fixedNow.AddDate(0, 0, -10)
	mail := model.IncomingMail{
		ID:              id,
		RefCode:         "CE-2025-" + idString(id),
		Subject:         "Facture fournisseur",
		Sender:          "SONABEL",
		Status:          status,
		AssignedService: service,
		DateReception:   &received,
		CreatedAt:       received,
	}
	s.store.put(mail)
	return mail
}

func (s *MailWorkflowSuite) waitNotifications(n int) []notifyCall {
	s.Eventually(func() bool { return len(s.notifier.snapshot()) >= n }, time.Second, 5*time.Millisecond)
	return s.notifier.snapshot()
}

// assertLegalTrail checks that every history entry moved along a lifecycle edge.
func (s *MailWorkflowSuite) assertLegalTrail(mailID uint) {
	for _, h := range s.store.historyFor(mailID) {
		var details struct {
			Previous model.MailStatus `json:"previous_status"`
			New      model.MailStatus `json:"new_status"`
		}
		s.Require().NoError(json.Unmarshal([]byte(h.Details), &details))
		s.True(lifecycle.CanTransition(details.Previous, details.New),
			"%s -> %s is not a lifecycle edge", details.Previous, details.New)
	}
}

// =============================================================================
// Validate Tests
// =============================================================================

func (s *MailWorkflowSuite) TestValidate_AutoArchivesProcessedMail() {
	s.seed(7, model.StatusTraite, "COMPTABLE")

	res, err := s.validator.Validate(context.Background(), s.comptable, 7, ValidateMailInput{AutoArchive: ptr(true)})
	s.Require().NoError(err)
	s.Equal(model.StatusArchive, res.NewStatus)
	s.Require().NotNil(res.ArchiveID)

	archives := s.store.archivesFor(7)
	s.Require().Len(archives, 1)
	s.Equal(*res.ArchiveID, archives[0].ID)
	s.Equal(uint(7), archives[0].IncomingMailID)

	history := s.store.historyFor(7)
	s.Require().Len(history, 2)
	s.Equal(model.HistoryActionValidated, history[0].Action)
	s.Equal(model.HistoryActionArchived, history[1].Action)
	s.Equal("10.0.0.4", history[0].IPAddress)
	s.Len(history[0].ActionHash, 64)
	s.assertLegalTrail(7)

	mail := s.store.mail(7)
	s.Equal(model.StatusArchive, mail.Status)
	s.Require().NotNil(mail.ArchivedAt)
	s.Require().NotNil(mail.NumeroArchivageGeneral)
	s.Equal(archives[0].Reference, *mail.NumeroArchivageGeneral)

	calls := s.waitNotifications(1)
	s.Never(func() bool { return len(s.notifier.snapshot()) > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	s.Equal(model.StatusArchive, calls[0].Status)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Validations.WithLabelValues("archived")))
}

func (s *MailWorkflowSuite) TestValidate_ServiceMismatchIsForbidden() {
	s.seed(7, model.StatusTraite, "COMPTABLE")

	_, err := s.validator.Validate(context.Background(), s.caisse, 7, ValidateMailInput{
		Comment:     ptr("ok"),
		AutoArchive: ptr(true),
	})

	var forbidden *apperror.ForbiddenError
	s.Require().True(errors.As(err, &forbidden))
	s.Equal("COMPTABLE", forbidden.RequiredService)
	s.Equal(model.StatusTraite, s.store.mail(7).Status)
	s.Empty(s.store.historyFor(7))
	s.Empty(s.store.archivesFor(7))
}

func (s *MailWorkflowSuite) TestValidate_NotYetProcessedIsInvalidState() {
	s.seed(9, model.StatusIndexe, "COMPTABLE")

	_, err := s.validator.Validate(context.Background(), s.comptable, 9, ValidateMailInput{})

	var invalid *apperror.InvalidStateError
	s.Require().True(errors.As(err, &invalid))
	s.Equal("Indexé", invalid.Actual)
	s.Equal(model.StatusIndexe, s.store.mail(9).Status)
	s.Empty(s.store.historyFor(9))
}

func (s *MailWorkflowSuite) TestValidate_ErrorPrecedence() {
	ctx := context.Background()

	s.Run("missing mail is not found", func() {
		_, err := s.validator.Validate(ctx, s.comptable, 404, ValidateMailInput{})
		s.ErrorIs(err, apperror.ErrNotFound)
	})

	s.Run("guard runs before the status check", func() {
		s.seed(10, model.StatusIndexe, "COMPTABLE")
		_, err := s.validator.Validate(ctx, s.caisse, 10, ValidateMailInput{})
		var forbidden *apperror.ForbiddenError
		s.True(errors.As(err, &forbidden))
	})

	s.Run("mail without service reports N/A", func() {
		s.seed(11, model.StatusTraite, "")
		_, err := s.validator.Validate(ctx, s.comptable, 11, ValidateMailInput{})
		var forbidden *apperror.ForbiddenError
		s.Require().True(errors.As(err, &forbidden))
		s.Equal(apperror.NotApplicable, forbidden.RequiredService)
	})

	s.Run("archived mail cannot be validated again", func() {
		s.seed(12, model.StatusTraite, "COMPTABLE")
		_, err := s.validator.Validate(ctx, s.comptable, 12, ValidateMailInput{})
		s.Require().NoError(err)

		_, err = s.validator.Validate(ctx, s.comptable, 12, ValidateMailInput{Comment: ptr("late")})
		var invalid *apperror.InvalidStateError
		s.Require().True(errors.As(err, &invalid))
		s.Equal(string(model.StatusArchive), invalid.Actual)
	})
}

func (s *MailWorkflowSuite) TestValidate_SecondCallIsIdempotent() {
	ctx := context.Background()
	s.seed(20, model.StatusTraite, "COMPTABLE")

	res, err := s.validator.Validate(ctx, s.comptable, 20, ValidateMailInput{Comment: ptr("vu"), AutoArchive: ptr(false)})
	s.Require().NoError(err)
	s.Equal(model.StatusValidation, res.NewStatus)
	s.Nil(res.ArchiveID)
	s.Len(s.store.historyFor(20), 1)
	s.Equal("vu", s.store.mail(20).Comment)

	res, err = s.validator.Validate(ctx, s.comptable, 20, ValidateMailInput{Comment: ptr("vu et approuvé"), AutoArchive: ptr(false)})
	s.Require().NoError(err)
	s.Equal(model.StatusValidation, res.NewStatus)
	s.Len(s.store.historyFor(20), 1, "no second transition entry")
	s.Equal("vu et approuvé", s.store.mail(20).Comment)

	_, err = s.validator.Validate(ctx, s.comptable, 20, ValidateMailInput{AutoArchive: ptr(false)})
	s.Require().NoError(err)
	s.Equal("vu et approuvé", s.store.mail(20).Comment, "comment kept when none supplied")

	calls := s.waitNotifications(1)
	s.Never(func() bool { return len(s.notifier.snapshot()) > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	s.Equal(model.StatusValidation, calls[0].Status)
}

func (s *MailWorkflowSuite) TestValidate_ArchiveFailureRollsBackEverything() {
	s.seed(21, model.StatusTraite, "COMPTABLE")
	s.store.failArchiveFor[21] = true

	_, err := s.validator.Validate(context.Background(), s.comptable, 21, ValidateMailInput{Comment: ptr("x")})
	s.Require().Error(err)

	mail := s.store.mail(21)
	s.Equal(model.StatusTraite, mail.Status)
	s.Empty(mail.Comment)
	s.Nil(mail.ArchivedAt)
	s.Empty(s.store.historyFor(21))
	s.Empty(s.store.archivesFor(21))
	s.Never(func() bool { return len(s.notifier.snapshot()) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func (s *MailWorkflowSuite) TestBlankCommentKeepsStoredComment() {
	withComment := func(id uint, status model.MailStatus) {
		mail := s.seed(id, status, "COMPTABLE")
		mail.Comment = "note existante"
		s.store.put(mail)
	}

	s.Run("validate without archive", func() {
		withComment(100, model.StatusTraite)
		_, err := s.validator.Validate(context.Background(), s.comptable, 100,
			ValidateMailInput{Comment: ptr(""), AutoArchive: ptr(false)})
		s.Require().NoError(err)
		s.Equal(model.StatusValidation, s.store.mail(100).Status)
		s.Equal("note existante", s.store.mail(100).Comment)
	})

	s.Run("repeated validate", func() {
		withComment(101, model.StatusValidation)
		_, err := s.validator.Validate(context.Background(), s.comptable, 101,
			ValidateMailInput{Comment: ptr("   "), AutoArchive: ptr(false)})
		s.Require().NoError(err)
		s.Equal("note existante", s.store.mail(101).Comment)
	})

	s.Run("archive", func() {
		withComment(102, model.StatusValidation)
		_, err := s.archiver.Archive(context.Background(), s.comptable, 102, ArchiveMailInput{Comment: ptr("")})
		s.Require().NoError(err)
		s.Equal("note existante", s.store.mail(102).Comment)
		s.Equal("note existante", s.store.archivesFor(102)[0].ExecutedTask)
	})
}

func (s *MailWorkflowSuite) TestValidate_AdminBypassesServiceScope() {
	s.seed(22, model.StatusTraite, "CAISSE")

	res, err := s.validator.Validate(context.Background(), s.admin, 22, ValidateMailInput{AutoArchive: ptr(false)})
	s.Require().NoError(err)
	s.Equal(model.StatusValidation, res.NewStatus)
}

func (s *MailWorkflowSuite) TestValidate_DefaultAutoArchiveComesFromConfig() {
	deps := WorkflowDeps{
		Tx:       s.tx,
		Mails:    s.store,
		Archives: s.store,
		Outgoing: s.store,
		History:  NewHistoryService(s.store, s.store),
		Now:      func() time.Time { return fixedNow },
	}
	validator := NewMailValidationService(deps, false)
	s.seed(23, model.StatusTraite, "COMPTABLE")

	res, err := validator.Validate(context.Background(), s.comptable, 23, ValidateMailInput{})
	s.Require().NoError(err)
	s.Equal(model.StatusValidation, res.NewStatus)
	s.Empty(s.store.archivesFor(23))
}

// =============================================================================
// Archive Tests
// =============================================================================

func (s *MailWorkflowSuite) TestArchive_ValidatedMail() {
	s.seed(30, model.StatusValidation, "COMPTABLE")

	res, err := s.archiver.Archive(context.Background(), s.comptable, 30, ArchiveMailInput{
		Comment:  ptr("classé"),
		Category: "Factures",
		Classeur: "C-12",
	})
	s.Require().NoError(err)
	s.False(res.AlreadyArchived)
	s.Regexp(`^ARCH-CE-2025-30-2503-[0-9A-F]{6}$`, res.Reference)

	archives := s.store.archivesFor(30)
	s.Require().Len(archives, 1)
	a := archives[0]
	s.Equal("Factures", a.Category)
	s.Equal("C-12", a.Classeur)
	s.Equal("SONABEL", a.Sender)
	s.Equal("COMPTABLE", a.ServiceCode)
	s.Equal("Courrier Entrant", a.Type)
	s.Equal("classé", a.ExecutedTask)
	s.Equal(string(model.StatusArchive), a.Status)

	history := s.store.historyFor(30)
	s.Require().Len(history, 1)
	s.Equal(model.HistoryActionArchived, history[0].Action)
	s.Equal("classé", s.store.mail(30).Comment)

	calls := s.waitNotifications(1)
	s.Equal(model.StatusArchive, calls[0].Status)
}

func (s *MailWorkflowSuite) TestArchive_ProcessedMailPassesThroughValidation() {
	s.seed(31, model.StatusTraite, "COMPTABLE")

	_, err := s.archiver.Archive(context.Background(), s.comptable, 31, ArchiveMailInput{})
	s.Require().NoError(err)

	history := s.store.historyFor(31)
	s.Require().Len(history, 2)
	s.Equal(model.HistoryActionAutoValidated, history[0].Action)
	s.Equal(model.HistoryActionArchived, history[1].Action)
	s.assertLegalTrail(31)
}

func (s *MailWorkflowSuite) TestArchive_RejectsEarlierStatuses() {
	for i, status := range []model.MailStatus{model.StatusAcquis, model.StatusIndexe, model.StatusEnTraitement} {
		id := uint(40 + i)
		s.seed(id, status, "COMPTABLE")

		_, err := s.archiver.Archive(context.Background(), s.comptable, id, ArchiveMailInput{})
		var invalid *apperror.InvalidStateError
		s.Require().True(errors.As(err, &invalid), "status %s", status)
		s.Equal(string(status), invalid.Actual)
		s.Empty(s.store.archivesFor(id))
	}
}

func (s *MailWorkflowSuite) TestArchive_IsIdempotent() {
	ctx := context.Background()
	s.seed(32, model.StatusValidation, "COMPTABLE")

	first, err := s.archiver.Archive(ctx, s.comptable, 32, ArchiveMailInput{})
	s.Require().NoError(err)
	stampedAt := *s.store.mail(32).ArchivedAt

	second, err := s.archiver.Archive(ctx, s.comptable, 32, ArchiveMailInput{Comment: ptr("again")})
	s.Require().NoError(err)
	s.True(second.AlreadyArchived)
	s.Equal(first.ArchiveID, second.ArchiveID)

	s.Len(s.store.archivesFor(32), 1)
	s.Len(s.store.historyFor(32), 1)
	s.Equal(stampedAt, *s.store.mail(32).ArchivedAt)
	s.Empty(s.store.mail(32).Comment)
}

func (s *MailWorkflowSuite) TestArchive_ConcurrentCallsCreateOneRecord() {
	s.seed(33, model.StatusValidation, "COMPTABLE")

	const callers = 8
	var wg sync.WaitGroup
	ids := make(chan uint, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.archiver.Archive(context.Background(), s.comptable, 33, ArchiveMailInput{})
			if err == nil {
				ids <- res.ArchiveID
			}
		}()
	}
	wg.Wait()
	close(ids)

	s.Len(s.store.archivesFor(33), 1)
	s.Len(s.store.historyFor(33), 1)
	for id := range ids {
		s.Equal(s.store.archivesFor(33)[0].ID, id)
	}
}

func (s *MailWorkflowSuite) TestArchive_ServiceMismatchIsForbidden() {
	s.seed(34, model.StatusValidation, "COMPTABLE")

	_, err := s.archiver.Archive(context.Background(), s.caisse, 34, ArchiveMailInput{Category: "x"})
	var forbidden *apperror.ForbiddenError
	s.Require().True(errors.As(err, &forbidden))
	s.Equal("COMPTABLE", forbidden.RequiredService)
	s.Empty(s.store.archivesFor(34))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Archives.WithLabelValues("forbidden")))
}

func (s *MailWorkflowSuite) TestArchive_LinkedOutgoingMail() {
	ctx := context.Background()

	s.Run("stamps the reply and writes its history", func() {
		mail := s.seed(35, model.StatusValidation, "COMPTABLE")
		mail.ResponseOutgoingID = ptr(uint(500))
		s.store.put(mail)
		s.store.putOutgoing(model.OutgoingMail{ID: 500, Reference: "CS-500"})

		_, err := s.archiver.Archive(ctx, s.comptable, 35, ArchiveMailInput{})
		s.Require().NoError(err)

		out := s.store.outgoingMail(500)
		s.Require().NotNil(out.ArchivedAt)
		s.Require().NotNil(out.ArchivedBy)
		s.Equal(s.comptable.ID, *out.ArchivedBy)
		s.Equal(1, s.store.entityHistoryCount())
	})

	s.Run("already archived reply is left alone", func() {
		earlier := fixedNow.AddDate(0, -1, 0)
		mail := s.seed(36, model.StatusValidation, "COMPTABLE")
		mail.ResponseOutgoingID = ptr(uint(501))
		s.store.put(mail)
		s.store.putOutgoing(model.OutgoingMail{ID: 501, ArchivedAt: &earlier})

		_, err := s.archiver.Archive(ctx, s.comptable, 36, ArchiveMailInput{})
		s.Require().NoError(err)
		s.Equal(earlier, *s.store.outgoingMail(501).ArchivedAt)
		s.Equal(1, s.store.entityHistoryCount())
	})

	s.Run("linkage failure does not undo the archival", func() {
		mail := s.seed(37, model.StatusValidation, "COMPTABLE")
		mail.ResponseOutgoingID = ptr(uint(502))
		s.store.put(mail)
		s.store.putOutgoing(model.OutgoingMail{ID: 502})
		s.store.failOutgoing = true
		defer func() { s.store.failOutgoing = false }()

		res, err := s.archiver.Archive(ctx, s.comptable, 37, ArchiveMailInput{})
		s.Require().NoError(err)
		s.NotZero(res.ArchiveID)
		s.Equal(model.StatusArchive, s.store.mail(37).Status)
		s.Len(s.store.archivesFor(37), 1)
		s.Nil(s.store.outgoingMail(502).ArchivedAt)
		s.Equal(1, s.store.entityHistoryCount())
	})
}

func (s *MailWorkflowSuite) TestArchive_SnapshotFallbacks() {
	mail := s.seed(38, model.StatusValidation, "")
	mail.Sender = "Inconnu"
	mail.Classification = "Administratif"
	mail.ExtractedText = "Objet: relance\nExpéditeur : Ministère des Finances\n\nMadame, Monsieur"
	mail.TypeCourrier = "Courrier Confidentiel"
	s.store.put(mail)

	_, err := s.archiver.Archive(context.Background(), s.admin, 38, ArchiveMailInput{})
	s.Require().NoError(err)

	a := s.store.archivesFor(38)[0]
	s.Equal("Ministère des Finances", a.Sender)
	s.Equal("Administratif", a.Category)
	s.Equal("INCONNU", a.ServiceCode)
	s.Equal("Courrier Confidentiel", a.Type)
	s.Equal(*mail.DateReception, a.Date)
}

// =============================================================================
// Sweep Tests
// =============================================================================

func (s *MailWorkflowSuite) TestSweep_IsolatesFailures() {
	for id := uint(60); id < 64; id++ {
		s.seed(id, model.StatusTraite, "COMPTABLE")
	}
	s.store.failArchiveFor[62] = true

	res, err := s.archiver.Sweep(context.Background(), s.admin, 7, ArchiveMailInput{})
	s.Require().NoError(err)

	s.False(res.Success)
	s.Equal(3, res.ArchivedCount)
	s.Equal(1, res.FailedCount)
	s.Require().Len(res.Failed, 1)
	s.Equal(uint(62), res.Failed[0].ID)
	s.NotEmpty(res.Failed[0].Error)

	failed := s.store.mail(62)
	s.Equal(model.StatusTraite, failed.Status)
	s.Nil(failed.ArchivedAt)
	s.Empty(s.store.historyFor(62))

	for _, id := range []uint{60, 61, 63} {
		s.Equal(model.StatusArchive, s.store.mail(id).Status)
		s.Len(s.store.archivesFor(id), 1)
		s.Len(s.store.historyFor(id), 2)
	}
	s.Equal(1.0, testutil.ToFloat64(s.metrics.SweepItems.WithLabelValues("failed")))
	s.Equal(3.0, testutil.ToFloat64(s.metrics.SweepItems.WithLabelValues("archived")))
}

func (s *MailWorkflowSuite) TestSweep_SelectsOnlyOldProcessedMails() {
	s.seed(70, model.StatusTraite, "COMPTABLE")
	s.seed(71, model.StatusValidation, "COMPTABLE")
	s.seed(72, model.StatusEnTraitement, "COMPTABLE")

	recent := s.seed(73, model.StatusTraite, "COMPTABLE")
	received := fixedNow.AddDate(0, 0, -2)
	recent.DateReception = &received
	s.store.put(recent)

	res, err := s.archiver.Sweep(context.Background(), s.admin, -1, ArchiveMailInput{})
	s.Require().NoError(err)

	s.True(res.Success)
	s.Equal(1, res.ArchivedCount)
	s.Require().Len(res.Archived, 1)
	s.Equal(uint(70), res.Archived[0].ID)
	s.Equal("CE-2025-70", res.Archived[0].RefCode)
	s.Equal("SONABEL", res.Archived[0].Sender)
	s.Empty(res.Failed)
	s.Equal(model.StatusTraite, s.store.mail(73).Status)
}

func (s *MailWorkflowSuite) TestSweep_AppliesCallerInputToEveryItem() {
	s.seed(90, model.StatusTraite, "COMPTABLE")
	s.seed(91, model.StatusTraite, "COMPTABLE")

	res, err := s.archiver.Sweep(context.Background(), s.admin, 7, ArchiveMailInput{
		Comment:  ptr("classé en fin de mois"),
		Category: "Factures",
		Classeur: "C-2025-03",
	})
	s.Require().NoError(err)
	s.Equal(2, res.ArchivedCount)

	for _, id := range []uint{90, 91} {
		archives := s.store.archivesFor(id)
		s.Require().Len(archives, 1)
		s.Equal("Factures", archives[0].Category)
		s.Equal("C-2025-03", archives[0].Classeur)
		s.Equal("classé en fin de mois", archives[0].ExecutedTask)
		s.Equal("classé en fin de mois", s.store.mail(id).Comment)
	}
}

func (s *MailWorkflowSuite) TestSweep_ChecksServicePerItem() {
	s.seed(80, model.StatusTraite, "COMPTABLE")
	s.seed(81, model.StatusTraite, "CAISSE")

	res, err := s.archiver.Sweep(context.Background(), s.comptable, 7, ArchiveMailInput{})
	s.Require().NoError(err)
	s.Equal(1, res.ArchivedCount)
	s.Equal(1, res.FailedCount)
	s.Equal(uint(81), res.Failed[0].ID)
}

func (s *MailWorkflowSuite) TestSweep_EmptyIsSuccess() {
	res, err := s.archiver.Sweep(context.Background(), s.admin, 7, ArchiveMailInput{})
	s.Require().NoError(err)
	s.True(res.Success)
	s.Zero(res.ArchivedCount)
	s.NotNil(res.Archived)
	s.NotNil(res.Failed)
}
