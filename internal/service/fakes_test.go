package service

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"mailflow/internal/events"
	"mailflow/internal/model"
	"mailflow/internal/repository"

	"gorm.io/gorm"
)

// memStore is an in-memory stand-in for the mail, archive, outgoing mail and
// history tables. Together with fakeTx it rolls back on error, nested
// transactions included.
type memStore struct {
	mu             sync.Mutex
	mails          map[uint]model.IncomingMail
	outgoing       map[uint]model.OutgoingMail
	archives       []model.Archive
	mailHistory    []model.MailHistory
	entityHistory  []model.EntityHistory
	nextArchiveID  uint
	failArchiveFor map[uint]bool
	failOutgoing   bool
}

func newMemStore() *memStore {
	return &memStore{
		mails:          make(map[uint]model.IncomingMail),
		outgoing:       make(map[uint]model.OutgoingMail),
		failArchiveFor: make(map[uint]bool),
	}
}

type memSnapshot struct {
	mails         map[uint]model.IncomingMail
	outgoing      map[uint]model.OutgoingMail
	archives      []model.Archive
	mailHistory   []model.MailHistory
	entityHistory []model.EntityHistory
	nextArchiveID uint
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		mails:         make(map[uint]model.IncomingMail, len(s.mails)),
		outgoing:      make(map[uint]model.OutgoingMail, len(s.outgoing)),
		archives:      append([]model.Archive(nil), s.archives...),
		mailHistory:   append([]model.MailHistory(nil), s.mailHistory...),
		entityHistory: append([]model.EntityHistory(nil), s.entityHistory...),
		nextArchiveID: s.nextArchiveID,
	}
	for k, v := range s.mails {
		snap.mails[k] = v
	}
	for k, v := range s.outgoing {
		snap.outgoing[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mails = snap.mails
	s.outgoing = snap.outgoing
	s.archives = snap.archives
	s.mailHistory = snap.mailHistory
	s.entityHistory = snap.entityHistory
	s.nextArchiveID = snap.nextArchiveID
}

func (s *memStore) put(mail model.IncomingMail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mails[mail.ID] = mail
}

func (s *memStore) putOutgoing(mail model.OutgoingMail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outgoing[mail.ID] = mail
}

func (s *memStore) mail(id uint) model.IncomingMail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mails[id]
}

func (s *memStore) outgoingMail(id uint) model.OutgoingMail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outgoing[id]
}

func (s *memStore) archivesFor(mailID uint) []model.Archive {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Archive
	for _, a := range s.archives {
		if a.IncomingMailID == mailID {
			out = append(out, a)
		}
	}
	return out
}

func (s *memStore) historyFor(mailID uint) []model.MailHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MailHistory
	for _, h := range s.mailHistory {
		if h.MailID == mailID {
			out = append(out, h)
		}
	}
	return out
}

func (s *memStore) entityHistoryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entityHistory)
}

// --- repository.MailRepository ---

func (s *memStore) FindByID(_ context.Context, id uint) (*model.IncomingMail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mails[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &m, nil
}

func (s *memStore) FindByIDForUpdate(ctx context.Context, id uint) (*model.IncomingMail, error) {
	return s.FindByID(ctx, id)
}

func (s *memStore) UpdateStatus(_ context.Context, id uint, from, to model.MailStatus, comment *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mails[id]
	if !ok || m.Status != from {
		return false, nil
	}
	m.Status = to
	if comment != nil {
		m.Comment = *comment
	}
	s.mails[id] = m
	return true, nil
}

func (s *memStore) UpdateComment(_ context.Context, id uint, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mails[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.Comment = comment
	s.mails[id] = m
	return nil
}

func (s *memStore) MarkArchived(_ context.Context, id uint, at time.Time, archiveRef string, comment *string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mails[id]
	if !ok || m.ArchivedAt != nil {
		return false, nil
	}
	stamp := at
	m.ArchivedAt = &stamp
	m.Status = model.StatusArchive
	if m.NumeroArchivageGeneral == nil {
		ref := archiveRef
		m.NumeroArchivageGeneral = &ref
	}
	if comment != nil {
		m.Comment = *comment
	}
	s.mails[id] = m
	return true, nil
}

func (s *memStore) ListArchivalCandidates(_ context.Context, receivedBefore time.Time) ([]model.IncomingMail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.IncomingMail
	for _, m := range s.mails {
		if m.Status == model.StatusTraite && m.ArchivedAt == nil && !m.ReceivedAt().After(receivedBefore) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- repository.ArchiveRepository ---

func (s *memStore) Create(_ context.Context, archive *model.Archive) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failArchiveFor[archive.IncomingMailID] {
		return errors.New("archives: write failed")
	}
	for _, a := range s.archives {
		if a.IncomingMailID == archive.IncomingMailID {
			return gorm.ErrDuplicatedKey
		}
	}
	s.nextArchiveID++
	archive.ID = s.nextArchiveID
	s.archives = append(s.archives, *archive)
	return nil
}

func (s *memStore) FindByMailID(_ context.Context, mailID uint) (*model.Archive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.archives {
		if a.IncomingMailID == mailID {
			found := a
			return &found, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// --- repository.OutgoingMailRepository ---

func (s *memStore) StampArchived(_ context.Context, id uint, at time.Time, by *uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOutgoing {
		return false, errors.New("courriers_sortants: write failed")
	}
	m, ok := s.outgoing[id]
	if !ok || m.ArchivedAt != nil {
		return false, nil
	}
	stamp := at
	m.ArchivedAt = &stamp
	m.ArchivedBy = by
	s.outgoing[id] = m
	return true, nil
}

// --- repository.HistoryRepository ---

func (s *memStore) CreateMailHistory(_ context.Context, entry *model.MailHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mailHistory = append(s.mailHistory, *entry)
	return nil
}

func (s *memStore) CreateEntityHistory(_ context.Context, entry *model.EntityHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entityHistory = append(s.entityHistory, *entry)
	return nil
}

func (s *memStore) ListByMail(ctx context.Context, mailID uint, page, limit int) ([]model.MailHistory, int64, error) {
	id := mailID
	return s.List(ctx, repository.HistoryFilter{MailID: &id}, page, limit)
}

func (s *memStore) List(_ context.Context, filter repository.HistoryFilter, page, limit int) ([]model.MailHistory, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []model.MailHistory
	for i := len(s.mailHistory) - 1; i >= 0; i-- {
		h := s.mailHistory[i]
		if filter.MailID != nil && h.MailID != *filter.MailID {
			continue
		}
		if filter.UserID != nil && (h.UserID == nil || *h.UserID != *filter.UserID) {
			continue
		}
		matched = append(matched, h)
	}
	total := int64(len(matched))
	start := (page - 1) * limit
	if start >= len(matched) {
		return []model.MailHistory{}, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// fakeTx serializes top-level transactions, which stands in for the row
// lock, and restores the store when fn fails.
type fakeTx struct {
	store *memStore
	txMu  sync.Mutex
}

type fakeTxKey struct{}

func (t *fakeTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) == nil {
		t.txMu.Lock()
		defer t.txMu.Unlock()
	}
	snap := t.store.snapshot()
	if err := fn(context.WithValue(ctx, fakeTxKey{}, true)); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

type notifyCall struct {
	MailID uint
	Status model.MailStatus
	Extra  map[string]interface{}
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
	err   error
}

func (n *fakeNotifier) NotifyStatusChange(_ context.Context, mail model.IncomingMail, status model.MailStatus, extra map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{MailID: mail.ID, Status: status, Extra: extra})
	return n.err
}

func (n *fakeNotifier) snapshot() []notifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifyCall(nil), n.calls...)
}

// fakeUserRepo backs the user and notification recipient lookups.
type fakeUserRepo struct {
	mu      sync.Mutex
	users   map[uint]model.User
	audits  []model.UserRoleAudit
	failLog bool
}

func newFakeUserRepo(users ...model.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[uint]model.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uint) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (r *fakeUserRepo) GetByIDForUpdate(ctx context.Context, id uint) (*model.User, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeUserRepo) ListIDsByRoleIDs(_ context.Context, roleIDs []int) ([]uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uint
	for _, u := range r.users {
		for _, role := range roleIDs {
			if u.RoleID == role {
				ids = append(ids, u.ID)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *fakeUserRepo) FindIDByUsername(_ context.Context, username string) (uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return u.ID, nil
		}
	}
	return 0, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) UpdateRole(_ context.Context, id uint, roleID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.RoleID = roleID
	r.users[id] = u
	return nil
}

func (r *fakeUserRepo) LogRoleChange(_ context.Context, entry *model.UserRoleAudit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failLog {
		return errors.New("user_role_audit: write failed")
	}
	r.audits = append(r.audits, *entry)
	return nil
}

type userSnapshot struct {
	users  map[uint]model.User
	audits []model.UserRoleAudit
}

// userTx gives fakeUserRepo the same rollback behaviour as fakeTx.
type userTx struct {
	repo *fakeUserRepo
}

func (t *userTx) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	t.repo.mu.Lock()
	snap := userSnapshot{users: make(map[uint]model.User, len(t.repo.users)), audits: append([]model.UserRoleAudit(nil), t.repo.audits...)}
	for k, v := range t.repo.users {
		snap.users[k] = v
	}
	t.repo.mu.Unlock()

	if err := fn(ctx); err != nil {
		t.repo.mu.Lock()
		t.repo.users = snap.users
		t.repo.audits = snap.audits
		t.repo.mu.Unlock()
		return err
	}
	return nil
}

type fakeNotificationRepo struct {
	mu   sync.Mutex
	rows []model.Notification
	err  error
}

func (r *fakeNotificationRepo) CreateBatch(_ context.Context, notifications []model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.rows = append(r.rows, notifications...)
	return nil
}

func (r *fakeNotificationRepo) ListByUser(_ context.Context, userID uint, page, limit int) ([]model.Notification, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Notification
	for _, n := range r.rows {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, int64(len(out)), nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.StatusChanged
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, event events.StatusChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func ptr[T any](v T) *T { return &v }

func idString(id uint) string { return strconv.FormatUint(uint64(id), 10) }
