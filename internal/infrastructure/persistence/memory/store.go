// Package memory provides an in-process implementation of every repository
// the admissions core depends on. Transactions are serialized and rolled back
// by restoring a snapshot of the mutable state. It backs tests and local runs
// without PostgreSQL.
package memory

import (
	"context"
	"sync"

	"github.com/admissions-hub/admissions-core/internal/domain/applicant"
	"github.com/admissions-hub/admissions-core/internal/domain/application"
	"github.com/admissions-hub/admissions-core/internal/domain/audit"
	"github.com/admissions-hub/admissions-core/internal/domain/catalog"
	"github.com/admissions-hub/admissions-core/internal/domain/message"
	"github.com/admissions-hub/admissions-core/internal/domain/notification"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

// state is everything a transaction may change.
type state struct {
	applications  map[shared.ApplicationID]*application.Application
	audit         []audit.Entry
	profiles      map[shared.StudentID]applicant.Profile
	messages      []message.Message
	notifications []notification.Notification
}

func newState() state {
	return state{
		applications: make(map[shared.ApplicationID]*application.Application),
		profiles:     make(map[shared.StudentID]applicant.Profile),
	}
}

func (s state) clone() state {
	c := state{
		applications:  make(map[shared.ApplicationID]*application.Application, len(s.applications)),
		audit:         append([]audit.Entry(nil), s.audit...),
		profiles:      make(map[shared.StudentID]applicant.Profile, len(s.profiles)),
		messages:      append([]message.Message(nil), s.messages...),
		notifications: append([]notification.Notification(nil), s.notifications...),
	}
	for id, app := range s.applications {
		c.applications[id] = app.Clone()
	}
	for id, p := range s.profiles {
		c.profiles[id] = p
	}
	return c
}

// Store holds all in-memory data.
type Store struct {
	// txMu serializes writers: a transaction holds it for its whole duration.
	txMu sync.Mutex
	mu   sync.RWMutex

	st state

	// Catalog data is seeded once and never rolled back.
	institutions map[string]catalog.Institution
	programs     map[shared.ProgramID]catalog.Program
	programOrder []shared.ProgramID
	deadlines    []catalog.Deadline
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		st:           newState(),
		institutions: make(map[string]catalog.Institution),
		programs:     make(map[shared.ProgramID]catalog.Program),
	}
}

type txKey struct{}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*Store)
	return ok
}

// WithinTx implements application.Transactor. Nested calls join the
// surrounding transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.st.clone()
	s.mu.RUnlock()

	err := fn(context.WithValue(ctx, txKey{}, s))
	if err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
	}
	return err
}

// write locks the store for a mutation. Outside a transaction the mutation
// also waits for any running transaction to finish.
func (s *Store) write(ctx context.Context) func() {
	tx := inTx(ctx)
	if !tx {
		s.txMu.Lock()
	}
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		if !tx {
			s.txMu.Unlock()
		}
	}
}

// Applications returns the application repository.
func (s *Store) Applications() *ApplicationRepository { return &ApplicationRepository{s: s} }

// Audit returns the audit log.
func (s *Store) Audit() *AuditLog { return &AuditLog{s: s} }

// Catalog returns the catalog repository.
func (s *Store) Catalog() *CatalogRepository { return &CatalogRepository{s: s} }

// Profiles returns the applicant profile repository.
func (s *Store) Profiles() *ProfileRepository { return &ProfileRepository{s: s} }

// Messages returns the message repository.
func (s *Store) Messages() *MessageRepository { return &MessageRepository{s: s} }

// Notifications returns the notification repository.
func (s *Store) Notifications() *NotificationRepository { return &NotificationRepository{s: s} }

var (
	_ application.Transactor          = (*Store)(nil)
	_ application.Repository          = (*ApplicationRepository)(nil)
	_ application.ReferencePoolSource = (*ApplicationRepository)(nil)
	_ audit.Sink                      = (*AuditLog)(nil)
	_ audit.Reader                    = (*AuditLog)(nil)
	_ catalog.Repository              = (*CatalogRepository)(nil)
	_ applicant.Repository            = (*ProfileRepository)(nil)
	_ message.Repository              = (*MessageRepository)(nil)
	_ notification.Repository         = (*NotificationRepository)(nil)
)
