package query

import (
	"context"
	"errors"
	"time"

	"github.com/admissions-hub/admissions-core/internal/domain/application"
	"github.com/admissions-hub/admissions-core/internal/domain/audit"
	"github.com/admissions-hub/admissions-core/internal/domain/catalog"
	"github.com/admissions-hub/admissions-core/internal/domain/notification"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// ApplicationHandler answers questions about a student's applications.
type ApplicationHandler struct {
	apps  application.Repository
	audit audit.Reader
}

// NewApplicationHandler creates a new ApplicationHandler.
func NewApplicationHandler(apps application.Repository, auditReader audit.Reader) *ApplicationHandler {
	return &ApplicationHandler{apps: apps, audit: auditReader}
}

// ListApplicationsQuery lists a student's applications.
type ListApplicationsQuery struct {
	StudentID shared.StudentID
	Status    string
	Limit     int
	Offset    int
}

// Validate normalizes paging and checks the status filter.
func (q *ListApplicationsQuery) Validate() error {
	if q.StudentID.IsEmpty() {
		return errors.New("student_id is required")
	}
	if q.Offset < 0 {
		return errors.New("offset cannot be negative")
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = application.DefaultListOptions().Limit
	}
	if q.Status != "" {
		if _, ok := application.ParseStatus(q.Status); !ok {
			return shared.ErrInvalidStatus
		}
	}
	return nil
}

// ApplicationDTO is the read model of an application.
type ApplicationDTO struct {
	ID                string     `json:"id"`
	ProgramID         string     `json:"program_id"`
	ProgramName       string     `json:"program_name"`
	Status            string     `json:"status"`
	IsActive          bool       `json:"is_active"`
	AllowedNext       []string   `json:"allowed_next"`
	DateApplied       time.Time  `json:"date_applied"`
	DateUpdated       time.Time  `json:"date_updated"`
	DateStatusChanged *time.Time `json:"date_status_changed,omitempty"`
	DocumentCount     int        `json:"document_count"`
}

func toApplicationDTO(a *application.Application) ApplicationDTO {
	next := a.Status.AllowedTransitions()
	allowed := make([]string, len(next))
	for i, s := range next {
		allowed[i] = s.String()
	}
	return ApplicationDTO{
		ID:                a.ID.String(),
		ProgramID:         a.ProgramID.String(),
		ProgramName:       a.ProgramName,
		Status:            a.Status.String(),
		IsActive:          a.Status.IsActive(),
		AllowedNext:       allowed,
		DateApplied:       a.DateApplied,
		DateUpdated:       a.DateUpdated,
		DateStatusChanged: a.DateStatusChanged,
		DocumentCount:     len(a.Documents),
	}
}

// ListByStudent returns a student's applications, newest first.
func (h *ApplicationHandler) ListByStudent(ctx context.Context, q ListApplicationsQuery) ([]ApplicationDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "ListByStudent", shared.ErrValidation, "invalid query", err)
	}
	opts := application.ListOptions{Offset: q.Offset, Limit: q.Limit}
	if q.Status != "" {
		opts.Status, _ = application.ParseStatus(q.Status)
	}

	apps, err := h.apps.ListByStudent(ctx, q.StudentID, opts)
	if err != nil {
		return nil, err
	}
	out := make([]ApplicationDTO, len(apps))
	for i, a := range apps {
		out[i] = toApplicationDTO(a)
	}
	return out, nil
}

// CheckApplied reports whether the student has already applied to the program.
func (h *ApplicationHandler) CheckApplied(ctx context.Context, studentID shared.StudentID, programID shared.ProgramID) (bool, error) {
	if studentID.IsEmpty() || programID.IsEmpty() {
		return false, shared.NewDomainError("query", "CheckApplied", shared.ErrInvalidID, "student and program are required")
	}
	return h.apps.ExistsForStudentProgram(ctx, studentID, programID)
}

// StatusOptions returns the status choices and the transition table.
func (h *ApplicationHandler) StatusOptions() application.StatusOptions {
	return application.GetStatusOptions()
}

// AuditTrail returns the audit entries of an application, newest first.
// Only the owner and reviewers may see them.
func (h *ApplicationHandler) AuditTrail(ctx context.Context, id shared.ApplicationID, viewer application.Actor, limit int) ([]audit.Entry, error) {
	app, err := h.apps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !viewer.CanEdit(app) {
		return nil, shared.ErrActorNotPermitted
	}
	if limit <= 0 {
		limit = 50
	}
	return h.audit.ListByApplication(ctx, app.ID.String(), limit)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEADLINES
// ══════════════════════════════════════════════════════════════════════════════

// DeadlineDTO is the read model of a deadline.
type DeadlineDTO struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	InstitutionID string    `json:"institution_id,omitempty"`
	Date          time.Time `json:"date"`
	Semester      string    `json:"semester"`
	DaysLeft      int       `json:"days_left"`
	Due           string    `json:"due"`
}

// DeadlineHandler lists upcoming application deadlines.
type DeadlineHandler struct {
	catalog catalog.Repository
	now     func() time.Time
}

// NewDeadlineHandler creates a new DeadlineHandler.
func NewDeadlineHandler(catalogRepo catalog.Repository, now func() time.Time) *DeadlineHandler {
	if now == nil {
		now = time.Now
	}
	return &DeadlineHandler{catalog: catalogRepo, now: now}
}

// Upcoming returns active deadlines from today on, earliest first. An empty
// institutionID includes every institution.
func (h *DeadlineHandler) Upcoming(ctx context.Context, institutionID string) ([]DeadlineDTO, error) {
	now := h.now().UTC()
	deadlines, err := h.catalog.UpcomingDeadlines(ctx, institutionID, now)
	if err != nil {
		return nil, err
	}

	out := make([]DeadlineDTO, len(deadlines))
	for i, d := range deadlines {
		out[i] = DeadlineDTO{
			ID:            d.ID,
			Title:         d.Title,
			Description:   d.Description,
			InstitutionID: d.InstitutionID,
			Date:          d.Date,
			Semester:      d.Semester.Label(),
			DaysLeft:      timeutil.DaysUntil(now, d.Date, time.UTC),
			Due:           timeutil.FormatDue(now, d.Date, time.UTC),
		}
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ══════════════════════════════════════════════════════════════════════════════

// NotificationHandler reads a user's inbox.
type NotificationHandler struct {
	repo notification.Repository
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(repo notification.Repository) *NotificationHandler {
	return &NotificationHandler{repo: repo}
}

// InboxResult is a page of notifications with the unread count.
type InboxResult struct {
	Notifications []*notification.Notification `json:"notifications"`
	UnreadCount   int                          `json:"unread_count"`
}

// Inbox returns the user's notifications, newest first.
func (h *NotificationHandler) Inbox(ctx context.Context, user notification.RecipientID, limit int) (*InboxResult, error) {
	if !user.IsValid() {
		return nil, notification.ErrInvalidRecipient
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	items, err := h.repo.ListByRecipient(ctx, user, limit)
	if err != nil {
		return nil, err
	}
	unread := 0
	for _, n := range items {
		if !n.IsRead {
			unread++
		}
	}
	return &InboxResult{Notifications: items, UnreadCount: unread}, nil
}
