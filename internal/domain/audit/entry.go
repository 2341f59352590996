// Package audit defines the append-only activity log written by the
// application lifecycle. Entries are never read back by the lifecycle itself.
package audit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

// ActionKind classifies an audit entry.
type ActionKind string

const (
	ActionCreated          ActionKind = "CREATED"
	ActionUpdated          ActionKind = "UPDATED"
	ActionApproved         ActionKind = "APPROVED"
	ActionRejected         ActionKind = "REJECTED"
	ActionReviewed         ActionKind = "REVIEWED"
	ActionMessage          ActionKind = "MESSAGE"
	ActionDocumentRequest  ActionKind = "DOCUMENT_REQUEST"
	ActionAlternativeOffer ActionKind = "ALTERNATIVE_OFFER"
)

// IsValid checks that the action kind is known.
func (k ActionKind) IsValid() bool {
	switch k {
	case ActionCreated, ActionUpdated, ActionApproved, ActionRejected, ActionReviewed,
		ActionMessage, ActionDocumentRequest, ActionAlternativeOffer:
		return true
	default:
		return false
	}
}

// ActionForStatus maps the target of a status transition to its audit action.
func ActionForStatus(newStatus string) ActionKind {
	switch newStatus {
	case "Approved":
		return ActionApproved
	case "Rejected":
		return ActionRejected
	default:
		return ActionReviewed
	}
}

// Metadata keys shared by lifecycle entries.
const (
	MetaApplicationID = "application_id"
	MetaOldStatus     = "old_status"
	MetaNewStatus     = "new_status"
	MetaProgram       = "program"
	MetaStudent       = "student"
	MetaStatus        = "status"
	MetaChanges       = "changes"
	MetaDocuments     = "documents_uploaded"
)

// Entry is an immutable audit record.
type Entry struct {
	ID          string
	Actor       string
	Action      ActionKind
	Description string
	Timestamp   time.Time
	Metadata    map[string]any
}

// NewEntry builds an entry stamped with now. The metadata map is copied.
func NewEntry(actor string, action ActionKind, description string, metadata map[string]any, now time.Time) (Entry, error) {
	if strings.TrimSpace(actor) == "" {
		return Entry{}, shared.WrapError("audit", "NewEntry", shared.ErrInvalidInput, "actor is required", shared.ErrInvalidAudit)
	}
	if !action.IsValid() {
		return Entry{}, shared.WrapError("audit", "NewEntry", shared.ErrInvalidInput, "unknown action "+string(action), shared.ErrInvalidAudit)
	}
	md := make(map[string]any, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	return Entry{
		ID:          uuid.NewString(),
		Actor:       actor,
		Action:      action,
		Description: description,
		Timestamp:   now.UTC(),
		Metadata:    md,
	}, nil
}

// Sink receives audit entries. Append runs in the caller's unit of work; an
// error must abort the surrounding operation.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
}

// Reader lists entries for activity feeds. Not used by the lifecycle.
type Reader interface {
	ListByActor(ctx context.Context, actor string, limit int) ([]Entry, error)
	ListByApplication(ctx context.Context, applicationID string, limit int) ([]Entry, error)
}
