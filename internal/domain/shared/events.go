// Package shared holds the identifiers, error kinds and domain events used
// by every domain package.
package shared

import "time"

// EventType names a domain event on the bus.
type EventType string

const (
	EventApplicationSubmitted     EventType = "application.submitted"
	EventApplicationUpdated       EventType = "application.updated"
	EventApplicationStatusChanged EventType = "application.status_changed"
	EventApplicationDeleted       EventType = "application.deleted"

	EventDocumentsRequested EventType = "review.documents_requested"
	EventAlternativeOffered EventType = "review.alternative_offered"

	EventMessageSent EventType = "correspondence.message_sent"
)

// Event is something that already happened to an application. Handlers on
// another process only see the payload, so everything a handler needs must
// be in it.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	// AggregateID is the application ID.
	AggregateID() string
	Payload() map[string]interface{}
}

// header carries the fields every event shares.
type header struct {
	kind EventType
	at   time.Time
	app  string
}

func newHeader(kind EventType, applicationID string) header {
	return header{kind: kind, at: time.Now().UTC(), app: applicationID}
}

func (h header) EventType() EventType  { return h.kind }
func (h header) OccurredAt() time.Time { return h.at }
func (h header) AggregateID() string   { return h.app }

// payload starts a payload map keyed by application_id.
func (h header) payload(kv ...interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(kv)/2+1)
	m["application_id"] = h.app
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}

type ApplicationSubmittedEvent struct {
	header
	StudentID string
	ProgramID string
}

func NewApplicationSubmittedEvent(applicationID, studentID, programID string) ApplicationSubmittedEvent {
	return ApplicationSubmittedEvent{
		header:    newHeader(EventApplicationSubmitted, applicationID),
		StudentID: studentID,
		ProgramID: programID,
	}
}

func (e ApplicationSubmittedEvent) Payload() map[string]interface{} {
	return e.payload("student_id", e.StudentID, "program_id", e.ProgramID)
}

// ApplicationUpdatedEvent lists the fields edited on a pending application.
type ApplicationUpdatedEvent struct {
	header
	StudentID string
	Changes   []string
}

func NewApplicationUpdatedEvent(applicationID, studentID string, changes []string) ApplicationUpdatedEvent {
	return ApplicationUpdatedEvent{
		header:    newHeader(EventApplicationUpdated, applicationID),
		StudentID: studentID,
		Changes:   append([]string(nil), changes...),
	}
}

func (e ApplicationUpdatedEvent) Payload() map[string]interface{} {
	return e.payload("student_id", e.StudentID, "changes", e.Changes)
}

// ApplicationStatusChangedEvent is published once the transition has
// committed; delivery may happen after the caller returns.
type ApplicationStatusChangedEvent struct {
	header
	StudentID   string
	ProgramName string
	OldStatus   string
	NewStatus   string
	ChangedBy   string
}

func NewApplicationStatusChangedEvent(applicationID, studentID, programName, oldStatus, newStatus, changedBy string) ApplicationStatusChangedEvent {
	return ApplicationStatusChangedEvent{
		header:      newHeader(EventApplicationStatusChanged, applicationID),
		StudentID:   studentID,
		ProgramName: programName,
		OldStatus:   oldStatus,
		NewStatus:   newStatus,
		ChangedBy:   changedBy,
	}
}

func (e ApplicationStatusChangedEvent) Payload() map[string]interface{} {
	return e.payload(
		"student_id", e.StudentID,
		"program_name", e.ProgramName,
		"old_status", e.OldStatus,
		"new_status", e.NewStatus,
		"changed_by", e.ChangedBy,
	)
}

type ApplicationDeletedEvent struct {
	header
	StudentID string
	ProgramID string
}

func NewApplicationDeletedEvent(applicationID, studentID, programID string) ApplicationDeletedEvent {
	return ApplicationDeletedEvent{
		header:    newHeader(EventApplicationDeleted, applicationID),
		StudentID: studentID,
		ProgramID: programID,
	}
}

func (e ApplicationDeletedEvent) Payload() map[string]interface{} {
	return e.payload("student_id", e.StudentID, "program_id", e.ProgramID)
}

// DocumentsRequestedEvent asks the student for more paperwork.
type DocumentsRequestedEvent struct {
	header
	StudentID    string
	ProgramName  string
	Documents    string
	ReviewerName string
}

func NewDocumentsRequestedEvent(applicationID, studentID, programName, documents, reviewerName string) DocumentsRequestedEvent {
	return DocumentsRequestedEvent{
		header:       newHeader(EventDocumentsRequested, applicationID),
		StudentID:    studentID,
		ProgramName:  programName,
		Documents:    documents,
		ReviewerName: reviewerName,
	}
}

func (e DocumentsRequestedEvent) Payload() map[string]interface{} {
	return e.payload(
		"student_id", e.StudentID,
		"program_name", e.ProgramName,
		"documents", e.Documents,
		"reviewer_name", e.ReviewerName,
	)
}

// AlternativeOfferedEvent suggests another program to the student.
type AlternativeOfferedEvent struct {
	header
	StudentID              string
	ProgramName            string
	AlternativeProgramID   string
	AlternativeProgramName string
	ReviewerName           string
}

func NewAlternativeOfferedEvent(applicationID, studentID, programName, altID, altName, reviewerName string) AlternativeOfferedEvent {
	return AlternativeOfferedEvent{
		header:                 newHeader(EventAlternativeOffered, applicationID),
		StudentID:              studentID,
		ProgramName:            programName,
		AlternativeProgramID:   altID,
		AlternativeProgramName: altName,
		ReviewerName:           reviewerName,
	}
}

func (e AlternativeOfferedEvent) Payload() map[string]interface{} {
	return e.payload(
		"student_id", e.StudentID,
		"program_name", e.ProgramName,
		"alternative_program_id", e.AlternativeProgramID,
		"alternative_program_name", e.AlternativeProgramName,
		"reviewer_name", e.ReviewerName,
	)
}

type MessageSentEvent struct {
	header
	SenderID    string
	SenderName  string
	RecipientID string
	ProgramName string
}

func NewMessageSentEvent(applicationID, senderID, senderName, recipientID, programName string) MessageSentEvent {
	return MessageSentEvent{
		header:      newHeader(EventMessageSent, applicationID),
		SenderID:    senderID,
		SenderName:  senderName,
		RecipientID: recipientID,
		ProgramName: programName,
	}
}

func (e MessageSentEvent) Payload() map[string]interface{} {
	return e.payload(
		"sender_id", e.SenderID,
		"sender_name", e.SenderName,
		"recipient_id", e.RecipientID,
		"program_name", e.ProgramName,
	)
}

// EventHandler reacts to one event.
type EventHandler func(event Event) error

type EventPublisher interface {
	Publish(event Event) error
}

type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	// SubscribeAll receives every event type.
	SubscribeAll(handler EventHandler) error
}

// EventBus is both ends of the event pipeline.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
