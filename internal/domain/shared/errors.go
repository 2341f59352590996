// Package shared holds the identifiers, errors and events every domain
// package uses. It imports nothing outside the standard library.
package shared

import (
	"errors"
	"fmt"
)

// Kinds. Callers classify failures with errors.Is against these; every
// DomainError carries exactly one of them.
var (
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
	ErrValidation             = errors.New("validation error")
	ErrStateTransition        = errors.New("state transition not allowed")
	ErrLocked                 = errors.New("locked")
	ErrForbidden              = errors.New("forbidden")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrInsufficientData       = errors.New("insufficient data")
	ErrServiceUnavailable     = errors.New("service unavailable")
)

// Validation sub-kinds. Each also matches ErrValidation.
var (
	ErrInvalidID     = fmt.Errorf("%w: invalid ID", ErrValidation)
	ErrInvalidInput  = fmt.Errorf("%w: invalid input", ErrValidation)
	ErrEmptyValue    = fmt.Errorf("%w: value cannot be empty", ErrValidation)
	ErrNegativeValue = fmt.Errorf("%w: value cannot be negative", ErrValidation)
)

// DomainError names where a failure happened and what kind it is.
// Domain is the aggregate ("application", "catalog"), Op the operation.
type DomainError struct {
	Domain  string
	Op      string
	Kind    error
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	msg := e.Domain + "." + e.Op + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *DomainError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewDomainError returns an error of the given kind.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError is NewDomainError with a cause attached.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

var (
	ErrApplicationNotFound  = NewDomainError("application", "Find", ErrNotFound, "application not found")
	ErrDuplicateApplication = NewDomainError("application", "Create", ErrAlreadyExists, "student has already applied to this program")
	ErrInvalidTransition    = NewDomainError("application", "Transition", ErrStateTransition, "status transition not allowed")
	ErrApplicationLocked    = NewDomainError("application", "Update", ErrLocked, "application is no longer pending")
	ErrVersionConflict      = NewDomainError("application", "Save", ErrConcurrentModification, "application was modified concurrently")
	ErrInvalidStatus        = NewDomainError("application", "Validate", ErrInvalidInput, "unknown application status")
	ErrActorNotPermitted    = NewDomainError("application", "Authorize", ErrForbidden, "actor is not permitted to perform this action")

	ErrProgramNotFound     = NewDomainError("catalog", "FindProgram", ErrNotFound, "program not found")
	ErrInstitutionNotFound = NewDomainError("catalog", "FindInstitution", ErrNotFound, "institution not found")
	ErrInvalidPoints       = NewDomainError("catalog", "Validate", ErrNegativeValue, "minimum points cannot be negative")

	ErrProfileNotFound  = NewDomainError("applicant", "Find", ErrNotFound, "applicant profile not found")
	ErrMissingPoints    = NewDomainError("applicant", "Score", ErrInsufficientData, "applicant has no A-level points on record")
	ErrInvalidExamBoard = NewDomainError("applicant", "Validate", ErrInvalidInput, "unknown exam board")

	ErrAuditWriteFailed = NewDomainError("audit", "Append", ErrServiceUnavailable, "failed to write audit entry")
	ErrInvalidAudit     = NewDomainError("audit", "Validate", ErrInvalidInput, "invalid audit entry")

	ErrNotificationNotFound = NewDomainError("notification", "Find", ErrNotFound, "notification not found")
	ErrEmptyMessage         = NewDomainError("message", "Validate", ErrEmptyValue, "message text cannot be empty")
)

func IsNotFound(err error) bool          { return errors.Is(err, ErrNotFound) }
func IsAlreadyExists(err error) bool     { return errors.Is(err, ErrAlreadyExists) }
func IsInvalidTransition(err error) bool { return errors.Is(err, ErrStateTransition) }
func IsLocked(err error) bool            { return errors.Is(err, ErrLocked) }
func IsConflict(err error) bool          { return errors.Is(err, ErrConcurrentModification) }
func IsForbidden(err error) bool         { return errors.Is(err, ErrForbidden) }
func IsValidation(err error) bool        { return errors.Is(err, ErrValidation) }
