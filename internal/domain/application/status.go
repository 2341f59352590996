package application

import (
	"strings"
)

// Status is the lifecycle state of an application.
type Status string

const (
	// StatusPending - initial state, entered only at creation.
	StatusPending Status = "Pending"
	// StatusApproved - offer made; the student may still withdraw.
	StatusApproved Status = "Approved"
	// StatusRejected - terminal.
	StatusRejected Status = "Rejected"
	// StatusDeferred - decision postponed to a later intake.
	StatusDeferred Status = "Deferred"
	// StatusWaitlisted - held in reserve pending capacity.
	StatusWaitlisted Status = "Waitlisted"
	// StatusWithdrawn - terminal, student pulled out.
	StatusWithdrawn Status = "Withdrawn"
)

// allStatuses lists every status in display order.
var allStatuses = []Status{
	StatusPending,
	StatusApproved,
	StatusRejected,
	StatusDeferred,
	StatusWaitlisted,
	StatusWithdrawn,
}

// transitions is the single source of truth for allowed status changes.
var transitions = map[Status][]Status{
	StatusPending:    {StatusApproved, StatusRejected, StatusDeferred, StatusWaitlisted, StatusWithdrawn},
	StatusApproved:   {StatusWithdrawn},
	StatusRejected:   {},
	StatusDeferred:   {StatusApproved, StatusRejected, StatusWaitlisted},
	StatusWaitlisted: {StatusApproved, StatusRejected, StatusDeferred},
	StatusWithdrawn:  {},
}

// ParseStatus converts user input into a Status. Matching is case-insensitive.
func ParseStatus(s string) (Status, bool) {
	s = strings.TrimSpace(s)
	for _, st := range allStatuses {
		if strings.EqualFold(string(st), s) {
			return st, true
		}
	}
	return "", false
}

// AllStatuses returns every known status.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// String returns the string representation.
func (s Status) String() string {
	return string(s)
}

// IsValid checks that the status is one of the six known values.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal returns true when no transition leaves this status.
func (s Status) IsTerminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// IsActive returns true while the application is still under consideration.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusDeferred || s == StatusWaitlisted
}

// AllowedTransitions returns the statuses reachable from s in one step.
func (s Status) AllowedTransitions() []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// CanTransitionTo reports whether moving from s to target is allowed.
// Self-transitions are never allowed.
func (s Status) CanTransitionTo(target Status) bool {
	for _, st := range transitions[s] {
		if st == target {
			return true
		}
	}
	return false
}

// StatusOption is a display choice for a status.
type StatusOption struct {
	Value Status `json:"value"`
	Label string `json:"label"`
}

// StatusOptions describes the full state machine for clients building status pickers.
type StatusOptions struct {
	Choices     []StatusOption      `json:"choices"`
	Transitions map[Status][]Status `json:"transitions"`
}

// GetStatusOptions returns the choices together with the canonical transition table.
func GetStatusOptions() StatusOptions {
	opts := StatusOptions{
		Choices:     make([]StatusOption, 0, len(allStatuses)),
		Transitions: make(map[Status][]Status, len(transitions)),
	}
	for _, st := range allStatuses {
		opts.Choices = append(opts.Choices, StatusOption{Value: st, Label: string(st)})
		opts.Transitions[st] = st.AllowedTransitions()
	}
	return opts
}
