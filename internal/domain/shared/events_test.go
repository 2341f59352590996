package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusChangedEvent_Payload(t *testing.T) {
	e := NewApplicationStatusChangedEvent("app-1", "s-1", "Medicine", "Pending", "Approved", "reviewer-7")

	assert.Equal(t, EventApplicationStatusChanged, e.EventType())
	assert.Equal(t, "app-1", e.AggregateID())
	assert.Equal(t, time.UTC, e.OccurredAt().Location())
	assert.Equal(t, map[string]interface{}{
		"application_id": "app-1",
		"student_id":     "s-1",
		"program_name":   "Medicine",
		"old_status":     "Pending",
		"new_status":     "Approved",
		"changed_by":     "reviewer-7",
	}, e.Payload())
}

func TestUpdatedEvent_CopiesChanges(t *testing.T) {
	changes := []string{"notes"}
	e := NewApplicationUpdatedEvent("app-1", "s-1", changes)
	changes[0] = "program_id"

	assert.Equal(t, []string{"notes"}, e.Payload()["changes"])
}

func TestEvents_CarryApplicationID(t *testing.T) {
	events := []Event{
		NewApplicationSubmittedEvent("app-1", "s", "p"),
		NewApplicationDeletedEvent("app-1", "s", "p"),
		NewDocumentsRequestedEvent("app-1", "s", "Law", "transcript", "Dr. Moyo"),
		NewAlternativeOfferedEvent("app-1", "s", "Law", "p-2", "Politics", "Dr. Moyo"),
		NewMessageSentEvent("app-1", "r", "Dr. Moyo", "s", "Law"),
	}
	for _, e := range events {
		assert.Equal(t, "app-1", e.Payload()["application_id"], e.EventType())
	}
}

func TestNewProbability_Clamps(t *testing.T) {
	assert.Equal(t, Probability(0.1), NewProbability(-3))
	assert.Equal(t, Probability(0.9), NewProbability(1.2))
	assert.Equal(t, Probability(0.57), NewProbability(0.5678))
	assert.Equal(t, Probability(MinProbability), NewProbability(nanValue()))
	assert.Equal(t, Points(0), NewPoints(-4))
	assert.Equal(t, Points(0), PointsOrZero(nil))
}

func nanValue() float64 {
	zero := 0.0
	return zero / zero
}
