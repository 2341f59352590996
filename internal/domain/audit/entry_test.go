package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

func TestActionForStatus(t *testing.T) {
	assert.Equal(t, ActionApproved, ActionForStatus("Approved"))
	assert.Equal(t, ActionRejected, ActionForStatus("Rejected"))
	for _, s := range []string{"Deferred", "Waitlisted", "Withdrawn"} {
		assert.Equal(t, ActionReviewed, ActionForStatus(s))
	}
}

func TestNewEntry(t *testing.T) {
	md := map[string]any{MetaApplicationID: "a1"}
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("CAT", 2*3600))

	e, err := NewEntry("enroller-7", ActionApproved, "Changed application status from Pending to Approved", md, now)
	require.NoError(t, err)

	assert.NotEmpty(t, e.ID)
	assert.Equal(t, time.UTC, e.Timestamp.Location())
	assert.Equal(t, "a1", e.Metadata[MetaApplicationID])

	md[MetaApplicationID] = "mutated"
	assert.Equal(t, "a1", e.Metadata[MetaApplicationID])
}

func TestNewEntry_Invalid(t *testing.T) {
	_, err := NewEntry("", ActionCreated, "x", nil, time.Now())
	assert.ErrorIs(t, err, shared.ErrInvalidAudit)

	_, err = NewEntry("u", ActionKind("DELETED"), "x", nil, time.Now())
	assert.True(t, shared.IsValidation(err))
}
