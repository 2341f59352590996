package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

func TestProgram_Requirements(t *testing.T) {
	p := &Program{RequiredSubjects: "Biology, Chemistry,,Mathematics "}
	assert.Equal(t, []string{"Biology", "Chemistry", "Mathematics"}, p.Requirements())

	empty := &Program{}
	assert.Equal(t, []string{"Mathematics", "English"}, empty.Requirements())
}

func TestProgram_MatchesKeyword(t *testing.T) {
	p := &Program{Name: "Software Engineering", Description: "Builds distributed systems"}
	assert.True(t, p.MatchesKeyword("software"))
	assert.True(t, p.MatchesKeyword("DISTRIBUTED"))
	assert.False(t, p.MatchesKeyword("medicine"))
	assert.False(t, p.MatchesKeyword(" "))
}

func TestProgram_Validate(t *testing.T) {
	assert.NoError(t, (&Program{ID: "p1", Code: "CS101", MinPointsRequired: 12}).Validate())
	assert.ErrorIs(t, (&Program{ID: "p1", Code: "CS101", MinPointsRequired: -1}).Validate(), shared.ErrInvalidPoints)
	assert.True(t, shared.IsValidation((&Program{Code: "x"}).Validate()))
}

func TestDeadline_IsUpcoming(t *testing.T) {
	now := time.Date(2026, 5, 10, 15, 0, 0, 0, time.UTC)

	assert.True(t, Deadline{IsActive: true, Date: time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)}.IsUpcoming(now))
	assert.True(t, Deadline{IsActive: true, Date: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}.IsUpcoming(now))
	assert.False(t, Deadline{IsActive: true, Date: time.Date(2026, 5, 9, 0, 0, 0, 0, time.UTC)}.IsUpcoming(now))
	assert.False(t, Deadline{IsActive: false, Date: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}.IsUpcoming(now))
}

func TestSemester(t *testing.T) {
	assert.True(t, SemesterFall.IsValid())
	assert.False(t, Semester("AUTUMN").IsValid())
	assert.Equal(t, "Winter Semester", SemesterWinter.Label())
}
