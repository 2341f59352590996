package applicant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

func TestAssess(t *testing.T) {
	cases := []struct {
		name     string
		board    ExamBoard
		subjects int
		points   int
		want     Assessment
	}{
		{"zimsec eligible", ExamBoardZimsec, 5, 8, Assessment{Eligible: true, Recordable: true}},
		{"zimsec low points", ExamBoardZimsec, 5, 7, Assessment{Recordable: true}},
		{"hexco eligible", ExamBoardHexco, 5, 6, Assessment{Eligible: true, Recordable: true}},
		{"hexco four subjects below baseline", ExamBoardHexco, 4, 9, Assessment{}},
		{"cambridge needs six subjects", ExamBoardCambridge, 5, 12, Assessment{Recordable: true}},
		{"cambridge eligible", ExamBoardCambridge, 6, 10, Assessment{Eligible: true, Recordable: true}},
		{"points at baseline edge", ExamBoardZimsec, 9, 2, Assessment{}},
		{"unknown board", ExamBoard("ib"), 9, 20, Assessment{Recordable: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Assess(tc.board, tc.subjects, tc.points))
		})
	}
}

func TestParseExamBoard(t *testing.T) {
	assert.Equal(t, ExamBoardCambridge, ParseExamBoard(" Cambridge "))
	assert.True(t, ParseExamBoard("ZIMSEC").IsValid())
	assert.False(t, ParseExamBoard("ib").IsValid())
}

func TestProfile_ScoringPoints(t *testing.T) {
	var nilProfile *Profile
	assert.Equal(t, shared.Points(0), nilProfile.ScoringPoints())

	p := &Profile{StudentID: "s1"}
	assert.False(t, p.HasPoints())
	assert.Equal(t, shared.Points(0), p.ScoringPoints())

	p.Apply(ExamBoardZimsec, 6, 11, time.Now())
	assert.True(t, p.HasPoints())
	assert.Equal(t, shared.Points(11), p.ScoringPoints())
	assert.Equal(t, 6, p.OLevelSubjects)
}
