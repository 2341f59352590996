// Package applicant holds the academic profile of a student as used for
// eligibility checks and admission scoring.
package applicant

import (
	"context"
	"strings"
	"time"

	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

// ExamBoard is the body that awarded the applicant's qualifications.
type ExamBoard string

const (
	ExamBoardZimsec    ExamBoard = "zimsec"
	ExamBoardHexco     ExamBoard = "hexco"
	ExamBoardCambridge ExamBoard = "cambridge"
)

// ParseExamBoard normalizes user input. Unknown boards are returned as-is and
// are never eligible.
func ParseExamBoard(s string) ExamBoard {
	return ExamBoard(strings.ToLower(strings.TrimSpace(s)))
}

// IsValid checks that the exam board is known.
func (b ExamBoard) IsValid() bool {
	_, ok := boardRules[b]
	return ok
}

// threshold is a board's minimum passed O-level subjects and A-level points.
type threshold struct {
	subjects int
	points   int
}

var boardRules = map[ExamBoard]threshold{
	ExamBoardZimsec:    {subjects: 5, points: 8},
	ExamBoardHexco:     {subjects: 4, points: 6},
	ExamBoardCambridge: {subjects: 6, points: 10},
}

// Minimums an assessment must clear before any board rule is consulted.
const (
	MinRecordableSubjects = 5
	MinRecordablePoints   = 3
)

// Profile is a student's academic record.
type Profile struct {
	StudentID      shared.StudentID
	ExamBoard      ExamBoard
	OLevelSubjects int
	// ALevelPoints is nil when the student has not reported points.
	ALevelPoints *int
	UpdatedAt    time.Time
}

// ScoringPoints returns the points used for scoring. Missing points count as zero.
func (p *Profile) ScoringPoints() shared.Points {
	if p == nil {
		return 0
	}
	return shared.PointsOrZero(p.ALevelPoints)
}

// HasPoints reports whether the profile carries A-level points.
func (p *Profile) HasPoints() bool {
	return p != nil && p.ALevelPoints != nil
}

// Assessment is the outcome of an eligibility check.
type Assessment struct {
	// Eligible - the applicant meets the board's thresholds.
	Eligible bool
	// Recordable - the inputs cleared the baseline and were stored on the profile.
	Recordable bool
}

// Assess evaluates eligibility for the given exam board. Inputs below the
// baseline are never eligible, whatever the board.
func Assess(board ExamBoard, subjects, points int) Assessment {
	if subjects < MinRecordableSubjects || points < MinRecordablePoints {
		return Assessment{}
	}
	rule, ok := boardRules[board]
	if !ok {
		return Assessment{Recordable: true}
	}
	return Assessment{
		Eligible:   subjects >= rule.subjects && points >= rule.points,
		Recordable: true,
	}
}

// Apply records the assessed inputs on the profile.
func (p *Profile) Apply(board ExamBoard, subjects, points int, now time.Time) {
	pts := shared.NewPoints(points).Int()
	p.ExamBoard = board
	p.OLevelSubjects = subjects
	p.ALevelPoints = &pts
	p.UpdatedAt = now.UTC()
}

// Repository stores applicant profiles.
type Repository interface {
	// GetProfile returns the profile of a student.
	// Returns ErrProfileNotFound if none exists.
	GetProfile(ctx context.Context, studentID shared.StudentID) (*Profile, error)

	// SaveProfile creates or replaces a profile.
	SaveProfile(ctx context.Context, profile *Profile) error
}
