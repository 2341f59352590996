// Package scoring estimates how likely an applicant is to be admitted to a
// program, based on the points of people who previously applied to it.
//
// Every function here is pure: results depend only on the arguments.
package scoring

import (
	"sort"

	"github.com/admissions-hub/admissions-core/internal/domain/catalog"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

// DefaultAlternativeLimit is the number of alternatives returned when the caller does not ask for a cap.
const DefaultAlternativeLimit = 5

// Cold-start and band constants.
const (
	coldStartAbove = 0.7
	coldStartBelow = 0.3
	midpoint       = 0.5
	aboveBase      = 0.8
	spread         = 0.3
)

// ProgramScore is the reported acceptance estimate for one program.
type ProgramScore struct {
	ProgramID             shared.ProgramID `json:"program_id"`
	ProgramName           string           `json:"program_name"`
	ProgramCode           string           `json:"program_code"`
	InstitutionName       string           `json:"institution"`
	MinPointsRequired     int              `json:"min_points_required"`
	ApplicantPoints       int              `json:"student_points"`
	TotalApplicants       int              `json:"total_applicants"`
	HigherCount           int              `json:"applicants_with_higher_points"`
	SameCount             int              `json:"applicants_with_same_points"`
	LowerCount            int              `json:"applicants_with_lower_points"`
	AcceptanceProbability float64          `json:"acceptance_probability"`
	RequiredSubjects      []string         `json:"required_subjects"`
}

// Likelihood returns the qualitative label for the score.
func (s ProgramScore) Likelihood() Likelihood {
	return LikelihoodOf(s.AcceptanceProbability)
}

// Candidate is a program together with its reference pool.
type Candidate struct {
	Program *catalog.Program
	Pool    []int
}

// ScoreProgram estimates the acceptance probability of an applicant with the
// given points. pool holds the points of prior applicants to the program whose
// points are known. Negative points are treated as zero.
func ScoreProgram(program *catalog.Program, applicantPoints int, pool []int) ProgramScore {
	points := shared.NewPoints(applicantPoints).Int()
	minPoints := 0
	if program != nil {
		minPoints = program.MinPointsRequired
	}

	var higher, same, lower int
	for _, p := range pool {
		switch {
		case p > points:
			higher++
		case p == points:
			same++
		default:
			lower++
		}
	}
	total := len(pool)

	var prob float64
	switch {
	case total == 0 && points >= minPoints:
		prob = coldStartAbove
	case total == 0:
		prob = coldStartBelow
	case points > minPoints:
		prob = aboveBase - spread*(float64(higher)/float64(total))
	case points == minPoints:
		prob = midpoint
	default:
		prob = spread * (1 - float64(higher)/float64(total))
	}

	score := ProgramScore{
		MinPointsRequired:     minPoints,
		ApplicantPoints:       points,
		TotalApplicants:       total,
		HigherCount:           higher,
		SameCount:             same,
		LowerCount:            lower,
		AcceptanceProbability: shared.NewProbability(prob).Float64(),
	}
	if program != nil {
		score.ProgramID = program.ID
		score.ProgramName = program.Name
		score.ProgramCode = program.Code
		score.InstitutionName = program.InstitutionName
		score.RequiredSubjects = program.Requirements()
	}
	return score
}

// RankAlternatives scores every candidate except current and returns the best
// limit of them, highest probability first. Ties keep their input order.
// A limit <= 0 selects DefaultAlternativeLimit.
func RankAlternatives(current shared.ProgramID, applicantPoints int, candidates []Candidate, limit int) []ProgramScore {
	scores := make([]ProgramScore, 0, len(candidates))
	for _, c := range candidates {
		if c.Program == nil || c.Program.ID == current {
			continue
		}
		scores = append(scores, ScoreProgram(c.Program, applicantPoints, c.Pool))
	}
	return topN(scores, limit)
}

// topN stable-sorts scores by probability descending and truncates to limit.
func topN(scores []ProgramScore, limit int) []ProgramScore {
	if limit <= 0 {
		limit = DefaultAlternativeLimit
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].AcceptanceProbability > scores[j].AcceptanceProbability
	})
	if len(scores) > limit {
		scores = scores[:limit]
	}
	return scores
}
