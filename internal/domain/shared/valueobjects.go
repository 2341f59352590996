package shared

import (
	"math"
	"strings"

	"github.com/google/uuid"
)

// ApplicationID uniquely identifies an application.
type ApplicationID string

// NewApplicationID returns a random UUID-backed ID.
func NewApplicationID() ApplicationID { return ApplicationID(uuid.NewString()) }

func (a ApplicationID) String() string { return string(a) }
func (a ApplicationID) IsEmpty() bool  { return blank(string(a)) }

// StudentID is the external identity that owns applications.
type StudentID string

func (s StudentID) String() string { return string(s) }
func (s StudentID) IsEmpty() bool  { return blank(string(s)) }

// ProgramID identifies a catalog program.
type ProgramID string

func (p ProgramID) String() string { return string(p) }
func (p ProgramID) IsEmpty() bool  { return blank(string(p)) }

func blank(s string) bool { return strings.TrimSpace(s) == "" }

// Points is an aggregate A-level score, never negative.
type Points int

// NewPoints clamps negative input to zero.
func NewPoints(value int) Points { return Points(max(value, 0)) }

func (p Points) Int() int { return int(p) }

// PointsOrZero reads a nullable score column; NULL counts as zero.
func PointsOrZero(p *int) Points {
	if p == nil {
		return 0
	}
	return NewPoints(*p)
}

// Reported probabilities never leave this band.
const (
	MinProbability = 0.1
	MaxProbability = 0.9
)

// Probability is an estimated chance of acceptance.
type Probability float64

// NewProbability clamps v to [MinProbability, MaxProbability] and rounds it
// to two decimals. NaN maps to the minimum.
func NewProbability(v float64) Probability {
	if math.IsNaN(v) {
		return MinProbability
	}
	v = min(max(v, MinProbability), MaxProbability)
	return Probability(math.Round(v*100) / 100)
}

func (p Probability) Float64() float64 { return float64(p) }
