// Package command contains write operations (CQRS - Commands) outside the
// application lifecycle: applicant profile upkeep and notification inbox state.
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/admissions-hub/admissions-core/internal/domain/applicant"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASSESS ELIGIBILITY COMMAND
// Checks exam results against the board's admission thresholds and records
// them on the applicant profile when they clear the baseline.
// ══════════════════════════════════════════════════════════════════════════════

// AssessEligibilityCommand contains the exam results to assess.
type AssessEligibilityCommand struct {
	// StudentID is the student whose profile is updated.
	StudentID shared.StudentID

	// ExamBoard is the awarding body, e.g. "zimsec".
	ExamBoard string

	// Subjects is the number of passed O-level subjects.
	Subjects int

	// Points is the aggregate A-level points.
	Points int
}

// Validate validates the command.
func (c AssessEligibilityCommand) Validate() error {
	if c.StudentID.IsEmpty() {
		return errors.New("assess_eligibility: student_id is required")
	}
	if c.Subjects < 0 {
		return errors.New("assess_eligibility: subjects cannot be negative")
	}
	return nil
}

// AssessEligibilityResult contains the outcome.
type AssessEligibilityResult struct {
	Eligible  bool                `json:"eligible"`
	Recorded  bool                `json:"recorded"`
	ExamBoard applicant.ExamBoard `json:"exam_board"`
}

// AssessEligibilityHandler handles the AssessEligibilityCommand.
type AssessEligibilityHandler struct {
	profiles applicant.Repository
	log      *logger.Logger
	now      func() time.Time
}

// NewAssessEligibilityHandler creates a new AssessEligibilityHandler.
func NewAssessEligibilityHandler(profiles applicant.Repository, log *logger.Logger) *AssessEligibilityHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AssessEligibilityHandler{
		profiles: profiles,
		log:      log.With(logger.Component("eligibility")),
		now:      time.Now,
	}
}

// Handle executes the command. Results below the baseline are reported as
// ineligible and leave the profile untouched.
func (h *AssessEligibilityHandler) Handle(ctx context.Context, cmd AssessEligibilityCommand) (*AssessEligibilityResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("command", "AssessEligibility", shared.ErrValidation, "invalid command", err)
	}

	board := applicant.ParseExamBoard(cmd.ExamBoard)
	assessment := applicant.Assess(board, cmd.Subjects, cmd.Points)
	result := &AssessEligibilityResult{Eligible: assessment.Eligible, ExamBoard: board}

	if !assessment.Recordable {
		return result, nil
	}

	profile, err := h.profiles.GetProfile(ctx, cmd.StudentID)
	if err != nil {
		if !shared.IsNotFound(err) {
			return nil, fmt.Errorf("assess_eligibility: load profile: %w", err)
		}
		profile = &applicant.Profile{StudentID: cmd.StudentID}
	}
	profile.Apply(board, cmd.Subjects, cmd.Points, h.now())

	if err := h.profiles.SaveProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("assess_eligibility: save profile: %w", err)
	}
	result.Recorded = true

	h.log.Info("eligibility assessed",
		logger.StudentID(cmd.StudentID.String()),
		logger.String("exam_board", string(board)),
		logger.Bool("eligible", result.Eligible),
	)
	return result, nil
}
