package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/admissions-hub/admissions-core/internal/application/lifecycle"
	"github.com/admissions-hub/admissions-core/internal/domain/applicant"
	"github.com/admissions-hub/admissions-core/internal/domain/application"
	"github.com/admissions-hub/admissions-core/internal/domain/catalog"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEED FILE
// ══════════════════════════════════════════════════════════════════════════════

type seedFile struct {
	Institutions []seedInstitution `json:"institutions"`
	Faculties    []seedFaculty     `json:"faculties"`
	Departments  []seedDepartment  `json:"departments"`
	Programs     []seedProgram     `json:"programs"`
	Deadlines    []seedDeadline    `json:"deadlines"`
	Profiles     []seedProfile     `json:"profiles"`
	Applications []seedApplication `json:"applications"`
}

type seedInstitution struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

type seedFaculty struct {
	ID            string `json:"id"`
	InstitutionID string `json:"institution_id"`
	Name          string `json:"name"`
	Code          string `json:"code"`
	Description   string `json:"description"`
}

type seedDepartment struct {
	ID          string `json:"id"`
	FacultyID   string `json:"faculty_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type seedProgram struct {
	ID                string `json:"id"`
	Code              string `json:"code"`
	Name              string `json:"name"`
	Description       string `json:"description"`
	DepartmentID      string `json:"department_id"`
	FacultyID         string `json:"faculty_id"`
	InstitutionID     string `json:"institution_id"`
	InstitutionName   string `json:"institution_name"`
	MinPointsRequired int    `json:"min_points_required"`
	RequiredSubjects  string `json:"required_subjects"`
	TotalEnrollment   int    `json:"total_enrollment"`
	FeeCents          int64  `json:"fee_cents"`
}

type seedDeadline struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	InstitutionID string    `json:"institution_id"`
	Date          time.Time `json:"date"`
	Semester      string    `json:"semester"`
	IsActive      *bool     `json:"is_active"`
}

type seedProfile struct {
	StudentID      string `json:"student_id"`
	ExamBoard      string `json:"exam_board"`
	OLevelSubjects int    `json:"o_level_subjects"`
	ALevelPoints   *int   `json:"a_level_points"`
}

type seedApplication struct {
	StudentID         string `json:"student_id"`
	StudentName       string `json:"student_name"`
	ProgramID         string `json:"program_id"`
	PersonalStatement string `json:"personal_statement"`

	// Status, when set, is reached through a reviewer transition.
	Status string `json:"status"`
}

// seedResult counts what a seed run wrote.
type seedResult struct {
	Institutions int               `json:"institutions"`
	Faculties    int               `json:"faculties"`
	Departments  int               `json:"departments"`
	Programs     int               `json:"programs"`
	Deadlines    int               `json:"deadlines"`
	Profiles     int               `json:"profiles"`
	Applications map[string]string `json:"applications"` // student/program -> application id
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND
// ══════════════════════════════════════════════════════════════════════════════

func seedCmd(global *globalOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load catalog data, applicant profiles and applications from JSON",
		Long: `seed upserts institutions, faculties, departments, programs, deadlines and
applicant profiles, then submits the listed applications through the
regular lifecycle so every write is audited.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open seed file: %w", err)
			}
			defer f.Close()

			a, err := newApp(cmd.Context(), global, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := runSeed(cmd.Context(), a, f)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the seed JSON file")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runSeed(ctx context.Context, a *app, r io.Reader) (*seedResult, error) {
	var data seedFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}

	res := &seedResult{Applications: make(map[string]string)}
	seeder := a.stores.seeder

	for _, in := range data.Institutions {
		if err := seeder.AddInstitution(ctx, catalog.Institution{
			ID: in.ID, Name: in.Name, Location: in.Location, Description: in.Description,
		}); err != nil {
			return nil, fmt.Errorf("institution %s: %w", in.ID, err)
		}
		res.Institutions++
	}
	for _, f := range data.Faculties {
		if err := seeder.AddFaculty(ctx, catalog.Faculty{
			ID: f.ID, InstitutionID: f.InstitutionID, Name: f.Name, Code: f.Code, Description: f.Description,
		}); err != nil {
			return nil, fmt.Errorf("faculty %s: %w", f.ID, err)
		}
		res.Faculties++
	}
	for _, d := range data.Departments {
		if err := seeder.AddDepartment(ctx, catalog.Department{
			ID: d.ID, FacultyID: d.FacultyID, Name: d.Name, Description: d.Description,
		}); err != nil {
			return nil, fmt.Errorf("department %s: %w", d.ID, err)
		}
		res.Departments++
	}
	for _, p := range data.Programs {
		program := catalog.Program{
			ID:                shared.ProgramID(p.ID),
			Code:              p.Code,
			Name:              p.Name,
			Description:       p.Description,
			DepartmentID:      p.DepartmentID,
			FacultyID:         p.FacultyID,
			InstitutionID:     p.InstitutionID,
			InstitutionName:   p.InstitutionName,
			MinPointsRequired: p.MinPointsRequired,
			RequiredSubjects:  p.RequiredSubjects,
			TotalEnrollment:   p.TotalEnrollment,
			FeeCents:          p.FeeCents,
		}
		if err := program.Validate(); err != nil {
			return nil, fmt.Errorf("program %s: %w", p.ID, err)
		}
		if err := seeder.AddProgram(ctx, program); err != nil {
			return nil, fmt.Errorf("program %s: %w", p.ID, err)
		}
		res.Programs++
	}
	for _, d := range data.Deadlines {
		active := true
		if d.IsActive != nil {
			active = *d.IsActive
		}
		if err := seeder.AddDeadline(ctx, catalog.Deadline{
			ID:            d.ID,
			Title:         d.Title,
			Description:   d.Description,
			InstitutionID: d.InstitutionID,
			Date:          d.Date,
			Semester:      catalog.Semester(d.Semester),
			IsActive:      active,
		}); err != nil {
			return nil, fmt.Errorf("deadline %s: %w", d.ID, err)
		}
		res.Deadlines++
	}
	for _, p := range data.Profiles {
		if err := a.stores.profiles.SaveProfile(ctx, &applicant.Profile{
			StudentID:      shared.StudentID(p.StudentID),
			ExamBoard:      applicant.ParseExamBoard(p.ExamBoard),
			OLevelSubjects: p.OLevelSubjects,
			ALevelPoints:   p.ALevelPoints,
			UpdatedAt:      time.Now().UTC(),
		}); err != nil {
			return nil, fmt.Errorf("profile %s: %w", p.StudentID, err)
		}
		res.Profiles++
	}

	for _, s := range data.Applications {
		id, err := seedApplicationFor(ctx, a, s)
		if err != nil {
			return nil, fmt.Errorf("application %s/%s: %w", s.StudentID, s.ProgramID, err)
		}
		res.Applications[s.StudentID+"/"+s.ProgramID] = id.String()
	}

	a.log.Info("seed complete",
		logger.Int("programs", res.Programs),
		logger.Int("profiles", res.Profiles),
		logger.Int("applications", len(res.Applications)),
	)
	return res, nil
}

func seedApplicationFor(ctx context.Context, a *app, s seedApplication) (shared.ApplicationID, error) {
	var target application.Status
	if s.Status != "" {
		st, ok := application.ParseStatus(s.Status)
		if !ok {
			return "", fmt.Errorf("unknown status %q", s.Status)
		}
		target = st
	}

	name := s.StudentName
	if name == "" {
		name = s.StudentID
	}
	created, err := a.lifecycle.Submit(ctx, lifecycle.SubmitCommand{
		Actor:             application.Actor{ID: s.StudentID, Name: name},
		ProgramID:         shared.ProgramID(s.ProgramID),
		PersonalStatement: s.PersonalStatement,
	})
	if err != nil {
		return "", err
	}

	if target != "" && target != created.Status {
		if _, err := a.lifecycle.Transition(ctx, lifecycle.TransitionCommand{
			ApplicationID: created.ID,
			Target:        target,
			Actor:         reviewer("seed"),
		}); err != nil {
			return "", err
		}
	}
	return created.ID, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
