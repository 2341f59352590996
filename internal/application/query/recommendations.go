// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/admissions-hub/admissions-core/config"
	"github.com/admissions-hub/admissions-core/internal/domain/applicant"
	"github.com/admissions-hub/admissions-core/internal/domain/application"
	"github.com/admissions-hub/admissions-core/internal/domain/catalog"
	"github.com/admissions-hub/admissions-core/internal/domain/scoring"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/internal/infrastructure/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECOMMENDATIONS
// Ranks programs by estimated acceptance probability for one applicant.
// Three surfaces: alternatives to an existing application, the whole catalog,
// and programs matching an interest keyword.
// ══════════════════════════════════════════════════════════════════════════════

// Surface names used in metrics.
const (
	SurfaceApplication = "application"
	SurfaceCatalog     = "catalog"
	SurfaceInterest    = "interest"
)

// RecommendationConfig tunes the recommender.
type RecommendationConfig struct {
	// AlternativeLimit - alternatives shown next to an application (default 5).
	AlternativeLimit int

	// CatalogLimit - programs returned by catalog-wide ranking (default 10).
	CatalogLimit int

	// Parallelism - concurrent reference-pool loads.
	Parallelism int
}

// DefaultRecommendationConfig returns default configuration.
func DefaultRecommendationConfig() RecommendationConfig {
	return RecommendationConfig{
		AlternativeLimit: scoring.DefaultAlternativeLimit,
		CatalogLimit:     10,
		Parallelism:      4,
	}
}

// RecommendationHandler serves every recommendation surface.
type RecommendationHandler struct {
	apps     application.Repository
	pools    application.ReferencePoolSource
	catalog  catalog.Repository
	profiles applicant.Repository
	features *config.FeatureFlags
	cfg      RecommendationConfig
}

// NewRecommendationHandler creates a new RecommendationHandler.
func NewRecommendationHandler(
	apps application.Repository,
	pools application.ReferencePoolSource,
	catalogRepo catalog.Repository,
	profiles applicant.Repository,
	features *config.FeatureFlags,
	cfg RecommendationConfig,
) *RecommendationHandler {
	def := DefaultRecommendationConfig()
	if cfg.AlternativeLimit <= 0 {
		cfg.AlternativeLimit = def.AlternativeLimit
	}
	if cfg.CatalogLimit <= 0 {
		cfg.CatalogLimit = def.CatalogLimit
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = def.Parallelism
	}
	return &RecommendationHandler{
		apps:     apps,
		pools:    pools,
		catalog:  catalogRepo,
		profiles: profiles,
		features: features,
		cfg:      cfg,
	}
}

// ProgramRecommendationDTO is a scored program with its likelihood label.
type ProgramRecommendationDTO struct {
	scoring.ProgramScore
	Likelihood scoring.Likelihood `json:"likelihood"`
}

func toDTOs(scores []scoring.ProgramScore) []ProgramRecommendationDTO {
	out := make([]ProgramRecommendationDTO, len(scores))
	for i, s := range scores {
		out[i] = ProgramRecommendationDTO{ProgramScore: s, Likelihood: s.Likelihood()}
	}
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// Application alternatives
// ──────────────────────────────────────────────────────────────────────────────

// ApplicationRecommendationsQuery asks for the score of an application's
// program and the best alternatives in the same faculty.
type ApplicationRecommendationsQuery struct {
	ApplicationID shared.ApplicationID
	Viewer        application.Actor
}

// ApplicationRecommendationsResult is the application-detail recommendation view.
type ApplicationRecommendationsResult struct {
	ApplicationID string                     `json:"application_id"`
	Current       ProgramRecommendationDTO   `json:"current_program"`
	Alternatives  []ProgramRecommendationDTO `json:"alternatives"`
	GeneratedAt   time.Time                  `json:"generated_at"`
}

// ForApplication scores the applied program and ranks same-faculty alternatives.
func (h *RecommendationHandler) ForApplication(ctx context.Context, q ApplicationRecommendationsQuery) (*ApplicationRecommendationsResult, error) {
	start := time.Now()
	defer func() { metrics.ObserveRanking(SurfaceApplication, time.Since(start)) }()

	app, err := h.apps.GetByID(ctx, q.ApplicationID)
	if err != nil {
		return nil, err
	}
	if !q.Viewer.CanEdit(app) {
		return nil, shared.ErrActorNotPermitted
	}

	program, err := h.catalog.GetProgram(ctx, app.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("recommendations: %w", err)
	}
	points, err := h.pointsOf(ctx, app.StudentID)
	if err != nil {
		return nil, err
	}

	pool, err := h.pools.LoadReferencePool(ctx, program.ID)
	if err != nil {
		return nil, fmt.Errorf("recommendations: load pool: %w", err)
	}
	current := scoring.ScoreProgram(program, points, pool)

	siblings, err := h.catalog.ListByFaculty(ctx, program.FacultyID)
	if err != nil {
		return nil, fmt.Errorf("recommendations: list faculty: %w", err)
	}
	alternatives, err := h.rank(ctx, app.StudentID, program.ID, points, siblings, h.cfg.AlternativeLimit)
	if err != nil {
		return nil, err
	}

	return &ApplicationRecommendationsResult{
		ApplicationID: app.ID.String(),
		Current:       ProgramRecommendationDTO{ProgramScore: current, Likelihood: current.Likelihood()},
		Alternatives:  toDTOs(alternatives),
		GeneratedAt:   time.Now().UTC(),
	}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Catalog-wide
// ──────────────────────────────────────────────────────────────────────────────

// CatalogRecommendationsQuery ranks every program for a student.
type CatalogRecommendationsQuery struct {
	StudentID shared.StudentID
	Limit     int
}

// ErrCatalogRankingDisabled is returned when catalog-wide ranking is switched off.
var ErrCatalogRankingDisabled = errors.New("catalog-wide recommendations are disabled")

// ForCatalog ranks the whole catalog. The student must have reported points.
func (h *RecommendationHandler) ForCatalog(ctx context.Context, q CatalogRecommendationsQuery) ([]ProgramRecommendationDTO, error) {
	start := time.Now()
	defer func() { metrics.ObserveRanking(SurfaceCatalog, time.Since(start)) }()

	if !h.features.IsEnabled(config.FeatureRecommendCatalogAll, &config.FeatureContext{UserID: q.StudentID.String()}) {
		return nil, ErrCatalogRankingDisabled
	}

	profile, err := h.profiles.GetProfile(ctx, q.StudentID)
	if err != nil && !shared.IsNotFound(err) {
		return nil, err
	}
	if !profile.HasPoints() {
		return nil, shared.ErrMissingPoints
	}

	programs, err := h.catalog.ListPrograms(ctx)
	if err != nil {
		return nil, fmt.Errorf("recommendations: list programs: %w", err)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = h.cfg.CatalogLimit
	}
	ranked, err := h.rank(ctx, q.StudentID, "", profile.ScoringPoints().Int(), programs, limit)
	if err != nil {
		return nil, err
	}
	return toDTOs(ranked), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Interest search
// ──────────────────────────────────────────────────────────────────────────────

// InterestRecommendationsQuery ranks programs matching a keyword.
type InterestRecommendationsQuery struct {
	StudentID shared.StudentID
	Keyword   string
}

// Validate validates the query.
func (q InterestRecommendationsQuery) Validate() error {
	if q.Keyword == "" {
		return errors.New("keyword is required")
	}
	return nil
}

// ForInterest ranks programs whose name or description matches the keyword.
func (h *RecommendationHandler) ForInterest(ctx context.Context, q InterestRecommendationsQuery) ([]ProgramRecommendationDTO, error) {
	start := time.Now()
	defer func() { metrics.ObserveRanking(SurfaceInterest, time.Since(start)) }()

	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "ForInterest", shared.ErrValidation, "invalid query", err)
	}
	points, err := h.pointsOf(ctx, q.StudentID)
	if err != nil {
		return nil, err
	}
	programs, err := h.catalog.SearchPrograms(ctx, q.Keyword)
	if err != nil {
		return nil, fmt.Errorf("recommendations: search: %w", err)
	}
	ranked, err := h.rank(ctx, q.StudentID, "", points, programs, h.cfg.AlternativeLimit)
	if err != nil {
		return nil, err
	}
	return toDTOs(ranked), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

// pointsOf returns the student's scoring points. A missing profile or missing
// points count as zero.
func (h *RecommendationHandler) pointsOf(ctx context.Context, studentID shared.StudentID) (int, error) {
	profile, err := h.profiles.GetProfile(ctx, studentID)
	if err != nil {
		if shared.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return profile.ScoringPoints().Int(), nil
}

func (h *RecommendationHandler) rank(
	ctx context.Context,
	studentID shared.StudentID,
	current shared.ProgramID,
	points int,
	programs []*catalog.Program,
	limit int,
) ([]scoring.ProgramScore, error) {
	sources := make([]scoring.ProgramSource, len(programs))
	for i, p := range programs {
		sources[i] = scoring.ProgramSource{Candidate: scoring.Candidate{Program: p}}
	}

	workers := 1
	if h.features.IsEnabled(config.FeatureScoringParallel, &config.FeatureContext{UserID: studentID.String()}) {
		workers = h.cfg.Parallelism
	}

	ranked, err := scoring.RankAlternativesParallel(ctx, current, points, sources, h.pools.LoadReferencePool, workers, limit)
	if err != nil {
		return nil, fmt.Errorf("recommendations: rank: %w", err)
	}
	return ranked, nil
}
