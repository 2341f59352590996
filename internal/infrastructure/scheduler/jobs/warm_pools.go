// Package jobs contains the scheduled jobs of the admissions worker.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/admissions-hub/admissions-core/config"
	"github.com/admissions-hub/admissions-core/internal/domain/catalog"
	"github.com/admissions-hub/admissions-core/internal/domain/shared"
	"github.com/admissions-hub/admissions-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// WARM REFERENCE POOLS JOB
// ══════════════════════════════════════════════════════════════════════════════

// PoolWarmer refreshes the cached reference pool of one program.
type PoolWarmer interface {
	Refresh(ctx context.Context, programID shared.ProgramID) error
}

// WarmPoolsJob reloads every program's reference pool into the cache so
// recommendation requests rarely hit the database.
type WarmPoolsJob struct {
	catalog  catalog.Repository
	warmer   PoolWarmer
	features *config.FeatureFlags
	logger   *logger.Logger

	lastStats atomic.Pointer[WarmStats]
}

// WarmStats contains statistics from a warm-up run.
type WarmStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Programs  int
	Refreshed int
	Failed    int
}

// NewWarmPoolsJob creates a new WarmPoolsJob.
func NewWarmPoolsJob(catalogRepo catalog.Repository, warmer PoolWarmer, features *config.FeatureFlags, log *logger.Logger) *WarmPoolsJob {
	if log == nil {
		log = logger.Nop()
	}
	return &WarmPoolsJob{
		catalog:  catalogRepo,
		warmer:   warmer,
		features: features,
		logger:   log.With(logger.Component("warm_pools")),
	}
}

// Name returns the job name.
func (j *WarmPoolsJob) Name() string { return "warm_reference_pools" }

// Description returns a human-readable description.
func (j *WarmPoolsJob) Description() string {
	return "Reloads every program's reference applicant pool into the cache"
}

// Run executes the job. A failing program does not stop the others; the
// joined errors are returned at the end.
func (j *WarmPoolsJob) Run(ctx context.Context) error {
	if !j.features.IsEnabled(config.FeatureScoringPoolCache, nil) {
		j.logger.Debug("pool cache disabled, skipping")
		return nil
	}

	stats := &WarmStats{StartedAt: time.Now()}
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		j.lastStats.Store(stats)
	}()

	programs, err := j.catalog.ListPrograms(ctx)
	if err != nil {
		return fmt.Errorf("list programs: %w", err)
	}
	stats.Programs = len(programs)

	var errs []error
	for _, p := range programs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := j.warmer.Refresh(ctx, p.ID); err != nil {
			stats.Failed++
			errs = append(errs, err)
			continue
		}
		stats.Refreshed++
	}

	j.logger.Info("reference pools warmed",
		logger.Int("programs", stats.Programs),
		logger.Int("refreshed", stats.Refreshed),
		logger.Int("failed", stats.Failed),
	)
	return errors.Join(errs...)
}

// LastStats returns statistics of the most recent run, or nil.
func (j *WarmPoolsJob) LastStats() *WarmStats {
	return j.lastStats.Load()
}
