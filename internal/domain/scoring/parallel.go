package scoring

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/admissions-hub/admissions-core/internal/domain/shared"
)

// PoolLoader fetches the reference pool of one program.
type PoolLoader func(ctx context.Context, programID shared.ProgramID) ([]int, error)

// ProgramSource is a candidate program whose pool is loaded lazily.
type ProgramSource struct {
	Candidate
	// Loaded is true when Candidate.Pool is already populated.
	Loaded bool
}

// RankAlternativesParallel behaves like RankAlternatives but loads missing
// reference pools concurrently, at most workers at a time. Results are placed
// by input index before sorting, so the output is identical to the sequential
// ranking for the same inputs.
func RankAlternativesParallel(
	ctx context.Context,
	current shared.ProgramID,
	applicantPoints int,
	sources []ProgramSource,
	load PoolLoader,
	workers int,
	limit int,
) ([]ProgramScore, error) {
	candidates := make([]Candidate, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, src := range sources {
		candidates[i] = src.Candidate
		if src.Loaded || src.Program == nil || src.Program.ID == current {
			continue
		}
		g.Go(func() error {
			pool, err := load(gctx, src.Program.ID)
			if err != nil {
				return err
			}
			candidates[i].Pool = pool
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return RankAlternatives(current, applicantPoints, candidates, limit), nil
}
