package sim

import (
	"context"
	"fmt"

	"github.com/san-kum/ejecta/internal/dynamo"
	"golang.org/x/sync/errgroup"
)

// Job is one independent run of a sweep. Each job owns its simulator.
type Job struct {
	Name string
	Sim  *Simulator
	Y0   dynamo.State
}

// Sweep runs jobs concurrently with at most parallel in flight (unbounded
// when parallel <= 0). Results are in job order. The first failure cancels
// the remaining runs.
func Sweep(ctx context.Context, jobs []Job, span Span, parallel int) ([]*Result, error) {
	results := make([]*Result, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			r, err := job.Sim.Run(ctx, job.Y0, span)
			if err != nil {
				return fmt.Errorf("%s: %w", job.Name, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
