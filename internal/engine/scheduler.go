package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"adosweep/internal/report"
)

// Scheduler runs repository pipelines in parallel under a fixed concurrency
// cap. Repositories are fully independent: process never returns an error
// to the group, so one repository's failure cannot cancel a sibling.
type Scheduler struct {
	process     func(ctx context.Context, target RepoTarget) report.RunOutcome
	concurrency int
}

func NewScheduler(process func(ctx context.Context, target RepoTarget) report.RunOutcome, concurrency int) (*Scheduler, error) {
	if process == nil {
		return nil, errors.New("process func is nil")
	}
	if concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be >= 1, got %d", concurrency)
	}
	return &Scheduler{process: process, concurrency: concurrency}, nil
}

// Execute streams one outcome per target.
//
// Channel semantics:
//   - In the normal (non-canceled) case, exactly one RunOutcome is sent per
//     target, in completion order.
//   - On context cancellation, dispatch stops immediately and in-flight
//     targets may be dropped; fewer than N outcomes can arrive. Outcomes
//     already emitted stay valid.
//   - Both channels are closed reliably; the error channel carries only the
//     cancellation cause.
func (s *Scheduler) Execute(ctx context.Context, targets []RepoTarget) (<-chan report.RunOutcome, <-chan error) {
	resultsCh := make(chan report.RunOutcome)
	errCh := make(chan error, 1)

	go func() {
		defer close(resultsCh)
		defer close(errCh)

		if ctx == nil {
			errCh <- errors.New("context is nil")
			return
		}

		g, runCtx := errgroup.WithContext(ctx)
		g.SetLimit(s.concurrency)

		for _, target := range targets {
			if runCtx.Err() != nil {
				break
			}
			target := target
			g.Go(func() error {
				if runCtx.Err() != nil {
					return nil
				}
				outcome := s.process(runCtx, target)
				select {
				case resultsCh <- outcome:
				case <-runCtx.Done():
				}
				return nil
			})
		}

		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			errCh <- err
		}
	}()

	return resultsCh, errCh
}
