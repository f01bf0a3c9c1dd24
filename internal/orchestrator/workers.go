package orchestrator

import (
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"engined/pkg/types"
)

// Dispatch broadcasts the build to every worker in the topology and waits
// for all of them. Each worker receives the identical step list (built per
// rank so steps can close over rank-local state) and runs it in order; the
// stats of the canonical worker (rank 0) are collected into stats. Partial
// rank-0 stats survive a failure for diagnostics.
func Dispatch(workers int, makeSteps func(rank int) []Step, stats *types.BuildStats, log zerolog.Logger) error {
	if workers <= 1 {
		return NewPipeline(makeSteps(0), stats, log, 0).Run()
	}

	perWorker := make([]*types.BuildStats, workers)
	var g errgroup.Group
	for rank := 0; rank < workers; rank++ {
		ws := &types.BuildStats{AttemptID: stats.AttemptID}
		perWorker[rank] = ws
		steps := makeSteps(rank)
		r := rank
		g.Go(func() error {
			return NewPipeline(steps, ws, log, r).Run()
		})
	}
	err := g.Wait()
	// Steps recorded before dispatch (an up-front fetch) stay in front of
	// the canonical worker's pipeline timings.
	stats.Steps = append(stats.Steps, perWorker[0].Steps...)
	return err
}
