// Package orchestrator runs the ordered build steps of an engine build,
// on one worker or broadcast across a topology.
package orchestrator

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"engined/pkg/types"
)

// Step is one named, externally supplied build action. Steps mutate
// process-local state and signal failure by returning an error.
type Step struct {
	Name string
	Run  func() error
}

// Pipeline executes steps strictly in sequence, timing each into
// BuildStats. A step error aborts the remainder; stats recorded so far are
// preserved for diagnostics.
type Pipeline struct {
	steps []Step
	stats *types.BuildStats
	log   zerolog.Logger
	rank  int
}

// NewPipeline wires a step sequence to a stats sink. Only rank 0 logs
// progress; other workers run silently.
func NewPipeline(steps []Step, stats *types.BuildStats, log zerolog.Logger, rank int) *Pipeline {
	return &Pipeline{steps: steps, stats: stats, log: log, rank: rank}
}

// Run executes the steps in order.
func (p *Pipeline) Run() error {
	total := len(p.steps)
	start := time.Now()
	for i, step := range p.steps {
		if p.rank == 0 {
			p.log.Info().Int("step", i+1).Int("of", total).Str("name", step.Name).Msg("build step")
		}
		stepStart := time.Now()
		err := step.Run()
		// Transient build resources are reclaimed after every step,
		// successful or not, to bound peak memory.
		releaseMemory()
		if err != nil {
			return fmt.Errorf("build step %q (%d/%d): %w", step.Name, i+1, total, err)
		}
		secs := time.Since(stepStart).Seconds()
		p.stats.RecordStep(step.Name, secs)
		stepDuration.WithLabelValues(step.Name).Observe(secs)
	}
	if p.rank == 0 && total > 0 {
		p.log.Info().Float64("seconds", time.Since(start).Seconds()).Msg("build pipeline done")
	}
	return nil
}

func releaseMemory() {
	debug.FreeOSMemory()
}
