package loader

import (
	"fmt"
	"sync"

	"engined/internal/modelspec"
	"engined/internal/orchestrator"
)

// buildRun holds the state shared by all ranks of one build attempt.
type buildRun struct {
	req       *BuildRequest
	format    modelspec.Format
	collab    Collaborators
	engineDir string

	// modelDir is set up front for local models; hub models fill fetched
	// via the fetch step instead.
	modelDir string
	fetched  struct {
		once sync.Once
		dir  string
		err  error
	}
}

// dir returns the local source model directory. Valid only after the
// fetch step (or immediately for local models).
func (b *buildRun) dir() string {
	if b.modelDir != "" {
		return b.modelDir
	}
	return b.fetched.dir
}

// steps assembles the pipeline for one rank. Every rank receives the same
// step names in the same order; closures capture rank-local state.
func (b *buildRun) steps(rank int) []orchestrator.Step {
	var steps []orchestrator.Step

	if b.modelDir == "" {
		// The download runs once; every rank's fetch step blocks on it so
		// no rank proceeds without a local model directory.
		steps = append(steps, orchestrator.Step{Name: "fetch model", Run: func() error {
			b.fetched.once.Do(func() {
				b.fetched.dir, b.fetched.err = b.collab.Source.Fetch(b.req.Model, b.req.Revision)
			})
			return b.fetched.err
		}})
	}

	mapping := b.req.Parallel.MappingFor(rank)
	var model Model

	switch b.format {
	case modelspec.FormatSource:
		steps = append(steps, orchestrator.Step{Name: "load model", Run: func() error {
			m, err := b.collab.Loader.LoadSource(b.dir(), mapping, b.req.Quant)
			if err != nil {
				return err
			}
			model = m
			return nil
		}})
	case modelspec.FormatCheckpoint:
		steps = append(steps, orchestrator.Step{Name: "load checkpoint", Run: func() error {
			m, err := b.collab.Loader.LoadCheckpoint(b.dir(), mapping)
			if err != nil {
				return err
			}
			model = m
			return nil
		}})
	default:
		steps = append(steps, orchestrator.Step{Name: "load model", Run: func() error {
			return fmt.Errorf("no build pipeline for model format %s", b.format)
		}})
	}

	steps = append(steps, orchestrator.Step{Name: "build engine", Run: func() error {
		if model == nil {
			return fmt.Errorf("no model loaded")
		}
		err := b.collab.Builder.Build(model, *b.req.Build, b.engineDir)
		// Drop the in-memory model so the post-step reclaim can free it.
		model = nil
		return err
	}})

	return steps
}
