package orchestrator

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"engined/pkg/types"
)

func TestPipelineRunsStepsInOrder(t *testing.T) {
	var ran []string
	steps := []Step{
		{Name: "fetch", Run: func() error { ran = append(ran, "fetch"); return nil }},
		{Name: "load", Run: func() error { ran = append(ran, "load"); return nil }},
		{Name: "compile", Run: func() error { ran = append(ran, "compile"); return nil }},
	}
	stats := &types.BuildStats{}
	if err := NewPipeline(steps, stats, zerolog.Nop(), 0).Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.Join(ran, ",") != "fetch,load,compile" {
		t.Fatalf("steps ran out of order: %v", ran)
	}
	if len(stats.Steps) != 3 {
		t.Fatalf("timings = %+v", stats.Steps)
	}
	for i, st := range stats.Steps {
		if st.Name != ran[i] || st.Seconds < 0 {
			t.Fatalf("bad timing record: %+v", st)
		}
	}
}

func TestPipelineAbortsOnError(t *testing.T) {
	boom := errors.New("boom")
	var ran []string
	steps := []Step{
		{Name: "fetch", Run: func() error { ran = append(ran, "fetch"); return nil }},
		{Name: "load", Run: func() error { ran = append(ran, "load"); return boom }},
		{Name: "compile", Run: func() error { ran = append(ran, "compile"); return nil }},
	}
	stats := &types.BuildStats{}
	err := NewPipeline(steps, stats, zerolog.Nop(), 0).Run()
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
	if strings.Join(ran, ",") != "fetch,load" {
		t.Fatalf("later steps should not run: %v", ran)
	}
	// Stats keep the completed steps for diagnostics, not the failed one.
	if len(stats.Steps) != 1 || stats.Steps[0].Name != "fetch" {
		t.Fatalf("partial stats = %+v", stats.Steps)
	}
}

func TestDispatchSingleWorker(t *testing.T) {
	stats := &types.BuildStats{}
	err := Dispatch(1, func(rank int) []Step {
		return []Step{{Name: "compile", Run: func() error { return nil }}}
	}, stats, zerolog.Nop())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(stats.Steps) != 1 || stats.Steps[0].Name != "compile" {
		t.Fatalf("stats = %+v", stats.Steps)
	}
}

func TestDispatchBroadcastsToAllWorkers(t *testing.T) {
	const workers = 4
	var mu sync.Mutex
	ranByRank := make(map[int]int)

	stats := &types.BuildStats{}
	err := Dispatch(workers, func(rank int) []Step {
		return []Step{
			{Name: "load", Run: func() error {
				mu.Lock()
				ranByRank[rank]++
				mu.Unlock()
				return nil
			}},
			{Name: "compile", Run: func() error {
				mu.Lock()
				ranByRank[rank]++
				mu.Unlock()
				return nil
			}},
		}
	}, stats, zerolog.Nop())
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	for rank := 0; rank < workers; rank++ {
		if ranByRank[rank] != 2 {
			t.Fatalf("rank %d ran %d steps, want 2", rank, ranByRank[rank])
		}
	}
	// Collected stats are the canonical worker's.
	if len(stats.Steps) != 2 || stats.Steps[0].Name != "load" || stats.Steps[1].Name != "compile" {
		t.Fatalf("rank-0 stats = %+v", stats.Steps)
	}
}

func TestDispatchPropagatesWorkerFailure(t *testing.T) {
	boom := errors.New("device fault")
	stats := &types.BuildStats{}
	err := Dispatch(2, func(rank int) []Step {
		return []Step{{Name: "compile", Run: func() error {
			if rank == 1 {
				return boom
			}
			return nil
		}}}
	}, stats, zerolog.Nop())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
}
