package types

// StepTiming records the wall-clock latency of one named build step.
type StepTiming struct {
	Name    string  `json:"name"`
	Seconds float64 `json:"seconds"`
}

// BuildStats is the record of a single build attempt. It is created fresh
// per attempt, mutated by the orchestrator, and read by the caller after
// completion; it is never persisted.
type BuildStats struct {
	// Unique id of this build attempt.
	AttemptID string `json:"attempt_id"`
	// Whether a previously built engine was reused.
	CacheHit bool `json:"cache_hit"`
	// Human-readable cache diagnostic (e.g. why caching was skipped).
	CacheInfo string `json:"cache_info,omitempty"`
	// Whether the source model was fetched from a hub rather than local disk.
	ModelFromHub bool `json:"model_from_hub"`
	// Local directory holding the source model once resolved.
	LocalModelDir string `json:"local_model_dir,omitempty"`
	// Directory holding the usable engine after completion.
	EngineDir string `json:"engine_dir,omitempty"`
	// Per-step timings in execution order; partial on failure.
	Steps []StepTiming `json:"steps"`
}

// RecordStep appends one step timing.
func (s *BuildStats) RecordStep(name string, seconds float64) {
	s.Steps = append(s.Steps, StepTiming{Name: name, Seconds: seconds})
}

// TotalSeconds sums the recorded step latencies.
func (s *BuildStats) TotalSeconds() float64 {
	var t float64
	for _, st := range s.Steps {
		t += st.Seconds
	}
	return t
}
