package loader

import (
	"fmt"
	"os"

	"engined/pkg/types"
)

// minPagedCapability is the first device generation with paged-KV support.
const minPagedCapability = 80

// HardwareProfile is the capability level of the devices the engine will
// run on. It seeds the arbitration baselines.
type HardwareProfile struct {
	ComputeCapability int
}

// SupportsPagedKV reports whether paged context attention and KV block
// reuse are available on this hardware.
func (h HardwareProfile) SupportsPagedKV() bool {
	return h.ComputeCapability >= minPagedCapability
}

// DefaultHardwareProfile assumes current-generation devices.
func DefaultHardwareProfile() HardwareProfile {
	return HardwareProfile{ComputeCapability: 90}
}

// Model is the opaque in-memory model a ModelLoader produces and an
// EngineBuilder consumes. The decision layer never inspects it.
type Model any

// ModelSource fetches a hub-hosted source model to local disk. Fetch is
// called at most once per build attempt.
type ModelSource interface {
	Fetch(ref, revision string) (dir string, err error)
}

// ModelLoader loads a model into process-local memory for one rank.
type ModelLoader interface {
	LoadSource(dir string, mapping types.Mapping, quant types.QuantConfig) (Model, error)
	LoadCheckpoint(dir string, mapping types.Mapping) (Model, error)
}

// EngineBuilder compiles an in-memory model into engineDir. Invoked
// exactly once per rank per non-cached build attempt.
type EngineBuilder interface {
	Build(model Model, cfg types.BuildConfig, engineDir string) error
}

// Collaborators are the external routines the loader sequences. Source may
// be nil when only local models are used.
type Collaborators struct {
	Source  ModelSource
	Loader  ModelLoader
	Builder EngineBuilder
}

// BuildRequest describes one engine build.
type BuildRequest struct {
	// Model is a local model directory or a hub reference.
	Model    string
	Revision string

	Parallel types.ParallelConfig
	Build    *types.BuildConfig
	KVCache  *types.KVCacheConfig
	Quant    types.QuantConfig

	// EnableChunkedContext requests the chunked-context optimization;
	// it degrades to off when it conflicts with a functional claim.
	EnableChunkedContext bool
	// FastBuild trades engine quality for build speed where the
	// quantization allows it.
	FastBuild bool

	// EnableCache opts this build into the content-addressed cache.
	EnableCache bool
	// Workspace is the root for ephemeral (non-cached) engine output;
	// empty means the OS temp directory.
	Workspace string
}

// normalize fills defaults in place and validates the request.
func (r *BuildRequest) normalize() error {
	if r.Model == "" {
		return fmt.Errorf("model must be provided")
	}
	if r.Parallel.TPSize == 0 && r.Parallel.PPSize == 0 {
		r.Parallel.TPSize = 1
		r.Parallel.PPSize = 1
	}
	if err := r.Parallel.Validate(); err != nil {
		return fmt.Errorf("parallel config: %w", err)
	}
	if r.Build == nil {
		cfg := types.DefaultBuildConfig()
		r.Build = &cfg
	}
	if r.KVCache == nil {
		r.KVCache = &types.KVCacheConfig{}
	}
	return nil
}

// isLocalModel reports whether Model names an existing directory; anything
// else is treated as a hub reference.
func (r *BuildRequest) isLocalModel() bool {
	info, err := os.Stat(r.Model)
	return err == nil && info.IsDir()
}
