package types

import "fmt"

// Config group names used by the arbiter and the cache key builder.
const (
	GroupPlugin  = "plugin_config"
	GroupKVCache = "kv_cache_config"
	GroupBuild   = "build_config"
)

// PluginConfig holds the plugin-level knobs of an engine build.
// The `opt` tag is the option key used during configuration arbitration.
type PluginConfig struct {
	PagedContextAttention bool   `json:"use_paged_context_fmha" opt:"use_paged_context_fmha"`
	StreamingLLM          bool   `json:"streamingllm" opt:"streamingllm"`
	ManageWeights         bool   `json:"manage_weights" opt:"manage_weights"`
	NCCLPlugin            string `json:"nccl_plugin,omitempty" opt:"nccl_plugin"`
}

// KVCacheConfig holds the runtime KV-cache knobs that participate in
// arbitration alongside the build-time plugin options.
type KVCacheConfig struct {
	EnableBlockReuse      bool    `json:"enable_block_reuse" opt:"enable_block_reuse"`
	FreeGPUMemoryFraction float64 `json:"free_gpu_memory_fraction,omitempty" opt:"free_gpu_memory_fraction"`
	MaxAttentionWindow    []int   `json:"max_attention_window,omitempty" opt:"max_attention_window"`
	SinkTokenLength       int     `json:"sink_token_length,omitempty" opt:"sink_token_length"`
}

// BuildConfig is the top-level build configuration. Plugin is hashed and
// arbitrated as its own group, hence opt:"-".
type BuildConfig struct {
	MaxBatchSize  int          `json:"max_batch_size" opt:"max_batch_size"`
	MaxInputLen   int          `json:"max_input_len" opt:"max_input_len"`
	MaxNumTokens  int          `json:"max_num_tokens" opt:"max_num_tokens"`
	MaxBeamWidth  int          `json:"max_beam_width" opt:"max_beam_width"`
	StronglyTyped bool         `json:"strongly_typed" opt:"strongly_typed"`
	Plugin        PluginConfig `json:"plugin_config" opt:"-"`
}

// DefaultBuildConfig mirrors the builder's defaults for a fresh request.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		MaxBatchSize: 256,
		MaxInputLen:  1024,
		MaxBeamWidth: 1,
	}
}

// Quantization algorithms understood by the decision layer. Only the subset
// that influences arbitration is enumerated; unknown values pass through to
// the fingerprint untouched.
const (
	QuantNone = ""
	QuantFP8  = "FP8"
	QuantINT4 = "W4A16"
	QuantINT8 = "W8A16"
)

// QuantConfig identifies the quantization applied to the source model.
type QuantConfig struct {
	Algo        string `json:"quant_algo,omitempty"`
	KVCacheAlgo string `json:"kv_cache_quant_algo,omitempty"`
}

// RequiresCalibration reports whether building with this quantization needs
// a calibration pass over sample data.
func (q QuantConfig) RequiresCalibration() bool {
	return q.Algo == QuantFP8 || q.Algo == QuantINT4
}

// Mapping is the parallel placement of a single worker within the topology.
type Mapping struct {
	WorldSize int `json:"world_size"`
	TPSize    int `json:"tp_size"`
	PPSize    int `json:"pp_size"`
	Rank      int `json:"rank"`
}

// ParallelConfig describes the worker topology an engine is built for.
//
// In auto-parallel mode the world size is given explicitly and TP/PP must be
// left at 1; otherwise the world size is always TPSize*PPSize.
type ParallelConfig struct {
	TPSize        int   `json:"tp_size"`
	PPSize        int   `json:"pp_size"`
	AutoParallel  bool  `json:"auto_parallel,omitempty"`
	AutoWorldSize int   `json:"auto_world_size,omitempty"`
	Devices       []int `json:"devices,omitempty"`
}

// DefaultParallelConfig is a single-worker topology.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{TPSize: 1, PPSize: 1}
}

// WorldSize returns the total number of workers.
func (p ParallelConfig) WorldSize() int {
	if p.AutoParallel {
		if p.AutoWorldSize > 0 {
			return p.AutoWorldSize
		}
		return 1
	}
	return p.TPSize * p.PPSize
}

// IsMultiWorker reports whether the build runs on more than one worker.
func (p ParallelConfig) IsMultiWorker() bool { return p.WorldSize() > 1 }

// Validate enforces the topology rules before any build work starts.
func (p ParallelConfig) Validate() error {
	if p.TPSize < 1 || p.PPSize < 1 {
		return fmt.Errorf("tp_size %d and pp_size %d must be >= 1", p.TPSize, p.PPSize)
	}
	if p.AutoParallel && (p.TPSize > 1 || p.PPSize > 1) {
		return fmt.Errorf("manual TP/PP is not supported in auto-parallel mode")
	}
	if !p.AutoParallel && p.AutoWorldSize > 1 {
		return fmt.Errorf("auto_world_size %d requires auto-parallel mode; world size is tp_size*pp_size otherwise", p.AutoWorldSize)
	}
	if len(p.Devices) > 0 && len(p.Devices) != p.WorldSize() {
		return fmt.Errorf("devices list has %d entries, world size is %d", len(p.Devices), p.WorldSize())
	}
	return nil
}

// MappingFor returns the Mapping of one rank within this topology.
func (p ParallelConfig) MappingFor(rank int) Mapping {
	return Mapping{
		WorldSize: p.WorldSize(),
		TPSize:    p.TPSize,
		PPSize:    p.PPSize,
		Rank:      rank,
	}
}
