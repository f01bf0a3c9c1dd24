package loader

import (
	"fmt"

	"github.com/rs/zerolog"

	"engined/internal/arbiter"
	"engined/pkg/types"
)

// defaultMaxNumTokens backfills an unset token budget before arbitration.
const defaultMaxNumTokens = 2048

// resolveConfig arbitrates the request's configuration in place. Every
// enabled feature registers its claims; the resolved values land back on
// req.Build, req.Build.Plugin and req.KVCache. A returned error is a fatal
// configuration conflict and no build step may run after it.
func resolveConfig(req *BuildRequest, hw HardwareProfile, log zerolog.Logger) error {
	if req.Build.MaxNumTokens == 0 {
		req.Build.MaxNumTokens = defaultMaxNumTokens
	}
	if req.Parallel.WorldSize() > 1 {
		req.Build.Plugin.NCCLPlugin = "auto"
	} else {
		req.Build.Plugin.NCCLPlugin = ""
	}
	if req.FastBuild && (req.Quant.Algo == types.QuantNone || req.Quant.Algo == types.QuantFP8) {
		req.Build.Plugin.ManageWeights = true
	}

	a := arbiter.New(log)

	if !hw.SupportsPagedKV() {
		baseline := fmt.Sprintf("hardware capability %d (paged KV unsupported)", hw.ComputeCapability)
		if err := a.Setup(baseline, types.GroupPlugin, arbiter.Options{"use_paged_context_fmha": false}); err != nil {
			return err
		}
		if err := a.Setup(baseline, types.GroupKVCache, arbiter.Options{"enable_block_reuse": false}); err != nil {
			return err
		}
	}

	if req.Build.Plugin.StreamingLLM {
		if err := validateStreamingKVCache(req.KVCache); err != nil {
			return err
		}
		a.ClaimFunc("streaming_llm", types.GroupPlugin, arbiter.Options{
			"streamingllm":           true,
			"use_paged_context_fmha": false,
		})
		a.ClaimFunc("streaming_llm", types.GroupKVCache, arbiter.Options{
			"enable_block_reuse": false,
		})
	}

	if req.KVCache.EnableBlockReuse {
		a.ClaimFunc("kv_cache_block_reuse", types.GroupKVCache, arbiter.Options{
			"enable_block_reuse": true,
		})
		a.ClaimFunc("kv_cache_block_reuse", types.GroupPlugin, arbiter.Options{
			"use_paged_context_fmha": true,
		})
	}

	if req.Quant.Algo == types.QuantFP8 {
		a.ClaimFunc("fp8_quantization", types.GroupPlugin, arbiter.Options{
			"use_paged_context_fmha": false,
		})
	}

	if req.Build.MaxBeamWidth > 1 {
		a.ClaimFunc("beam_search (beam_width > 1)", types.GroupKVCache, arbiter.Options{
			"enable_block_reuse": false,
		})
	}

	if req.EnableChunkedContext {
		a.ClaimPerf("chunked_context", types.GroupPlugin, func() {
			log.Warn().Msg("disabling chunked context due to configuration conflict")
			req.EnableChunkedContext = false
		}, arbiter.Options{"use_paged_context_fmha": true})
	}

	return a.Resolve(map[string]any{
		types.GroupPlugin:  &req.Build.Plugin,
		types.GroupKVCache: req.KVCache,
		types.GroupBuild:   req.Build,
	})
}

// validateStreamingKVCache enforces the KV-cache settings streaming mode
// depends on; violations are fatal before any build step.
func validateStreamingKVCache(kv *types.KVCacheConfig) error {
	if len(kv.MaxAttentionWindow) == 0 {
		return fmt.Errorf("streaming_llm requires kv_cache_config.max_attention_window to be set")
	}
	for _, w := range kv.MaxAttentionWindow {
		if w <= 0 {
			return fmt.Errorf("kv_cache_config.max_attention_window entries must be > 0, got %d", w)
		}
	}
	if kv.SinkTokenLength <= 0 {
		return fmt.Errorf("streaming_llm requires kv_cache_config.sink_token_length > 0")
	}
	return nil
}
