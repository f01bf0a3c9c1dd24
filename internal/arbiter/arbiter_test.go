package arbiter

import (
	"reflect"
	"testing"

	"github.com/rs/zerolog"

	"engined/pkg/types"
)

func newTestArbitrator() *Arbitrator { return New(zerolog.Nop()) }

func TestFunctionalClaimsNoOverlap(t *testing.T) {
	a := newTestArbitrator()
	a.ClaimFunc("featureA", types.GroupPlugin, Options{"use_paged_context_fmha": true})
	a.ClaimFunc("featureB", types.GroupKVCache, Options{"enable_block_reuse": true})

	var plugin types.PluginConfig
	var kv types.KVCacheConfig
	err := a.Resolve(map[string]any{types.GroupPlugin: &plugin, types.GroupKVCache: &kv})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !plugin.PagedContextAttention || !kv.EnableBlockReuse {
		t.Fatalf("claimed values missing: %+v %+v", plugin, kv)
	}
}

func TestFunctionalClaimsSameValueAgree(t *testing.T) {
	a := newTestArbitrator()
	a.ClaimFunc("featureA", types.GroupPlugin, Options{"use_paged_context_fmha": true})
	a.ClaimFunc("featureB", types.GroupPlugin, Options{"use_paged_context_fmha": true})

	var plugin types.PluginConfig
	if err := a.Resolve(map[string]any{types.GroupPlugin: &plugin}); err != nil {
		t.Fatalf("same-value claims should not conflict: %v", err)
	}
	if !plugin.PagedContextAttention {
		t.Fatalf("value not applied: %+v", plugin)
	}
}

func TestFunctionalConflictNamesBothClaimants(t *testing.T) {
	for _, order := range []struct {
		name            string
		first, second   string
		firstV, secondV bool
	}{
		{"a-then-b", "featureA", "featureB", true, false},
		{"b-then-a", "featureB", "featureA", false, true},
	} {
		t.Run(order.name, func(t *testing.T) {
			a := newTestArbitrator()
			a.ClaimFunc(order.first, types.GroupPlugin, Options{"use_paged_context_fmha": order.firstV})
			a.ClaimFunc(order.second, types.GroupPlugin, Options{"use_paged_context_fmha": order.secondV})

			var plugin types.PluginConfig
			err := a.Resolve(map[string]any{types.GroupPlugin: &plugin})
			if !IsConflict(err) {
				t.Fatalf("expected conflict, got %v", err)
			}
			ce := err.(*ConflictError)
			if ce.Prior != order.first || ce.Feature != order.second {
				t.Fatalf("conflict names wrong claimants: prior=%q feature=%q", ce.Prior, ce.Feature)
			}
			if ce.Option != "use_paged_context_fmha" {
				t.Fatalf("conflict names wrong option: %q", ce.Option)
			}
		})
	}
}

func TestPerfClaimDroppedOnConflict(t *testing.T) {
	a := newTestArbitrator()
	a.ClaimFunc("streaming_llm", types.GroupKVCache, Options{"enable_block_reuse": false})

	fallbacks := 0
	a.ClaimPerf("block_reuse_opt", types.GroupKVCache, func() { fallbacks++ }, Options{"enable_block_reuse": true})

	var kv types.KVCacheConfig
	kv.EnableBlockReuse = true
	if err := a.Resolve(map[string]any{types.GroupKVCache: &kv}); err != nil {
		t.Fatalf("dropped perf claim must not fail resolve: %v", err)
	}
	if kv.EnableBlockReuse {
		t.Fatalf("functional value should win: %+v", kv)
	}
	if fallbacks != 1 {
		t.Fatalf("fallback ran %d times, want 1", fallbacks)
	}
}

func TestPerfClaimAppliesAtomically(t *testing.T) {
	a := newTestArbitrator()
	a.ClaimFunc("featureA", types.GroupKVCache, Options{"enable_block_reuse": false})

	// Entry on plugin_config applies cleanly; entry on kv_cache_config
	// conflicts. Neither may land.
	fallbacks := 0
	a.ClaimPerf("combo", types.GroupPlugin, func() { fallbacks++ }, Options{"use_paged_context_fmha": true})
	a.ClaimPerf("combo", types.GroupKVCache, nil, Options{"enable_block_reuse": true})

	var plugin types.PluginConfig
	var kv types.KVCacheConfig
	if err := a.Resolve(map[string]any{types.GroupPlugin: &plugin, types.GroupKVCache: &kv}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if plugin.PagedContextAttention {
		t.Fatalf("partial application of dropped claim: %+v", plugin)
	}
	if kv.EnableBlockReuse {
		t.Fatalf("conflicting entry applied: %+v", kv)
	}
	if fallbacks != 1 {
		t.Fatalf("fallback ran %d times, want 1", fallbacks)
	}
}

func TestPerfClaimPriorityByRegistrationOrder(t *testing.T) {
	a := newTestArbitrator()
	a.ClaimPerf("early", types.GroupPlugin, nil, Options{"use_paged_context_fmha": true})
	dropped := false
	a.ClaimPerf("late", types.GroupPlugin, func() { dropped = true }, Options{"use_paged_context_fmha": false})

	var plugin types.PluginConfig
	if err := a.Resolve(map[string]any{types.GroupPlugin: &plugin}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !plugin.PagedContextAttention {
		t.Fatalf("earlier perf claim should win: %+v", plugin)
	}
	if !dropped {
		t.Fatalf("later conflicting perf claim should have been dropped")
	}
	if src, _ := a.Source(types.GroupPlugin, "use_paged_context_fmha"); src != "early" {
		t.Fatalf("provenance = %q, want early", src)
	}
}

func TestSetupBaseline(t *testing.T) {
	a := newTestArbitrator()
	if err := a.Setup("pre-capability hardware", types.GroupPlugin, Options{"use_paged_context_fmha": false}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	// Agreeing baseline is fine.
	if err := a.Setup("probe rerun", types.GroupPlugin, Options{"use_paged_context_fmha": false}); err != nil {
		t.Fatalf("agreeing baseline: %v", err)
	}
	// Disagreeing baseline is a construction bug.
	err := a.Setup("other probe", types.GroupPlugin, Options{"use_paged_context_fmha": true})
	if !IsInconsistentBaseline(err) {
		t.Fatalf("expected baseline error, got %v", err)
	}
}

func TestBaselineBeatsFunctionalClaim(t *testing.T) {
	a := newTestArbitrator()
	if err := a.Setup("pre-capability hardware", types.GroupPlugin, Options{"use_paged_context_fmha": false}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	a.ClaimFunc("block_reuse", types.GroupPlugin, Options{"use_paged_context_fmha": true})

	var plugin types.PluginConfig
	err := a.Resolve(map[string]any{types.GroupPlugin: &plugin})
	if !IsConflict(err) {
		t.Fatalf("expected conflict against baseline, got %v", err)
	}
	ce := err.(*ConflictError)
	if ce.Prior != "pre-capability hardware" {
		t.Fatalf("conflict should name the baseline: %q", ce.Prior)
	}
}

func TestResolveIdempotent(t *testing.T) {
	build := func() (types.PluginConfig, types.KVCacheConfig) {
		a := newTestArbitrator()
		a.ClaimFunc("streaming_llm", types.GroupPlugin, Options{"streamingllm": true, "use_paged_context_fmha": false})
		a.ClaimFunc("streaming_llm", types.GroupKVCache, Options{"enable_block_reuse": false})
		a.ClaimPerf("chunked_context", types.GroupPlugin, nil, Options{"use_paged_context_fmha": true})

		var plugin types.PluginConfig
		var kv types.KVCacheConfig
		if err := a.Resolve(map[string]any{types.GroupPlugin: &plugin, types.GroupKVCache: &kv}); err != nil {
			t.Fatalf("resolve: %v", err)
		}
		return plugin, kv
	}

	p1, k1 := build()
	p2, k2 := build()
	if !reflect.DeepEqual(p1, p2) || !reflect.DeepEqual(k1, k2) {
		t.Fatalf("resolution not deterministic: %+v vs %+v, %+v vs %+v", p1, p2, k1, k2)
	}
}

func TestUnknownOptionRejected(t *testing.T) {
	a := newTestArbitrator()
	a.ClaimFunc("featureA", types.GroupPlugin, Options{"no_such_option": true})

	var plugin types.PluginConfig
	err := a.Resolve(map[string]any{types.GroupPlugin: &plugin})
	var ue *UnknownOptionError
	if err == nil {
		t.Fatalf("expected unknown option error")
	}
	if !asUnknown(err, &ue) {
		t.Fatalf("expected *UnknownOptionError, got %T: %v", err, err)
	}
}

func asUnknown(err error, target **UnknownOptionError) bool {
	ue, ok := err.(*UnknownOptionError)
	if ok {
		*target = ue
	}
	return ok
}

func TestApplyNumericWidening(t *testing.T) {
	type cfg struct {
		Window int64 `opt:"window"`
	}
	var c cfg
	if err := applyOptions("g", &c, map[string]any{"window": 42}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if c.Window != 42 {
		t.Fatalf("window = %d", c.Window)
	}
	if err := applyOptions("g", &c, map[string]any{"window": "nope"}); err == nil {
		t.Fatalf("expected type mismatch error")
	}
}
