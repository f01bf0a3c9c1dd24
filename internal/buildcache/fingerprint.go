package buildcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"engined/internal/modelspec"
	"engined/pkg/types"
)

// Inputs are all the resolved values that affect the built engine. Two
// requests with equal Inputs are interchangeable for cache purposes.
type Inputs struct {
	BuildConfig    types.BuildConfig
	ParallelConfig types.ParallelConfig
	QuantConfig    types.QuantConfig
	Pretrained     modelspec.Descriptor
}

// Canonicalize serializes Inputs with stable key ordering. The plugin
// sub-config is hashed as its own section and stripped from build_config.
// The output is byte-identical across processes and machines for the same
// logical configuration.
func Canonicalize(in Inputs) ([]byte, error) {
	build, err := canonicalMap(in.BuildConfig)
	if err != nil {
		return nil, fmt.Errorf("build config: %w", err)
	}
	delete(build, "plugin_config")

	sections := map[string]any{
		"build_config":      build,
		"plugin_config":     in.BuildConfig.Plugin,
		"parallel_config":   in.ParallelConfig,
		"quant_config":      in.QuantConfig,
		"pretrained_config": in.Pretrained,
	}
	payload := make(map[string]json.RawMessage, len(sections))
	for name, section := range sections {
		m, err := canonicalMap(section)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		raw, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		payload[name] = raw
	}
	// Top-level map keys are emitted in sorted order by encoding/json.
	return json.Marshal(payload)
}

// Fingerprint is the cache key: hex sha256 of the canonical serialization.
func Fingerprint(in Inputs) (string, error) {
	payload, err := Canonicalize(in)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalMap round-trips a value through JSON into a map so that struct
// field order stops mattering and keys serialize sorted.
func canonicalMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
