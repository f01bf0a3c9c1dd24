package modelspec

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"engined/pkg/types"
)

// Descriptor is the canonical identity of a pretrained model for cache-key
// purposes: architecture, dtype, and the parallel mapping the engine is
// built for. It is queried once per cache-key computation.
type Descriptor struct {
	Architecture string        `json:"architecture"`
	Dtype        string        `json:"dtype"`
	Mapping      types.Mapping `json:"mapping"`
}

// Describe derives the Descriptor for the model at dir, whatever its
// on-disk format.
func Describe(dir string, parallel types.ParallelConfig) (Descriptor, error) {
	format, err := DetectFormat(dir)
	if err != nil {
		return Descriptor{}, err
	}

	raw, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return Descriptor{}, &FormatError{Dir: dir, Err: err}
	}

	desc := Descriptor{Mapping: parallel.MappingFor(0)}
	switch format {
	case FormatEngine:
		var cfg struct {
			Pretrained struct {
				Architecture string `json:"architecture"`
				Dtype        string `json:"dtype"`
			} `json:"pretrained_config"`
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Descriptor{}, &FormatError{Dir: dir, Err: err}
		}
		desc.Architecture = cfg.Pretrained.Architecture
		desc.Dtype = cfg.Pretrained.Dtype

	case FormatCheckpoint:
		var cfg struct {
			Architecture string `json:"architecture"`
			Dtype        string `json:"dtype"`
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Descriptor{}, &FormatError{Dir: dir, Err: err}
		}
		desc.Architecture = cfg.Architecture
		desc.Dtype = cfg.Dtype

	case FormatSource:
		var cfg struct {
			Architectures []string `json:"architectures"`
			TorchDtype    string   `json:"torch_dtype"`
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return Descriptor{}, &FormatError{Dir: dir, Err: err}
		}
		if len(cfg.Architectures) > 0 {
			desc.Architecture = cfg.Architectures[0]
		}
		desc.Dtype = cfg.TorchDtype
	}

	if desc.Architecture == "" {
		return Descriptor{}, &FormatError{Dir: dir, Err: fmt.Errorf("no architecture in config.json")}
	}
	return desc, nil
}
