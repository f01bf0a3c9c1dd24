// Package modelspec classifies persisted model directories and derives the
// canonical model identity used in cache keys.
package modelspec

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Format is the on-disk layout of a model directory, inferred from the
// shape of its config.json. The format governs which build steps run.
type Format int

const (
	// FormatSource is a raw source model (e.g. a hub download).
	FormatSource Format = iota
	// FormatCheckpoint is an intermediate converted checkpoint.
	FormatCheckpoint
	// FormatEngine is a prebuilt engine directory, reusable as-is.
	FormatEngine
)

func (f Format) String() string {
	switch f {
	case FormatSource:
		return "source"
	case FormatCheckpoint:
		return "checkpoint"
	case FormatEngine:
		return "engine"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// FormatError reports a directory whose format could not be inferred.
// It is fatal and surfaces before any build step runs.
type FormatError struct {
	Dir string
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("cannot infer model format of %s: %v", e.Dir, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// DetectFormat classifies dir by the keys present in its config.json:
// pretrained_config+build_config means a prebuilt engine, architecture+dtype
// means a checkpoint, anything else is a raw source model. A missing or
// unreadable config.json is a FormatError.
func DetectFormat(dir string) (Format, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return 0, &FormatError{Dir: dir, Err: err}
	}
	var config map[string]json.RawMessage
	if err := json.Unmarshal(raw, &config); err != nil {
		return 0, &FormatError{Dir: dir, Err: fmt.Errorf("parse config.json: %w", err)}
	}

	_, hasPretrained := config["pretrained_config"]
	_, hasBuild := config["build_config"]
	if hasPretrained && hasBuild {
		return FormatEngine, nil
	}
	_, hasArch := config["architecture"]
	_, hasDtype := config["dtype"]
	if hasArch && hasDtype {
		return FormatCheckpoint, nil
	}
	return FormatSource, nil
}
