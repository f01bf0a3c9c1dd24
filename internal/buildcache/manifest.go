package buildcache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// manifestName is the per-slot descriptor written at publish time.
const manifestName = "manifest.json"

// Manifest records what a published slot was built from, sufficient to
// re-verify its fingerprint.
type Manifest struct {
	Fingerprint string          `json:"fingerprint"`
	CreatedUnix int64           `json:"created_unix"`
	Inputs      json.RawMessage `json:"inputs,omitempty"`
}

// Verify recomputes the fingerprint from the recorded inputs. The inputs
// are stored pretty-printed inside the manifest, so they are re-compacted
// to the canonical form before hashing.
func (m Manifest) Verify() error {
	if len(m.Inputs) == 0 {
		return fmt.Errorf("manifest has no recorded inputs")
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, m.Inputs); err != nil {
		return fmt.Errorf("recorded inputs: %w", err)
	}
	sum := sha256.Sum256(compact.Bytes())
	if got := hex.EncodeToString(sum[:]); got != m.Fingerprint {
		return fmt.Errorf("manifest fingerprint %s does not match inputs (%s)", m.Fingerprint, got)
	}
	return nil
}

func writeManifest(dir string, m Manifest) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, manifestName), raw, 0o644)
}

// ReadManifest loads the manifest of a published slot.
func ReadManifest(dir string) (Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse %s: %w", manifestName, err)
	}
	return m, nil
}
