package buildcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// ErrBuildInProgress signals that another process holds the write guard
// for this fingerprint. Callers treat the slot as a miss and build into an
// ephemeral location instead of waiting.
var ErrBuildInProgress = errors.New("another build for this fingerprint is in progress")

// CachedStage is the cache slot for one fingerprint: lookup, canonical
// path, and exclusive population via WriteGuard.
type CachedStage struct {
	cache       *BuildCache
	fingerprint string
}

// Fingerprint returns the cache key this stage serves.
func (s *CachedStage) Fingerprint() string { return s.fingerprint }

// EnginePath is the canonical location of the published engine. It may not
// exist yet.
func (s *CachedStage) EnginePath() string {
	return filepath.Join(s.cache.root, enginesDir, s.fingerprint)
}

// IsCached reports whether a complete engine is published for this
// fingerprint. Only slots with a matching manifest count; anything else is
// an incomplete or stale directory.
func (s *CachedStage) IsCached() bool {
	man, err := ReadManifest(s.EnginePath())
	if err != nil {
		return false
	}
	return man.Fingerprint == s.fingerprint
}

// Touch marks the slot as recently used for LRU pruning.
func (s *CachedStage) Touch() {
	now := time.Now()
	_ = os.Chtimes(s.EnginePath(), now, now)
}

// WriteGuard acquires exclusive rights to populate this slot. The caller
// builds into Dir(), then Commit publishes atomically; Close without a
// prior Commit discards everything. A held lock from another process
// yields ErrBuildInProgress.
func (s *CachedStage) WriteGuard() (*WriteGuard, error) {
	lockPath := filepath.Join(s.cache.root, locksDir, s.fingerprint+".lock")
	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if os.IsExist(err) {
		if !lockIsStale(lockPath) {
			return nil, ErrBuildInProgress
		}
		// The recorded owner died without releasing; reclaim its lock.
		_ = os.Remove(lockPath)
		lock, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if os.IsExist(err) {
			return nil, ErrBuildInProgress
		}
	}
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	fmt.Fprintf(lock, "%d\n", os.Getpid())
	_ = lock.Close()

	tmp := filepath.Join(s.cache.root, tmpDir, s.fingerprint+"-"+uuid.NewString())
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		_ = os.Remove(lockPath)
		return nil, fmt.Errorf("stage dir: %w", err)
	}
	return &WriteGuard{stage: s, dir: tmp, lockPath: lockPath}, nil
}

// lockIsStale reports whether the lock's recorded owner process no longer
// exists. An unreadable or malformed lock file counts as held, so a writer
// that has opened the lock but not yet recorded its pid is never evicted.
func lockIsStale(path string) bool {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return false
	}
	return unix.Kill(pid, 0) == unix.ESRCH
}

// WriteGuard is a scoped handle over an in-progress cache slot. Exactly
// one exists per fingerprint at a time across processes.
type WriteGuard struct {
	stage     *CachedStage
	dir       string
	lockPath  string
	committed bool
	closed    bool
}

// Dir is the private staging directory to build the engine into.
func (g *WriteGuard) Dir() string { return g.dir }

// Commit writes the slot manifest and atomically publishes the staged
// directory as the cached engine. After Commit the slot is visible as
// complete; before it, never.
func (g *WriteGuard) Commit(inputs json.RawMessage) error {
	if g.committed {
		return fmt.Errorf("write guard already committed")
	}
	man := Manifest{
		Fingerprint: g.stage.fingerprint,
		CreatedUnix: time.Now().Unix(),
		Inputs:      inputs,
	}
	if err := writeManifest(g.dir, man); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	final := g.stage.EnginePath()
	// A leftover incomplete directory at the final path (no manifest, or a
	// crashed writer from before lock cleanup) is safe to replace.
	if err := os.RemoveAll(final); err != nil {
		return fmt.Errorf("clear slot: %w", err)
	}
	if err := os.Rename(g.dir, final); err != nil {
		return fmt.Errorf("publish slot: %w", err)
	}
	g.committed = true
	return nil
}

// Close releases the guard on every exit path. Without a prior Commit the
// staged directory is discarded, leaving the slot absent.
func (g *WriteGuard) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true
	if !g.committed {
		_ = os.RemoveAll(g.dir)
	}
	return os.Remove(g.lockPath)
}
