package buildcache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"engined/internal/common/fsutil"
	"engined/pkg/types"
)

// defaultMaxRecords bounds how many published slots survive a prune.
const defaultMaxRecords = 10

const (
	enginesDir = "engines"
	tmpDir     = "tmp"
	locksDir   = "locks"
)

// BuildCache owns the on-disk cache directory structure. Callers only ever
// receive opaque paths; all slot mutation goes through a WriteGuard.
type BuildCache struct {
	root       string
	maxRecords int
	log        zerolog.Logger
}

// Option configures a BuildCache.
type Option func(*BuildCache)

// WithMaxRecords bounds the number of published slots (0 = unlimited).
func WithMaxRecords(n int) Option {
	return func(c *BuildCache) { c.maxRecords = n }
}

// WithLogger installs a structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *BuildCache) { c.log = l }
}

// New opens (creating if needed) a build cache rooted at root.
func New(root string, opts ...Option) (*BuildCache, error) {
	root, err := fsutil.ExpandHome(root)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	c := &BuildCache{root: abs, maxRecords: defaultMaxRecords, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	for _, sub := range []string{enginesDir, tmpDir, locksDir} {
		if err := os.MkdirAll(filepath.Join(abs, sub), 0o755); err != nil {
			return nil, fmt.Errorf("init cache dir: %w", err)
		}
	}
	return c, nil
}

// Root returns the cache root directory.
func (c *BuildCache) Root() string { return c.root }

// Stage returns the cache stage for one fingerprint.
func (c *BuildCache) Stage(fingerprint string) *CachedStage {
	return &CachedStage{cache: c, fingerprint: fingerprint}
}

// FreeStorageGB reports remaining capacity under the cache root.
func (c *BuildCache) FreeStorageGB() (float64, error) {
	return fsutil.FreeStorageGB(c.root)
}

// Entries lists the published slots, newest first.
func (c *BuildCache) Entries() ([]types.CacheEntry, error) {
	dirs, err := os.ReadDir(filepath.Join(c.root, enginesDir))
	if err != nil {
		return nil, fmt.Errorf("list cache: %w", err)
	}
	var entries []types.CacheEntry
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		slot := filepath.Join(c.root, enginesDir, d.Name())
		man, err := ReadManifest(slot)
		if err != nil {
			// Incomplete or foreign directory; not a cache entry.
			continue
		}
		size, _ := fsutil.DirSizeBytes(slot)
		lastUsed := man.CreatedUnix
		if info, err := d.Info(); err == nil {
			lastUsed = info.ModTime().Unix()
		}
		entries = append(entries, types.CacheEntry{
			Fingerprint:  man.Fingerprint,
			Path:         slot,
			SizeBytes:    size,
			CreatedUnix:  man.CreatedUnix,
			LastUsedUnix: lastUsed,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].LastUsedUnix > entries[j].LastUsedUnix })
	return entries, nil
}

// Prune removes least-recently-used slots beyond the record limit and
// returns how many were removed.
func (c *BuildCache) Prune() (int, error) {
	if c.maxRecords <= 0 {
		return 0, nil
	}
	entries, err := c.Entries()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, e := range entries[min(len(entries), c.maxRecords):] {
		if err := os.RemoveAll(e.Path); err != nil {
			return removed, fmt.Errorf("prune %s: %w", e.Fingerprint, err)
		}
		c.log.Info().Str("fingerprint", e.Fingerprint).Msg("pruned cache slot")
		removed++
	}
	prunesTotal.Add(float64(removed))
	return removed, nil
}

// Purge removes every published slot.
func (c *BuildCache) Purge() error {
	entries, err := c.Entries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(e.Path); err != nil {
			return fmt.Errorf("purge %s: %w", e.Fingerprint, err)
		}
	}
	return nil
}
