package loader

import (
	"time"

	"engined/pkg/types"
)

// Status reports the cache state and the most recent build attempt.
func (l *Loader) Status() types.StatusResponse {
	resp := types.StatusResponse{
		UptimeSeconds:  int64(time.Since(l.started).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
	l.mu.Lock()
	resp.LastBuild = l.lastStats
	l.mu.Unlock()
	if l.cache == nil {
		return resp
	}
	resp.CacheRoot = l.cache.Root()
	if entries, err := l.cache.Entries(); err == nil {
		resp.Entries = entries
	}
	if free, err := l.freeStorageGB(); err == nil {
		resp.FreeStorageGB = free
	}
	return resp
}

// CacheEntries lists cached engines, newest first.
func (l *Loader) CacheEntries() ([]types.CacheEntry, error) {
	if l.cache == nil {
		return nil, nil
	}
	return l.cache.Entries()
}

// PurgeCache removes every cached engine.
func (l *Loader) PurgeCache() error {
	if l.cache == nil {
		return nil
	}
	return l.cache.Purge()
}

func (l *Loader) setLastBuild(stats *types.BuildStats) {
	l.mu.Lock()
	l.lastStats = stats
	l.mu.Unlock()
}
