package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"engined/internal/buildcache"
	"engined/internal/common/fsutil"
	"engined/internal/modelspec"
	"engined/internal/orchestrator"
	"engined/pkg/types"
)

// Loader builds engines with the cache consulted first. A nil cache
// disables caching globally; per-request EnableCache still gates it.
type Loader struct {
	cache  *buildcache.BuildCache
	collab Collaborators
	hw     HardwareProfile
	log    zerolog.Logger

	// Storage probes, injectable for tests.
	freeStorageGB func() (float64, error)
	dirSizeGB     func(string) (float64, error)

	started   time.Time
	mu        sync.Mutex
	lastStats *types.BuildStats
}

// Option configures a Loader.
type Option func(*Loader)

// WithHardware overrides the hardware profile used for baselines.
func WithHardware(hw HardwareProfile) Option {
	return func(l *Loader) { l.hw = hw }
}

// WithLogger installs a structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Loader) { l.log = log }
}

// New wires a Loader to its cache and external collaborators.
func New(cache *buildcache.BuildCache, collab Collaborators, opts ...Option) *Loader {
	l := &Loader{
		cache:     cache,
		collab:    collab,
		hw:        DefaultHardwareProfile(),
		log:       zerolog.Nop(),
		dirSizeGB: fsutil.DirSizeGB,
		started:   time.Now(),
	}
	if cache != nil {
		l.freeStorageGB = cache.FreeStorageGB
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load resolves the configuration, consults the cache, and builds the
// engine on a miss. The returned stats always carry whatever completed,
// even when err is non-nil.
func (l *Loader) Load(req BuildRequest) (*types.BuildStats, error) {
	stats := &types.BuildStats{AttemptID: uuid.NewString()}
	defer l.setLastBuild(stats)
	if err := req.normalize(); err != nil {
		return stats, err
	}

	format := modelspec.FormatSource
	modelDir := ""
	if req.isLocalModel() {
		abs, err := filepath.Abs(req.Model)
		if err != nil {
			return stats, fmt.Errorf("abs path: %w", err)
		}
		modelDir = abs
		format, err = modelspec.DetectFormat(modelDir)
		if err != nil {
			return stats, err
		}
		stats.LocalModelDir = modelDir
	} else {
		stats.ModelFromHub = true
		if l.collab.Source == nil {
			return stats, fmt.Errorf("model %q is not a local directory and no model source is configured", req.Model)
		}
	}

	if format == modelspec.FormatEngine {
		stats.EngineDir = modelDir
		stats.CacheInfo = "prebuilt engine directory reused as-is"
		return stats, nil
	}

	if err := resolveConfig(&req, l.hw, l.log); err != nil {
		return stats, err
	}

	// Auto-parallel and already-converted checkpoints always rebuild.
	cacheable := req.EnableCache && l.cache != nil &&
		format == modelspec.FormatSource && !req.Parallel.AutoParallel

	var (
		stage   *buildcache.CachedStage
		guard   *buildcache.WriteGuard
		payload []byte
	)

	if cacheable {
		// The cache key needs the model's config on local disk; fetch hub
		// models up front (the pipeline fetch step is then skipped).
		if modelDir == "" {
			start := time.Now()
			dir, err := l.collab.Source.Fetch(req.Model, req.Revision)
			if err != nil {
				return stats, fmt.Errorf("fetch model: %w", err)
			}
			stats.RecordStep("fetch model", time.Since(start).Seconds())
			modelDir = dir
			stats.LocalModelDir = dir
		}
		desc, err := modelspec.Describe(modelDir, req.Parallel)
		if err != nil {
			return stats, err
		}
		inputs := buildcache.Inputs{
			BuildConfig:    *req.Build,
			ParallelConfig: req.Parallel,
			QuantConfig:    req.Quant,
			Pretrained:     desc,
		}
		payload, err = buildcache.Canonicalize(inputs)
		if err != nil {
			return stats, fmt.Errorf("cache key: %w", err)
		}
		fp, err := buildcache.Fingerprint(inputs)
		if err != nil {
			return stats, fmt.Errorf("cache key: %w", err)
		}
		stage = l.cache.Stage(fp)

		if stage.IsCached() {
			stage.Touch()
			buildcache.ObserveHit()
			stats.CacheHit = true
			stats.EngineDir = stage.EnginePath()
			stats.CacheInfo = "reusing cached engine"
			l.log.Info().Str("fingerprint", fp).Str("engine_dir", stats.EngineDir).Msg("build cache hit")
			return stats, nil
		}
		buildcache.ObserveMiss()

		if !l.hasStorageFor(modelDir, stats) {
			cacheable = false
		} else {
			guard, err = stage.WriteGuard()
			if err == buildcache.ErrBuildInProgress {
				stats.CacheInfo = "another process is building this engine; building without cache"
				l.log.Warn().Str("fingerprint", fp).Msg(stats.CacheInfo)
				cacheable = false
			} else if err != nil {
				return stats, err
			}
		}
	}

	engineDir := ""
	if guard != nil {
		defer guard.Close()
		engineDir = guard.Dir()
	} else {
		var err error
		engineDir, err = l.ephemeralEngineDir(req.Workspace, stats.AttemptID)
		if err != nil {
			return stats, err
		}
	}

	run := &buildRun{
		req:       &req,
		format:    format,
		collab:    l.collab,
		engineDir: engineDir,
		modelDir:  modelDir,
	}
	if err := orchestrator.Dispatch(req.Parallel.WorldSize(), run.steps, stats, l.log); err != nil {
		// The deferred guard close discards the staged slot: a failed
		// build is never published as cached.
		return stats, err
	}
	if stats.LocalModelDir == "" {
		stats.LocalModelDir = run.dir()
	}

	if guard != nil {
		if err := guard.Commit(json.RawMessage(payload)); err != nil {
			return stats, err
		}
		stats.EngineDir = stage.EnginePath()
		if _, err := l.cache.Prune(); err != nil {
			l.log.Warn().Err(err).Msg("cache prune failed")
		}
	} else {
		stats.EngineDir = engineDir
	}
	return stats, nil
}

// hasStorageFor compares free capacity under the cache root against the
// source model size. Any probe failure or shortfall disables caching for
// this attempt only, with a diagnostic rather than an error.
func (l *Loader) hasStorageFor(modelDir string, stats *types.BuildStats) bool {
	free, err := l.freeStorageGB()
	if err != nil {
		stats.CacheInfo = fmt.Sprintf("cannot probe cache storage (%v); build cache disabled for this attempt", err)
		l.log.Warn().Err(err).Msg("storage probe failed")
		buildcache.ObserveStorageFallback()
		return false
	}
	need, err := l.dirSizeGB(modelDir)
	if err != nil {
		stats.CacheInfo = fmt.Sprintf("cannot size source model (%v); build cache disabled for this attempt", err)
		l.log.Warn().Err(err).Msg("model size probe failed")
		buildcache.ObserveStorageFallback()
		return false
	}
	if free < need {
		stats.CacheInfo = fmt.Sprintf("cache root has %.1f GiB free but the model needs %.1f GiB; build cache disabled for this attempt", free, need)
		l.log.Warn().Float64("free_gb", free).Float64("need_gb", need).Msg("insufficient cache storage")
		buildcache.ObserveStorageFallback()
		return false
	}
	return true
}

func (l *Loader) ephemeralEngineDir(workspace, attemptID string) (string, error) {
	root := workspace
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "engined-"+attemptID+".engine")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("workspace dir: %w", err)
	}
	return dir, nil
}
