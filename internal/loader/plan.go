package loader

import (
	"fmt"
	"path/filepath"

	"engined/internal/buildcache"
	"engined/internal/modelspec"
	"engined/pkg/types"
)

// Plan is the dry-run outcome for a build request: the configuration the
// arbiter settled on and where the cache stands, with no step executed.
type Plan struct {
	Format      modelspec.Format
	Build       types.BuildConfig
	KVCache     types.KVCacheConfig
	Fingerprint string
	Cached      bool
}

// Plan resolves the request's configuration and consults the cache without
// building anything. Only local model directories can be planned.
func (l *Loader) Plan(req BuildRequest) (*Plan, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	if !req.isLocalModel() {
		return nil, fmt.Errorf("plan requires a local model directory, got %q", req.Model)
	}
	modelDir, err := filepath.Abs(req.Model)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	format, err := modelspec.DetectFormat(modelDir)
	if err != nil {
		return nil, err
	}
	p := &Plan{Format: format}
	if format == modelspec.FormatEngine {
		return p, nil
	}
	if err := resolveConfig(&req, l.hw, l.log); err != nil {
		return nil, err
	}
	p.Build = *req.Build
	p.KVCache = *req.KVCache
	if format != modelspec.FormatSource || req.Parallel.AutoParallel {
		return p, nil
	}
	desc, err := modelspec.Describe(modelDir, req.Parallel)
	if err != nil {
		return nil, err
	}
	fp, err := buildcache.Fingerprint(buildcache.Inputs{
		BuildConfig:    *req.Build,
		ParallelConfig: req.Parallel,
		QuantConfig:    req.Quant,
		Pretrained:     desc,
	})
	if err != nil {
		return nil, fmt.Errorf("cache key: %w", err)
	}
	p.Fingerprint = fp
	if l.cache != nil {
		p.Cached = l.cache.Stage(fp).IsCached()
	}
	return p, nil
}
