// Package buildcache is the content-addressed store for built engines.
// It is structured into small files by concern:
//
//   - fingerprint.go: deterministic cache key from the resolved configuration.
//   - cache.go: BuildCache root layout, listing, pruning.
//   - stage.go: CachedStage lookup and the exclusive WriteGuard.
//   - manifest.go: per-slot manifest for fingerprint re-verification.
//   - metrics.go: Prometheus counters.
//
// Layout under the cache root:
//
//	engines/<fingerprint>/   published slots (engine + manifest.json)
//	tmp/                     in-progress builds, renamed into engines/ on commit
//	locks/<fingerprint>.lock cross-process exclusivity for slot population
//
// A slot only ever appears under engines/ via an atomic rename, so a
// partially written build is never observed as cached. The cache directory
// tree is the sole resource shared across processes; all mutation of a
// slot goes through the WriteGuard.
package buildcache
