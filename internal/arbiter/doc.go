// Package arbiter merges competing configuration requests into one
// conflict-free configuration before an engine build starts. It is
// structured into small files by concern:
//
//   - arbiter.go: Arbitrator type, claim registration, two-phase Resolve.
//   - apply.go: writing resolved values onto config structs via `opt` tags.
//   - errors.go: error types and helpers (IsConflict, IsInconsistentBaseline).
//
// Claims come in two kinds. A functional claim is a hard requirement tied
// to a feature the user enabled; two functional claims that disagree on an
// option are a fatal conflict. A performance claim is an optional
// optimization with a fallback; if any of its options collides with an
// already-resolved value the whole claim is dropped atomically and the
// fallback runs instead.
//
// An Arbitrator is single-use and process-local: identical inputs resolve
// to identical outputs, so independent workers converge on the same
// configuration without coordination.
package arbiter
