package arbiter

import (
	"reflect"
	"sort"

	"github.com/rs/zerolog"
)

// Options is one set of option values proposed for a config group.
type Options map[string]any

type funcClaim struct {
	feature string
	group   string
	opts    Options
}

type perfEntry struct {
	group string
	opts  Options
}

type perfClaim struct {
	name     string
	entries  []perfEntry
	fallback func()
}

// Arbitrator collects baselines and claims, then resolves them in one shot.
// It owns option provenance only during resolution and is discarded after
// Resolve; there is no long-lived shared state.
type Arbitrator struct {
	log zerolog.Logger

	// group -> option -> value / provenance label
	working map[string]map[string]any
	sources map[string]map[string]string

	funcClaims []funcClaim
	perfClaims []*perfClaim
	perfIndex  map[string]*perfClaim
}

// New returns an empty Arbitrator logging through log.
func New(log zerolog.Logger) *Arbitrator {
	return &Arbitrator{
		log:       log,
		working:   make(map[string]map[string]any),
		sources:   make(map[string]map[string]string),
		perfIndex: make(map[string]*perfClaim),
	}
}

// Setup registers baseline option values derived from the environment
// (e.g. hardware capability restrictions). Baselines must agree: a second
// Setup for the same (group, option) with a differing value is an error.
func (a *Arbitrator) Setup(info, group string, opts Options) error {
	vals := a.groupValues(group)
	srcs := a.groupSources(group)
	for _, option := range sortedKeys(opts) {
		value := opts[option]
		if prior, ok := vals[option]; ok && !reflect.DeepEqual(prior, value) {
			return &BaselineError{
				Group:      group,
				Option:     option,
				Info:       info,
				Value:      value,
				Prior:      srcs[option],
				PriorValue: prior,
			}
		}
		vals[option] = value
		srcs[option] = info
	}
	return nil
}

// ClaimFunc registers a hard requirement for the named feature. Claims are
// queued only; conflicts surface at Resolve time.
func (a *Arbitrator) ClaimFunc(feature, group string, opts Options) {
	a.funcClaims = append(a.funcClaims, funcClaim{feature: feature, group: group, opts: opts})
}

// ClaimPerf registers a soft requirement for the named optimization.
// Multiple calls with the same name accumulate entries under one claim,
// which applies atomically at Resolve time: either every entry lands or
// the whole claim is dropped and fallback runs once. The first non-nil
// fallback registered for a name wins.
func (a *Arbitrator) ClaimPerf(name, group string, fallback func(), opts Options) {
	claim, ok := a.perfIndex[name]
	if !ok {
		claim = &perfClaim{name: name}
		a.perfIndex[name] = claim
		a.perfClaims = append(a.perfClaims, claim)
	}
	if claim.fallback == nil {
		claim.fallback = fallback
	}
	claim.entries = append(claim.entries, perfEntry{group: group, opts: opts})
}

// Resolve runs the two-phase arbitration and writes the resolved values
// onto the caller's live config structs, one pointer per group name.
// A functional collision aborts with a *ConflictError; dropped performance
// claims only log a warning and run their fallback.
func (a *Arbitrator) Resolve(targets map[string]any) error {
	if err := a.resolveFunctional(); err != nil {
		return err
	}
	a.resolvePerformance()

	for _, group := range sortedKeys(targets) {
		vals, ok := a.working[group]
		if !ok {
			continue
		}
		if err := applyOptions(group, targets[group], vals); err != nil {
			return err
		}
	}
	return nil
}

// Source returns the provenance label of a resolved option, if any.
func (a *Arbitrator) Source(group, option string) (string, bool) {
	srcs, ok := a.sources[group]
	if !ok {
		return "", false
	}
	s, ok := srcs[option]
	return s, ok
}

// resolveFunctional applies hard claims in registration order. First
// writer wins provenance; a differing second writer is fatal.
func (a *Arbitrator) resolveFunctional() error {
	for _, claim := range a.funcClaims {
		vals := a.groupValues(claim.group)
		srcs := a.groupSources(claim.group)
		for _, option := range sortedKeys(claim.opts) {
			value := claim.opts[option]
			prior, ok := vals[option]
			if ok {
				if !reflect.DeepEqual(prior, value) {
					return &ConflictError{
						Group:      claim.group,
						Option:     option,
						Feature:    claim.feature,
						Value:      value,
						Prior:      srcs[option],
						PriorValue: prior,
					}
				}
				continue
			}
			vals[option] = value
			srcs[option] = claim.feature
		}
	}
	return nil
}

// resolvePerformance attempts each soft claim on a snapshot copy of the
// working state. A claim commits only when every one of its entries
// applies cleanly; otherwise the snapshot is discarded whole.
func (a *Arbitrator) resolvePerformance() {
	for _, claim := range a.perfClaims {
		working := copyState(a.working)
		sources := copySources(a.sources)
		dropped := false

	attempt:
		for _, entry := range claim.entries {
			vals := groupMap(working, entry.group)
			srcs := sourceMap(sources, entry.group)
			for _, option := range sortedKeys(entry.opts) {
				value := entry.opts[option]
				if prior, ok := vals[option]; ok && !reflect.DeepEqual(prior, value) {
					a.log.Warn().
						Str("perf", claim.name).
						Str("group", entry.group).
						Str("option", option).
						Str("held_by", srcs[option]).
						Msg("dropping performance claim due to conflict")
					dropped = true
					break attempt
				}
				vals[option] = value
				srcs[option] = claim.name
			}
		}

		if dropped {
			if claim.fallback != nil {
				claim.fallback()
			}
			continue
		}
		a.working = working
		a.sources = sources
	}
}

func (a *Arbitrator) groupValues(group string) map[string]any {
	return groupMap(a.working, group)
}

func (a *Arbitrator) groupSources(group string) map[string]string {
	return sourceMap(a.sources, group)
}

func groupMap(m map[string]map[string]any, group string) map[string]any {
	vals, ok := m[group]
	if !ok {
		vals = make(map[string]any)
		m[group] = vals
	}
	return vals
}

func sourceMap(m map[string]map[string]string, group string) map[string]string {
	srcs, ok := m[group]
	if !ok {
		srcs = make(map[string]string)
		m[group] = srcs
	}
	return srcs
}

func copyState(m map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(m))
	for group, vals := range m {
		cp := make(map[string]any, len(vals))
		for k, v := range vals {
			cp[k] = v
		}
		out[group] = cp
	}
	return out
}

func copySources(m map[string]map[string]string) map[string]map[string]string {
	out := make(map[string]map[string]string, len(m))
	for group, srcs := range m {
		cp := make(map[string]string, len(srcs))
		for k, v := range srcs {
			cp[k] = v
		}
		out[group] = cp
	}
	return out
}

// sortedKeys keeps option application order deterministic so independent
// workers resolve identically and conflict messages are stable.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
