package arbiter

import (
	"errors"
	"fmt"
)

// ConflictError reports a fatal collision between two functional claims
// (or a functional claim and a baseline) on a single option.
type ConflictError struct {
	Group      string
	Option     string
	Feature    string // the claim that lost
	Value      any
	Prior      string // the claim or baseline that set the option first
	PriorValue any
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("cannot set '%s' to '%v' when enabling '%s', since '%s' has set it to '%v'",
		e.Option, e.Value, e.Feature, e.Prior, e.PriorValue)
}

// IsConflict reports whether err is a fatal configuration conflict.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// BaselineError reports two Setup calls that disagree on the same option.
// Baselines come from environment probes and must agree by construction.
type BaselineError struct {
	Group      string
	Option     string
	Info       string
	Value      any
	Prior      string
	PriorValue any
}

func (e *BaselineError) Error() string {
	return fmt.Sprintf("inconsistent baseline for '%s.%s': '%s' wants '%v' but '%s' already set '%v'",
		e.Group, e.Option, e.Info, e.Value, e.Prior, e.PriorValue)
}

// IsInconsistentBaseline reports whether err is a baseline disagreement.
func IsInconsistentBaseline(err error) bool {
	var be *BaselineError
	return errors.As(err, &be)
}

// UnknownOptionError reports a resolved option with no matching field on
// the target config struct.
type UnknownOptionError struct {
	Group  string
	Option string
}

func (e *UnknownOptionError) Error() string {
	return fmt.Sprintf("unknown option '%s' for config group '%s'", e.Option, e.Group)
}
