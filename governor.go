package strata

import (
	"errors"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Evaluation governor — row limiting and cooperative cancellation.
//
// Two independent controls protect long evaluations:
//
//  1. QueryLimiter bounds the number of result rows a grouped finalize
//     pass may materialize, so a runaway aggregation cannot OOM the
//     process. The limiter is checked once per novel insertion, never on
//     duplicate suppression.
//
//  2. Poison is a shared cancellation flag polled once per input row in
//     long scans. Cancellation surfaces as ErrQueryCancelled, an error
//     distinguishable from ordinary failures so callers can treat it as
//     "stopped by request" rather than "corrupted".
// ---------------------------------------------------------------------------

// ErrQueryCancelled is returned from a poison check once cancellation has
// been requested. Use errors.Is to distinguish it from evaluation errors.
var ErrQueryCancelled = errors.New("strata: query cancelled")

// QueryLimiter caps the number of rows an evaluation may materialize.
// It is not safe for concurrent use; one limiter belongs to one
// evaluation phase.
type QueryLimiter struct {
	limit int
	count int
}

// NewQueryLimiter returns a limiter that trips after limit rows.
// A limit <= 0 never trips.
func NewQueryLimiter(limit int) *QueryLimiter {
	return &QueryLimiter{limit: limit}
}

// Incr counts one materialized row and reports whether the cap has been
// reached.
func (l *QueryLimiter) Incr() bool {
	l.count++
	return l.limit > 0 && l.count >= l.limit
}

// Count returns the number of rows counted so far.
func (l *QueryLimiter) Count() int { return l.count }

// Poison is a shared cancellation signal. All clones observe the same
// flag; setting it anywhere cancels every evaluation holding a clone.
type Poison struct {
	flag *atomic.Bool
}

// NewPoison returns a fresh, unset cancellation signal.
func NewPoison() Poison {
	return Poison{flag: &atomic.Bool{}}
}

// Check returns ErrQueryCancelled if cancellation has been requested.
func (p Poison) Check() error {
	if p.flag != nil && p.flag.Load() {
		return ErrQueryCancelled
	}
	return nil
}

// Set requests cancellation. Idempotent.
func (p Poison) Set() {
	if p.flag != nil {
		p.flag.Store(true)
	}
}
