package strata

import "log/slog"

// Rule is one recursive rule body: given the current round's epoch index,
// it derives new rows (typically by scanning the previous epoch's delta
// of one or more stores and meet-putting into its own store at this
// epoch) and reports whether anything changed.
type Rule func(epoch int) (changed bool, err error)

// RunToFixpoint drives a set of mutually recursive rules to convergence
// with semi-naive evaluation. Epoch 0 must be seeded by the caller before
// the first round; each round e >= 1 evaluates every rule against the
// previous round's deltas until one full round produces no change.
//
// The poison flag is checked between rounds; cancellation surfaces as
// ErrQueryCancelled. Returns the number of completed rounds.
func RunToFixpoint(rules []Rule, poison Poison, metrics *Metrics, log *slog.Logger) (int, error) {
	if log == nil {
		log = slog.Default()
	}
	rounds := 0
	for epoch := 1; ; epoch++ {
		if err := poison.Check(); err != nil {
			if metrics != nil {
				metrics.CancelledScans.Add(1)
			}
			return rounds, err
		}
		changed := false
		for _, rule := range rules {
			ch, err := rule(epoch)
			if err != nil {
				return rounds, err
			}
			changed = changed || ch
		}
		rounds++
		if metrics != nil {
			metrics.FixpointRounds.Add(1)
		}
		if !changed {
			log.Debug("fixpoint reached", "rounds", rounds)
			return rounds, nil
		}
	}
}
