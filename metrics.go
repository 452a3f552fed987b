package strata

import (
	"fmt"
	"io"
	"sync/atomic"
)

// Metrics holds operational counters for the execution core. All fields
// are atomic, safe for concurrent reads and writes with zero contention.
// The struct is intentionally dependency-free; exposition format is
// generated manually so the core doesn't pull in a metrics client.
type Metrics struct {
	// Insertion operator counters.
	RowsInserted atomic.Uint64 // rows written in insert mode
	RowsUpserted atomic.Uint64 // rows written in upsert mode
	KeyConflicts atomic.Uint64 // insert-mode duplicate key failures
	AssocWrites  atomic.Uint64 // association side-table writes

	// Derived store counters.
	MeetMerges     atomic.Uint64 // meet-put calls that changed state
	FixpointRounds atomic.Uint64 // completed semi-naive rounds
	GroupsEmitted  atomic.Uint64 // groups materialized by the finalize pass

	// Cancellation.
	CancelledScans atomic.Uint64 // scans aborted by a poison check
}

// WriteTo writes the counters in Prometheus exposition format.
func (m *Metrics) WriteTo(w io.Writer) (int64, error) {
	var total int64
	emit := func(name string, v uint64) error {
		n, err := fmt.Fprintf(w, "# TYPE strata_%s counter\nstrata_%s %d\n", name, name, v)
		total += int64(n)
		return err
	}
	for _, c := range []struct {
		name string
		val  uint64
	}{
		{"rows_inserted_total", m.RowsInserted.Load()},
		{"rows_upserted_total", m.RowsUpserted.Load()},
		{"key_conflicts_total", m.KeyConflicts.Load()},
		{"assoc_writes_total", m.AssocWrites.Load()},
		{"meet_merges_total", m.MeetMerges.Load()},
		{"fixpoint_rounds_total", m.FixpointRounds.Load()},
		{"groups_emitted_total", m.GroupsEmitted.Load()},
		{"cancelled_scans_total", m.CancelledScans.Load()},
	} {
		if err := emit(c.name, c.val); err != nil {
			return total, err
		}
	}
	return total, nil
}
