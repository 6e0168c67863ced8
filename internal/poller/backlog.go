package poller

import (
	"github.com/BTreeMap/CastPipe/internal/models"
)

// batchPartition is the outcome of filtering one fetched batch against the
// processed cursor.
type batchPartition struct {
	// recent holds mentions with a finite timestamp strictly greater than
	// the cursor. Mentions at or below the cursor, and mentions without a
	// timestamp, are conservatively treated as backlog.
	recent []models.Mention
	// maxTS is the maximum finite timestamp across the whole batch, used to
	// seed the cursor on first run.
	maxTS int64
	// baseline is set when the cursor was unset: nothing is actionable, the
	// batch only establishes the starting point.
	baseline bool
}

// partitionBatch applies the cursor-based backlog filter. On first run
// (haveCursor false) no fetched mention is actionable; the batch maximum
// becomes the baseline so a fresh deployment never replies to its entire
// historical backlog. Otherwise only strictly-newer mentions are candidates.
// This filter is independent of the dedup gate: a mention can be
// chronologically recent yet already handled, so both filters run before
// dispatch.
func partitionBatch(batch []models.Mention, cursor int64, haveCursor bool) batchPartition {
	var p batchPartition
	for _, m := range batch {
		if m.HasTimestamp() && m.TimestampMs > p.maxTS {
			p.maxTS = m.TimestampMs
		}
	}
	if !haveCursor {
		p.baseline = true
		return p
	}
	for _, m := range batch {
		if m.HasTimestamp() && m.TimestampMs > cursor {
			p.recent = append(p.recent, m)
		}
	}
	return p
}
