// Package models defines core data types shared across CastPipe components.
package models

// Mention is the canonical record for a single inbound mention of the bot,
// normalized from whichever payload shape delivered it (webhook envelope or
// polling API cast). It is immutable once constructed.
type Mention struct {
	// ID is the stable cast hash. Empty for malformed events, in which case
	// dedup and marking are no-ops.
	ID string `json:"id"`
	// Text is the cast body.
	Text string `json:"text"`
	// AuthorFID is the FID of the cast author, 0 if unknown.
	AuthorFID int64 `json:"author_fid,omitempty"`
	// TimestampMs is the cast time in epoch milliseconds, heuristically
	// derived (epoch seconds vs. milliseconds auto-detected by magnitude).
	// 0 means the timestamp was absent or unparseable.
	TimestampMs int64 `json:"timestamp_ms"`
}

// HasTimestamp reports whether the mention carries a usable timestamp.
// Mentions without one never advance the processed cursor and are never
// considered "recent" by the backlog filter.
func (m Mention) HasTimestamp() bool {
	return m.TimestampMs > 0
}

// PollResult summarizes a single poll pass for the /poll endpoint and logs.
type PollResult struct {
	Total    int  `json:"total"`
	New      int  `json:"new"`
	Replied  int  `json:"replied"`
	Baseline bool `json:"baseline,omitempty"`
	Skipped  bool `json:"skipped,omitempty"`
}
