package ir

import "time"

// NOTE: These are store-internal types. Seq is the engine's logical clock,
// StampedAt the wall-clock value written to the records.

// FlushEntry records one bulk update applied by a flush pass (journal row).
type FlushEntry struct {
	ID         string    `json:"id"` // Content-addressed (see FlushEntryID)
	ScopeID    string    `json:"scope_id"`
	Pass       int       `json:"pass"`
	Seq        int64     `json:"seq"`
	AttrKey    AttrKey   `json:"attr_key"`
	RecordType string    `json:"record_type"`
	Columns    []string  `json:"columns"`
	RecordIDs  []string  `json:"record_ids"`
	StampedAt  time.Time `json:"stamped_at"`
}
