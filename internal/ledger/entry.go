package ledger

import (
	"fmt"
	"time"
)

// GenesisPrevHash is the sentinel prev_hash of the first entry ever
// appended. It is a literal, not a digest: the chain starts from a
// well-known value so that any party can verify from sequence 0.
const GenesisPrevHash = "genesis"

// TimestampLayout is the canonical wire and hash form of an entry
// timestamp: ISO-8601 UTC with exactly six fractional digits. The
// precision matches Postgres timestamptz, so a round trip through
// storage reproduces the identical string.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Timestamp is a time.Time pinned to the ledger's canonical precision
// and JSON representation.
type Timestamp struct {
	time.Time
}

// Now returns the current time truncated to the canonical precision.
func Now() Timestamp {
	return Timestamp{time.Now().UTC().Truncate(time.Microsecond)}
}

// At wraps t, truncating it to the canonical precision.
func At(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Microsecond)}
}

// String renders the canonical form, e.g. "2025-11-05T12:00:00.000000Z".
func (t Timestamp) String() string {
	return t.UTC().Format(TimestampLayout)
}

// MarshalJSON implements json.Marshaler using the canonical form.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler. Timestamps with other
// fractional precision are accepted and truncated, so that entries
// produced by older dumps still parse; the canonical form is what the
// hash is computed over either way.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("ledger: timestamp must be a JSON string")
	}
	s := string(data[1 : len(data)-1])
	parsed, err := time.Parse(TimestampLayout, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("ledger: parse timestamp %q: %w", s, err)
		}
	}
	*t = At(parsed)
	return nil
}

// Entry is a single record in the evidence ledger. Entries are
// immutable once appended; corrections are made by appending a new
// entry that references the old sequence in its payload.
type Entry struct {
	Sequence      int64          `json:"sequence"`
	Timestamp     Timestamp      `json:"timestamp"`
	EventType     string         `json:"event_type"`
	EntityType    string         `json:"entity_type"`
	EntityID      string         `json:"entity_id"` // display casing; lowercased for hashing
	CorrelationID string         `json:"correlation_id,omitempty"`
	Payload       map[string]any `json:"payload"`
	PrevHash      string         `json:"prev_hash"`
	Hash          string         `json:"hash"`
}

// Draft is the caller-supplied part of an entry. Sequence, PrevHash
// and Hash are assigned by the store at append time. A zero Timestamp
// means "now".
type Draft struct {
	Timestamp     Timestamp
	EventType     string
	EntityType    string
	EntityID      string
	CorrelationID string
	Payload       map[string]any
}
