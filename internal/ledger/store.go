package ledger

import (
	"context"
	"errors"
)

// ErrConflict is returned when a concurrent append beat this one to
// the tail. The failed append is never retried against the new state
// internally; the caller decides whether retrying with fresh business
// data is still correct.
var ErrConflict = errors.New("ledger: append conflict, retry with a fresh read")

// Filter narrows a paginated read. All fields are optional exact
// matches; EntityID is compared case-insensitively against the stored
// display form.
type Filter struct {
	EntityType    string
	EntityID      string
	EventType     string
	CorrelationID string
}

// Store is the append-only, strictly ordered entry sequence. Both
// MemoryStore and PostgresStore implement it.
type Store interface {
	// Append assigns the next sequence, chains the entry to the
	// current tail and persists it, as one atomic unit. Concurrent
	// appends are serialised; no two entries ever share a prev_hash.
	Append(ctx context.Context, draft Draft) (*Entry, error)

	// ReadRange returns entries with from <= sequence <= to, ascending.
	ReadRange(ctx context.Context, from, to int64) ([]*Entry, error)

	// Tail returns the newest entry, or nil when the ledger is empty.
	Tail(ctx context.Context) (*Entry, error)

	// Len returns the total number of entries.
	Len(ctx context.Context) (int64, error)

	// Page returns up to limit entries in descending sequence order.
	// A cursor <= 0 starts at the tip; otherwise only entries with
	// sequence < cursor are considered. The returned cursor is the
	// value to pass for the next page, or -1 when exhausted. Cursors
	// are sequence-based, so concurrent appends never duplicate or
	// skip a page boundary.
	Page(ctx context.Context, f Filter, cursor int64, limit int) ([]*Entry, int64, error)

	// History returns the full event history of one entity, ascending.
	History(ctx context.Context, entityType, entityID string) ([]*Entry, error)

	// VerifyChain replays the whole stored chain through the verifier.
	// A broken chain is reported in the result, not as an error; the
	// error return covers storage failures only.
	VerifyChain(ctx context.Context) (VerifyResult, error)
}
