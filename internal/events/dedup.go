package events

import (
	"context"

	"github.com/civil-whisper/evidence-ledger/internal/ledger"
)

// StoreDeduper answers Seen by looking the correlation id up in the
// ledger itself. Good enough for intake-rate traffic; a deployment
// with heavy duplicate pressure would put a cache in front.
type StoreDeduper struct {
	store ledger.Store
}

// NewStoreDeduper creates a StoreDeduper reading from store.
func NewStoreDeduper(store ledger.Store) *StoreDeduper {
	return &StoreDeduper{store: store}
}

// Seen implements Deduper.
func (d *StoreDeduper) Seen(ctx context.Context, correlationID string) (bool, error) {
	entries, _, err := d.store.Page(ctx, ledger.Filter{CorrelationID: correlationID}, 0, 1)
	if err != nil {
		return false, err
	}
	return len(entries) > 0, nil
}
