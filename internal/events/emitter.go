// Package events owns the typed append API used by the platform's
// collaborators: the event-type taxonomy, entity id validation, and
// the per-type idempotency rules that keep the audit trail free of
// no-op noise. The ledger itself holds no business semantics; every
// judgement the emitter makes is based on what the caller passes in.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"unicode"

	"github.com/civil-whisper/evidence-ledger/internal/ledger"
	"go.uber.org/zap"
)

// ErrUnknownEventType is returned for event types outside the
// taxonomy. This is a programming error in the caller, never something
// to log and move past.
var ErrUnknownEventType = errors.New("events: unknown event type")

// ErrInvalidEntityID is returned for empty, oversized or
// whitespace-bearing entity ids.
var ErrInvalidEntityID = errors.New("events: invalid entity id")

const maxEntityIDLen = 256

// Event is one fact reported by a collaborator.
type Event struct {
	Type          string
	EntityType    string
	EntityID      string
	CorrelationID string
	Payload       map[string]any
	// Timestamp is the capture time of the fact; zero means "now".
	Timestamp ledger.Timestamp
}

// Deduper reports whether a correlation id has already been recorded.
// The Kafka intake uses it to reconcile at-least-once delivery with
// the ledger's exactly-once requirement.
type Deduper interface {
	Seen(ctx context.Context, correlationID string) (bool, error)
}

// Emitter validates events and appends them to the ledger store. It
// never buffers or queues unacknowledged events: a store failure
// propagates to the caller unchanged, so "business action succeeded"
// and "evidence recorded" cannot silently diverge.
type Emitter struct {
	store   ledger.Store
	deduper Deduper
	logger  *zap.Logger
}

// NewEmitter creates an Emitter writing to store.
func NewEmitter(store ledger.Store, logger *zap.Logger) *Emitter {
	return &Emitter{store: store, logger: logger}
}

// SetDeduper configures correlation-id deduplication. Set to nil to
// disable.
func (m *Emitter) SetDeduper(d Deduper) {
	m.deduper = d
}

// Emit validates ev and appends it. The bool is false when the emit
// was skipped by idempotency policy (no entry appended, sequence not
// advanced). ledger.ErrConflict passes through as a retryable failure;
// the emitter does not retry, because retrying with stale payload data
// could record an event against a superseded entity state.
func (m *Emitter) Emit(ctx context.Context, ev Event) (*ledger.Entry, bool, error) {
	if !Known(ev.Type) {
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownEventType, ev.Type)
	}
	if err := validateEntityID(ev.EntityID); err != nil {
		return nil, false, err
	}

	if policy, ok := skipPolicies[ev.Type]; ok && policy(ev.Payload) {
		skippedTotal.WithLabelValues("no_op").Inc()
		m.logger.Debug("emit skipped: payload represents no change",
			zap.String("event_type", ev.Type),
			zap.String("entity_id", ev.EntityID),
		)
		return nil, false, nil
	}

	if m.deduper != nil && ev.CorrelationID != "" {
		seen, err := m.deduper.Seen(ctx, ev.CorrelationID)
		if err != nil {
			return nil, false, fmt.Errorf("dedup check: %w", err)
		}
		if seen {
			skippedTotal.WithLabelValues("duplicate").Inc()
			m.logger.Debug("emit skipped: correlation id already recorded",
				zap.String("event_type", ev.Type),
				zap.String("correlation_id", ev.CorrelationID),
			)
			return nil, false, nil
		}
	}

	entry, err := m.store.Append(ctx, ledger.Draft{
		Timestamp:     ev.Timestamp,
		EventType:     ev.Type,
		EntityType:    ev.EntityType,
		EntityID:      ev.EntityID,
		CorrelationID: ev.CorrelationID,
		Payload:       withCorrelation(ev.Payload, ev.CorrelationID),
	})
	if err != nil {
		if errors.Is(err, ledger.ErrConflict) {
			conflictsTotal.Inc()
		}
		return nil, false, err
	}

	entriesTotal.WithLabelValues(ev.Type).Inc()
	return entry, true, nil
}

// withCorrelation mirrors the correlation id into the payload, where
// the query service's correlation filter and any external verifier can
// see it. The caller's map is never mutated.
func withCorrelation(payload map[string]any, correlationID string) map[string]any {
	if correlationID == "" {
		return payload
	}
	if _, ok := payload["correlation_id"]; ok {
		return payload
	}
	out := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		out[k] = v
	}
	out["correlation_id"] = correlationID
	return out
}

func validateEntityID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidEntityID)
	}
	if len(id) > maxEntityIDLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidEntityID, maxEntityIDLen)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: contains whitespace or control characters", ErrInvalidEntityID)
		}
	}
	return nil
}

// skipPolicies maps event types to a predicate over the payload that
// reports "this emit represents no actual change". cluster_updated
// carries the collaborator's previous_count and new_count precisely so
// this decision can be made without the ledger holding entity state.
var skipPolicies = map[string]func(payload map[string]any) bool{
	ClusterUpdated: func(p map[string]any) bool {
		prev, okPrev := numberField(p, "previous_count")
		next, okNext := numberField(p, "new_count")
		return okPrev && okNext && prev == next
	},
}

func numberField(p map[string]any, key string) (float64, bool) {
	switch v := p[key].(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}
