package ledger

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is an in-memory, thread-safe Store implementation. It is
// primarily useful for tests and for single-process development runs;
// production deployments use PostgresStore, since an in-memory ledger
// loses all history on restart and cannot be shared across processes.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewMemoryStore creates an empty MemoryStore. The first append will
// chain from GenesisPrevHash.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append implements Store. The mutex is the single-writer exclusion
// mechanism: read tail, compute hash, assign sequence and commit all
// happen under it.
func (s *MemoryStore) Append(_ context.Context, draft Draft) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := draft.Timestamp
	if ts.IsZero() {
		ts = Now()
	}
	payload := draft.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	prevHash := GenesisPrevHash
	if n := len(s.entries); n > 0 {
		prevHash = s.entries[n-1].Hash
	}

	hash, err := ComputeHash(ts, draft.EventType, draft.EntityType, draft.EntityID, payload, prevHash)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		Sequence:      int64(len(s.entries)),
		Timestamp:     ts,
		EventType:     draft.EventType,
		EntityType:    draft.EntityType,
		EntityID:      draft.EntityID,
		CorrelationID: draft.CorrelationID,
		Payload:       payload,
		PrevHash:      prevHash,
		Hash:          hash,
	}
	s.entries = append(s.entries, entry)
	return entry, nil
}

// ReadRange implements Store.
func (s *MemoryStore) ReadRange(_ context.Context, from, to int64) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if from < 0 {
		from = 0
	}
	if max := int64(len(s.entries)) - 1; to > max {
		to = max
	}
	if from > to {
		return nil, nil
	}
	out := make([]*Entry, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, s.entries[i])
	}
	return out, nil
}

// Tail implements Store.
func (s *MemoryStore) Tail(_ context.Context) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, nil
	}
	return s.entries[len(s.entries)-1], nil
}

// Len implements Store.
func (s *MemoryStore) Len(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}

// Page implements Store.
func (s *MemoryStore) Page(_ context.Context, f Filter, cursor int64, limit int) ([]*Entry, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	start := int64(len(s.entries)) - 1
	if cursor > 0 && cursor-1 < start {
		start = cursor - 1
	}

	var out []*Entry
	next := int64(-1)
	for i := start; i >= 0; i-- {
		e := s.entries[i]
		if !matches(e, f) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			if i > 0 {
				next = i
			}
			break
		}
	}
	return out, next, nil
}

// History implements Store.
func (s *MemoryStore) History(_ context.Context, entityType, entityID string) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Entry
	for _, e := range s.entries {
		if e.EntityType == entityType && strings.EqualFold(e.EntityID, entityID) {
			out = append(out, e)
		}
	}
	return out, nil
}

// VerifyChain implements Store.
func (s *MemoryStore) VerifyChain(_ context.Context) (VerifyResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Verify(s.entries, GenesisPrevHash), nil
}

func matches(e *Entry, f Filter) bool {
	if f.EntityType != "" && e.EntityType != f.EntityType {
		return false
	}
	if f.EntityID != "" && !strings.EqualFold(e.EntityID, f.EntityID) {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	if f.CorrelationID != "" && e.CorrelationID != f.CorrelationID {
		return false
	}
	return true
}
