package intake_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/civil-whisper/evidence-ledger/internal/events"
	"github.com/civil-whisper/evidence-ledger/internal/intake"
	"github.com/civil-whisper/evidence-ledger/internal/ledger"
	"go.uber.org/zap"
)

// scriptedConsumer replays a fixed list of envelopes, then blocks
// until the context is cancelled. Acks are recorded per envelope.
type scriptedConsumer struct {
	envs []*intake.Envelope
	acks []bool
	pos  int
}

func (s *scriptedConsumer) Consume(ctx context.Context) (*intake.Envelope, func(bool), error) {
	if s.pos >= len(s.envs) {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}
	i := s.pos
	s.pos++
	return s.envs[i], func(ok bool) { s.acks[i] = ok }, nil
}

func (s *scriptedConsumer) Close() error { return nil }

func runBridge(t *testing.T, consumer intake.Consumer, em *events.Emitter) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b := intake.NewBridge(consumer, em, zap.NewNop())
	if err := b.Run(ctx); err != context.DeadlineExceeded {
		t.Fatalf("Run: %v", err)
	}
}

func TestBridge_appendsAndAcks(t *testing.T) {
	store := ledger.NewMemoryStore()
	em := events.NewEmitter(store, zap.NewNop())
	em.SetDeduper(events.NewStoreDeduper(store))

	consumer := &scriptedConsumer{
		envs: []*intake.Envelope{
			{EventType: events.SubmissionAccepted, EntityType: "submission", EntityID: "sub-1", CorrelationID: "c-1"},
			{EventType: events.VoteCast, EntityType: "cycle", EntityID: "cycle-7", CorrelationID: "c-2",
				Payload: map[string]any{"voter_count": 1}},
		},
		acks: make([]bool, 2),
	}
	runBridge(t, consumer, em)

	n, _ := store.Len(context.Background())
	if n != 2 {
		t.Fatalf("store length: got %d, want 2", n)
	}
	for i, acked := range consumer.acks {
		if !acked {
			t.Errorf("envelope %d not acked", i)
		}
	}
}

func TestBridge_redeliveredDuplicateSkippedButAcked(t *testing.T) {
	store := ledger.NewMemoryStore()
	em := events.NewEmitter(store, zap.NewNop())
	em.SetDeduper(events.NewStoreDeduper(store))

	env := &intake.Envelope{
		EventType: events.VoteCast, EntityType: "cycle", EntityID: "cycle-7",
		CorrelationID: "dup-1", Payload: map[string]any{"voter_count": 3},
	}
	consumer := &scriptedConsumer{
		envs: []*intake.Envelope{env, env}, // at-least-once redelivery
		acks: make([]bool, 2),
	}
	runBridge(t, consumer, em)

	n, _ := store.Len(context.Background())
	if n != 1 {
		t.Errorf("duplicate was appended: store length %d, want 1", n)
	}
	if !consumer.acks[1] {
		t.Error("duplicate must still be acked so the partition advances")
	}
}

func TestBridge_redeliveryWithoutCorrelationIDDeduped(t *testing.T) {
	store := ledger.NewMemoryStore()
	em := events.NewEmitter(store, zap.NewNop())
	em.SetDeduper(events.NewStoreDeduper(store))

	// No producer correlation id. The consumer-assigned origin is
	// stable across redeliveries, so the derived id must be too.
	env := &intake.Envelope{
		EventType: events.SubmissionAccepted, EntityType: "submission", EntityID: "sub-9",
		Payload: map[string]any{"moderation_score": 0.93},
		Origin:  "ledger-events/0/42",
	}
	consumer := &scriptedConsumer{
		envs: []*intake.Envelope{env, env},
		acks: make([]bool, 2),
	}
	runBridge(t, consumer, em)

	n, _ := store.Len(context.Background())
	if n != 1 {
		t.Fatalf("redelivered message appended twice: store length %d, want 1", n)
	}
	tail, _ := store.Tail(context.Background())
	if want := "intake:ledger-events/0/42"; tail.CorrelationID != want {
		t.Errorf("derived correlation id: got %q, want %q", tail.CorrelationID, want)
	}
	if !consumer.acks[1] {
		t.Error("redelivered duplicate must still be acked")
	}
}

// erroringConsumer fails every Consume with a non-decode error and
// counts the attempts.
type erroringConsumer struct {
	calls int
}

func (e *erroringConsumer) Consume(ctx context.Context) (*intake.Envelope, func(bool), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	e.calls++
	return nil, nil, errors.New("broker unreachable")
}

func (e *erroringConsumer) Close() error { return nil }

func TestBridge_consumeErrorDoesNotSpin(t *testing.T) {
	store := ledger.NewMemoryStore()
	em := events.NewEmitter(store, zap.NewNop())
	consumer := &erroringConsumer{}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	b := intake.NewBridge(consumer, em, zap.NewNop())
	if err := b.Run(ctx); err != context.DeadlineExceeded {
		t.Fatalf("Run: %v", err)
	}

	// The retry delay paces the loop, so only a handful of attempts
	// fit in the window. A tight spin would make thousands.
	if consumer.calls > 3 {
		t.Errorf("consume retried %d times in 300ms; loop is not backing off", consumer.calls)
	}
}

func TestBridge_malformedEventAckedWithoutAppend(t *testing.T) {
	store := ledger.NewMemoryStore()
	em := events.NewEmitter(store, zap.NewNop())

	consumer := &scriptedConsumer{
		envs: []*intake.Envelope{
			{EventType: "not_in_taxonomy", EntityType: "cycle", EntityID: "cycle-7"},
		},
		acks: make([]bool, 1),
	}
	runBridge(t, consumer, em)

	n, _ := store.Len(context.Background())
	if n != 0 {
		t.Errorf("malformed event was appended")
	}
	if !consumer.acks[0] {
		t.Error("malformed event should be acked; redelivery cannot fix it")
	}
}
