package intake

import (
	"context"
	"errors"
	"time"

	"github.com/civil-whisper/evidence-ledger/internal/events"
	"github.com/civil-whisper/evidence-ledger/internal/ledger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Bridge pumps envelopes from a Consumer into the Emitter until its
// context is cancelled.
type Bridge struct {
	consumer Consumer
	emitter  *events.Emitter
	logger   *zap.Logger
}

// NewBridge creates a Bridge.
func NewBridge(consumer Consumer, emitter *events.Emitter, logger *zap.Logger) *Bridge {
	return &Bridge{consumer: consumer, emitter: emitter, logger: logger}
}

// consumeRetryDelay paces the loop when the broker is unreachable, so
// a persistent failure does not spin at error-log rate.
const consumeRetryDelay = time.Second

// Run consumes until ctx is cancelled. It returns ctx.Err() on
// cancellation and nil never; transient failures are logged and the
// message left for redelivery.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		env, ack, err := b.consumer.Consume(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return ctx.Err()
			}
			var decodeErr *DecodeError
			if errors.As(err, &decodeErr) {
				b.logger.Warn("discarded undecodable intake message", zap.Error(err))
				continue
			}
			b.logger.Error("intake consume failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(consumeRetryDelay):
			}
			continue
		}
		b.handle(ctx, env, ack)
	}
}

func (b *Bridge) handle(ctx context.Context, env *Envelope, ack func(bool)) {
	// A missing correlation id would defeat redelivery dedup, so the
	// bridge derives one from the message's transport position: a
	// redelivered message carries the same Origin and therefore the
	// same id, and the deduper skips it. Producers that care about
	// cross-referencing should set their own.
	correlationID := env.CorrelationID
	if correlationID == "" {
		if env.Origin != "" {
			correlationID = "intake:" + env.Origin
		} else {
			correlationID = uuid.NewString()
		}
	}

	_, appended, err := b.emitter.Emit(ctx, events.Event{
		Type:          env.EventType,
		EntityType:    env.EntityType,
		EntityID:      env.EntityID,
		CorrelationID: correlationID,
		Payload:       env.Payload,
	})
	switch {
	case errors.Is(err, events.ErrUnknownEventType), errors.Is(err, events.ErrInvalidEntityID):
		// Malformed by construction; redelivery cannot fix it.
		b.logger.Error("rejected intake event",
			zap.String("event_type", env.EventType),
			zap.String("entity_id", env.EntityID),
			zap.Error(err),
		)
		ack(true)
	case errors.Is(err, ledger.ErrConflict):
		b.logger.Warn("append conflict, leaving message for redelivery",
			zap.String("correlation_id", correlationID))
		ack(false)
	case err != nil:
		b.logger.Error("intake emit failed, leaving message for redelivery",
			zap.String("correlation_id", correlationID),
			zap.Error(err),
		)
		ack(false)
	default:
		if !appended {
			b.logger.Debug("intake event skipped",
				zap.String("event_type", env.EventType),
				zap.String("correlation_id", correlationID),
			)
		}
		ack(true)
	}
}
