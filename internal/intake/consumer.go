// Package intake bridges out-of-process collaborators into the event
// emitter. Producers (submission intake, the batch scheduler, voting
// handlers) publish event envelopes to a Kafka topic; the bridge
// consumes them, validates, and emits. Kafka gives at-least-once
// delivery, so every envelope carries a correlation id and the emitter
// deduplicates on it; offsets are committed only after a successful
// append or an explicit skip, never after a failure.
package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Envelope is the wire form of one event on the intake topic.
type Envelope struct {
	EventType     string         `json:"event_type"`
	EntityType    string         `json:"entity_type"`
	EntityID      string         `json:"entity_id"`
	CorrelationID string         `json:"correlation_id"`
	Payload       map[string]any `json:"payload"`

	// Origin is the message's position on its transport, set by the
	// consumer rather than the producer. It must be stable across
	// redeliveries of the same message: when the producer omits the
	// correlation id, the bridge derives one from Origin so the
	// deduper still recognizes a redelivered message.
	Origin string `json:"-"`
}

// Consumer yields envelopes from a message channel. The ack callback
// commits the message when called with true; with false the message is
// left uncommitted for redelivery.
type Consumer interface {
	Consume(ctx context.Context) (env *Envelope, ack func(success bool), err error)
	Close() error
}

// KafkaConfig configures a KafkaConsumer.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// KafkaConsumer reads event envelopes from a Kafka topic.
type KafkaConsumer struct {
	reader *kafka.Reader
}

// NewKafkaConsumer creates a consumer joining the given group.
func NewKafkaConsumer(cfg KafkaConfig) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     cfg.GroupID,
			Topic:       cfg.Topic,
			MinBytes:    1,
			MaxBytes:    1 << 20,
			StartOffset: kafka.FirstOffset,
		}),
	}
}

// Consume implements Consumer. A message that cannot be decoded is
// committed and reported as an error: redelivering it would fail
// forever and stall the partition.
func (k *KafkaConsumer) Consume(ctx context.Context) (*Envelope, func(bool), error) {
	msg, err := k.reader.FetchMessage(ctx)
	if err != nil {
		return nil, nil, err
	}

	// UseNumber keeps large integer payload values exact through
	// canonicalization and hashing.
	dec := json.NewDecoder(bytes.NewReader(msg.Value))
	dec.UseNumber()
	var env Envelope
	if err := dec.Decode(&env); err != nil {
		_ = k.reader.CommitMessages(ctx, msg)
		return nil, nil, &DecodeError{Offset: msg.Offset, Err: err}
	}
	env.Origin = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)

	ack := func(success bool) {
		if success {
			_ = k.reader.CommitMessages(context.Background(), msg)
		}
	}
	return &env, ack, nil
}

// Close implements Consumer.
func (k *KafkaConsumer) Close() error {
	return k.reader.Close()
}

// DecodeError marks a message that was discarded as undecodable.
type DecodeError struct {
	Offset int64
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("intake: undecodable message at offset %d: %v", e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
