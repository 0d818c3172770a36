package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// DefaultTopic receives every event unless configured otherwise.
const DefaultTopic = "gradilisce.events"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes events as JSON, keyed by entity and ID so changes to one
// record stay ordered within a partition.
type Kafka struct {
	writer messageWriter
}

// NewKafka creates an asynchronous publisher. Delivery errors are logged.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			Async:                  true,
			AllowAutoTopicCreation: true,
			Completion: func(msgs []kafka.Message, err error) {
				if err != nil {
					slog.Error("kafka delivery failed", "messages", len(msgs), "error", err)
				}
			},
		},
	}, nil
}

// Publish writes e as JSON keyed by entity and id, so every change to one
// record lands on the same partition in order.
func (k *Kafka) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.Entity + ":" + strconv.FormatInt(e.ID, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
		Time: e.At,
	})
}

// Close flushes pending messages.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
