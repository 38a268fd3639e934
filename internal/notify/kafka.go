package notify

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaBackend writes events to one topic. Messages are keyed by project so
// a project's events keep their order within a partition.
type KafkaBackend struct {
	writer *kafka.Writer
}

func NewKafkaBackend(brokers []string, topic string) *KafkaBackend {
	if topic == "" {
		topic = "vaultuplink-events"
	}
	return &KafkaBackend{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

func (k *KafkaBackend) Name() string { return "kafka" }

func (k *KafkaBackend) Publish(ctx context.Context, payload []byte) error {
	msg := kafka.Message{Value: payload}
	if ev, ok := peek(payload); ok {
		msg.Key = []byte(ev.Project)
		msg.Headers = []kafka.Header{{Key: "event", Value: []byte(ev.Name)}}
	}
	return k.writer.WriteMessages(ctx, msg)
}

func (k *KafkaBackend) Close() error {
	return k.writer.Close()
}
