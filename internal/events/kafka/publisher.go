package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"splitsnap/internal/events"
)

// Publisher writes events to a Kafka topic, keyed by group so consumers see
// a group's events in order.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.GroupID.String()),
		Value: data,
	})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
