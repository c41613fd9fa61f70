package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/flicky/go-ecommerce-checkout/internal/model"
)

type KafkaPublisher struct {
	brokers []string
	writer  *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{brokers: brokers, writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

// newMessage keys by order id so every event of one order lands on the same
// partition and keeps its order.
func newMessage(event model.OrderEvent) (kafka.Message, error) {
	body, err := encode(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(event.OrderID.String()),
		Value: body,
		Time:  event.OccurredAt.UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, event model.OrderEvent) error {
	msg, err := newMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s: %w", event.Type, err)
	}
	return nil
}

// Ping succeeds when any broker accepts a connection.
func (p *KafkaPublisher) Ping(ctx context.Context) error {
	var lastErr error
	for _, broker := range p.brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	if lastErr == nil {
		lastErr = errors.New("no brokers configured")
	}
	return fmt.Errorf("ping kafka: %w", lastErr)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
