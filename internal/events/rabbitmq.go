package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/flicky/go-ecommerce-checkout/internal/model"
)

const (
	OrderEventsQueue = "orders.events"
	dlxSuffix        = ".dlx"
	dlqQueueName     = "orders.events.dlq"
)

type RabbitMQPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewRabbitMQPublisher(url, exchange string) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := SetupRabbitMQ(ch, exchange); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &RabbitMQPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

// SetupRabbitMQ declares the topic exchange for order events, a durable queue
// bound to every order.* key, and the DLX/DLQ pair behind it.
func SetupRabbitMQ(ch *amqp.Channel, exchange string) error {
	dlx := exchange + dlxSuffix
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(dlx, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(dlqQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(dlqQueueName, OrderEventsQueue, dlx, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}
	if _, err := ch.QueueDeclare(OrderEventsQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    dlx,
		"x-dead-letter-routing-key": OrderEventsQueue,
	}); err != nil {
		return fmt.Errorf("declare order events queue: %w", err)
	}
	if err := ch.QueueBind(OrderEventsQueue, "order.#", exchange, false, nil); err != nil {
		return fmt.Errorf("bind order events queue: %w", err)
	}
	return nil
}

func newPublishing(event model.OrderEvent) (amqp.Publishing, error) {
	body, err := encode(event)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.OrderID.String() + ":" + event.Type,
		Timestamp:    event.OccurredAt,
		Type:         event.Type,
		Body:         body,
	}, nil
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, event model.OrderEvent) error {
	msg, err := newPublishing(event)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.PublishWithContext(ctx, p.exchange, event.Type, false, false, msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// ConsumerChannel opens a separate channel on the publisher's connection for
// consumers of OrderEventsQueue.
func (p *RabbitMQPublisher) ConsumerChannel() (*amqp.Channel, error) {
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}
	return ch, nil
}

func (p *RabbitMQPublisher) IsClosed() bool {
	return p.conn.IsClosed()
}

func (p *RabbitMQPublisher) Ping(context.Context) error {
	if p.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.channel.Close()
	return p.conn.Close()
}
