package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/go-ecommerce-checkout/internal/config"
	"github.com/flicky/go-ecommerce-checkout/internal/events"
	"github.com/flicky/go-ecommerce-checkout/internal/metrics"
	"github.com/flicky/go-ecommerce-checkout/internal/model"
)

// errNotFound marks an order, product or variant row that no longer exists.
// Events that hit it are dead-lettered; other read errors are requeued.
var errNotFound = errors.New("not found")

type OrderReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)
}

type StockReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	GetVariant(ctx context.Context, id uuid.UUID) (*model.Variant, error)
}

// StockAlert is an order line whose product or variant is at or below the
// low-stock threshold after the sale.
type StockAlert struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	SKU       string
	Stock     int
}

type outcome int

const (
	ack outcome = iota
	requeue
	deadLetter
)

// OrderEventsWorker consumes the order events queue and raises low-stock
// alerts for the items of paid orders.
type OrderEventsWorker struct {
	channel     *amqp.Channel
	orders      OrderReader
	products    StockReader
	redisClient *redis.Client
	threshold   int
	ttl         time.Duration
	log         *slog.Logger
	done        chan struct{}
}

func NewOrderEventsWorker(
	ch *amqp.Channel,
	orders OrderReader,
	products StockReader,
	redisClient *redis.Client,
	cfg config.WorkerConfig,
	log *slog.Logger,
) *OrderEventsWorker {
	return &OrderEventsWorker{
		channel:     ch,
		orders:      orders,
		products:    products,
		redisClient: redisClient,
		threshold:   cfg.LowStockThreshold,
		ttl:         cfg.IdempotencyTTL,
		log:         log,
		done:        make(chan struct{}),
	}
}

func (w *OrderEventsWorker) Start(ctx context.Context) error {
	if err := w.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}
	msgs, err := w.channel.Consume(events.OrderEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	go func() {
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				w.processMessage(ctx, msg)
			case <-w.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	w.log.Info("order events worker started", "queue", events.OrderEventsQueue)
	return nil
}

func (w *OrderEventsWorker) Stop() { close(w.done) }

func (w *OrderEventsWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	switch w.handle(ctx, msg.Body) {
	case requeue:
		_ = msg.Nack(false, true)
	case deadLetter:
		_ = msg.Nack(false, false)
	default:
		_ = msg.Ack(false)
	}
}

func idempotencyKey(event model.OrderEvent) string {
	return "order_event_processed:" + event.OrderID.String() + ":" + event.Type
}

func (w *OrderEventsWorker) handle(ctx context.Context, body []byte) outcome {
	var event model.OrderEvent
	if err := json.Unmarshal(body, &event); err != nil {
		w.log.Error("unmarshal order event", "error", err)
		return deadLetter
	}
	if event.Type != model.EventOrderPaid {
		return ack
	}

	log := w.log.With("order_id", event.OrderID, "order_number", event.OrderNumber)

	key := idempotencyKey(event)
	exists, err := w.redisClient.Exists(ctx, key).Result()
	if err != nil {
		log.Error("check idempotency key", "error", err)
		return requeue
	}
	if exists > 0 {
		log.Info("order event already handled, skipping")
		return ack
	}

	alerts, err := w.lowStockItems(ctx, event.OrderID)
	if errors.Is(err, errNotFound) {
		log.Error("check stock for paid order", "error", err)
		return deadLetter
	}
	if err != nil {
		log.Error("check stock for paid order, retrying", "error", err)
		return requeue
	}
	for _, a := range alerts {
		metrics.RecordLowStock()
		log.Warn("low stock", "product_id", a.ProductID, "sku", a.SKU, "stock", a.Stock, "threshold", w.threshold)
	}

	if err := w.redisClient.Set(ctx, key, "1", w.ttl).Err(); err != nil {
		log.Error("set idempotency key", "error", err)
	}
	return ack
}

func (w *OrderEventsWorker) lowStockItems(ctx context.Context, orderID uuid.UUID) ([]StockAlert, error) {
	order, err := w.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, errNotFound)
	}

	var alerts []StockAlert
	for _, item := range order.Items {
		sku, stock, err := w.stockOf(ctx, item)
		if err != nil {
			return nil, err
		}
		if stock <= w.threshold {
			alerts = append(alerts, StockAlert{ProductID: item.ProductID, VariantID: item.VariantID, SKU: sku, Stock: stock})
		}
	}
	return alerts, nil
}

// stockOf reads the variant row when the line has one, the product row otherwise.
func (w *OrderEventsWorker) stockOf(ctx context.Context, item model.OrderItem) (string, int, error) {
	if item.VariantID != nil {
		v, err := w.products.GetVariant(ctx, *item.VariantID)
		if err != nil {
			return "", 0, fmt.Errorf("get variant: %w", err)
		}
		if v == nil {
			return "", 0, fmt.Errorf("variant %s: %w", *item.VariantID, errNotFound)
		}
		return v.SKU, v.Stock, nil
	}
	p, err := w.products.GetByID(ctx, item.ProductID)
	if err != nil {
		return "", 0, fmt.Errorf("get product: %w", err)
	}
	if p == nil {
		return "", 0, fmt.Errorf("product %s: %w", item.ProductID, errNotFound)
	}
	return p.SKU, p.Stock, nil
}
