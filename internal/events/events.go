package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flicky/go-ecommerce-checkout/internal/model"
)

// Publisher delivers order lifecycle events after the owning transaction has
// committed. Delivery is at-least-once; consumers dedupe on order id + type.
type Publisher interface {
	Publish(ctx context.Context, event model.OrderEvent) error
	Close() error
}

// Backend is a Publisher whose broker can be probed for readiness.
type Backend interface {
	Publisher
	Ping(ctx context.Context) error
}

func encode(event model.OrderEvent) ([]byte, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal order event: %w", err)
	}
	return body, nil
}

type nopPublisher struct{}

func NewNopPublisher() Backend { return nopPublisher{} }

func (nopPublisher) Publish(context.Context, model.OrderEvent) error { return nil }
func (nopPublisher) Ping(context.Context) error                      { return nil }
func (nopPublisher) Close() error                                    { return nil }
