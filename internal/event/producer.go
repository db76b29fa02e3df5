// Package event wires the catalog to the Kafka event channel: it consumes
// order authorizations and publishes the reconciliation outcome.
package event

import (
	"context"
	"fmt"

	"github.com/cloudgames/catalog/internal/domain"
	"github.com/cloudgames/catalog/pkg/kafka"
	"github.com/cloudgames/catalog/pkg/logger"
)

// Topics this service consumes and produces.
var (
	TopicOrderAuthorized = kafka.Topic("order", "authorized")
	TopicStockDeducted   = kafka.Topic("catalog", "stock_deducted")
	TopicOrderCanceled   = kafka.Topic("catalog", "order_canceled")
)

// sourceName identifies this service in event envelopes.
const sourceName = "catalog"

// Publisher publishes reconciliation outcome events. It implements
// service.OutcomePublisher.
type Publisher struct {
	producer *kafka.Producer
}

// NewPublisher creates a new outcome publisher.
func NewPublisher(producer *kafka.Producer) *Publisher {
	return &Publisher{producer: producer}
}

// PublishStockDeducted emits the stock_deducted event for an order.
func (p *Publisher) PublishStockDeducted(ctx context.Context, payload domain.StockDeducted) error {
	evt, err := kafka.NewEvent(domain.EventStockDeducted, payload.OrderID.String(), sourceName, payload)
	if err != nil {
		return fmt.Errorf("build stock deducted event: %w", err)
	}
	evt.WithCorrelationID(logger.CorrelationIDFromContext(ctx))

	return p.producer.Publish(ctx, TopicStockDeducted, evt)
}

// PublishOrderCanceled emits the order_canceled event for an order.
func (p *Publisher) PublishOrderCanceled(ctx context.Context, payload domain.OrderCanceled) error {
	evt, err := kafka.NewEvent(domain.EventOrderCanceled, payload.OrderID.String(), sourceName, payload)
	if err != nil {
		return fmt.Errorf("build order canceled event: %w", err)
	}
	evt.WithCorrelationID(logger.CorrelationIDFromContext(ctx))

	return p.producer.Publish(ctx, TopicOrderCanceled, evt)
}
