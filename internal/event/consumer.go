package event

import (
	"context"
	"log/slog"

	"github.com/cloudgames/catalog/internal/domain"
	"github.com/cloudgames/catalog/pkg/kafka"
	"github.com/cloudgames/catalog/pkg/logger"
)

// OrderProcessor settles an authorized order against stock.
type OrderProcessor interface {
	ProcessOrderAuthorized(ctx context.Context, order domain.OrderAuthorized) error
}

// OrderHandler translates order events into stock reconciliation calls.
type OrderHandler struct {
	processor OrderProcessor
	logger    *slog.Logger
}

// NewOrderHandler creates a handler for the order.authorized topic.
func NewOrderHandler(processor OrderProcessor, log *slog.Logger) *OrderHandler {
	return &OrderHandler{
		processor: processor,
		logger:    log,
	}
}

// Handle dispatches one event. Unknown event types and malformed payloads are
// logged and dropped rather than retried: no number of redeliveries fixes a
// payload that does not parse.
func (h *OrderHandler) Handle(ctx context.Context, evt *kafka.Event) error {
	if evt.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, evt.CorrelationID)
	}

	switch evt.EventType {
	case domain.EventOrderAuthorized:
		var order domain.OrderAuthorized
		if err := evt.UnmarshalData(&order); err != nil {
			h.logger.ErrorContext(ctx, "malformed order authorized payload",
				slog.String("event_id", evt.EventID),
				slog.String("aggregate_id", evt.AggregateID),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return h.processor.ProcessOrderAuthorized(ctx, order)
	default:
		h.logger.WarnContext(ctx, "ignoring unexpected event type",
			slog.String("event_type", evt.EventType),
			slog.String("event_id", evt.EventID),
		)
		return nil
	}
}
