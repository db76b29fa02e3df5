package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/cloudgames/catalog/internal/domain"
	"github.com/cloudgames/catalog/internal/repository"
	apperrors "github.com/cloudgames/catalog/pkg/errors"
)

// OutcomePublisher emits the terminal event of an order reconciliation.
type OutcomePublisher interface {
	PublishStockDeducted(ctx context.Context, event domain.StockDeducted) error
	PublishOrderCanceled(ctx context.Context, event domain.OrderCanceled) error
}

// StockService reconciles authorized orders against catalog stock.
type StockService struct {
	repo      repository.ProductRepository
	publisher OutcomePublisher
	logger    *slog.Logger
}

// NewStockService creates a new stock reconciliation service.
func NewStockService(repo repository.ProductRepository, publisher OutcomePublisher, logger *slog.Logger) *StockService {
	return &StockService{
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// ProcessOrderAuthorized settles one authorized order. The order is
// all-or-nothing: every line must be satisfiable by an active product or the
// whole order is canceled. The outcome is exactly one published event,
// stock_deducted or order_canceled.
//
// Returned errors are transient (database or broker unreachable) and safe to
// retry; business rejections publish a cancellation and return nil. A
// redelivered order whose decrements already committed re-publishes the
// stock_deducted event instead of deducting again.
func (s *StockService) ProcessOrderAuthorized(ctx context.Context, order domain.OrderAuthorized) error {
	if len(order.Items) == 0 {
		s.logger.WarnContext(ctx, "authorized order carries no items",
			slog.String("order_id", order.OrderID.String()),
		)
		return s.cancel(ctx, order, domain.ReasonProductUnavailable)
	}

	ids := make([]uuid.UUID, 0, len(order.Items))
	for id := range order.Items {
		ids = append(ids, id)
	}

	products, err := s.repo.GetActiveByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("fetch products for order %s: %w", order.OrderID, err)
	}

	// A missing row means the product was deleted or deactivated after the
	// order was placed.
	if len(products) != len(ids) {
		s.logger.InfoContext(ctx, "order references unavailable products",
			slog.String("order_id", order.OrderID.String()),
			slog.Int("requested", len(ids)),
			slog.Int("found", len(products)),
		)
		return s.cancel(ctx, order, domain.ReasonProductUnavailable)
	}

	deductions := make([]repository.StockDeduction, 0, len(products))
	for _, p := range products {
		quantity := order.Items[p.ID]
		if !p.IsAvailable(quantity) {
			s.logger.InfoContext(ctx, "insufficient stock for order",
				slog.String("order_id", order.OrderID.String()),
				slog.String("product_id", p.ID.String()),
				slog.Int("requested", quantity),
				slog.Int("in_stock", p.StockQuantity),
			)
			return s.cancel(ctx, order, domain.ReasonInsufficientStock)
		}
		deductions = append(deductions, repository.StockDeduction{ProductID: p.ID, Quantity: quantity})
	}

	switch err := s.repo.DeductStock(ctx, order.OrderID, deductions); {
	case err == nil:
	case errors.Is(err, apperrors.ErrOrderAlreadyProcessed):
		// A previous delivery committed the decrements but the outcome event
		// never made it out. Fall through to the publish without touching
		// stock again.
		s.logger.InfoContext(ctx, "order already settled, republishing outcome",
			slog.String("order_id", order.OrderID.String()),
		)
	case errors.Is(err, apperrors.ErrStockCommitFailed):
		// A concurrent order drained the stock between the availability
		// check and the commit. The transaction rolled back; cancel.
		commitErr := apperrors.StockCommitFailed(order.OrderID.String(), err)
		s.logger.ErrorContext(ctx, "stock commit failed",
			slog.String("order_id", order.OrderID.String()),
			slog.String("error", commitErr.Error()),
		)
		return s.cancel(ctx, order, domain.ReasonCommitFailed)
	default:
		return fmt.Errorf("deduct stock for order %s: %w", order.OrderID, err)
	}

	deducted := domain.StockDeducted{
		OrderID:    order.OrderID,
		CustomerID: order.CustomerID,
		Items:      order.Items,
	}
	if err := s.publisher.PublishStockDeducted(ctx, deducted); err != nil {
		// Stock is already committed; the retry lands on the processed-orders
		// ledger and re-publishes the outcome without deducting again.
		return fmt.Errorf("publish stock deducted for order %s: %w", order.OrderID, err)
	}

	s.logger.InfoContext(ctx, "stock deducted",
		slog.String("order_id", order.OrderID.String()),
		slog.Int("items", len(deductions)),
	)

	return nil
}

func (s *StockService) cancel(ctx context.Context, order domain.OrderAuthorized, reason string) error {
	event := domain.OrderCanceled{
		OrderID:    order.OrderID,
		CustomerID: order.CustomerID,
		Reason:     reason,
	}
	if err := s.publisher.PublishOrderCanceled(ctx, event); err != nil {
		return fmt.Errorf("publish order canceled for order %s: %w", order.OrderID, err)
	}

	s.logger.InfoContext(ctx, "order canceled",
		slog.String("order_id", order.OrderID.String()),
		slog.String("reason", reason),
	)

	return nil
}
