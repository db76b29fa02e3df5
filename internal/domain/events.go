package domain

import (
	"github.com/google/uuid"
)

// Event type identifiers for the events this service consumes and emits.
const (
	EventOrderAuthorized = "order.authorized"
	EventStockDeducted   = "catalog.stock_deducted"
	EventOrderCanceled   = "catalog.order_canceled"
)

// OrderAuthorized is the payment-approved notification from the order
// service. Items maps product ID to the ordered quantity.
type OrderAuthorized struct {
	OrderID    uuid.UUID         `json:"order_id"`
	CustomerID uuid.UUID         `json:"customer_id"`
	Items      map[uuid.UUID]int `json:"items"`
}

// StockDeducted is emitted after stock for every item of an order was
// committed.
type StockDeducted struct {
	OrderID    uuid.UUID         `json:"order_id"`
	CustomerID uuid.UUID         `json:"customer_id"`
	Items      map[uuid.UUID]int `json:"items"`
}

// OrderCanceled is emitted when an order cannot be fulfilled. Reason is a
// short machine-readable cause such as "insufficient_stock" or
// "product_unavailable".
type OrderCanceled struct {
	OrderID    uuid.UUID `json:"order_id"`
	CustomerID uuid.UUID `json:"customer_id"`
	Reason     string    `json:"reason"`
}

// Cancellation reasons.
const (
	ReasonInsufficientStock  = "insufficient_stock"
	ReasonProductUnavailable = "product_unavailable"
	ReasonCommitFailed       = "stock_commit_failed"
)
