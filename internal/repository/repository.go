// Package repository defines the persistence contracts for the catalog.
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/cloudgames/catalog/internal/domain"
)

// StockDeduction is one order line to commit against stock.
type StockDeduction struct {
	ProductID uuid.UUID
	Quantity  int
}

// ProductRepository is the persistence contract for catalog products.
// Postgres is the system of record; the search index is derived from it.
type ProductRepository interface {
	// Create inserts a new product.
	Create(ctx context.Context, product *domain.Product) error
	// Update replaces all mutable fields of an existing product.
	Update(ctx context.Context, product *domain.Product) error
	// GetByID returns a product by ID, or pkg/errors.ErrNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	// List returns one page of products newest-first plus the total count.
	List(ctx context.Context, limit, offset int) ([]domain.Product, int64, error)
	// GetAllActive returns every active product, for reindexing.
	GetAllActive(ctx context.Context) ([]domain.Product, error)
	// GetActiveByIDs returns the active products among the given IDs.
	GetActiveByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Product, error)
	// DeductStock commits all deductions for one order in a single
	// transaction. Each row only decrements if the product is active and
	// holds enough stock; if any row cannot be decremented the whole
	// transaction rolls back. The order ID is claimed inside the same
	// transaction, so a redelivered order that already committed returns
	// pkg/errors.ErrOrderAlreadyProcessed instead of decrementing twice.
	DeductStock(ctx context.Context, orderID uuid.UUID, deductions []StockDeduction) error
	// IncrementViews bumps the view counter and popularity score of a product.
	IncrementViews(ctx context.Context, id uuid.UUID) error
}
