package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/cloudgames/catalog/internal/domain"
	"github.com/cloudgames/catalog/internal/repository"
	apperrors "github.com/cloudgames/catalog/pkg/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRepo is an in-memory repository.ProductRepository. Function fields
// override individual operations per test; deductions records every
// successful DeductStock call.
type fakeRepo struct {
	products  map[uuid.UUID]domain.Product
	processed map[uuid.UUID]struct{}

	getActiveByIDsFn func(ctx context.Context, ids []uuid.UUID) ([]domain.Product, error)
	deductFn         func(ctx context.Context, orderID uuid.UUID, deductions []repository.StockDeduction) error

	deductions [][]repository.StockDeduction
}

func newFakeRepo(products ...domain.Product) *fakeRepo {
	r := &fakeRepo{
		products:  make(map[uuid.UUID]domain.Product),
		processed: make(map[uuid.UUID]struct{}),
	}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func (r *fakeRepo) Create(_ context.Context, product *domain.Product) error {
	r.products[product.ID] = *product
	return nil
}

func (r *fakeRepo) Update(_ context.Context, product *domain.Product) error {
	if _, ok := r.products[product.ID]; !ok {
		return apperrors.ErrNotFound
	}
	r.products[product.ID] = *product
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	p, ok := r.products[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &p, nil
}

func (r *fakeRepo) List(_ context.Context, limit, offset int) ([]domain.Product, int64, error) {
	all := make([]domain.Product, 0, len(r.products))
	for _, p := range r.products {
		all = append(all, p)
	}
	total := int64(len(all))
	if offset > len(all) {
		offset = len(all)
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

func (r *fakeRepo) GetAllActive(_ context.Context) ([]domain.Product, error) {
	var active []domain.Product
	for _, p := range r.products {
		if p.Active {
			active = append(active, p)
		}
	}
	return active, nil
}

func (r *fakeRepo) GetActiveByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Product, error) {
	if r.getActiveByIDsFn != nil {
		return r.getActiveByIDsFn(ctx, ids)
	}
	var found []domain.Product
	for _, id := range ids {
		if p, ok := r.products[id]; ok && p.Active {
			found = append(found, p)
		}
	}
	return found, nil
}

func (r *fakeRepo) DeductStock(ctx context.Context, orderID uuid.UUID, deductions []repository.StockDeduction) error {
	if r.deductFn != nil {
		return r.deductFn(ctx, orderID, deductions)
	}
	if _, done := r.processed[orderID]; done {
		return apperrors.ErrOrderAlreadyProcessed
	}
	// All-or-nothing like the real repository.
	for _, d := range deductions {
		p, ok := r.products[d.ProductID]
		if !ok || !p.IsAvailable(d.Quantity) {
			return apperrors.ErrStockCommitFailed
		}
	}
	for _, d := range deductions {
		p := r.products[d.ProductID]
		p.DecrementStock(d.Quantity)
		p.Sales += int64(d.Quantity)
		p.PopularityScore += int64(d.Quantity)
		r.products[d.ProductID] = p
	}
	r.processed[orderID] = struct{}{}
	r.deductions = append(r.deductions, deductions)
	return nil
}

func (r *fakeRepo) IncrementViews(_ context.Context, id uuid.UUID) error {
	if p, ok := r.products[id]; ok {
		p.Views++
		p.PopularityScore++
		r.products[id] = p
	}
	return nil
}

func (r *fakeRepo) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	return r.products[id].StockQuantity
}
