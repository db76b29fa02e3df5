package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudgames/catalog/internal/domain"
	"github.com/cloudgames/catalog/internal/repository"
	apperrors "github.com/cloudgames/catalog/pkg/errors"
)

// fakePublisher records published outcome events.
type fakePublisher struct {
	deducted []domain.StockDeducted
	canceled []domain.OrderCanceled

	publishErr error
}

func (p *fakePublisher) PublishStockDeducted(_ context.Context, event domain.StockDeducted) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.deducted = append(p.deducted, event)
	return nil
}

func (p *fakePublisher) PublishOrderCanceled(_ context.Context, event domain.OrderCanceled) error {
	if p.publishErr != nil {
		return p.publishErr
	}
	p.canceled = append(p.canceled, event)
	return nil
}

func authorizedOrder(items map[uuid.UUID]int) domain.OrderAuthorized {
	return domain.OrderAuthorized{
		OrderID:    uuid.New(),
		CustomerID: uuid.New(),
		Items:      items,
	}
}

func TestProcessOrderAuthorized_DeductsAndPublishes(t *testing.T) {
	p1 := game("Game One", "Action", "PC", nil, 0)
	p1.StockQuantity = 5
	p2 := game("Game Two", "RPG", "PC", nil, 0)
	p2.StockQuantity = 3

	repo := newFakeRepo(p1, p2)
	pub := &fakePublisher{}
	svc := NewStockService(repo, pub, testLogger())

	order := authorizedOrder(map[uuid.UUID]int{p1.ID: 2, p2.ID: 1})
	require.NoError(t, svc.ProcessOrderAuthorized(context.Background(), order))

	assert.Equal(t, 3, repo.stock(t, p1.ID))
	assert.Equal(t, 2, repo.stock(t, p2.ID))

	require.Len(t, pub.deducted, 1)
	assert.Equal(t, order.OrderID, pub.deducted[0].OrderID)
	assert.Equal(t, order.Items, pub.deducted[0].Items)
	assert.Empty(t, pub.canceled)
}

func TestProcessOrderAuthorized_CancelsOnInsufficientStock(t *testing.T) {
	p1 := game("Plenty", "Action", "PC", nil, 0)
	p1.StockQuantity = 2
	p2 := game("Drained", "RPG", "PC", nil, 0)
	p2.StockQuantity = 0

	repo := newFakeRepo(p1, p2)
	pub := &fakePublisher{}
	svc := NewStockService(repo, pub, testLogger())

	order := authorizedOrder(map[uuid.UUID]int{p1.ID: 2, p2.ID: 1})
	require.NoError(t, svc.ProcessOrderAuthorized(context.Background(), order))

	// All-or-nothing: the satisfiable line must not be decremented either.
	assert.Equal(t, 2, repo.stock(t, p1.ID))
	assert.Equal(t, 0, repo.stock(t, p2.ID))
	assert.Empty(t, repo.deductions)

	require.Len(t, pub.canceled, 1)
	assert.Equal(t, order.OrderID, pub.canceled[0].OrderID)
	assert.Equal(t, domain.ReasonInsufficientStock, pub.canceled[0].Reason)
	assert.Empty(t, pub.deducted)
}

func TestProcessOrderAuthorized_CancelsOnUnknownProduct(t *testing.T) {
	known := game("Known", "Action", "PC", nil, 0)

	repo := newFakeRepo(known)
	pub := &fakePublisher{}
	svc := NewStockService(repo, pub, testLogger())

	order := authorizedOrder(map[uuid.UUID]int{known.ID: 1, uuid.New(): 1})
	require.NoError(t, svc.ProcessOrderAuthorized(context.Background(), order))

	require.Len(t, pub.canceled, 1)
	assert.Equal(t, domain.ReasonProductUnavailable, pub.canceled[0].Reason)
	assert.Equal(t, 10, repo.stock(t, known.ID))
}

func TestProcessOrderAuthorized_CancelsOnInactiveProduct(t *testing.T) {
	delisted := game("Delisted", "Action", "PC", nil, 0)
	delisted.Active = false

	repo := newFakeRepo(delisted)
	pub := &fakePublisher{}
	svc := NewStockService(repo, pub, testLogger())

	order := authorizedOrder(map[uuid.UUID]int{delisted.ID: 1})
	require.NoError(t, svc.ProcessOrderAuthorized(context.Background(), order))

	require.Len(t, pub.canceled, 1)
	assert.Equal(t, domain.ReasonProductUnavailable, pub.canceled[0].Reason)
}

func TestProcessOrderAuthorized_CancelsOnEmptyOrder(t *testing.T) {
	repo := newFakeRepo()
	pub := &fakePublisher{}
	svc := NewStockService(repo, pub, testLogger())

	require.NoError(t, svc.ProcessOrderAuthorized(context.Background(), authorizedOrder(nil)))

	require.Len(t, pub.canceled, 1)
	assert.Equal(t, domain.ReasonProductUnavailable, pub.canceled[0].Reason)
}

func TestProcessOrderAuthorized_CommitRaceCancelsOrder(t *testing.T) {
	p := game("Contested", "Action", "PC", nil, 0)
	p.StockQuantity = 1

	repo := newFakeRepo(p)
	// The availability check passes, then a concurrent order wins the row.
	repo.deductFn = func(context.Context, uuid.UUID, []repository.StockDeduction) error {
		return apperrors.ErrStockCommitFailed
	}
	pub := &fakePublisher{}
	svc := NewStockService(repo, pub, testLogger())

	order := authorizedOrder(map[uuid.UUID]int{p.ID: 1})
	require.NoError(t, svc.ProcessOrderAuthorized(context.Background(), order))

	require.Len(t, pub.canceled, 1)
	assert.Equal(t, domain.ReasonCommitFailed, pub.canceled[0].Reason)
	assert.Empty(t, pub.deducted)
}

func TestProcessOrderAuthorized_TransientErrorsPropagate(t *testing.T) {
	p := game("Any", "Action", "PC", nil, 0)

	repo := newFakeRepo(p)
	repo.getActiveByIDsFn = func(context.Context, []uuid.UUID) ([]domain.Product, error) {
		return nil, errors.New("connection refused")
	}
	pub := &fakePublisher{}
	svc := NewStockService(repo, pub, testLogger())

	order := authorizedOrder(map[uuid.UUID]int{p.ID: 1})
	err := svc.ProcessOrderAuthorized(context.Background(), order)
	require.Error(t, err)

	// Nothing was published: the message will be retried.
	assert.Empty(t, pub.deducted)
	assert.Empty(t, pub.canceled)
}

func TestProcessOrderAuthorized_RedeliveryAfterPublishFailureDoesNotDoubleDeduct(t *testing.T) {
	p := game("Settled", "Action", "PC", nil, 0)
	p.StockQuantity = 5

	repo := newFakeRepo(p)
	pub := &fakePublisher{publishErr: errors.New("broker down")}
	svc := NewStockService(repo, pub, testLogger())

	// First delivery: the decrement commits, then the outcome publish fails,
	// so the handler errors and the consumer will redeliver.
	order := authorizedOrder(map[uuid.UUID]int{p.ID: 2})
	require.Error(t, svc.ProcessOrderAuthorized(context.Background(), order))
	assert.Equal(t, 3, repo.stock(t, p.ID))

	// The broker recovers and the same event comes around again.
	pub.publishErr = nil
	require.NoError(t, svc.ProcessOrderAuthorized(context.Background(), order))

	assert.Equal(t, 3, repo.stock(t, p.ID))
	require.Len(t, repo.deductions, 1)
	require.Len(t, pub.deducted, 1)
	assert.Equal(t, order.OrderID, pub.deducted[0].OrderID)
	assert.Empty(t, pub.canceled)
}

func TestProcessOrderAuthorized_PublishFailurePropagates(t *testing.T) {
	p := game("Any", "Action", "PC", nil, 0)

	repo := newFakeRepo(p)
	pub := &fakePublisher{publishErr: errors.New("broker down")}
	svc := NewStockService(repo, pub, testLogger())

	order := authorizedOrder(map[uuid.UUID]int{p.ID: 1})
	err := svc.ProcessOrderAuthorized(context.Background(), order)
	require.Error(t, err)
}
