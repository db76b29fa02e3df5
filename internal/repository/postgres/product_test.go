package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudgames/catalog/internal/domain"
	"github.com/cloudgames/catalog/internal/repository"
	"github.com/cloudgames/catalog/pkg/database"
	apperrors "github.com/cloudgames/catalog/pkg/errors"
)

func setupRepo(t *testing.T) (*ProductRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	repo := NewProductRepository(mock)
	return repo, mock
}

var productRows = []string{
	"id", "name", "description", "image", "active", "value", "stock_quantity",
	"genre", "platform", "tags", "metacritic", "user_rating", "release_date",
	"popularity_score", "sales", "views", "date_register",
}

func sampleProduct() domain.Product {
	return domain.Product{
		ID:              uuid.New(),
		Name:            "Hollow Knight",
		Description:     "a challenging metroidvania",
		Image:           "https://cdn.example.com/hk.png",
		Active:          true,
		Value:           14.99,
		StockQuantity:   50,
		Genre:           "Metroidvania",
		Platform:        "PC",
		Tags:            []string{"indie", "platformer"},
		PopularityScore: 42,
		Sales:           10,
		Views:           100,
		DateRegister:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func productToRow(rows *pgxmock.Rows, p domain.Product) *pgxmock.Rows {
	return rows.AddRow(
		p.ID, p.Name, p.Description, p.Image, p.Active, p.Value, p.StockQuantity,
		p.Genre, p.Platform, p.Tags, p.Metacritic, p.UserRating, p.ReleaseDate,
		p.PopularityScore, p.Sales, p.Views, p.DateRegister,
	)
}

func TestProductRepository_GetByID_Success(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	p := sampleProduct()
	mock.ExpectQuery("SELECT .+ FROM products WHERE id").
		WithArgs(p.ID).
		WillReturnRows(productToRow(pgxmock.NewRows(productRows), p))

	result, err := repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, result.ID)
	assert.Equal(t, p.Name, result.Name)
	assert.Equal(t, p.Tags, result.Tags)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT .+ FROM products WHERE id").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	result, err := repo.GetByID(context.Background(), id)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_List_ReturnsPageAndTotal(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	p := sampleProduct()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM products").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))
	mock.ExpectQuery("SELECT .+ FROM products ORDER BY date_register DESC").
		WithArgs(20, 0).
		WillReturnRows(productToRow(pgxmock.NewRows(productRows), p))

	products, total, err := repo.List(context.Background(), 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)
	require.Len(t, products, 1)
	assert.Equal(t, p.Name, products[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_GetActiveByIDs_Empty(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	products, err := repo.GetActiveByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, products)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_DeductStock_CommitsAllRows(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	orderID := uuid.New()
	id1, id2 := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO processed_orders").
		WithArgs(orderID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE products SET").
		WithArgs(id1, 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE products SET").
		WithArgs(id2, 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := repo.DeductStock(context.Background(), orderID, []repository.StockDeduction{
		{ProductID: id1, Quantity: 2},
		{ProductID: id2, Quantity: 1},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_DeductStock_RollsBackOnZeroRows(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	orderID := uuid.New()
	id1, id2 := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO processed_orders").
		WithArgs(orderID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE products SET").
		WithArgs(id1, 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	// Second line drained by a concurrent order: conditional update hits no row.
	mock.ExpectExec("UPDATE products SET").
		WithArgs(id2, 5).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := repo.DeductStock(context.Background(), orderID, []repository.StockDeduction{
		{ProductID: id1, Quantity: 2},
		{ProductID: id2, Quantity: 5},
	})
	assert.ErrorIs(t, err, apperrors.ErrStockCommitFailed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_DeductStock_AlreadyProcessedOrder(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	orderID := uuid.New()

	mock.ExpectBegin()
	// The order was settled by an earlier delivery: the ledger insert hits
	// the primary key and nothing is decremented.
	mock.ExpectExec("INSERT INTO processed_orders").
		WithArgs(orderID).
		WillReturnError(errors.New("ERROR: duplicate key value violates unique constraint (SQLSTATE 23505)"))
	mock.ExpectRollback()

	err := repo.DeductStock(context.Background(), orderID, []repository.StockDeduction{
		{ProductID: uuid.New(), Quantity: 1},
	})
	assert.ErrorIs(t, err, apperrors.ErrOrderAlreadyProcessed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepository_Update_NotFound(t *testing.T) {
	repo, mock := setupRepo(t)
	defer mock.Close()

	p := sampleProduct()
	mock.ExpectExec("UPDATE products SET").
		WithArgs(p.ID, p.Name, p.Description, p.Image, p.Active, p.Value, p.StockQuantity,
			p.Genre, p.Platform, p.Tags, p.Metacritic, p.UserRating, p.ReleaseDate).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Update(context.Background(), &p)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
