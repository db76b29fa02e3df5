// Package postgres implements the product repository on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cloudgames/catalog/internal/domain"
	"github.com/cloudgames/catalog/internal/repository"
	"github.com/cloudgames/catalog/pkg/database"
	apperrors "github.com/cloudgames/catalog/pkg/errors"
)

const productColumns = `id, name, description, image, active, value, stock_quantity,
		genre, platform, tags, metacritic, user_rating, release_date,
		popularity_score, sales, views, date_register`

// ProductRepository is the PostgreSQL-backed implementation of
// repository.ProductRepository.
type ProductRepository struct {
	pool database.DBTX
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(pool database.DBTX) *ProductRepository {
	return &ProductRepository{pool: pool}
}

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Image,
		&p.Active,
		&p.Value,
		&p.StockQuantity,
		&p.Genre,
		&p.Platform,
		&p.Tags,
		&p.Metacritic,
		&p.UserRating,
		&p.ReleaseDate,
		&p.PopularityScore,
		&p.Sales,
		&p.Views,
		&p.DateRegister,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanProducts(rows pgx.Rows) ([]domain.Product, error) {
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	return products, nil
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := r.pool.Exec(ctx, query,
		product.ID,
		product.Name,
		product.Description,
		product.Image,
		product.Active,
		product.Value,
		product.StockQuantity,
		product.Genre,
		product.Platform,
		product.Tags,
		product.Metacritic,
		product.UserRating,
		product.ReleaseDate,
		product.PopularityScore,
		product.Sales,
		product.Views,
		product.DateRegister,
	)
	if err != nil {
		return fmt.Errorf("create product: %w", err)
	}

	return nil
}

// Update replaces all mutable fields of an existing product.
func (r *ProductRepository) Update(ctx context.Context, product *domain.Product) error {
	query := `
		UPDATE products SET
			name = $2,
			description = $3,
			image = $4,
			active = $5,
			value = $6,
			stock_quantity = $7,
			genre = $8,
			platform = $9,
			tags = $10,
			metacritic = $11,
			user_rating = $12,
			release_date = $13
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		product.ID,
		product.Name,
		product.Description,
		product.Image,
		product.Active,
		product.Value,
		product.StockQuantity,
		product.Genre,
		product.Platform,
		product.Tags,
		product.Metacritic,
		product.UserRating,
		product.ReleaseDate,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// GetByID retrieves a product by its ID.
func (r *ProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	p, err := scanProduct(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("get product by id: %w", err)
	}

	return p, nil
}

// List returns one page of products newest-first plus the total count.
func (r *ProductRepository) List(ctx context.Context, limit, offset int) ([]domain.Product, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	query := `SELECT ` + productColumns + `
		FROM products
		ORDER BY date_register DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}

	products, err := scanProducts(rows)
	if err != nil {
		return nil, 0, err
	}

	return products, total, nil
}

// GetAllActive returns every active product, for reindexing.
func (r *ProductRepository) GetAllActive(ctx context.Context) ([]domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE active = TRUE`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all active products: %w", err)
	}

	return scanProducts(rows)
}

// GetActiveByIDs returns the active products among the given IDs.
func (r *ProductRepository) GetActiveByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) AND active = TRUE`

	rows, err := r.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("get active products by ids: %w", err)
	}

	return scanProducts(rows)
}

// DeductStock commits all deductions for one order in a single transaction.
// The order ID is claimed in processed_orders first, inside the same
// transaction as the decrements: a redelivered order hits the primary key and
// returns ErrOrderAlreadyProcessed with nothing re-deducted. The UPDATE is
// conditional on the current stock, so a concurrent order that drained the
// shelf between read and write makes RowsAffected zero and rolls everything
// back instead of going negative.
func (r *ProductRepository) DeductStock(ctx context.Context, orderID uuid.UUID, deductions []repository.StockDeduction) error {
	if len(deductions) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `INSERT INTO processed_orders (order_id) VALUES ($1)`, orderID); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order %s: %w", orderID, apperrors.ErrOrderAlreadyProcessed)
		}
		return fmt.Errorf("claim order %s: %w", orderID, err)
	}

	query := `
		UPDATE products SET
			stock_quantity = stock_quantity - $2,
			sales = sales + $2,
			popularity_score = popularity_score + $2
		WHERE id = $1 AND active = TRUE AND stock_quantity >= $2`

	for _, d := range deductions {
		tag, err := tx.Exec(ctx, query, d.ProductID, d.Quantity)
		if err != nil {
			return fmt.Errorf("deduct stock for product %s: %w", d.ProductID, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("deduct %d of product %s: %w", d.Quantity, d.ProductID, apperrors.ErrStockCommitFailed)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}

// IncrementViews bumps the view counter and popularity score of a product.
func (r *ProductRepository) IncrementViews(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE products SET
			views = views + 1,
			popularity_score = popularity_score + 1
		WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("increment views: %w", err)
	}

	return nil
}
