// Package service implements the catalog business logic on top of the search
// engine and the product repository.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cloudgames/catalog/internal/domain"
	"github.com/cloudgames/catalog/internal/repository"
	"github.com/cloudgames/catalog/internal/search"
	apperrors "github.com/cloudgames/catalog/pkg/errors"
)

// Sort options accepted by Search.
const (
	SortRelevance  = "relevance"
	SortPopularity = "popularity"
	SortMetacritic = "metacritic"
	SortRecent     = "recent"
)

const (
	// DefaultRecommendationSize is used when the caller asks for zero or a
	// negative number of recommendations.
	DefaultRecommendationSize = 12
	// MaxPageSize caps the page size of search results.
	MaxPageSize = 100
	// maxRecommendationSize caps a single recommendation request.
	maxRecommendationSize = 50

	// topSellersSize is how many games the popularity metrics report.
	topSellersSize = 10
	// aggregationBuckets is how many buckets each grouped count returns.
	aggregationBuckets = 20
)

// textSearchFields are the weighted fields free-text search matches against:
// title hits dominate, tag hits count double, description is baseline.
var textSearchFields = []search.WeightedField{
	{Name: search.FieldName, Weight: 3},
	{Name: search.FieldTags, Weight: 2},
	{Name: search.FieldDescription, Weight: 1},
}

// CatalogService implements search, recommendations, popularity metrics and
// the reindex pipeline.
type CatalogService struct {
	repo   repository.ProductRepository
	engine search.Engine
	logger *slog.Logger
}

// NewCatalogService creates a new catalog service.
func NewCatalogService(repo repository.ProductRepository, engine search.Engine, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		repo:   repo,
		engine: engine,
		logger: logger,
	}
}

// SearchParams holds the parameters of a catalog search.
type SearchParams struct {
	Query    string
	Platform string
	Genre    string
	Tags     []string
	SortBy   string
	Page     int
	Size     int
}

// SearchResult is one page of search hits.
type SearchResult struct {
	Products    []domain.Product
	Total       int64
	Approximate bool
	Page        int
	Size        int
}

// Search executes a catalog search. Only active games are returned. The
// default ordering is the popularity chain; the relevance option ranks text
// queries by weighted match score with a popularity boost instead.
func (s *CatalogService) Search(ctx context.Context, params SearchParams) (*SearchResult, error) {
	if params.Page < 1 {
		return nil, apperrors.InvalidInput("page must be >= 1")
	}
	if params.Size < 1 {
		return nil, apperrors.InvalidInput("size must be >= 1")
	}
	if params.Size > MaxPageSize {
		params.Size = MaxPageSize
	}

	query := search.Query{
		Filters: []search.TermFilter{
			{Field: search.FieldActive, Value: true},
		},
		From: (params.Page - 1) * params.Size,
		Size: params.Size,
	}

	if text := strings.TrimSpace(params.Query); text != "" {
		query.Text = &search.TextMatch{
			Query:            text,
			Fields:           textSearchFields,
			Fuzziness:        1,
			PrefixBoostField: search.FieldName,
		}
	}

	if params.Platform != "" {
		query.Filters = append(query.Filters, search.TermFilter{Field: search.FieldPlatform, Value: params.Platform})
	}
	if params.Genre != "" {
		query.Filters = append(query.Filters, search.TermFilter{Field: search.FieldGenre, Value: params.Genre})
	}
	// Tags narrow to documents carrying at least one of the requested tags.
	if tags := normalizeTerms(params.Tags); len(tags) > 0 {
		query.FilterAnyOf = append(query.FilterAnyOf, search.TermsFilter{Field: search.FieldTags, Values: tags})
	}

	sortKeys, ok := sortChain(params.SortBy)
	if !ok {
		return nil, apperrors.InvalidInput("unknown sort option: " + params.SortBy)
	}
	query.Sort = sortKeys
	// Relevance ordering folds popularity into the score; explicit sorts
	// ignore the score entirely, so the boost would be wasted work.
	query.BoostPopularity = len(sortKeys) == 0

	result, err := s.engine.Search(ctx, query)
	if err != nil {
		return nil, apperrors.SearchUnavailable(err)
	}

	s.logger.DebugContext(ctx, "search executed",
		slog.String("query", params.Query),
		slog.String("sort", params.SortBy),
		slog.Int64("total", result.Total),
	)

	return &SearchResult{
		Products:    result.Documents,
		Total:       result.Total,
		Approximate: result.Approximate,
		Page:        params.Page,
		Size:        params.Size,
	}, nil
}

// sortChain maps a sort option to its sort keys. Popularity is the default.
// Relevance returns no keys: the engine orders by score. Every chain ends on
// name so paging is stable.
func sortChain(sortBy string) ([]search.SortKey, bool) {
	switch sortBy {
	case SortRelevance:
		return nil, true
	case "", SortPopularity:
		return []search.SortKey{
			{Field: search.FieldPopularity, Order: search.Desc},
			{Field: search.FieldMetacritic, Order: search.Desc},
			{Field: search.FieldNameKeyword, Order: search.Asc},
		}, true
	case SortMetacritic:
		return []search.SortKey{
			{Field: search.FieldMetacritic, Order: search.Desc},
			{Field: search.FieldPopularity, Order: search.Desc},
			{Field: search.FieldNameKeyword, Order: search.Asc},
		}, true
	case SortRecent:
		return []search.SortKey{
			{Field: search.FieldReleaseDate, Order: search.Desc},
			{Field: search.FieldPopularity, Order: search.Desc},
			{Field: search.FieldNameKeyword, Order: search.Asc},
		}, true
	default:
		return nil, false
	}
}

// RecommendParams holds the preference signals for recommendations. UserID is
// carried for log correlation only; affinity comes from the genres and tags.
type RecommendParams struct {
	UserID   string
	Genres   []string
	Tags     []string
	Platform string
	Size     int
}

// Recommend returns up to Size active games matching the caller's preferred
// genres or tags, ranked by affinity with a popularity boost. A platform, when
// given, is a hard filter on both passes. When affinity matches cannot fill
// the page, popular games on the same filter top up the remainder without
// duplicating anything already picked.
func (s *CatalogService) Recommend(ctx context.Context, params RecommendParams) ([]domain.Product, error) {
	size := params.Size
	if size <= 0 {
		size = DefaultRecommendationSize
	}
	if size > maxRecommendationSize {
		size = maxRecommendationSize
	}

	genres := normalizeTerms(params.Genres)
	tags := normalizeTerms(params.Tags)

	picked := make([]domain.Product, 0, size)
	seen := make(map[uuid.UUID]struct{}, size)

	if len(genres) > 0 || len(tags) > 0 {
		query := search.Query{
			Filters: []search.TermFilter{
				{Field: search.FieldActive, Value: true},
			},
			// Name breaks score ties so equal-affinity candidates come back
			// in a stable order.
			Sort: []search.SortKey{
				{Field: search.FieldScore, Order: search.Desc},
				{Field: search.FieldNameKeyword, Order: search.Asc},
			},
			BoostPopularity: true,
			Size:            size,
		}
		if params.Platform != "" {
			query.Filters = append(query.Filters, search.TermFilter{Field: search.FieldPlatform, Value: params.Platform})
		}
		if len(genres) > 0 {
			query.AnyOf = append(query.AnyOf, search.TermsFilter{Field: search.FieldGenre, Values: genres})
		}
		if len(tags) > 0 {
			query.AnyOf = append(query.AnyOf, search.TermsFilter{Field: search.FieldTags, Values: tags})
		}

		result, err := s.engine.Search(ctx, query)
		if err != nil {
			return nil, apperrors.RecommendationUnavailable(err)
		}

		for _, p := range result.Documents {
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			picked = append(picked, p)
		}
	}

	if len(picked) < size {
		fill, err := s.popularFill(ctx, params.Platform, size+len(picked))
		if err != nil {
			return nil, apperrors.RecommendationUnavailable(err)
		}
		for _, p := range fill {
			if len(picked) >= size {
				break
			}
			if _, dup := seen[p.ID]; dup {
				continue
			}
			seen[p.ID] = struct{}{}
			picked = append(picked, p)
		}
	}

	s.logger.DebugContext(ctx, "recommendations computed",
		slog.String("user_id", params.UserID),
		slog.Int("genres", len(genres)),
		slog.Int("tags", len(tags)),
		slog.Int("returned", len(picked)),
	)

	return picked, nil
}

// popularFill returns the most popular active games, optionally restricted to
// one platform. It over-fetches so the caller can drop duplicates and still
// fill its page.
func (s *CatalogService) popularFill(ctx context.Context, platform string, size int) ([]domain.Product, error) {
	filters := []search.TermFilter{
		{Field: search.FieldActive, Value: true},
	}
	if platform != "" {
		filters = append(filters, search.TermFilter{Field: search.FieldPlatform, Value: platform})
	}
	result, err := s.engine.Search(ctx, search.Query{
		Filters: filters,
		Sort: []search.SortKey{
			{Field: search.FieldPopularity, Order: search.Desc},
			{Field: search.FieldMetacritic, Order: search.Desc},
			{Field: search.FieldNameKeyword, Order: search.Asc},
		},
		Size: size,
	})
	if err != nil {
		return nil, err
	}
	return result.Documents, nil
}

// normalizeTerms trims whitespace, drops empties and removes case-insensitive
// duplicates while preserving the first casing and order of appearance.
func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// PopularMetrics is the aggregated popularity report.
type PopularMetrics struct {
	Genres     []search.Bucket  `json:"genres"`
	Platforms  []search.Bucket  `json:"platforms"`
	Tags       []search.Bucket  `json:"tags"`
	TopSellers []domain.Product `json:"top_sellers"`
}

// Popular returns grouped catalog counts by genre, platform and tag, plus the
// ten most popular active games. Grouped counts run over the whole indexed
// population; only the top-sellers list filters on active, because the index
// is rebuilt from active products and the counts are meant as catalog-shape
// telemetry rather than a storefront listing.
func (s *CatalogService) Popular(ctx context.Context) (*PopularMetrics, error) {
	aggs, err := s.engine.Aggregate(ctx, []search.TermsAggregation{
		{Name: "genres", Field: search.FieldGenre, Size: aggregationBuckets},
		{Name: "platforms", Field: search.FieldPlatform, Size: aggregationBuckets},
		{Name: "tags", Field: search.FieldTags, Size: aggregationBuckets},
	})
	if err != nil {
		return nil, apperrors.MetricsUnavailable(err)
	}

	top, err := s.popularFill(ctx, "", topSellersSize)
	if err != nil {
		return nil, apperrors.MetricsUnavailable(err)
	}

	return &PopularMetrics{
		Genres:     aggs["genres"],
		Platforms:  aggs["platforms"],
		Tags:       aggs["tags"],
		TopSellers: top,
	}, nil
}

// Reindex rebuilds the search index from the system of record: wipe the
// index, load every active product from Postgres, bulk index, refresh. It
// returns the number of documents indexed. A failure at any stage leaves the
// index in whatever state the stage reached; callers re-run to converge.
func (s *CatalogService) Reindex(ctx context.Context) (int, error) {
	start := time.Now()

	if err := s.engine.DeleteAll(ctx); err != nil {
		return 0, apperrors.ReindexFailed(err)
	}

	products, err := s.repo.GetAllActive(ctx)
	if err != nil {
		return 0, apperrors.ReindexFailed(err)
	}

	if err := s.engine.BulkIndex(ctx, products); err != nil {
		return 0, apperrors.ReindexFailed(err)
	}

	if err := s.engine.Refresh(ctx); err != nil {
		return 0, apperrors.ReindexFailed(err)
	}

	s.logger.InfoContext(ctx, "reindex completed",
		slog.Int("count", len(products)),
		slog.Duration("took", time.Since(start)),
	)

	return len(products), nil
}

// GetProduct returns a product by ID and registers the view. The view bump
// is best effort: a telemetry write never fails a read.
func (s *CatalogService) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.IncrementViews(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "failed to register product view",
			slog.String("product_id", id.String()),
			slog.String("error", err.Error()),
		)
	}

	return product, nil
}

// GetActiveProducts returns the active products among the given IDs, in
// arbitrary order. Inactive and unknown IDs are silently absent; callers that
// need all-or-nothing semantics compare lengths themselves.
func (s *CatalogService) GetActiveProducts(ctx context.Context, ids []uuid.UUID) ([]domain.Product, error) {
	return s.repo.GetActiveByIDs(ctx, ids)
}

// ListProducts returns one page of products newest-first plus the total count.
func (s *CatalogService) ListProducts(ctx context.Context, page, size int) ([]domain.Product, int64, error) {
	if page < 1 {
		return nil, 0, apperrors.InvalidInput("page must be >= 1")
	}
	if size < 1 {
		return nil, 0, apperrors.InvalidInput("size must be >= 1")
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	return s.repo.List(ctx, size, (page-1)*size)
}

// CreateProductInput holds the fields for registering a new game.
type CreateProductInput struct {
	Name          string     `json:"name" validate:"required,min=1,max=256"`
	Description   string     `json:"description"`
	Image         string     `json:"image"`
	Value         float64    `json:"value" validate:"gte=0"`
	StockQuantity int        `json:"stock_quantity" validate:"gte=0"`
	Genre         string     `json:"genre" validate:"required"`
	Platform      string     `json:"platform" validate:"required"`
	Tags          []string   `json:"tags"`
	Metacritic    *float64   `json:"metacritic" validate:"omitempty,gte=0,lte=100"`
	UserRating    *float64   `json:"user_rating" validate:"omitempty,gte=0,lte=10"`
	ReleaseDate   *time.Time `json:"release_date"`
}

// CreateProduct registers a new active game and indexes it. An indexing
// failure does not fail the create: the record is durable in Postgres and
// the next reindex converges the index.
func (s *CatalogService) CreateProduct(ctx context.Context, input CreateProductInput) (*domain.Product, error) {
	product := &domain.Product{
		ID:            uuid.New(),
		Name:          input.Name,
		Description:   input.Description,
		Image:         input.Image,
		Active:        true,
		Value:         input.Value,
		StockQuantity: input.StockQuantity,
		Genre:         input.Genre,
		Platform:      input.Platform,
		Tags:          input.Tags,
		Metacritic:    input.Metacritic,
		UserRating:    input.UserRating,
		ReleaseDate:   input.ReleaseDate,
		DateRegister:  time.Now().UTC(),
	}
	if product.Tags == nil {
		product.Tags = []string{}
	}

	if err := s.repo.Create(ctx, product); err != nil {
		return nil, err
	}

	if err := s.engine.Index(ctx, *product); err != nil {
		s.logger.WarnContext(ctx, "failed to index new product",
			slog.String("product_id", product.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "product created",
		slog.String("product_id", product.ID.String()),
		slog.String("name", product.Name),
	)

	return product, nil
}

// UpdateProductInput holds the fields for updating a game. All fields are
// replaced; the popularity counters are not touchable through this path.
type UpdateProductInput struct {
	Name          string     `json:"name" validate:"required,min=1,max=256"`
	Description   string     `json:"description"`
	Image         string     `json:"image"`
	Active        bool       `json:"active"`
	Value         float64    `json:"value" validate:"gte=0"`
	StockQuantity int        `json:"stock_quantity" validate:"gte=0"`
	Genre         string     `json:"genre" validate:"required"`
	Platform      string     `json:"platform" validate:"required"`
	Tags          []string   `json:"tags"`
	Metacritic    *float64   `json:"metacritic" validate:"omitempty,gte=0,lte=100"`
	UserRating    *float64   `json:"user_rating" validate:"omitempty,gte=0,lte=10"`
	ReleaseDate   *time.Time `json:"release_date"`
}

// UpdateProduct updates an existing game and re-indexes it.
func (s *CatalogService) UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*domain.Product, error) {
	product, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	product.Name = input.Name
	product.Description = input.Description
	product.Image = input.Image
	product.Active = input.Active
	product.Value = input.Value
	product.StockQuantity = input.StockQuantity
	product.Genre = input.Genre
	product.Platform = input.Platform
	product.Tags = input.Tags
	product.Metacritic = input.Metacritic
	product.UserRating = input.UserRating
	product.ReleaseDate = input.ReleaseDate
	if product.Tags == nil {
		product.Tags = []string{}
	}

	if err := s.repo.Update(ctx, product); err != nil {
		return nil, err
	}

	if err := s.engine.Index(ctx, *product); err != nil {
		s.logger.WarnContext(ctx, "failed to re-index updated product",
			slog.String("product_id", product.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	return product, nil
}
