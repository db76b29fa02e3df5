package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudgames/catalog/internal/domain"
	"github.com/cloudgames/catalog/internal/search"
	"github.com/cloudgames/catalog/internal/search/memory"
	apperrors "github.com/cloudgames/catalog/pkg/errors"
)

func game(name, genre, platform string, tags []string, popularity int64) domain.Product {
	return domain.Product{
		ID:              uuid.New(),
		Name:            name,
		Genre:           genre,
		Platform:        platform,
		Tags:            tags,
		Active:          true,
		StockQuantity:   10,
		PopularityScore: popularity,
		DateRegister:    time.Now(),
	}
}

func newCatalog(t *testing.T, products ...domain.Product) (*CatalogService, *memory.Engine, *fakeRepo) {
	t.Helper()
	engine := memory.New()
	require.NoError(t, engine.BulkIndex(context.Background(), products))
	repo := newFakeRepo(products...)
	return NewCatalogService(repo, engine, testLogger()), engine, repo
}

func productNames(products []domain.Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.Name)
	}
	return out
}

func TestSearch_RejectsInvalidPaging(t *testing.T) {
	svc, _, _ := newCatalog(t)

	_, err := svc.Search(context.Background(), SearchParams{Page: 0, Size: 10})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.Search(context.Background(), SearchParams{Page: 1, Size: 0})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestSearch_RejectsUnknownSort(t *testing.T) {
	svc, _, _ := newCatalog(t)

	_, err := svc.Search(context.Background(), SearchParams{Page: 1, Size: 10, SortBy: "alphabetical"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestSearch_ExcludesInactiveGames(t *testing.T) {
	hidden := game("Hidden Gem", "RPG", "PC", nil, 500)
	hidden.Active = false

	svc, _, _ := newCatalog(t, game("Visible", "RPG", "PC", nil, 1), hidden)

	result, err := svc.Search(context.Background(), SearchParams{Page: 1, Size: 10})
	require.NoError(t, err)

	assert.Equal(t, []string{"Visible"}, productNames(result.Products))
	assert.Equal(t, int64(1), result.Total)
}

func TestSearch_PopularitySortChain(t *testing.T) {
	low := game("Low", "Action", "PC", nil, 1)
	high := game("High", "Action", "PC", nil, 100)
	tiedA := game("Aardvark", "Action", "PC", nil, 50)
	tiedB := game("Zebra", "Action", "PC", nil, 50)

	svc, _, _ := newCatalog(t, low, tiedB, high, tiedA)

	result, err := svc.Search(context.Background(), SearchParams{Page: 1, Size: 10, SortBy: SortPopularity})
	require.NoError(t, err)

	assert.Equal(t, []string{"High", "Aardvark", "Zebra", "Low"}, productNames(result.Products))
}

func TestSearch_DefaultSortIsPopularity(t *testing.T) {
	svc, _, _ := newCatalog(t,
		game("Modest", "Action", "PC", nil, 1),
		game("Hit", "Action", "PC", nil, 100),
	)

	result, err := svc.Search(context.Background(), SearchParams{Page: 1, Size: 10})
	require.NoError(t, err)

	assert.Equal(t, []string{"Hit", "Modest"}, productNames(result.Products))
}

func TestSearch_RecentSortPutsUndatedLast(t *testing.T) {
	old := game("Old", "Action", "PC", nil, 0)
	oldDate := time.Date(2015, 6, 1, 0, 0, 0, 0, time.UTC)
	old.ReleaseDate = &oldDate

	fresh := game("Fresh", "Action", "PC", nil, 0)
	freshDate := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	fresh.ReleaseDate = &freshDate

	undated := game("Undated", "Action", "PC", nil, 999)

	svc, _, _ := newCatalog(t, old, undated, fresh)

	result, err := svc.Search(context.Background(), SearchParams{Page: 1, Size: 10, SortBy: SortRecent})
	require.NoError(t, err)

	assert.Equal(t, []string{"Fresh", "Old", "Undated"}, productNames(result.Products))
}

func TestSearch_TextQueryWithFilters(t *testing.T) {
	svc, _, _ := newCatalog(t,
		game("Dark Souls", "RPG", "PC", nil, 10),
		game("Dark Souls", "RPG", "PS5", nil, 10),
		game("Bright Puzzle", "Puzzle", "PC", nil, 10),
	)

	result, err := svc.Search(context.Background(), SearchParams{
		Query:    "dark",
		Platform: "PS5",
		Page:     1,
		Size:     10,
	})
	require.NoError(t, err)

	require.Len(t, result.Products, 1)
	assert.Equal(t, "PS5", result.Products[0].Platform)
}

func TestSearch_TagsFilterMatchesAnyListedTag(t *testing.T) {
	svc, _, _ := newCatalog(t,
		game("Soulslike Pick", "RPG", "PC", []string{"soulslike"}, 10),
		game("Roguelike Pick", "Action", "PC", []string{"roguelike"}, 10),
		game("Untagged", "Puzzle", "PC", nil, 10),
	)

	result, err := svc.Search(context.Background(), SearchParams{
		Tags: []string{"soulslike", "roguelike"},
		Page: 1,
		Size: 10,
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"Soulslike Pick", "Roguelike Pick"}, productNames(result.Products))
}

func TestRecommend_MatchesGenreAndTagAffinity(t *testing.T) {
	svc, _, _ := newCatalog(t,
		game("RPG Pick", "RPG", "PC", nil, 10),
		game("Tagged Pick", "Action", "PC", []string{"soulslike"}, 10),
		game("Filler", "Puzzle", "PC", nil, 1000),
	)

	products, err := svc.Recommend(context.Background(), RecommendParams{
		Genres: []string{" RPG ", "rpg"},
		Tags:   []string{"Soulslike"},
		Size:   2,
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"RPG Pick", "Tagged Pick"}, productNames(products))
}

func TestRecommend_FillsShortfallWithPopularGames(t *testing.T) {
	svc, _, _ := newCatalog(t,
		game("Only RPG", "RPG", "PC", nil, 5),
		game("Blockbuster", "Shooter", "PC", nil, 900),
		game("Also Popular", "Racing", "PC", nil, 800),
	)

	products, err := svc.Recommend(context.Background(), RecommendParams{
		Genres: []string{"RPG"},
		Size:   3,
	})
	require.NoError(t, err)

	names := productNames(products)
	require.Len(t, names, 3)
	// Affinity matches come first, popular fill follows without duplicates.
	assert.Equal(t, "Only RPG", names[0])
	assert.ElementsMatch(t, []string{"Blockbuster", "Also Popular"}, names[1:])
}

func TestRecommend_NoPreferencesReturnsPopular(t *testing.T) {
	svc, _, _ := newCatalog(t,
		game("Third", "A", "PC", nil, 10),
		game("First", "B", "PC", nil, 1000),
		game("Second", "C", "PC", nil, 500),
	)

	products, err := svc.Recommend(context.Background(), RecommendParams{Size: 2})
	require.NoError(t, err)

	assert.Equal(t, []string{"First", "Second"}, productNames(products))
}

func TestRecommend_DefaultSize(t *testing.T) {
	all := make([]domain.Product, 0, 20)
	for i := 0; i < 20; i++ {
		all = append(all, game(uuid.NewString(), "Action", "PC", nil, int64(i)))
	}

	svc, _, _ := newCatalog(t, all...)

	products, err := svc.Recommend(context.Background(), RecommendParams{Size: 0})
	require.NoError(t, err)

	assert.Len(t, products, DefaultRecommendationSize)
}

func TestRecommend_PlatformFiltersBothPasses(t *testing.T) {
	svc, _, _ := newCatalog(t,
		game("RPG on PC", "RPG", "PC", nil, 10),
		game("RPG on Switch", "RPG", "Switch", nil, 500),
		game("PC Hit", "Shooter", "PC", nil, 900),
		game("Switch Hit", "Shooter", "Switch", nil, 900),
	)

	products, err := svc.Recommend(context.Background(), RecommendParams{
		Genres:   []string{"RPG"},
		Platform: "Switch",
		Size:     3,
	})
	require.NoError(t, err)

	// The affinity match and the popular fill both stay on the platform.
	assert.Equal(t, []string{"RPG on Switch", "Switch Hit"}, productNames(products))
}

func TestRecommend_AffinityPassSortsByScoreThenName(t *testing.T) {
	engine := &recordingEngine{Engine: memory.New()}
	require.NoError(t, engine.BulkIndex(context.Background(), []domain.Product{
		game("Beta Quest", "RPG", "PC", nil, 10),
		game("Alpha Quest", "RPG", "PC", nil, 10),
	}))
	svc := NewCatalogService(newFakeRepo(), engine, testLogger())

	products, err := svc.Recommend(context.Background(), RecommendParams{
		Genres: []string{"RPG"},
		Size:   2,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Alpha Quest", "Beta Quest"}, productNames(products))

	// The affinity query itself must carry the tie-break, not rely on the
	// engine's default ordering.
	require.NotEmpty(t, engine.queries)
	assert.Equal(t, []search.SortKey{
		{Field: search.FieldScore, Order: search.Desc},
		{Field: search.FieldNameKeyword, Order: search.Asc},
	}, engine.queries[0].Sort)
}

func TestRecommend_ExcludesInactiveFromFill(t *testing.T) {
	inactive := game("Delisted Hit", "Shooter", "PC", nil, 9999)
	inactive.Active = false

	svc, _, _ := newCatalog(t, inactive, game("Modest", "Puzzle", "PC", nil, 1))

	products, err := svc.Recommend(context.Background(), RecommendParams{Size: 5})
	require.NoError(t, err)

	assert.Equal(t, []string{"Modest"}, productNames(products))
}

func TestPopular_GroupsAndTopSellers(t *testing.T) {
	svc, _, _ := newCatalog(t,
		game("A", "Action", "PC", []string{"indie"}, 100),
		game("B", "Action", "Switch", []string{"indie"}, 50),
		game("C", "RPG", "PC", nil, 10),
	)

	metrics, err := svc.Popular(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []search.Bucket{{Key: "Action", Count: 2}, {Key: "RPG", Count: 1}}, metrics.Genres)
	assert.Equal(t, []search.Bucket{{Key: "PC", Count: 2}, {Key: "Switch", Count: 1}}, metrics.Platforms)
	assert.Equal(t, []search.Bucket{{Key: "indie", Count: 2}}, metrics.Tags)
	assert.Equal(t, []string{"A", "B", "C"}, productNames(metrics.TopSellers))
}

func TestReindex_RebuildsFromActiveProducts(t *testing.T) {
	stale := game("Stale Doc", "Action", "PC", nil, 0)
	inactive := game("Inactive", "Action", "PC", nil, 0)
	inactive.Active = false
	kept := game("Kept", "Action", "PC", nil, 0)

	engine := memory.New()
	// Index starts with a document that no longer exists in the store.
	require.NoError(t, engine.BulkIndex(context.Background(), []domain.Product{stale}))

	repo := newFakeRepo(kept, inactive)
	svc := NewCatalogService(repo, engine, testLogger())

	count, err := svc.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	result, err := engine.Search(context.Background(), search.Query{Size: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"Kept"}, productNames(result.Documents))
}

func TestReindex_WrapsEngineFailure(t *testing.T) {
	repo := newFakeRepo()
	svc := NewCatalogService(repo, failingEngine{}, testLogger())

	_, err := svc.Reindex(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrReindexFailed)
}

func TestGetProduct_RegistersView(t *testing.T) {
	p := game("Viewed", "Action", "PC", nil, 0)
	svc, _, repo := newCatalog(t, p)

	got, err := svc.GetProduct(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Viewed", got.Name)
	assert.Equal(t, int64(1), repo.products[p.ID].Views)
}

// recordingEngine keeps every search query it receives before delegating.
type recordingEngine struct {
	search.Engine
	queries []search.Query
}

func (r *recordingEngine) Search(ctx context.Context, query search.Query) (*search.Result, error) {
	r.queries = append(r.queries, query)
	return r.Engine.Search(ctx, query)
}

// failingEngine errors on every operation.
type failingEngine struct{}

var errEngineDown = errors.New("engine down")

func (failingEngine) Index(context.Context, domain.Product) error       { return errEngineDown }
func (failingEngine) BulkIndex(context.Context, []domain.Product) error { return errEngineDown }
func (failingEngine) DeleteAll(context.Context) error                   { return errEngineDown }
func (failingEngine) Refresh(context.Context) error                     { return errEngineDown }
func (failingEngine) Ping(context.Context) error                        { return errEngineDown }
func (failingEngine) Search(context.Context, search.Query) (*search.Result, error) {
	return nil, errEngineDown
}
func (failingEngine) Aggregate(context.Context, []search.TermsAggregation) (map[string][]search.Bucket, error) {
	return nil, errEngineDown
}
