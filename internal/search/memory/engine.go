// Package memory implements search.Engine entirely in memory. It backs unit
// tests and local development where no Elasticsearch cluster is available,
// approximating the same scoring model: weighted term matching with bounded
// edit distance, a prefix boost on names, and a log-scaled popularity boost.
package memory

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cloudgames/catalog/internal/domain"
	"github.com/cloudgames/catalog/internal/search"
)

// Engine is an in-memory implementation of search.Engine. Thread-safe via
// sync.RWMutex.
type Engine struct {
	mu       sync.RWMutex
	products map[uuid.UUID]domain.Product
}

// New creates a new in-memory search engine.
func New() *Engine {
	return &Engine{
		products: make(map[uuid.UUID]domain.Product),
	}
}

// Ping always succeeds.
func (e *Engine) Ping(_ context.Context) error { return nil }

// Index adds or updates a single product.
func (e *Engine) Index(_ context.Context, product domain.Product) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.products[product.ID] = product
	return nil
}

// BulkIndex adds or updates multiple products.
func (e *Engine) BulkIndex(_ context.Context, products []domain.Product) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range products {
		e.products[products[i].ID] = products[i]
	}
	return nil
}

// DeleteAll removes every document.
func (e *Engine) DeleteAll(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.products = make(map[uuid.UUID]domain.Product)
	return nil
}

// Refresh is a no-op: writes are immediately visible.
func (e *Engine) Refresh(_ context.Context) error { return nil }

// scored pairs a product with its relevance score for sorting.
type scored struct {
	product domain.Product
	score   float64
}

// Search executes a query against the in-memory index.
func (e *Engine) Search(_ context.Context, query search.Query) (*search.Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	matched := make([]scored, 0)

	for _, p := range e.products {
		if !passesFilters(p, query.Filters) || !passesAnyOfFilters(p, query.FilterAnyOf) {
			continue
		}

		score, ok := scoreShould(p, query)
		if !ok {
			continue
		}

		if query.BoostPopularity {
			score += math.Log1p(float64(p.PopularityScore))
		}

		matched = append(matched, scored{product: p, score: score})
	}

	sortMatches(matched, query.Sort)

	total := int64(len(matched))
	approximate := false
	if total >= search.TrackTotalLimit {
		total = search.TrackTotalLimit
		approximate = true
	}

	from := query.From
	if from > len(matched) {
		from = len(matched)
	}
	end := from + query.Size
	if query.Size <= 0 || end > len(matched) {
		end = len(matched)
	}

	documents := make([]domain.Product, 0, end-from)
	for _, m := range matched[from:end] {
		documents = append(documents, m.product)
	}

	return &search.Result{
		Documents:   documents,
		Total:       total,
		Approximate: approximate,
	}, nil
}

// Aggregate counts field values across the whole index and returns the top
// buckets by document count.
func (e *Engine) Aggregate(_ context.Context, aggs []search.TermsAggregation) (map[string][]search.Bucket, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make(map[string][]search.Bucket, len(aggs))

	for _, agg := range aggs {
		counts := make(map[string]int64)
		for _, p := range e.products {
			for _, v := range fieldTerms(p, agg.Field) {
				if v != "" {
					counts[v]++
				}
			}
		}

		buckets := make([]search.Bucket, 0, len(counts))
		for key, count := range counts {
			buckets = append(buckets, search.Bucket{Key: key, Count: count})
		}

		// Highest count first, ties broken by key for determinism.
		sort.Slice(buckets, func(i, j int) bool {
			if buckets[i].Count != buckets[j].Count {
				return buckets[i].Count > buckets[j].Count
			}
			return buckets[i].Key < buckets[j].Key
		})

		if agg.Size > 0 && len(buckets) > agg.Size {
			buckets = buckets[:agg.Size]
		}
		result[agg.Name] = buckets
	}

	return result, nil
}

// passesFilters applies the hard term filters.
func passesFilters(p domain.Product, filters []search.TermFilter) bool {
	for _, f := range filters {
		switch f.Field {
		case search.FieldActive:
			want, ok := f.Value.(bool)
			if !ok || p.Active != want {
				return false
			}
		default:
			want, ok := f.Value.(string)
			if !ok || !containsFold(fieldTerms(p, f.Field), want) {
				return false
			}
		}
	}
	return true
}

// passesAnyOfFilters applies the hard any-of filters: each clause passes when
// the field holds at least one of its values.
func passesAnyOfFilters(p domain.Product, filters []search.TermsFilter) bool {
	for _, f := range filters {
		terms := fieldTerms(p, f.Field)
		hit := false
		for _, want := range f.Values {
			if containsFold(terms, want) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// scoreShould evaluates the scoring clauses. When neither text nor any-of
// clauses are present every document matches with score zero. Otherwise at
// least one clause must hit.
func scoreShould(p domain.Product, query search.Query) (float64, bool) {
	hasText := query.Text != nil && query.Text.Query != ""
	if !hasText && len(query.AnyOf) == 0 {
		return 0, true
	}

	var score float64
	matchedAny := false

	if hasText {
		if s := scoreText(p, query.Text); s > 0 {
			score += s
			matchedAny = true
		}
	}

	for _, anyOf := range query.AnyOf {
		terms := fieldTerms(p, anyOf.Field)
		for _, want := range anyOf.Values {
			if containsFold(terms, want) {
				score++
				matchedAny = true
				break
			}
		}
	}

	return score, matchedAny
}

// scoreText scores the weighted text match: each query term contributes the
// weight of the best matching field, with a prefix boost when the boost field
// starts with the whole query.
func scoreText(p domain.Product, text *search.TextMatch) float64 {
	queryLower := strings.ToLower(text.Query)
	terms := strings.Fields(queryLower)
	if len(terms) == 0 {
		return 0
	}

	var score float64
	for _, term := range terms {
		var best float64
		for _, field := range text.Fields {
			if !termMatchesField(term, fieldText(p, field.Name), text.Fuzziness) {
				continue
			}
			weight := field.Weight
			if weight <= 0 {
				weight = 1
			}
			if weight > best {
				best = weight
			}
		}
		score += best
	}

	if score > 0 && text.PrefixBoostField != "" {
		if strings.HasPrefix(strings.ToLower(fieldText(p, text.PrefixBoostField)), queryLower) {
			score += 2
		}
	}

	return score
}

// termMatchesField reports whether a lowered query term matches any token of
// the field text, allowing up to fuzziness edits per token.
func termMatchesField(term, fieldValue string, fuzziness int) bool {
	for _, token := range strings.Fields(strings.ToLower(fieldValue)) {
		if token == term || strings.HasPrefix(token, term) {
			return true
		}
		if fuzziness > 0 && editDistanceAtMost(token, term, fuzziness) {
			return true
		}
	}
	return false
}

// editDistanceAtMost reports whether the Levenshtein distance between a and b
// is at most max. Early-exits on length difference.
func editDistanceAtMost(a, b string, max int) bool {
	ra, rb := []rune(a), []rune(b)
	if abs(len(ra)-len(rb)) > max {
		return false
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(min(prev[j]+1, curr[j-1]+1), prev[j-1]+cost)
			if curr[j] < rowMin {
				rowMin = curr[j]
			}
		}
		if rowMin > max {
			return false
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)] <= max
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// fieldText returns the full text of a field for matching.
func fieldText(p domain.Product, field string) string {
	switch field {
	case search.FieldName, search.FieldNameKeyword:
		return p.Name
	case search.FieldDescription:
		return p.Description
	case search.FieldTags:
		return strings.Join(p.Tags, " ")
	case search.FieldGenre:
		return p.Genre
	case search.FieldPlatform:
		return p.Platform
	default:
		return ""
	}
}

// fieldTerms returns the exact term values of a keyword field.
func fieldTerms(p domain.Product, field string) []string {
	switch field {
	case search.FieldGenre:
		return []string{p.Genre}
	case search.FieldPlatform:
		return []string{p.Platform}
	case search.FieldTags:
		return p.Tags
	case search.FieldName, search.FieldNameKeyword:
		return []string{p.Name}
	default:
		return nil
	}
}

// containsFold reports whether values contains want, ignoring case.
func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}

// sortMatches applies the sort chain. With no explicit sort, results order by
// relevance score descending with name as the tiebreaker.
func sortMatches(matched []scored, keys []search.SortKey) {
	if len(keys) == 0 {
		keys = []search.SortKey{{Field: search.FieldScore, Order: search.Desc}}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		for _, key := range keys {
			cmp := compareByKey(matched[i], matched[j], key)
			if cmp != 0 {
				return cmp < 0
			}
		}
		// Stable tiebreaker so paging never shuffles equal rows.
		return matched[i].product.Name < matched[j].product.Name
	})
}

// compareByKey compares two matches on a single sort key. Returns a negative
// value when a sorts before b. Nil numeric fields sort last in either order.
func compareByKey(a, b scored, key search.SortKey) int {
	desc := key.Order == search.Desc

	switch key.Field {
	case search.FieldScore:
		return compareFloat(a.score, b.score, desc)
	case search.FieldPopularity:
		return compareFloat(float64(a.product.PopularityScore), float64(b.product.PopularityScore), desc)
	case search.FieldMetacritic:
		return compareNullableFloat(a.product.Metacritic, b.product.Metacritic, desc)
	case search.FieldReleaseDate:
		return compareNullableTime(a.product.ReleaseDate, b.product.ReleaseDate, desc)
	case search.FieldName, search.FieldNameKeyword:
		return compareString(a.product.Name, b.product.Name, desc)
	default:
		return 0
	}
}

func compareFloat(a, b float64, desc bool) int {
	if a == b {
		return 0
	}
	if (a > b) == desc {
		return -1
	}
	return 1
}

func compareString(a, b string, desc bool) int {
	if a == b {
		return 0
	}
	if (a > b) == desc {
		return -1
	}
	return 1
}

func compareNullableFloat(a, b *float64, desc bool) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return compareFloat(*a, *b, desc)
}

func compareNullableTime(a, b *time.Time, desc bool) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Equal(*b):
		return 0
	}
	if a.After(*b) == desc {
		return -1
	}
	return 1
}
