// Package search defines the engine abstraction the catalog ranks and
// recommends against. The query model is deliberately small: weighted text
// matching, term filters, an optional any-of clause for affinity matching,
// and multi-key sorting. Backends translate it into their native form.
package search

import (
	"context"

	"github.com/cloudgames/catalog/internal/domain"
)

// Document field names shared by all engine backends.
const (
	FieldName        = "name"
	FieldNameKeyword = "name.keyword"
	FieldDescription = "description"
	FieldTags        = "tags"
	FieldGenre       = "genre"
	FieldPlatform    = "platform"
	FieldActive      = "active"
	FieldPopularity  = "popularity_score"
	FieldMetacritic  = "metacritic"
	FieldReleaseDate = "release_date"

	// FieldScore sorts by relevance score instead of a document field.
	FieldScore = "_score"
)

// TrackTotalLimit caps exact hit counting. Totals at or above the limit are
// reported as approximate.
const TrackTotalLimit = 10000

// SortOrder is the direction of a sort key.
type SortOrder string

const (
	Asc  SortOrder = "asc"
	Desc SortOrder = "desc"
)

// SortKey is one element of a sort chain.
type SortKey struct {
	Field string
	Order SortOrder
}

// WeightedField names a text field and its relative weight in scoring.
type WeightedField struct {
	Name   string
	Weight float64
}

// TextMatch describes free-text matching over weighted fields. Fuzziness is
// the maximum edit distance per term. If PrefixBoostField is set, documents
// whose field value starts with the query get an extra relevance boost, which
// favors prefix hits for partial titles.
type TextMatch struct {
	Query            string
	Fields           []WeightedField
	Fuzziness        int
	PrefixBoostField string
}

// TermFilter requires an exact value on a field.
type TermFilter struct {
	Field string
	Value any
}

// TermsFilter matches documents whose field holds any of the given values.
type TermsFilter struct {
	Field  string
	Values []string
}

// Query is a search request against the engine.
//
// Text and AnyOf are scoring clauses: a document matches if it satisfies the
// text match or any of the AnyOf clauses (at least one must hit when either
// is present). Filters and FilterAnyOf are hard constraints that never affect
// the score; a FilterAnyOf clause passes when the field holds at least one of
// its values. BoostPopularity folds log-scaled popularity into the relevance
// score.
type Query struct {
	Text            *TextMatch
	Filters         []TermFilter
	FilterAnyOf     []TermsFilter
	AnyOf           []TermsFilter
	BoostPopularity bool
	Sort            []SortKey
	From            int
	Size            int
}

// Result holds one page of hits. Approximate is true when Total hit the
// TrackTotalLimit cap and the real count may be higher.
type Result struct {
	Documents   []domain.Product
	Total       int64
	Approximate bool
}

// TermsAggregation requests the top buckets of a keyword field by document
// count.
type TermsAggregation struct {
	Name  string
	Field string
	Size  int
}

// Bucket is one aggregation bucket.
type Bucket struct {
	Key   string
	Count int64
}

// Engine indexes products and answers queries. Implementations must be safe
// for concurrent use.
type Engine interface {
	// Index upserts a single product document.
	Index(ctx context.Context, product domain.Product) error
	// BulkIndex upserts a batch of product documents.
	BulkIndex(ctx context.Context, products []domain.Product) error
	// DeleteAll removes every document from the index.
	DeleteAll(ctx context.Context) error
	// Refresh makes all prior writes visible to searches.
	Refresh(ctx context.Context) error
	// Search executes a query and returns one page of results.
	Search(ctx context.Context, query Query) (*Result, error)
	// Aggregate computes terms aggregations over the whole index.
	Aggregate(ctx context.Context, aggs []TermsAggregation) (map[string][]Bucket, error)
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}
