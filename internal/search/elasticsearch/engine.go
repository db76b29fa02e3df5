// Package elasticsearch implements the search.Engine interface on top of an
// Elasticsearch cluster, building the query DSL as maps.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/cloudgames/catalog/internal/domain"
	"github.com/cloudgames/catalog/internal/search"
)

// Engine is an Elasticsearch-backed implementation of search.Engine.
type Engine struct {
	client    *elasticsearch.Client
	indexName string
	logger    *slog.Logger
}

// esSearchResponse decodes Elasticsearch search responses.
type esSearchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Total struct {
			Value    int64  `json:"value"`
			Relation string `json:"relation"`
		} `json:"total"`
		Hits []struct {
			Source domain.Product `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		Buckets []struct {
			Key      any   `json:"key"`
			DocCount int64 `json:"doc_count"`
		} `json:"buckets"`
	} `json:"aggregations"`
}

// esBulkResponse decodes Elasticsearch bulk responses.
type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

// esErrorResponse decodes Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates an Elasticsearch engine connected to the given URL. It ensures
// the game index exists, creating it with the catalog mapping if necessary.
// If indexName is empty, DefaultIndexName is used.
func New(esURL string, indexName string, logger *slog.Logger) (*Engine, error) {
	if indexName == "" {
		indexName = DefaultIndexName
	}

	cfg := elasticsearch.Config{
		Addresses: []string{esURL},
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to create client: %w", err)
	}

	e := &Engine{
		client:    client,
		indexName: indexName,
		logger:    logger,
	}

	if err := e.ensureIndex(); err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to ensure index: %w", err)
	}

	return e, nil
}

// Ping checks whether the Elasticsearch cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// ensureIndex checks whether the game index exists and creates it if not.
func (e *Engine) ensureIndex() error {
	res, err := e.client.Indices.Exists([]string{e.indexName})
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == 200 {
		e.logger.Info("elasticsearch index already exists", "index", e.indexName)
		return nil
	}

	mapping := buildIndexMapping()
	res, err = e.client.Indices.Create(
		e.indexName,
		e.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("create index: %s", e.decodeError(res.Body, res.Status()))
	}

	e.logger.Info("elasticsearch index created", "index", e.indexName)
	return nil
}

// decodeError extracts type and reason from an ES error body, falling back to
// the HTTP status line.
func (e *Engine) decodeError(body io.Reader, status string) string {
	var errResp esErrorResponse
	if decErr := json.NewDecoder(body).Decode(&errResp); decErr == nil && errResp.Error.Type != "" {
		return fmt.Sprintf("%s: %s", errResp.Error.Type, errResp.Error.Reason)
	}
	return fmt.Sprintf("unexpected status %s", status)
}

// Index adds or updates a single game document.
func (e *Engine) Index(ctx context.Context, product domain.Product) error {
	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("elasticsearch index: marshal product: %w", err)
	}

	res, err := e.client.Index(
		e.indexName,
		bytes.NewReader(data),
		e.client.Index.WithDocumentID(product.ID.String()),
		e.client.Index.WithRefresh("true"),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch index: %s", e.decodeError(res.Body, res.Status()))
	}

	e.logger.Debug("indexed product", "id", product.ID, "name", product.Name)
	return nil
}

// BulkIndex adds or updates multiple game documents using the bulk NDJSON API.
func (e *Engine) BulkIndex(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	var buf bytes.Buffer

	for i := range products {
		action := map[string]interface{}{
			"index": map[string]interface{}{
				"_index": e.indexName,
				"_id":    products[i].ID.String(),
			},
		}
		if err := json.NewEncoder(&buf).Encode(action); err != nil {
			return fmt.Errorf("elasticsearch bulk index: encode action: %w", err)
		}

		if err := json.NewEncoder(&buf).Encode(products[i]); err != nil {
			return fmt.Errorf("elasticsearch bulk index: encode document: %w", err)
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.indexName),
		e.client.Bulk.WithRefresh("true"),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch bulk index: %s", e.decodeError(res.Body, res.Status()))
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("elasticsearch bulk index: decode response: %w", err)
	}

	if bulkResp.Errors {
		var errMsgs []string
		for _, item := range bulkResp.Items {
			if item.Index.Error.Type != "" {
				errMsgs = append(errMsgs, fmt.Sprintf("id=%s: %s: %s", item.Index.ID, item.Index.Error.Type, item.Index.Error.Reason))
			}
		}
		return fmt.Errorf("elasticsearch bulk index: partial errors: %s", strings.Join(errMsgs, "; "))
	}

	e.logger.Info("bulk indexed products", "count", len(products))
	return nil
}

// DeleteAll removes every document from the index via delete_by_query with
// conflicts=proceed, so concurrent writers never fail the wipe.
func (e *Engine) DeleteAll(ctx context.Context) error {
	body := `{"query":{"match_all":{}}}`

	res, err := e.client.DeleteByQuery(
		[]string{e.indexName},
		strings.NewReader(body),
		e.client.DeleteByQuery.WithConflicts("proceed"),
		e.client.DeleteByQuery.WithRefresh(true),
		e.client.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete all: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch delete all: %s", e.decodeError(res.Body, res.Status()))
	}

	e.logger.Info("cleared index", "index", e.indexName)
	return nil
}

// Refresh makes all prior writes visible to searches.
func (e *Engine) Refresh(ctx context.Context) error {
	res, err := e.client.Indices.Refresh(
		e.client.Indices.Refresh.WithIndex(e.indexName),
		e.client.Indices.Refresh.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch refresh: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch refresh: %s", e.decodeError(res.Body, res.Status()))
	}
	return nil
}

// Search executes a query and returns one page of results.
func (e *Engine) Search(ctx context.Context, query search.Query) (*search.Result, error) {
	esQuery := buildSearchBody(query)

	data, err := json.Marshal(esQuery)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search: %s", e.decodeError(res.Body, res.Status()))
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch search: decode response: %w", err)
	}

	products := make([]domain.Product, 0, len(esResp.Hits.Hits))
	for _, hit := range esResp.Hits.Hits {
		products = append(products, hit.Source)
	}

	return &search.Result{
		Documents:   products,
		Total:       esResp.Hits.Total.Value,
		Approximate: esResp.Hits.Total.Relation == "gte",
	}, nil
}

// Aggregate computes terms aggregations over the whole index with size 0.
func (e *Engine) Aggregate(ctx context.Context, aggs []search.TermsAggregation) (map[string][]search.Bucket, error) {
	aggsBody := make(map[string]interface{}, len(aggs))
	for _, agg := range aggs {
		aggsBody[agg.Name] = map[string]interface{}{
			"terms": map[string]interface{}{
				"field": agg.Field,
				"size":  agg.Size,
			},
		}
	}

	body := map[string]interface{}{
		"size": 0,
		"aggs": aggsBody,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch aggregate: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch aggregate: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch aggregate: %s", e.decodeError(res.Body, res.Status()))
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch aggregate: decode response: %w", err)
	}

	result := make(map[string][]search.Bucket, len(esResp.Aggregations))
	for name, agg := range esResp.Aggregations {
		buckets := make([]search.Bucket, 0, len(agg.Buckets))
		for _, b := range agg.Buckets {
			buckets = append(buckets, search.Bucket{
				Key:   bucketKey(b.Key),
				Count: b.DocCount,
			})
		}
		result[name] = buckets
	}

	return result, nil
}

// bucketKey renders an aggregation bucket key, which ES may return as a
// string or a number depending on the field type.
func bucketKey(key any) string {
	switch v := key.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// buildSearchBody translates the engine query into the Elasticsearch DSL.
func buildSearchBody(query search.Query) map[string]interface{} {
	boolQuery := map[string]interface{}{}

	var should []interface{}
	if query.Text != nil && query.Text.Query != "" {
		fields := make([]string, 0, len(query.Text.Fields))
		for _, f := range query.Text.Fields {
			if f.Weight > 0 && f.Weight != 1 {
				fields = append(fields, fmt.Sprintf("%s^%g", f.Name, f.Weight))
			} else {
				fields = append(fields, f.Name)
			}
		}

		should = append(should, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     query.Text.Query,
				"fields":    fields,
				"type":      "best_fields",
				"fuzziness": strconv.Itoa(query.Text.Fuzziness),
			},
		})

		if query.Text.PrefixBoostField != "" {
			should = append(should, map[string]interface{}{
				"match_phrase_prefix": map[string]interface{}{
					query.Text.PrefixBoostField: map[string]interface{}{
						"query": query.Text.Query,
						"boost": 2,
					},
				},
			})
		}
	}

	for _, anyOf := range query.AnyOf {
		should = append(should, map[string]interface{}{
			"terms": map[string]interface{}{
				anyOf.Field: anyOf.Values,
			},
		})
	}

	if len(should) > 0 {
		boolQuery["should"] = should
		boolQuery["minimum_should_match"] = 1
	} else {
		boolQuery["must"] = []interface{}{
			map[string]interface{}{"match_all": map[string]interface{}{}},
		}
	}

	filters := buildFilters(query.Filters)
	for _, anyOf := range query.FilterAnyOf {
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{
				anyOf.Field: anyOf.Values,
			},
		})
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	queryClause := map[string]interface{}{
		"bool": boolQuery,
	}

	if query.BoostPopularity {
		// Fold log-scaled popularity into relevance so well-known titles
		// surface first without drowning out text relevance.
		queryClause = map[string]interface{}{
			"function_score": map[string]interface{}{
				"query": queryClause,
				"field_value_factor": map[string]interface{}{
					"field":    search.FieldPopularity,
					"modifier": "log1p",
					"missing":  0,
				},
				"boost_mode": "sum",
			},
		}
	}

	body := map[string]interface{}{
		"query":            queryClause,
		"from":             query.From,
		"size":             query.Size,
		"track_total_hits": search.TrackTotalLimit,
	}

	if sortClause := buildSort(query.Sort); len(sortClause) > 0 {
		body["sort"] = sortClause
	}

	return body
}

// buildFilters constructs the hard filter clauses.
func buildFilters(filters []search.TermFilter) []interface{} {
	out := make([]interface{}, 0, len(filters))
	for _, f := range filters {
		out = append(out, map[string]interface{}{
			"term": map[string]interface{}{
				f.Field: f.Value,
			},
		})
	}
	return out
}

// buildSort constructs the sort chain. Missing values sort last so unrated
// games never outrank rated ones on a metacritic sort.
func buildSort(keys []search.SortKey) []interface{} {
	out := make([]interface{}, 0, len(keys))
	for _, k := range keys {
		if k.Field == search.FieldScore {
			out = append(out, map[string]interface{}{"_score": string(k.Order)})
			continue
		}
		out = append(out, map[string]interface{}{
			k.Field: map[string]interface{}{
				"order":   string(k.Order),
				"missing": "_last",
			},
		})
	}
	return out
}
