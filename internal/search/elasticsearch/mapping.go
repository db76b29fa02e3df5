package elasticsearch

// DefaultIndexName is the default Elasticsearch index for game documents.
const DefaultIndexName = "game-catalog"

// buildIndexMapping returns the JSON mapping for the game index. The name
// field carries a keyword sub-field for exact sorting and an edge-ngram
// autocomplete sub-field for partial-title matching; genre, platform and tags
// are keywords so they can be filtered and aggregated exactly.
func buildIndexMapping() string {
	return `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "autocomplete_analyzer": {
          "type": "custom",
          "tokenizer": "autocomplete_tokenizer",
          "filter": ["lowercase"]
        },
        "autocomplete_search": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase"]
        }
      },
      "tokenizer": {
        "autocomplete_tokenizer": {
          "type": "edge_ngram",
          "min_gram": 2,
          "max_gram": 20,
          "token_chars": ["letter", "digit"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "id":               { "type": "keyword" },
      "name":             { "type": "text", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 }, "autocomplete": { "type": "text", "analyzer": "autocomplete_analyzer", "search_analyzer": "autocomplete_search" } } },
      "description":      { "type": "text" },
      "image":            { "type": "keyword", "index": false },
      "active":           { "type": "boolean" },
      "value":            { "type": "double" },
      "stock_quantity":   { "type": "integer" },
      "genre":            { "type": "keyword" },
      "platform":         { "type": "keyword" },
      "tags":             { "type": "keyword" },
      "metacritic":       { "type": "double" },
      "user_rating":      { "type": "double" },
      "release_date":     { "type": "date" },
      "popularity_score": { "type": "long" },
      "sales":            { "type": "long" },
      "views":            { "type": "long" },
      "date_register":    { "type": "date" }
    }
  }
}`
}
