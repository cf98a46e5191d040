package db

import "github.com/norma-cloud/knowdex/internal/domain/filter"

// KNNQuery is the input for vector similarity search. Filters is the metadata
// pre-filter applied by the engine before the KNN cut.
type KNNQuery struct {
	IndexName    string
	Filter       filter.Filter
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
