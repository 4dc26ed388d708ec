package interfaces

import "context"

// SearchHit is one vector index result: document metadata plus the L2
// distance between the query vector and the document vector.
type SearchHit struct {
	Metadata map[string]string `json:"metadata"`
	L2       float64           `json:"l2"`
}

// VectorIndex answers nearest-neighbor queries over the product catalog.
// Results come back in ascending L2 order with the product id as the
// tie-breaker, so identical inputs always produce identical rankings.
// The where filter matches metadata fields by equality; a nil or empty
// filter matches everything.
type VectorIndex interface {
	Query(ctx context.Context, queryText string, k int, where map[string]string) ([]SearchHit, error)
}
