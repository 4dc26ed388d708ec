package catalog

import (
	"context"
	"fmt"

	"github.com/ternarybob/hermes/internal/interfaces"
	"github.com/ternarybob/hermes/internal/models"
)

// SearchResult is one semantic catalog hit with live product data.
type SearchResult struct {
	Product models.Product
	L2      float64
}

// Search runs a semantic query over the catalog, optionally filtered by
// category, and hydrates the hits with live stock from the ledger. Results
// keep the index ordering (ascending L2, product id tiebreak). The advisor
// tools and the catalog tool server share this path.
func Search(ctx context.Context, index interfaces.VectorIndex, ledger *Ledger, query, category string, k int) ([]SearchResult, error) {
	var where map[string]string
	if category != "" {
		where = map[string]string{"category": category}
	}

	hits, err := index.Query(ctx, query, k, where)
	if err != nil {
		return nil, fmt.Errorf("catalog search: %w", err)
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		product, ok := ledger.Get(hit.Metadata["product_id"])
		if !ok {
			continue
		}
		results = append(results, SearchResult{Product: product, L2: hit.L2})
	}
	return results, nil
}
