package catalog

import (
	"context"

	"github.com/ternarybob/hermes/internal/interfaces"
	"github.com/ternarybob/hermes/internal/models"
)

// maxAlternatives caps the suggestions attached to an out-of-stock line.
const maxAlternatives = 2

// FindAlternatives suggests in-stock replacements for an out-of-stock
// product. Same-category neighbours are preferred; when the category cannot
// fill the quota the search widens to the whole catalog. The product itself
// is always excluded and live stock comes from the ledger.
func FindAlternatives(ctx context.Context, index interfaces.VectorIndex, ledger *Ledger, product models.Product) ([]models.Alternative, error) {
	alternatives := make([]models.Alternative, 0, maxAlternatives)
	seen := map[string]bool{product.ID: true}

	collect := func(where map[string]string) error {
		if len(alternatives) >= maxAlternatives {
			return nil
		}
		// Over-fetch so the in-stock filter still leaves enough hits.
		hits, err := index.Query(ctx, product.DocumentText(), maxAlternatives*3, where)
		if err != nil {
			return err
		}
		for _, hit := range hits {
			if len(alternatives) >= maxAlternatives {
				return nil
			}
			id := hit.Metadata["product_id"]
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true

			candidate, ok := ledger.Get(id)
			if !ok || candidate.Stock <= 0 {
				continue
			}
			alternatives = append(alternatives, models.Alternative{
				ProductID: candidate.ID,
				Name:      candidate.Name,
				Price:     candidate.Price,
				Stock:     candidate.Stock,
				L2:        hit.L2,
			})
		}
		return nil
	}

	if product.Category != "" {
		if err := collect(map[string]string{"category": product.Category}); err != nil {
			return nil, err
		}
	}
	if err := collect(nil); err != nil {
		return nil, err
	}

	return alternatives, nil
}
