package promotions

import "github.com/ternarybob/hermes/internal/models"

// Attach stamps catalog products with the promotion that names them, either
// as the discount target or as part of a product combination. Untargeted
// specs describe order-shape promotions and are not attached to any single
// product. First matching spec wins.
func Attach(products []models.Product, specs []models.PromotionSpec) {
	if len(specs) == 0 {
		return
	}
	for i := range products {
		for j := range specs {
			spec := &specs[j]
			if !namesProduct(spec, products[i].ID) {
				continue
			}
			products[i].Promotion = spec
			products[i].PromotionText = spec.Description
			break
		}
	}
}

func namesProduct(spec *models.PromotionSpec, productID string) bool {
	if discount := spec.Effects.ApplyDiscount; discount != nil && discount.ToProductID == productID {
		return true
	}
	for _, id := range spec.Conditions.ProductCombination {
		if id == productID {
			return true
		}
	}
	return false
}
