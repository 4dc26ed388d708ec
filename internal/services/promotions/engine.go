package promotions

import (
	"fmt"

	"github.com/ternarybob/hermes/internal/models"
)

// Apply mutates the order's lines and totals according to the configured
// promotion specs. Processing runs in two phases so no line is discounted
// twice: combination promotions first, then per-line quantity promotions on
// the lines combinations did not touch. Lines already marked
// promotion_applied are never touched again, which makes Apply a no-op on
// an already-promoted order.
//
// Only created lines are eligible: out-of-stock lines keep catalog pricing
// and do not satisfy combination requirements.
func Apply(order *models.Order, specs []models.PromotionSpec) {
	if order == nil || len(specs) == 0 || len(order.Lines) == 0 {
		if order != nil {
			order.RecomputeTotals()
		}
		return
	}

	// Phase A: combination promotions.
	lineIDs := createdLineIDs(order)
	for i := range specs {
		spec := &specs[i]
		if !spec.IsCombination() {
			continue
		}
		if !containsAll(lineIDs, spec.Conditions.ProductCombination) {
			continue
		}
		for j := range order.Lines {
			line := &order.Lines[j]
			if line.Status != models.LineCreated || line.PromotionApplied {
				continue
			}
			if !spec.AppliesTo(line.ProductID) {
				continue
			}
			applyEffects(line, spec)
		}
	}

	// Phase B: per-line quantity promotions on untouched lines.
	for i := range specs {
		spec := &specs[i]
		if spec.IsCombination() {
			continue
		}
		for j := range order.Lines {
			line := &order.Lines[j]
			if line.Status != models.LineCreated || line.PromotionApplied {
				continue
			}
			if line.Quantity < spec.Conditions.QuantityGate() {
				continue
			}
			if !spec.AppliesTo(line.ProductID) {
				continue
			}
			applyEffects(line, spec)
		}
	}

	order.RecomputeTotals()
}

// createdLineIDs collects the product ids of the order's created lines.
func createdLineIDs(order *models.Order) map[string]bool {
	ids := make(map[string]bool, len(order.Lines))
	for i := range order.Lines {
		if order.Lines[i].Status == models.LineCreated {
			ids[order.Lines[i].ProductID] = true
		}
	}
	return ids
}

// containsAll reports whether every required id is present.
func containsAll(ids map[string]bool, required []string) bool {
	if len(required) == 0 {
		return false
	}
	for _, id := range required {
		if !ids[id] {
			return false
		}
	}
	return true
}

// applyEffects applies one spec's effects to a line. The line is marked
// promotion_applied only when an effect actually changed something, so a
// bogo_half on a single item leaves the line untouched.
func applyEffects(line *models.OrderLine, spec *models.PromotionSpec) {
	applied := false

	if discount := spec.Effects.ApplyDiscount; discount != nil {
		applied = applyDiscount(line, discount)
	}
	if spec.Effects.FreeItems > 0 {
		applied = applyFreeItems(line, spec.Effects.FreeItems) || applied
	}
	if spec.Effects.FreeGift != "" {
		appendDescription(line, "Free gift: "+spec.Effects.FreeGift)
		applied = true
	}

	if !applied {
		return
	}

	line.PromotionApplied = true
	line.Promotion = spec
	if spec.Description != "" {
		appendDescription(line, spec.Description)
	}

	line.Discount = (line.BasePrice - line.UnitPrice) * float64(line.Quantity)
	if line.Discount < 0 {
		line.Discount = 0
	}
	line.TotalPrice = line.UnitPrice * float64(line.Quantity)
}

// applyDiscount adjusts the line's unit price for one discount spec and
// reports whether anything changed.
func applyDiscount(line *models.OrderLine, discount *models.DiscountSpec) bool {
	switch discount.Type {
	case models.DiscountPercentage:
		line.UnitPrice = line.UnitPrice * (1 - discount.Amount/100)
		appendDescription(line, fmt.Sprintf("%.0f%% off", discount.Amount))
		return true

	case models.DiscountFixed:
		reduced := line.UnitPrice - discount.Amount
		if reduced < 0 {
			reduced = 0
		}
		line.UnitPrice = reduced
		appendDescription(line, fmt.Sprintf("%.2f off per item", discount.Amount))
		return true

	case models.DiscountBogoHalf:
		discountedItems := line.Quantity / 2
		if discountedItems == 0 {
			return false
		}
		totalDiscount := line.BasePrice * (discount.Amount / 100) * float64(discountedItems)
		line.UnitPrice = (line.BasePrice*float64(line.Quantity) - totalDiscount) / float64(line.Quantity)
		appendDescription(line, fmt.Sprintf("Buy one get one %.0f%% off", discount.Amount))
		return true
	}

	return false
}

// applyFreeItems makes min(k, quantity) of the line's items free by scaling
// the unit price.
func applyFreeItems(line *models.OrderLine, k int) bool {
	if line.Quantity <= 0 {
		return false
	}
	free := k
	if free > line.Quantity {
		free = line.Quantity
	}
	line.UnitPrice = line.UnitPrice * (1 - float64(free)/float64(line.Quantity))
	appendDescription(line, fmt.Sprintf("%d free item(s)", free))
	return true
}

// appendDescription accumulates promotion text on the line.
func appendDescription(line *models.OrderLine, text string) {
	if line.PromotionDescription == "" {
		line.PromotionDescription = text
		return
	}
	line.PromotionDescription += "; " + text
}
