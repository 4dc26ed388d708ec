package models

// DiscountType enumerates the supported discount calculations
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
	DiscountBogoHalf   DiscountType = "bogo_half"
)

// PromotionConditions gates when a promotion fires. MinQuantity applies per
// order line; AppliesEvery is treated as a quantity gate when MinQuantity is
// absent; ProductCombination requires every listed id to appear among the
// order's line product ids.
type PromotionConditions struct {
	MinQuantity        int      `toml:"min_quantity" json:"min_quantity,omitempty" yaml:"min_quantity,omitempty"`
	AppliesEvery       int      `toml:"applies_every" json:"applies_every,omitempty" yaml:"applies_every,omitempty"`
	ProductCombination []string `toml:"product_combination" json:"product_combination,omitempty" yaml:"product_combination,omitempty"`
}

// QuantityGate returns the minimum line quantity this spec requires.
func (c *PromotionConditions) QuantityGate() int {
	if c.MinQuantity > 0 {
		return c.MinQuantity
	}
	if c.AppliesEvery > 0 {
		return c.AppliesEvery
	}
	return 1
}

// DiscountSpec describes the price adjustment a promotion applies. Amount is
// a percentage for "percentage" and "bogo_half", a currency amount for
// "fixed". ToProductID targets a specific line; empty targets any line that
// meets the conditions.
type DiscountSpec struct {
	Type        DiscountType `toml:"type" json:"type" yaml:"type" validate:"required,oneof=percentage fixed bogo_half"`
	Amount      float64      `toml:"amount" json:"amount,omitempty" yaml:"amount,omitempty"`
	ToProductID string       `toml:"to_product_id" json:"to_product_id,omitempty" yaml:"to_product_id,omitempty"`
}

// PromotionEffects is the effect side of a promotion spec. Exactly one of
// the fields is normally set: a discount calculation, a free-item count, or
// a gift that changes no prices.
type PromotionEffects struct {
	ApplyDiscount *DiscountSpec `toml:"apply_discount" json:"apply_discount,omitempty" yaml:"apply_discount,omitempty"`
	FreeItems     int           `toml:"free_items" json:"free_items,omitempty" yaml:"free_items,omitempty"`
	FreeGift      string        `toml:"free_gift" json:"free_gift,omitempty" yaml:"free_gift,omitempty"`
}

// IsEmpty reports whether the spec has no effect at all.
func (e *PromotionEffects) IsEmpty() bool {
	return e.ApplyDiscount == nil && e.FreeItems <= 0 && e.FreeGift == ""
}

// PromotionSpec is one configured promotion
type PromotionSpec struct {
	Description string              `toml:"description" json:"description,omitempty" yaml:"description,omitempty"`
	Conditions  PromotionConditions `toml:"conditions" json:"conditions" yaml:"conditions"`
	Effects     PromotionEffects    `toml:"effects" json:"effects" yaml:"effects"`
}

// IsCombination reports whether this spec is gated on a product combination
func (p *PromotionSpec) IsCombination() bool {
	return len(p.Conditions.ProductCombination) > 0
}

// AppliesTo reports whether the spec's discount targets the given product.
// A discount without to_product_id targets every eligible line.
func (p *PromotionSpec) AppliesTo(productID string) bool {
	discount := p.Effects.ApplyDiscount
	if discount == nil || discount.ToProductID == "" {
		return true
	}
	return discount.ToProductID == productID
}
