package models

import "strings"

// Product is one catalog entry. Stock is mutable and guarded by the
// catalog's ledger lock; everything else is immutable after load. Promotion
// and PromotionText are attached at startup from the configured promotion
// specs that target this product.
type Product struct {
	ID            string         `json:"product_id" yaml:"product_id"`
	Name          string         `json:"name" yaml:"name"`
	Category      string         `json:"category" yaml:"category"`
	Description   string         `json:"description" yaml:"description"`
	Stock         int            `json:"stock" yaml:"stock"`
	Price         float64        `json:"price" yaml:"price"`
	Seasons       []string       `json:"seasons,omitempty" yaml:"seasons,omitempty"`
	Type          string         `json:"type,omitempty" yaml:"type,omitempty"`
	Promotion     *PromotionSpec `json:"promotion,omitempty" yaml:"promotion,omitempty"`
	PromotionText string         `json:"promotion_text,omitempty" yaml:"promotion_text,omitempty"`
	Metadata      string         `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// DocumentText builds the text indexed for semantic search:
// name, description and type concatenated.
func (p *Product) DocumentText() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.Name, p.Description, p.Type} {
		if strings.TrimSpace(s) != "" {
			parts = append(parts, strings.TrimSpace(s))
		}
	}
	return strings.Join(parts, " ")
}

// InSeason reports whether the product lists the given season
func (p *Product) InSeason(season string) bool {
	for _, s := range p.Seasons {
		if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(season)) {
			return true
		}
	}
	return false
}
