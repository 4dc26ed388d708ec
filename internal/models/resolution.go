package models

// ResolutionMethod records how a candidate product was matched.
type ResolutionMethod string

const (
	MethodExactID   ResolutionMethod = "exact_id_match"
	MethodFuzzyID   ResolutionMethod = "fuzzy_id_match"
	MethodSemantic  ResolutionMethod = "semantic_search"
	MethodFuzzyName ResolutionMethod = "fuzzy_name_match"
)

// Candidate is one catalog product proposed for a mention, with the
// distance and confidence of the match. Candidates are ordered by
// ascending L2 with product id as the tie-breaker.
type Candidate struct {
	ProductID     string           `json:"product_id" yaml:"product_id"`
	Name          string           `json:"name" yaml:"name"`
	Category      string           `json:"category,omitempty" yaml:"category,omitempty"`
	Type          string           `json:"type,omitempty" yaml:"type,omitempty"`
	Price         float64          `json:"price" yaml:"price"`
	Stock         int              `json:"stock" yaml:"stock"`
	PromotionText string           `json:"promotion_text,omitempty" yaml:"promotion_text,omitempty"`
	L2            float64          `json:"l2" yaml:"l2"`
	Confidence    float64          `json:"confidence" yaml:"confidence"`
	Method        ResolutionMethod `json:"method" yaml:"method"`
	Metadata      string           `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ResolvedProduct couples an original mention with its ranked candidates
type ResolvedProduct struct {
	Mention    ProductMention `json:"mention" yaml:"mention"`
	Candidates []Candidate    `json:"candidates" yaml:"candidates"`
}

// Best returns the top-ranked candidate, or nil when none survived
func (r *ResolvedProduct) Best() *Candidate {
	if len(r.Candidates) == 0 {
		return nil
	}
	return &r.Candidates[0]
}

// StockkeeperOutput is the resolver's result: mentions with their ranked
// candidates, mentions that could not be matched, the original mention of
// every id that missed an exact lookup, and an aggregate run summary.
type StockkeeperOutput struct {
	Candidates    []ResolvedProduct `json:"candidates" yaml:"candidates"`
	Unresolved    []ProductMention  `json:"unresolved,omitempty" yaml:"unresolved,omitempty"`
	ExactIDMisses []ProductMention  `json:"exact_id_misses,omitempty" yaml:"exact_id_misses,omitempty"`
	Metadata      string            `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// CandidateIDs returns the deduplicated ids of all candidates, in ranking order
func (r *StockkeeperOutput) CandidateIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, rp := range r.Candidates {
		for _, c := range rp.Candidates {
			if !seen[c.ProductID] {
				seen[c.ProductID] = true
				ids = append(ids, c.ProductID)
			}
		}
	}
	return ids
}

// MissedIDs returns the product ids recorded as exact lookup misses.
func (r *StockkeeperOutput) MissedIDs() []string {
	var ids []string
	for _, mention := range r.ExactIDMisses {
		if mention.ProductID != "" {
			ids = append(ids, mention.ProductID)
		}
	}
	return ids
}
