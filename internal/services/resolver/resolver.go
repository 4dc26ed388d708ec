package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/hermes/internal/interfaces"
	"github.com/ternarybob/hermes/internal/models"
	"github.com/ternarybob/hermes/internal/services/catalog"
)

const (
	// DefaultTopK is the number of candidates kept per mention.
	DefaultTopK = 3
	// L2Threshold is the maximum L2 distance for a candidate to survive.
	L2Threshold = 1.2
	// fuzzyIDMaxDistance bounds the edit distance for rescuing a malformed
	// product id. The rescue only fires when exactly one catalog id is
	// within the bounds.
	fuzzyIDMaxDistance = 2
	// fuzzyIDMaxDigitDistance bounds the edit distance on the digit block
	// alone.
	fuzzyIDMaxDigitDistance = 1
	// fuzzyNameMaxDistance bounds the normalized (0..1) edit distance for a
	// name match.
	fuzzyNameMaxDistance = 0.34
)

// Resolver matches product mentions against the catalog: exact id lookup
// first, then fuzzy id rescue, then semantic search merged with fuzzy name
// matching. Given a fixed catalog and index, resolution is deterministic.
type Resolver struct {
	ledger *catalog.Ledger
	index  interfaces.VectorIndex
	logger arbor.ILogger
	topK   int
}

// New creates a resolver over the given ledger and vector index.
func New(ledger *catalog.Ledger, index interfaces.VectorIndex, logger arbor.ILogger) *Resolver {
	return &Resolver{
		ledger: ledger,
		index:  index,
		logger: logger,
		topK:   DefaultTopK,
	}
}

// Resolve produces ranked candidates for every mention. Mentions with an id
// that misses the exact lookup are recorded in ExactIDMisses even when a
// fuzzy rescue or semantic search later succeeds.
func (r *Resolver) Resolve(ctx context.Context, mentions []models.ProductMention) (*models.StockkeeperOutput, error) {
	started := time.Now()
	output := &models.StockkeeperOutput{}

	for i := range mentions {
		mention := mentions[i]
		if mention.IsBlank() {
			output.Unresolved = append(output.Unresolved, mention)
			continue
		}

		candidates, idMissed, err := r.resolveMention(ctx, &mention)
		if err != nil {
			return nil, err
		}
		if idMissed {
			output.ExactIDMisses = append(output.ExactIDMisses, mention)
		}

		if len(candidates) == 0 {
			output.Unresolved = append(output.Unresolved, mention)
			continue
		}
		output.Candidates = append(output.Candidates, models.ResolvedProduct{
			Mention:    mention,
			Candidates: candidates,
		})
	}

	output.Metadata = fmt.Sprintf(
		"Total mentions: %d; Resolved: %d; Unresolved: %d; Exact id misses: %d; Elapsed ms: %d",
		len(mentions), len(output.Candidates), len(output.Unresolved), len(output.ExactIDMisses),
		time.Since(started).Milliseconds(),
	)

	r.logger.Debug().
		Int("mentions", len(mentions)).
		Int("resolved", len(output.Candidates)).
		Int("unresolved", len(output.Unresolved)).
		Int("exact_id_misses", len(output.ExactIDMisses)).
		Msg("Mention resolution complete")
	return output, nil
}

// resolveMention runs the resolution priority for one mention. The second
// return value reports whether a given id missed the exact lookup.
func (r *Resolver) resolveMention(ctx context.Context, mention *models.ProductMention) ([]models.Candidate, bool, error) {
	if mention.ProductID != "" {
		// An id that matches as written resolves cleanly.
		raw := strings.TrimSpace(mention.ProductID)
		if product, ok := r.ledger.Get(raw); ok {
			return []models.Candidate{r.idCandidate(product, mention)}, false, nil
		}

		// The id failed as written; it is a miss no matter how it is
		// recovered. Normalization handles spacing and bracket noise, the
		// rescue handles typos, search is the last resort.
		normalized := NormalizeID(raw)
		if product, ok := r.ledger.Get(normalized); ok {
			return []models.Candidate{r.idCandidate(product, mention)}, true, nil
		}
		if product, distance, ok := r.rescueID(normalized); ok {
			return []models.Candidate{r.fuzzyIDCandidate(product, mention, distance)}, true, nil
		}

		candidates, err := r.searchCandidates(ctx, mention)
		return candidates, true, err
	}

	candidates, err := r.searchCandidates(ctx, mention)
	return candidates, false, err
}

// rescueID finds the catalog product whose id is within the edit-distance
// bounds of the normalized token. A transposed or mistyped letter is
// forgivable but the digit block identifies the product, so it gets the
// tighter bound. Ambiguous tokens (more than one id within the bounds) are
// not rescued.
func (r *Resolver) rescueID(normalized string) (models.Product, int, bool) {
	if normalized == "" {
		return models.Product{}, 0, false
	}

	var match models.Product
	var matchDistance int
	within := 0
	for _, product := range r.ledger.Products() {
		distance := levenshtein.ComputeDistance(normalized, product.ID)
		if distance > fuzzyIDMaxDistance {
			continue
		}
		if levenshtein.ComputeDistance(digitBlock(normalized), digitBlock(product.ID)) > fuzzyIDMaxDigitDistance {
			continue
		}
		within++
		if within > 1 {
			return models.Product{}, 0, false
		}
		match = product
		matchDistance = distance
	}
	return match, matchDistance, within == 1
}

// idCandidate builds the sole candidate for an id-identified product.
func (r *Resolver) idCandidate(product models.Product, mention *models.ProductMention) models.Candidate {
	c := candidateFromProduct(product, 0, 1.0, models.MethodExactID)
	c.Metadata = candidateMetadata(&c, mention, "")
	return c
}

// fuzzyIDCandidate builds the sole candidate for a typo-rescued id, with
// confidence discounted by the edit distance.
func (r *Resolver) fuzzyIDCandidate(product models.Product, mention *models.ProductMention, distance int) models.Candidate {
	confidence := 1.0 - 0.1*float64(distance)
	c := candidateFromProduct(product, 0, confidence, models.MethodFuzzyID)
	c.Metadata = candidateMetadata(&c, mention, "")
	return c
}

// digitBlock keeps only the digit runes of an id token.
func digitBlock(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// searchCandidates merges semantic search and fuzzy name matching, dedupes
// by product id keeping the lowest L2, applies the threshold, and keeps the
// top K by ascending L2 with product id as tiebreak.
func (r *Resolver) searchCandidates(ctx context.Context, mention *models.ProductMention) ([]models.Candidate, error) {
	query := searchQuery(mention)
	if query == "" {
		return nil, nil
	}

	byID := make(map[string]models.Candidate)

	hits, err := r.semanticHits(ctx, mention, query)
	if err != nil {
		return nil, err
	}
	for _, hit := range hits {
		id := hit.Metadata["product_id"]
		product, ok := r.ledger.Get(id)
		if !ok {
			continue
		}
		candidate := candidateFromProduct(product, hit.L2, semanticConfidence(hit.L2), models.MethodSemantic)
		if existing, seen := byID[id]; !seen || candidate.L2 < existing.L2 {
			byID[id] = candidate
		}
	}

	if mention.ProductName != "" {
		for _, product := range r.ledger.Products() {
			distance := normalizedNameDistance(mention.ProductName, product.Name)
			if distance > fuzzyNameMaxDistance {
				continue
			}
			candidate := candidateFromProduct(product, distance, 1-distance, models.MethodFuzzyName)
			if existing, seen := byID[product.ID]; !seen || candidate.L2 < existing.L2 {
				byID[product.ID] = candidate
			}
		}
	}

	merged := make([]models.Candidate, 0, len(byID))
	for _, candidate := range byID {
		if candidate.L2 > L2Threshold {
			continue
		}
		candidate.Metadata = candidateMetadata(&candidate, mention, query)
		merged = append(merged, candidate)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].L2 != merged[j].L2 {
			return merged[i].L2 < merged[j].L2
		}
		return merged[i].ProductID < merged[j].ProductID
	})

	if len(merged) > r.topK {
		merged = merged[:r.topK]
	}
	return merged, nil
}

// semanticHits queries the vector index, filtered by the mention's category
// when one was extracted. An empty filtered result falls back to an
// unfiltered query so a misclassified category cannot hide the catalog.
func (r *Resolver) semanticHits(ctx context.Context, mention *models.ProductMention, query string) ([]interfaces.SearchHit, error) {
	if mention.ProductCategory != "" {
		hits, err := r.index.Query(ctx, query, r.topK, map[string]string{"category": mention.ProductCategory})
		if err != nil {
			return nil, fmt.Errorf("semantic search: %w", err)
		}
		if len(hits) > 0 {
			return hits, nil
		}
	}

	hits, err := r.index.Query(ctx, query, r.topK, nil)
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	return hits, nil
}

// searchQuery concatenates the mention's name, description and type.
func searchQuery(mention *models.ProductMention) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{mention.ProductName, mention.ProductDescription, mention.ProductType} {
		if strings.TrimSpace(s) != "" {
			parts = append(parts, strings.TrimSpace(s))
		}
	}
	return strings.Join(parts, " ")
}

// candidateFromProduct projects a catalog product into a scored candidate.
func candidateFromProduct(product models.Product, l2, confidence float64, method models.ResolutionMethod) models.Candidate {
	return models.Candidate{
		ProductID:     product.ID,
		Name:          product.Name,
		Category:      product.Category,
		Type:          product.Type,
		Price:         product.Price,
		Stock:         product.Stock,
		PromotionText: product.PromotionText,
		L2:            l2,
		Confidence:    confidence,
		Method:        method,
	}
}

// semanticConfidence derives a 0..1 confidence from an L2 distance between
// unit vectors (cosine similarity, clamped).
func semanticConfidence(l2 float64) float64 {
	confidence := 1 - (l2*l2)/2
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// normalizedNameDistance is the edit distance between lower-cased names
// scaled into 0..1 by the longer length.
func normalizedNameDistance(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 1
	}

	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	return float64(levenshtein.ComputeDistance(a, b)) / float64(longest)
}

// methodDescription renders the resolution method for candidate metadata.
func methodDescription(method models.ResolutionMethod) string {
	switch method {
	case models.MethodExactID:
		return "Found through exact id match"
	case models.MethodFuzzyID:
		return "Found through fuzzy id match"
	case models.MethodSemantic:
		return "Found through semantic search"
	case models.MethodFuzzyName:
		return "Found through fuzzy name match"
	default:
		return "Found through " + string(method)
	}
}

// candidateMetadata renders the human-readable per-candidate summary.
func candidateMetadata(c *models.Candidate, mention *models.ProductMention, query string) string {
	parts := []string{
		fmt.Sprintf("Resolution confidence: %.0f%%", c.Confidence*100),
		methodDescription(c.Method),
	}
	if query != "" {
		parts = append(parts, fmt.Sprintf("Search query: '%s'", query))
	}
	parts = append(parts,
		fmt.Sprintf("Similarity score: %.3f", c.L2),
		fmt.Sprintf("Requested quantity: %d", mention.EffectiveQuantity()),
	)
	if summary := mention.Summary(); summary != "" {
		parts = append(parts, "Original mention: "+summary)
	}
	return strings.Join(parts, "; ")
}
