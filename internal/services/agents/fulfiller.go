package agents

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/hermes/internal/interfaces"
	"github.com/ternarybob/hermes/internal/models"
	"github.com/ternarybob/hermes/internal/services/catalog"
	"github.com/ternarybob/hermes/internal/services/llm"
	"github.com/ternarybob/hermes/internal/services/promotions"
)

// clarificationThreshold is the match confidence below which an order line
// is marked for customer confirmation instead of silent fulfillment.
const clarificationThreshold = 0.75

// FulfillerAgent turns order segments into an order record: the strong
// model drafts the lines from the resolved products, then stock is reserved
// line by line and the promotion engine prices the result. Stock is only
// touched here.
//
// Output slot: state.Fulfiller.
type FulfillerAgent struct {
	client   LLMClient
	validate *validator.Validate
	ledger   *catalog.Ledger
	index    interfaces.VectorIndex
	specs    []models.PromotionSpec
	logger   arbor.ILogger
}

// orderDraft is the structured output of the drafting call.
type orderDraft struct {
	Lines         []draftLine `json:"lines" validate:"dive"`
	CustomerNotes string      `json:"customer_notes"`
}

type draftLine struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=1"`
}

// NewFulfillerAgent creates the fulfiller over the shared catalog ledger.
func NewFulfillerAgent(client LLMClient, validate *validator.Validate, ledger *catalog.Ledger, index interfaces.VectorIndex, specs []models.PromotionSpec, logger arbor.ILogger) *FulfillerAgent {
	return &FulfillerAgent{
		client:   client,
		validate: validate,
		ledger:   ledger,
		index:    index,
		specs:    specs,
		logger:   logger,
	}
}

// Run drafts and reserves the order for the state's order segments.
func (a *FulfillerAgent) Run(ctx context.Context, state *models.WorkflowState) error {
	analysis := state.Classifier
	if analysis == nil {
		return errors.New("no analysis available for order drafting")
	}

	resolved := resolutionsOfKind(state, models.SegmentOrder)
	order := &models.Order{EmailID: state.Email.ID}

	if len(resolved) == 0 {
		// Nothing resolvable to order; the draft call would have no
		// products to offer the model.
		order.OverallStatus = models.OrderNoValidProducts
		state.Fulfiller = order
		return nil
	}

	draft, err := a.draftOrder(ctx, analysis, resolved)
	if err != nil {
		return fmt.Errorf("drafting order for email %s: %w", state.Email.ID, err)
	}

	lines := a.validLines(draft, resolved)
	for _, line := range lines {
		order.Lines = append(order.Lines, a.reserveLine(ctx, line.candidate, line.quantity))
	}

	promotions.Apply(order, a.specs)
	order.OverallStatus = order.ComputeOverallStatus()
	order.Message = strings.TrimSpace(draft.CustomerNotes)
	for _, l := range order.Lines {
		if l.Status == models.LineCreated {
			order.StockUpdated = true
			break
		}
	}

	a.logger.Info().
		Str("email_id", state.Email.ID).
		Str("status", string(order.OverallStatus)).
		Int("lines", len(order.Lines)).
		Float64("total", order.TotalPrice).
		Msg("Order processed")

	state.Fulfiller = order
	return nil
}

// draftOrder asks the strong model which resolved products the customer is
// ordering, and in what quantities.
func (a *FulfillerAgent) draftOrder(ctx context.Context, analysis *models.EmailAnalysis, resolved []models.ResolvedProduct) (*orderDraft, error) {
	var products strings.Builder
	for i := range resolved {
		best := resolved[i].Best()
		fmt.Fprintf(&products, "%s\n  requested quantity: %d\n", formatProductLine(best), resolved[i].Mention.EffectiveQuantity())
	}

	prompt := fmt.Sprintf(`Order requests from the email:
%s
Catalog products resolved for those requests:
%s
Draft the order as JSON.`, formatSegments(analysis, models.SegmentOrder), products.String())

	request := &llm.ContentRequest{
		Model:             a.client.StrongModel(),
		SystemInstruction: fulfillerInstruction,
		Messages:          []interfaces.Message{{Role: "user", Content: prompt}},
		OutputSchema:      orderDraftSchema(),
	}

	draft, _, err := llm.InvokeStructured[orderDraft](ctx, a.client, a.validate, request, a.client.MaxRetries())
	return draft, err
}

const fulfillerInstruction = `You are the order clerk for a fashion retailer.

Task: From the customer's order requests and the resolved catalog products, draft the order lines.

Rules:
- Use ONLY product ids from the resolved products list. Never invent an id.
- quantity is the number of items the customer wants for that product; use the requested quantity unless the email clearly says otherwise.
- Skip resolved products the customer is not actually ordering.
- customer_notes holds any delivery wish or special request from the email, or an empty string.

Respond with a single JSON object only, no markdown fences.`

func orderDraftSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"lines": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"product_id": map[string]interface{}{"type": "string"},
						"quantity":   map[string]interface{}{"type": "integer"},
					},
					"required": []string{"product_id", "quantity"},
				},
			},
			"customer_notes": map[string]interface{}{"type": "string"},
		},
		"required": []string{"lines"},
	}
}

// validatedLine pairs a drafted quantity with the candidate backing it.
type validatedLine struct {
	candidate models.Candidate
	quantity  int
}

// validLines filters the draft to known resolved ids, merges duplicate
// products, and fixes the processing order. Unknown ids are dropped with a
// warning rather than failing the order.
func (a *FulfillerAgent) validLines(draft *orderDraft, resolved []models.ResolvedProduct) []validatedLine {
	candidateByID := make(map[string]models.Candidate, len(resolved))
	for i := range resolved {
		best := resolved[i].Best()
		if _, seen := candidateByID[best.ProductID]; !seen {
			candidateByID[best.ProductID] = *best
		}
	}

	quantities := make(map[string]int)
	for _, line := range draft.Lines {
		id := strings.TrimSpace(line.ProductID)
		if _, ok := candidateByID[id]; !ok {
			a.logger.Warn().
				Str("product_id", id).
				Msg("Draft line references an unresolved product, dropping")
			continue
		}
		qty := line.Quantity
		if qty < 1 {
			qty = 1
		}
		quantities[id] += qty
	}

	ids := make([]string, 0, len(quantities))
	for id := range quantities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lines := make([]validatedLine, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, validatedLine{candidate: candidateByID[id], quantity: quantities[id]})
	}
	return lines
}

// reserveLine attempts the stock reservation for one drafted line and
// builds the resulting order line. Out-of-stock lines carry the live
// available count and up to two alternatives.
func (a *FulfillerAgent) reserveLine(ctx context.Context, candidate models.Candidate, quantity int) models.OrderLine {
	line := models.OrderLine{
		ProductID:   candidate.ProductID,
		Description: lineDescription(&candidate),
		Quantity:    quantity,
	}

	product, known := a.ledger.Get(candidate.ProductID)
	if !known {
		line.Status = models.LineOutOfStock
		line.StockAfter = 0
		return line
	}

	line.BasePrice = product.Price
	line.UnitPrice = product.Price
	line.TotalPrice = product.Price * float64(quantity)
	if product.Promotion != nil {
		line.Promotion = product.Promotion
	}

	err := a.ledger.Reserve(product.ID, quantity)
	switch {
	case err == nil:
		line.Status = models.LineCreated
		line.StockAfter = a.ledger.Available(product.ID)
	case errors.Is(err, catalog.ErrInsufficientStock):
		line.Status = models.LineOutOfStock
		line.StockAfter = a.ledger.Available(product.ID)
		line.Alternatives = a.alternativesFor(ctx, product)
	default:
		line.Status = models.LineOutOfStock
		line.StockAfter = 0
	}
	return line
}

// lineDescription renders the product name, flagged for confirmation when
// the match confidence was only moderate.
func lineDescription(candidate *models.Candidate) string {
	if candidate.Confidence < clarificationThreshold {
		return fmt.Sprintf("%s %s]", models.ClarificationPrefix, candidate.Name)
	}
	return candidate.Name
}

// alternativesFor suggests substitutes for an out-of-stock product. Lookup
// failures only cost the suggestions, never the line.
func (a *FulfillerAgent) alternativesFor(ctx context.Context, product models.Product) []models.Alternative {
	alternatives, err := catalog.FindAlternatives(ctx, a.index, a.ledger, product)
	if err != nil {
		a.logger.Warn().
			Str("product_id", product.ID).
			Err(err).
			Msg("Alternative lookup failed")
		return nil
	}
	return alternatives
}

// resolutionsOfKind selects the resolved products whose mention came from a
// segment of the given kind.
func resolutionsOfKind(state *models.WorkflowState, kind models.SegmentKind) []models.ResolvedProduct {
	if state.Classifier == nil || state.Stockkeeper == nil {
		return nil
	}

	wanted := make(map[models.ProductMention]bool)
	for _, mention := range state.Classifier.MentionsOfKind(kind) {
		wanted[mention] = true
	}

	var out []models.ResolvedProduct
	for _, rp := range state.Stockkeeper.Candidates {
		if wanted[rp.Mention] {
			out = append(out, rp)
		}
	}
	return out
}
