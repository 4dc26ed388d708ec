package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/hermes/internal/interfaces"
	"github.com/ternarybob/hermes/internal/models"
	"github.com/ternarybob/hermes/internal/services/catalog"
	"github.com/ternarybob/hermes/internal/services/llm"
	"github.com/ternarybob/hermes/internal/services/resolver"
)

// searchToolLimit caps the hits a single search_products call returns.
const searchToolLimit = 5

// AdvisorAgent answers inquiry segments with the strong model grounded on
// catalog tools. Answers are neutral and factual; the composer supplies
// persona and phrasing. Ids that missed every exact lookup get a canonical
// not-found answer without being looked up again.
//
// Output slot: state.Advisor.
type AdvisorAgent struct {
	client   LLMClient
	validate *validator.Validate
	ledger   *catalog.Ledger
	index    interfaces.VectorIndex
	logger   arbor.ILogger
}

// advicePayload is the structured output of the advisor call.
type advicePayload struct {
	AnsweredQuestions   []answerPayload `json:"answered_questions" validate:"dive"`
	UnansweredQuestions []string        `json:"unanswered_questions"`
	RelatedProducts     []string        `json:"related_products"`
}

type answerPayload struct {
	Question            string   `json:"question" validate:"required"`
	Answer              string   `json:"answer" validate:"required"`
	Confidence          float64  `json:"confidence" validate:"gte=0,lte=1"`
	ReferenceProductIDs []string `json:"reference_product_ids"`
	AnswerType          string   `json:"answer_type" validate:"required,oneof=factual speculative unavailable"`
}

// NewAdvisorAgent creates the advisor over the shared catalog and index.
func NewAdvisorAgent(client LLMClient, validate *validator.Validate, ledger *catalog.Ledger, index interfaces.VectorIndex, logger arbor.ILogger) *AdvisorAgent {
	return &AdvisorAgent{
		client:   client,
		validate: validate,
		ledger:   ledger,
		index:    index,
		logger:   logger,
	}
}

// Run answers the inquiry segments and writes the advice slot.
func (a *AdvisorAgent) Run(ctx context.Context, state *models.WorkflowState) error {
	analysis := state.Classifier
	if analysis == nil {
		return errors.New("no analysis available for inquiry answering")
	}

	resolved := resolutionsOfKind(state, models.SegmentInquiry)

	request := &llm.ContentRequest{
		Model:             a.client.StrongModel(),
		SystemInstruction: advisorInstruction,
		Messages:          []interfaces.Message{{Role: "user", Content: a.prompt(state, analysis, resolved)}},
		OutputSchema:      adviceSchema(),
		Tools:             a.Tools(),
		RequiredTools:     a.requiredTools(resolved),
	}

	payload, _, err := llm.InvokeStructured[advicePayload](ctx, a.client, a.validate, request, a.client.MaxRetries())
	if err != nil {
		return fmt.Errorf("answering inquiries for email %s: %w", state.Email.ID, err)
	}

	output := a.toOutput(state, payload, resolved)
	a.logger.Info().
		Str("email_id", state.Email.ID).
		Int("answered", len(output.AnsweredQuestions)).
		Int("unanswered", len(output.UnansweredQuestions)).
		Msg("Inquiries answered")

	state.Advisor = output
	return nil
}

const advisorInstruction = `You are the product expert for a fashion retailer's customer service desk.

Task: Answer the customer's questions about products, using ONLY the resolved products given to you and the catalog tools.

Rules:
- Ground every answer in tool results or the resolved products. Never use outside knowledge about fashion brands or products.
- answer_type is factual when the catalog directly supports the answer, speculative when you infer beyond the data (say so in the answer), unavailable when the catalog cannot answer it.
- reference_product_ids lists the catalog ids the answer relies on.
- Questions you cannot address at all go into unanswered_questions.
- related_products may list catalog ids worth suggesting alongside the answers.
- Do not greet or sign off; another system phrases the final reply.

Respond with a single JSON object only, no markdown fences.`

func (a *AdvisorAgent) prompt(state *models.WorkflowState, analysis *models.EmailAnalysis, resolved []models.ResolvedProduct) string {
	var b strings.Builder
	b.WriteString("Customer questions:\n")
	b.WriteString(formatSegments(analysis, models.SegmentInquiry))

	if len(resolved) > 0 {
		b.WriteString("\nResolved catalog products for those questions:\n")
		for i := range resolved {
			b.WriteString(formatProductLine(resolved[i].Best()))
			b.WriteString("\n")
		}
		b.WriteString("\nLook up each resolved product's details before answering about it.\n")
	} else {
		b.WriteString("\nNo products were resolved for these questions. Search the catalog before answering.\n")
	}

	if state.Stockkeeper != nil {
		if missed := state.Stockkeeper.MissedIDs(); len(missed) > 0 {
			fmt.Fprintf(&b, "\nThese ids were not found in the catalog and must not be looked up again: %s\n", strings.Join(missed, ", "))
		}
	}
	return b.String()
}

// requiredTools names the tools the model must call for this email:
// details on the resolved products when there are any, otherwise at least
// one catalog search.
func (a *AdvisorAgent) requiredTools(resolved []models.ResolvedProduct) []string {
	if len(resolved) > 0 {
		return []string{"get_product_details"}
	}
	return []string{"search_products"}
}

func adviceSchema() map[string]interface{} {
	answer := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"question":              map[string]interface{}{"type": "string"},
			"answer":                map[string]interface{}{"type": "string"},
			"confidence":            map[string]interface{}{"type": "number"},
			"reference_product_ids": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"answer_type": map[string]interface{}{
				"type": "string",
				"enum": []string{"factual", "speculative", "unavailable"},
			},
		},
		"required": []string{"question", "answer", "answer_type"},
	}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"answered_questions":   map[string]interface{}{"type": "array", "items": answer},
			"unanswered_questions": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"related_products":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		},
		"required": []string{"answered_questions"},
	}
}

// Tools exposes the catalog to the model: semantic search, product detail
// lookup, and a stock check. The catalog tool server serves the same three.
func (a *AdvisorAgent) Tools() []llm.ToolDefinition {
	return []llm.ToolDefinition{
		{
			Name:        "search_products",
			Description: "Search the product catalog by free-text query, optionally restricted to one category. Returns the closest products with price and stock.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query":    map[string]interface{}{"type": "string", "description": "What to search for"},
					"category": map[string]interface{}{"type": "string", "description": "Optional category filter"},
				},
				"required": []string{"query"},
			},
			Handler: a.handleSearch,
		},
		{
			Name:        "get_product_details",
			Description: "Fetch the full catalog record for one product id: name, description, category, type, seasons, price, stock, and any promotion.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"product_id": map[string]interface{}{"type": "string", "description": "Catalog product id, e.g. CBT8901"},
				},
				"required": []string{"product_id"},
			},
			Handler: a.handleDetails,
		},
		{
			Name:        "check_stock",
			Description: "Check the current stock level for one product id.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"product_id": map[string]interface{}{"type": "string", "description": "Catalog product id, e.g. CBT8901"},
				},
				"required": []string{"product_id"},
			},
			Handler: a.handleStock,
		},
	}
}

func (a *AdvisorAgent) handleSearch(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is required")
	}
	category, _ := args["category"].(string)

	results, err := catalog.Search(ctx, a.index, a.ledger, query, strings.TrimSpace(category), searchToolLimit)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]interface{}, 0, len(results))
	for _, result := range results {
		out = append(out, map[string]interface{}{
			"product_id": result.Product.ID,
			"name":       result.Product.Name,
			"category":   result.Product.Category,
			"price":      result.Product.Price,
			"stock":      result.Product.Stock,
		})
	}
	return map[string]interface{}{"results": out}, nil
}

func (a *AdvisorAgent) handleDetails(_ context.Context, args map[string]interface{}) (interface{}, error) {
	id, _ := args["product_id"].(string)
	product, ok := a.ledger.Get(resolver.NormalizeID(id))
	if !ok {
		return nil, fmt.Errorf("product %s not found", id)
	}

	details := map[string]interface{}{
		"product_id":  product.ID,
		"name":        product.Name,
		"category":    product.Category,
		"description": product.Description,
		"type":        product.Type,
		"seasons":     product.Seasons,
		"price":       product.Price,
		"stock":       product.Stock,
	}
	if product.PromotionText != "" {
		details["promotion"] = product.PromotionText
	}
	return details, nil
}

func (a *AdvisorAgent) handleStock(_ context.Context, args map[string]interface{}) (interface{}, error) {
	id, _ := args["product_id"].(string)
	product, ok := a.ledger.Get(resolver.NormalizeID(id))
	if !ok {
		return nil, fmt.Errorf("product %s not found", id)
	}
	return map[string]interface{}{
		"product_id": product.ID,
		"stock":      product.Stock,
		"in_stock":   product.Stock > 0,
	}, nil
}

// toOutput converts the payload and appends the canonical not-found
// answers for ids that never matched anything.
func (a *AdvisorAgent) toOutput(state *models.WorkflowState, payload *advicePayload, resolved []models.ResolvedProduct) *models.AdvisorOutput {
	output := &models.AdvisorOutput{
		EmailID:             state.Email.ID,
		UnansweredQuestions: payload.UnansweredQuestions,
	}

	for i := range resolved {
		output.PrimaryProducts = append(output.PrimaryProducts, resolved[i].Best().ProductID)
	}

	for _, answer := range payload.AnsweredQuestions {
		output.AnsweredQuestions = append(output.AnsweredQuestions, models.QuestionAnswer{
			Question:            answer.Question,
			Answer:              answer.Answer,
			Confidence:          answer.Confidence,
			ReferenceProductIDs: answer.ReferenceProductIDs,
			AnswerType:          models.AnswerType(answer.AnswerType),
		})
	}

	// Related suggestions must exist in the catalog; anything else from
	// the model is discarded.
	for _, id := range payload.RelatedProducts {
		if _, ok := a.ledger.Get(resolver.NormalizeID(id)); ok {
			output.RelatedProducts = append(output.RelatedProducts, resolver.NormalizeID(id))
		}
	}

	if state.Stockkeeper != nil {
		rescued := make(map[models.ProductMention]bool)
		for _, rp := range state.Stockkeeper.Candidates {
			rescued[rp.Mention] = true
		}
		for _, miss := range state.Stockkeeper.ExactIDMisses {
			output.UnsuccessfulReferences = append(output.UnsuccessfulReferences, miss.ProductID)
			// A rescued id resolved to a real product; only genuinely
			// unmatched ids get the not-found answer.
			if rescued[miss] {
				continue
			}
			output.AnsweredQuestions = append(output.AnsweredQuestions, notFoundAnswer(miss.ProductID))
		}
	}

	return output
}

// notFoundAnswer is the canonical reply for a product id that matched
// nothing in the catalog.
func notFoundAnswer(id string) models.QuestionAnswer {
	return models.QuestionAnswer{
		Question:   fmt.Sprintf("Is product %s available?", id),
		Answer:     fmt.Sprintf("No product with the id %s exists in our catalog. The id may be mistyped; please check it and write back so we can help.", id),
		Confidence: 1.0,
		AnswerType: models.AnswerUnavailable,
	}
}
