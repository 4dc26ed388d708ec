package agents

import (
	"context"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/hermes/internal/interfaces"
	"github.com/ternarybob/hermes/internal/models"
	"github.com/ternarybob/hermes/internal/services/catalog"
	"github.com/ternarybob/hermes/internal/services/llm"
)

// scriptedClient replays canned responses in order and records every
// request. When the script runs out, the last response repeats.
type scriptedClient struct {
	mu        sync.Mutex
	responses []llm.ContentResponse
	err       error
	requests  []llm.ContentRequest
}

func (s *scriptedClient) GenerateContent(_ context.Context, request *llm.ContentRequest) (*llm.ContentResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, *request)
	if s.err != nil {
		return nil, s.err
	}
	i := len(s.requests) - 1
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	resp := s.responses[i]
	return &resp, nil
}

func (s *scriptedClient) StrongModel() string { return "strong-test" }
func (s *scriptedClient) WeakModel() string   { return "weak-test" }
func (s *scriptedClient) MaxRetries() int     { return 1 }

func (s *scriptedClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *scriptedClient) lastRequest() llm.ContentRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func textResponse(text string) llm.ContentResponse {
	return llm.ContentResponse{Text: text, Provider: "test", Model: "test"}
}

// fixedIndex serves canned hits, honoring the metadata where filter.
type fixedIndex struct {
	hits []interfaces.SearchHit
}

func (f *fixedIndex) Query(_ context.Context, _ string, k int, where map[string]string) ([]interfaces.SearchHit, error) {
	var out []interfaces.SearchHit
	for _, hit := range f.hits {
		match := true
		for key, want := range where {
			if hit.Metadata[key] != want {
				match = false
				break
			}
		}
		if match {
			out = append(out, hit)
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func indexHit(id, category string, l2 float64) interfaces.SearchHit {
	return interfaces.SearchHit{
		Metadata: map[string]string{"product_id": id, "category": category},
		L2:       l2,
	}
}

func testCatalog() *catalog.Ledger {
	return catalog.NewLedger([]models.Product{
		{ID: "LTH0976", Name: "Leather Bifold Wallet", Category: "Accessories", Description: "Compact bifold in full-grain leather", Price: 21.0, Stock: 4, Type: "wallet"},
		{ID: "CBT8901", Name: "Chelsea Boots", Category: "Men's Shoes", Description: "Classic leather chelsea boots", Price: 57.0, Stock: 2, Type: "boots"},
		{ID: "SDB2345", Name: "Suede Derby Shoes", Category: "Men's Shoes", Description: "Soft suede derby", Price: 64.0, Stock: 5, Type: "shoes"},
		{ID: "VSC6789", Name: "Versatile Scarf", Category: "Accessories", Description: "All-season scarf", Price: 12.0, Stock: 0, Type: "scarf"},
	})
}

func testValidator() *validator.Validate {
	return validator.New()
}

// orderState builds a state whose classifier found one order segment with
// the given mention, already resolved to the given candidate.
func orderState(emailID string, mention models.ProductMention, candidate models.Candidate) *models.WorkflowState {
	state := models.NewWorkflowState("run-test", models.IncomingEmail{
		ID:      emailID,
		Subject: "Order",
		Body:    "I would like to order something.",
	})
	state.Classifier = &models.EmailAnalysis{
		EmailID:  emailID,
		Language: "English",
		Intent:   models.IntentOrderRequest,
		Segments: []models.Segment{
			{Kind: models.SegmentOrder, MainSentence: "I would like to order something.", Mentions: []models.ProductMention{mention}},
		},
	}
	state.Stockkeeper = &models.StockkeeperOutput{
		Candidates: []models.ResolvedProduct{
			{Mention: mention, Candidates: []models.Candidate{candidate}},
		},
	}
	return state
}

func exactCandidate(p models.Product) models.Candidate {
	return models.Candidate{
		ProductID:  p.ID,
		Name:       p.Name,
		Category:   p.Category,
		Type:       p.Type,
		Price:      p.Price,
		Stock:      p.Stock,
		L2:         0,
		Confidence: 1.0,
		Method:     models.MethodExactID,
	}
}
