package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/hermes/internal/interfaces"
	"github.com/ternarybob/hermes/internal/models"
	"github.com/ternarybob/hermes/internal/services/llm"
)

// inquiryState builds a state with one inquiry segment whose mention is
// already resolved to the given candidate.
func inquiryState(emailID string, mention models.ProductMention, candidates ...models.Candidate) *models.WorkflowState {
	state := models.NewWorkflowState("run-test", models.IncomingEmail{
		ID:      emailID,
		Subject: "Question",
		Body:    "Quick question about a product.",
	})
	state.Classifier = &models.EmailAnalysis{
		EmailID:  emailID,
		Language: "English",
		Intent:   models.IntentProductInquiry,
		Segments: []models.Segment{
			{Kind: models.SegmentInquiry, MainSentence: "Quick question about a product.", Mentions: []models.ProductMention{mention}},
		},
	}
	state.Stockkeeper = &models.StockkeeperOutput{}
	if len(candidates) > 0 {
		state.Stockkeeper.Candidates = []models.ResolvedProduct{{Mention: mention, Candidates: candidates}}
	}
	return state
}

func adviceResponse(text string, tools ...string) llm.ContentResponse {
	resp := textResponse(text)
	for _, name := range tools {
		resp.ToolCalls = append(resp.ToolCalls, interfaces.ToolCall{Name: name, Result: "{}"})
	}
	return resp
}

func TestAdvisorRun_AnswersQuestions(t *testing.T) {
	ledger := testCatalog()
	boots, _ := ledger.Get("CBT8901")

	payload := `{
		"answered_questions": [
			{"question": "Are the boots leather?", "answer": "Yes, full leather.", "confidence": 0.9, "reference_product_ids": ["CBT8901"], "answer_type": "factual"}
		],
		"unanswered_questions": ["Do you ship to Mars?"],
		"related_products": ["SDB2345", "ZZZ9999"]
	}`
	client := &scriptedClient{responses: []llm.ContentResponse{adviceResponse(payload, "get_product_details")}}
	agent := NewAdvisorAgent(client, testValidator(), ledger, &fixedIndex{}, arbor.NewLogger())

	mention := models.ProductMention{ProductID: "CBT8901", Confidence: 0.9}
	state := inquiryState("E010", mention, exactCandidate(boots))
	require.NoError(t, agent.Run(context.Background(), state))
	require.NotNil(t, state.Advisor)

	advice := state.Advisor
	assert.Equal(t, "E010", advice.EmailID)
	assert.Equal(t, []string{"CBT8901"}, advice.PrimaryProducts)

	require.Len(t, advice.AnsweredQuestions, 1)
	assert.Equal(t, models.AnswerFactual, advice.AnsweredQuestions[0].AnswerType)
	assert.Equal(t, []string{"Do you ship to Mars?"}, advice.UnansweredQuestions)

	// Suggestions must exist in the catalog; the invented id is dropped.
	assert.Equal(t, []string{"SDB2345"}, advice.RelatedProducts)

	request := client.lastRequest()
	assert.Equal(t, "strong-test", request.Model)
	assert.Equal(t, []string{"get_product_details"}, request.RequiredTools)
	assert.Len(t, request.Tools, 3)
}

func TestAdvisorRun_NotFoundAnswerForUnmatchedID(t *testing.T) {
	payload := `{"answered_questions": [], "unanswered_questions": [], "related_products": []}`
	client := &scriptedClient{responses: []llm.ContentResponse{adviceResponse(payload, "search_products")}}
	agent := NewAdvisorAgent(client, testValidator(), testCatalog(), &fixedIndex{}, arbor.NewLogger())

	miss := models.ProductMention{ProductID: "XYZ1234"}
	state := inquiryState("E011", miss)
	state.Stockkeeper.ExactIDMisses = []models.ProductMention{miss}
	state.Stockkeeper.Unresolved = []models.ProductMention{miss}

	require.NoError(t, agent.Run(context.Background(), state))

	advice := state.Advisor
	assert.Equal(t, []string{"XYZ1234"}, advice.UnsuccessfulReferences)

	answers := advice.NotFoundAnswers()
	require.Len(t, answers, 1)
	assert.Contains(t, answers[0].Answer, "XYZ1234")
	assert.Equal(t, 1.0, answers[0].Confidence)
}

func TestAdvisorRun_RescuedIDAnsweredNormally(t *testing.T) {
	ledger := testCatalog()
	boots, _ := ledger.Get("CBT8901")

	payload := `{
		"answered_questions": [
			{"question": "Do you have CBT8901?", "answer": "Yes, in stock.", "confidence": 0.9, "answer_type": "factual"}
		]
	}`
	client := &scriptedClient{responses: []llm.ContentResponse{adviceResponse(payload, "get_product_details")}}
	agent := NewAdvisorAgent(client, testValidator(), ledger, &fixedIndex{}, arbor.NewLogger())

	// A bracketed id misses the raw lookup but resolves after cleanup, so
	// it is reported as unsuccessful without getting a not-found answer.
	mention := models.ProductMention{ProductID: "[CBT 89 01]"}
	state := inquiryState("E012", mention, exactCandidate(boots))
	state.Stockkeeper.ExactIDMisses = []models.ProductMention{mention}

	require.NoError(t, agent.Run(context.Background(), state))

	advice := state.Advisor
	assert.Equal(t, []string{"[CBT 89 01]"}, advice.UnsuccessfulReferences)
	assert.Empty(t, advice.NotFoundAnswers())
	require.Len(t, advice.AnsweredQuestions, 1)
	assert.Equal(t, "Yes, in stock.", advice.AnsweredQuestions[0].Answer)
}

func TestAdvisorRequiredTools(t *testing.T) {
	agent := NewAdvisorAgent(&scriptedClient{}, testValidator(), testCatalog(), &fixedIndex{}, arbor.NewLogger())

	withProducts := []models.ResolvedProduct{{Candidates: []models.Candidate{{ProductID: "CBT8901"}}}}
	assert.Equal(t, []string{"get_product_details"}, agent.requiredTools(withProducts))
	assert.Equal(t, []string{"search_products"}, agent.requiredTools(nil))
}

func TestAdvisorSearchTool(t *testing.T) {
	index := &fixedIndex{hits: []interfaces.SearchHit{
		indexHit("SDB2345", "Men's Shoes", 0.2),
		indexHit("CBT8901", "Men's Shoes", 0.4),
	}}
	agent := NewAdvisorAgent(&scriptedClient{}, testValidator(), testCatalog(), index, arbor.NewLogger())

	result, err := agent.handleSearch(context.Background(), map[string]interface{}{"query": "leather shoes"})
	require.NoError(t, err)

	hits := result.(map[string]interface{})["results"].([]map[string]interface{})
	require.Len(t, hits, 2)
	assert.Equal(t, "SDB2345", hits[0]["product_id"])

	_, err = agent.handleSearch(context.Background(), map[string]interface{}{"query": "   "})
	assert.Error(t, err, "empty query is rejected")
}

func TestAdvisorDetailsTool_NormalizesID(t *testing.T) {
	agent := NewAdvisorAgent(&scriptedClient{}, testValidator(), testCatalog(), &fixedIndex{}, arbor.NewLogger())

	result, err := agent.handleDetails(context.Background(), map[string]interface{}{"product_id": "[lth 09 76]"})
	require.NoError(t, err)

	details := result.(map[string]interface{})
	assert.Equal(t, "LTH0976", details["product_id"])
	assert.Equal(t, 21.0, details["price"])

	_, err = agent.handleDetails(context.Background(), map[string]interface{}{"product_id": "ZZZ0000"})
	assert.Error(t, err)
}

func TestAdvisorStockTool(t *testing.T) {
	agent := NewAdvisorAgent(&scriptedClient{}, testValidator(), testCatalog(), &fixedIndex{}, arbor.NewLogger())

	result, err := agent.handleStock(context.Background(), map[string]interface{}{"product_id": "VSC6789"})
	require.NoError(t, err)

	stock := result.(map[string]interface{})
	assert.Equal(t, 0, stock["stock"])
	assert.Equal(t, false, stock["in_stock"])
}
