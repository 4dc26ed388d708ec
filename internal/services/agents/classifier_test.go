package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/hermes/internal/models"
	"github.com/ternarybob/hermes/internal/services/llm"
)

func TestClassifierRun(t *testing.T) {
	payload := `{
		"language": "Spanish",
		"primary_intent": "product_inquiry",
		"customer_pii": {"Full_Name": "Ana Torres", "E-Mail": "ana@example.com", "loyalty_id": "L-77"},
		"segments": [
			{
				"segment_type": "order",
				"main_sentence": "Quiero comprar la cartera LTH0976.",
				"product_mentions": [
					{"product_id": "LTH0976", "product_type": "wallet", "quantity": 2, "confidence": 0.95},
					{"quantity": 1, "confidence": 0.2}
				]
			},
			{
				"segment_type": "personal_statement",
				"main_sentence": "Saludos desde Madrid."
			}
		]
	}`
	client := &scriptedClient{responses: []llm.ContentResponse{textResponse(payload)}}
	agent := NewClassifierAgent(client, testValidator(), []string{"Accessories", "Men's Shoes"}, arbor.NewLogger())

	state := models.NewWorkflowState("run-test", models.IncomingEmail{ID: "E001", Subject: "Pedido", Body: "Quiero comprar la cartera LTH0976. Saludos desde Madrid."})
	require.NoError(t, agent.Run(context.Background(), state))
	require.NotNil(t, state.Classifier)

	analysis := state.Classifier
	assert.Equal(t, "E001", analysis.EmailID)
	assert.Equal(t, "Spanish", analysis.Language)

	// The model said product_inquiry, but an order segment exists, so the
	// derived intent wins.
	assert.Equal(t, models.IntentOrderRequest, analysis.Intent)

	assert.Equal(t, "Ana Torres", analysis.CustomerPII.Name)
	assert.Equal(t, "ana@example.com", analysis.CustomerPII.Email)
	assert.Equal(t, "L-77", analysis.CustomerPII.Extra["loyalty_id"])

	require.Len(t, analysis.Segments, 2)
	require.Len(t, analysis.Segments[0].Mentions, 1, "blank mention must be dropped")
	assert.Equal(t, "LTH0976", analysis.Segments[0].Mentions[0].ProductID)
	assert.Equal(t, 2, analysis.Segments[0].Mentions[0].Quantity)

	assert.Equal(t, "weak-test", client.lastRequest().Model)
}

func TestClassifierRun_BlankLanguageDefaultsToEnglish(t *testing.T) {
	payload := `{"language": " ", "primary_intent": "product_inquiry", "segments": []}`
	client := &scriptedClient{responses: []llm.ContentResponse{textResponse(payload)}}
	agent := NewClassifierAgent(client, testValidator(), nil, arbor.NewLogger())

	state := models.NewWorkflowState("run-test", models.IncomingEmail{ID: "E002", Subject: "Hi", Body: "Hello"})
	require.NoError(t, agent.Run(context.Background(), state))
	assert.Equal(t, "English", state.Classifier.Language)
	assert.Equal(t, models.IntentProductInquiry, state.Classifier.Intent)
}

func TestNormalizePII(t *testing.T) {
	pii := normalizePII(map[string]string{
		"Customer_Name": "Lena Kovac",
		"MAIL":          "lena@example.com",
		"Mobile":        "+385 91 000 0000",
		"address":       "Zagreb",
	})

	assert.Equal(t, "Lena Kovac", pii.Name)
	assert.Equal(t, "lena@example.com", pii.Email)
	assert.Equal(t, "+385 91 000 0000", pii.Phone)
	assert.Equal(t, "Zagreb", pii.Extra["address"])
}

func TestNormalizePII_SkipsEmptyValues(t *testing.T) {
	pii := normalizePII(map[string]string{"name": "  ", "email": ""})
	assert.True(t, pii.IsEmpty())
}

func TestConsolidateMentions_MergesSameID(t *testing.T) {
	analysis := &models.EmailAnalysis{
		Segments: []models.Segment{
			{Kind: models.SegmentOrder, Mentions: []models.ProductMention{
				{ProductID: "LTH0976", Quantity: 1, Confidence: 0.8},
			}},
			{Kind: models.SegmentOrder, Mentions: []models.ProductMention{
				{ProductID: "[LTH 09 76]", ProductName: "Bifold Wallet", Quantity: 2, Confidence: 0.9},
			}},
		},
	}

	consolidateMentions(analysis)

	require.Len(t, analysis.Segments[0].Mentions, 1)
	assert.Empty(t, analysis.Segments[1].Mentions)

	m := analysis.Segments[0].Mentions[0]
	assert.Equal(t, "LTH0976", m.ProductID, "first spelling is kept")
	assert.Equal(t, 3, m.Quantity)
	assert.Equal(t, 0.9, m.Confidence)
	assert.Equal(t, "Bifold Wallet", m.ProductName, "empty fields are filled from later mentions")
}

func TestConsolidateMentions_KindsStaySeparate(t *testing.T) {
	analysis := &models.EmailAnalysis{
		Segments: []models.Segment{
			{Kind: models.SegmentOrder, Mentions: []models.ProductMention{{ProductID: "CBT8901", Quantity: 1}}},
			{Kind: models.SegmentInquiry, Mentions: []models.ProductMention{{ProductID: "CBT8901"}}},
		},
	}

	consolidateMentions(analysis)

	require.Len(t, analysis.Segments[0].Mentions, 1)
	require.Len(t, analysis.Segments[1].Mentions, 1)
	assert.Equal(t, 1, analysis.Segments[0].Mentions[0].Quantity, "inquiry mention must not add to the order quantity")
}

func TestConsolidateMentions_KeylessNeverMerged(t *testing.T) {
	analysis := &models.EmailAnalysis{
		Segments: []models.Segment{
			{Kind: models.SegmentInquiry, Mentions: []models.ProductMention{
				{ProductDescription: "something warm for winter"},
				{ProductDescription: "a gift for my brother"},
			}},
		},
	}

	consolidateMentions(analysis)
	assert.Len(t, analysis.Segments[0].Mentions, 2)
}

func TestMentionKey(t *testing.T) {
	tests := []struct {
		mention models.ProductMention
		key     string
	}{
		{models.ProductMention{ProductID: "[lth 09 76]"}, "id:LTH0976"},
		{models.ProductMention{ProductName: " Chelsea Boots "}, "name:chelsea boots"},
		{models.ProductMention{ProductID: "CBT8901", ProductName: "Boots"}, "id:CBT8901"},
		{models.ProductMention{ProductDescription: "warm hat"}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.key, mentionKey(&tt.mention))
	}
}
