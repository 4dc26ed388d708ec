package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/hermes/internal/models"
	"github.com/ternarybob/hermes/internal/services/resolver"
)

func TestStockkeeperRun(t *testing.T) {
	r := resolver.New(testCatalog(), &fixedIndex{}, arbor.NewLogger())
	agent := NewStockkeeperAgent(r, arbor.NewLogger())

	state := models.NewWorkflowState("run-test", models.IncomingEmail{ID: "E030"})
	state.Classifier = &models.EmailAnalysis{
		EmailID: "E030",
		Segments: []models.Segment{
			{Kind: models.SegmentOrder, Mentions: []models.ProductMention{{ProductID: "LTH0976", Quantity: 2}}},
		},
	}

	require.NoError(t, agent.Run(context.Background(), state))
	require.NotNil(t, state.Stockkeeper)
	require.Len(t, state.Stockkeeper.Candidates, 1)
	assert.Equal(t, "LTH0976", state.Stockkeeper.Candidates[0].Best().ProductID)
	assert.Empty(t, state.Stockkeeper.ExactIDMisses)
}

func TestStockkeeperRun_NoClassifier(t *testing.T) {
	r := resolver.New(testCatalog(), &fixedIndex{}, arbor.NewLogger())
	agent := NewStockkeeperAgent(r, arbor.NewLogger())

	state := models.NewWorkflowState("run-test", models.IncomingEmail{ID: "E031"})
	require.NoError(t, agent.Run(context.Background(), state))
	require.NotNil(t, state.Stockkeeper, "a failed classifier still yields an empty resolution")
	assert.Empty(t, state.Stockkeeper.Candidates)
}
