package agents

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/hermes/internal/models"
	"github.com/ternarybob/hermes/internal/services/resolver"
)

// StockkeeperAgent resolves every product mention in the analysis against
// the catalog. It is fully deterministic: no LLM call, only the resolver's
// id lookup, fuzzy rescue, and semantic search.
//
// Output slot: state.Stockkeeper.
type StockkeeperAgent struct {
	resolver *resolver.Resolver
	logger   arbor.ILogger
}

// NewStockkeeperAgent creates the stockkeeper over the given resolver.
func NewStockkeeperAgent(r *resolver.Resolver, logger arbor.ILogger) *StockkeeperAgent {
	return &StockkeeperAgent{resolver: r, logger: logger}
}

// Run resolves the mentions of every segment. A missing or failed
// classifier yields an empty resolution, not an error; the composer
// handles the rest.
func (a *StockkeeperAgent) Run(ctx context.Context, state *models.WorkflowState) error {
	var mentions []models.ProductMention
	if state.Classifier != nil {
		mentions = state.Classifier.AllMentions()
	}

	output, err := a.resolver.Resolve(ctx, mentions)
	if err != nil {
		return err
	}

	a.logger.Info().
		Str("email_id", state.Email.ID).
		Int("mentions", len(mentions)).
		Int("resolved", len(output.Candidates)).
		Int("unresolved", len(output.Unresolved)).
		Msg("Product mentions resolved")

	state.Stockkeeper = output
	return nil
}
