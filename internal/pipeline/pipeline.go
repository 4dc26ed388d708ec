package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/hermes/internal/models"
	"github.com/ternarybob/hermes/internal/services/llm"
)

// Handler runs one workflow node against the shared state. A handler writes
// only its own output slot; failures are returned, never written to state
// directly.
type Handler func(ctx context.Context, state *models.WorkflowState) error

// nodeSpec declares a node's slot contract and handler. Reads and writes
// are the state slots the node touches; writes are disjoint across nodes so
// fan-out needs no slot locking.
type nodeSpec struct {
	reads  []string
	writes []string
	run    Handler
}

// edges is the static topology. Routing after stockkeeper picks which of
// the fan-out edges are taken for a given email.
var edges = [][2]string{
	{"start", models.NodeClassifier},
	{models.NodeClassifier, models.NodeStockkeeper},
	{models.NodeStockkeeper, models.NodeFulfiller},
	{models.NodeStockkeeper, models.NodeAdvisor},
	{models.NodeFulfiller, models.NodeComposer},
	{models.NodeAdvisor, models.NodeComposer},
	{models.NodeStockkeeper, models.NodeComposer},
	{models.NodeComposer, "end"},
}

// Nodes carries the handler for every workflow node.
type Nodes struct {
	Classifier  Handler
	Stockkeeper Handler
	Fulfiller   Handler
	Advisor     Handler
	Composer    Handler
}

// Pipeline drives one email through the workflow graph: classifier, then
// stockkeeper, then fulfiller and/or advisor per routing, then composer.
// Every node runs under a supervisor that converts failures and panics into
// an ErrorRecord on the state, so the graph always reaches the composer.
type Pipeline struct {
	table  map[string]nodeSpec
	logger arbor.ILogger
}

// New creates a pipeline over the given node handlers.
func New(nodes Nodes, logger arbor.ILogger) (*Pipeline, error) {
	table := map[string]nodeSpec{
		models.NodeClassifier: {
			reads:  []string{"email"},
			writes: []string{"classifier"},
			run:    nodes.Classifier,
		},
		models.NodeStockkeeper: {
			reads:  []string{"email", "classifier"},
			writes: []string{"stockkeeper"},
			run:    nodes.Stockkeeper,
		},
		models.NodeFulfiller: {
			reads:  []string{"email", "classifier", "stockkeeper"},
			writes: []string{"fulfiller"},
			run:    nodes.Fulfiller,
		},
		models.NodeAdvisor: {
			reads:  []string{"email", "classifier", "stockkeeper"},
			writes: []string{"advisor"},
			run:    nodes.Advisor,
		},
		models.NodeComposer: {
			reads:  []string{"email", "classifier", "stockkeeper", "fulfiller", "advisor", "errors"},
			writes: []string{"composer"},
			run:    nodes.Composer,
		},
	}

	for name, spec := range table {
		if spec.run == nil {
			return nil, fmt.Errorf("pipeline node %s has no handler", name)
		}
	}
	for _, edge := range edges {
		for _, endpoint := range edge {
			if endpoint == "start" || endpoint == "end" {
				continue
			}
			if _, ok := table[endpoint]; !ok {
				return nil, fmt.Errorf("pipeline edge references unknown node %s", endpoint)
			}
		}
	}

	p := &Pipeline{table: table, logger: logger}
	for name, spec := range table {
		logger.Debug().
			Str("node", name).
			Strs("reads", spec.reads).
			Strs("writes", spec.writes).
			Msg("Pipeline node registered")
	}
	return p, nil
}

// Process runs one email through the graph. Node failures are contained in
// state.Errors; the composer always executes. The state's CompletedAt is
// set when the graph finishes.
func (p *Pipeline) Process(ctx context.Context, state *models.WorkflowState) {
	p.runNode(ctx, models.NodeClassifier, state)
	p.runNode(ctx, models.NodeStockkeeper, state)

	next := Route(state)
	switch len(next) {
	case 0:
		// Nothing routed; the composer handles the email from the
		// classifier output (or its error) alone.
	case 1:
		p.runNode(ctx, next[0], state)
	default:
		var wg sync.WaitGroup
		for _, name := range next {
			wg.Add(1)
			go func(node string) {
				defer wg.Done()
				p.runNode(ctx, node, state)
			}(name)
		}
		wg.Wait()
	}

	p.runNode(ctx, models.NodeComposer, state)
	state.CompletedAt = time.Now().UTC()
}

// Route returns the nodes to run between stockkeeper and composer. Order
// segments route to the fulfiller, inquiry segments to the advisor; both
// kinds route both. A failed classifier routes nothing.
func Route(state *models.WorkflowState) []string {
	analysis := state.Classifier
	if analysis == nil {
		return nil
	}

	var next []string
	if analysis.HasOrderSegments() {
		next = append(next, models.NodeFulfiller)
	}
	if analysis.HasInquirySegments() {
		next = append(next, models.NodeAdvisor)
	}
	return next
}

// runNode executes one node under the supervisor. Returned errors and
// panics become ErrorRecords; the node's output slot stays empty on
// failure.
func (p *Pipeline) runNode(ctx context.Context, name string, state *models.WorkflowState) {
	spec := p.table[name]
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			state.RecordError(models.ErrorRecord{
				Node:    name,
				Kind:    models.ErrNodeException,
				Message: fmt.Sprintf("panic: %v", r),
				Details: map[string]string{"stack": string(debug.Stack())},
			})
			p.logger.Error().
				Str("node", name).
				Str("email_id", state.Email.ID).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("Node panicked")
		}
	}()

	p.logger.Debug().
		Str("node", name).
		Str("email_id", state.Email.ID).
		Msg("Node starting")

	if err := spec.run(ctx, state); err != nil {
		state.RecordError(classifyError(name, err))
		p.logger.Warn().
			Str("node", name).
			Str("email_id", state.Email.ID).
			Err(err).
			Msg("Node failed")
		return
	}

	p.logger.Debug().
		Str("node", name).
		Str("email_id", state.Email.ID).
		Int64("elapsed_ms", time.Since(started).Milliseconds()).
		Msg("Node complete")
}

// classifyError maps a node failure onto the error taxonomy.
func classifyError(node string, err error) models.ErrorRecord {
	rec := models.ErrorRecord{
		Node:    node,
		Kind:    models.ErrNodeException,
		Message: err.Error(),
		Details: map[string]string{},
	}

	var toolErr *llm.ToolCallError
	var schemaErr *llm.SchemaValidationError
	var invErr *llm.InvocationError
	switch {
	case errors.As(err, &toolErr):
		rec.Kind = models.ErrToolCall
		if len(toolErr.MissingTools) > 0 {
			rec.Details["missing_tools"] = strings.Join(toolErr.MissingTools, ", ")
		}
		if toolErr.Tool != "" {
			rec.Details["tool"] = toolErr.Tool
		}
	case errors.As(err, &schemaErr):
		rec.Kind = models.ErrStructuredOutput
		rec.Details["attempts"] = strconv.Itoa(schemaErr.Attempts)
	case errors.As(err, &invErr):
		rec.Kind = models.ErrLLMInvocation
		rec.Details["provider"] = string(invErr.Provider)
		rec.Details["model"] = invErr.Model
	}
	return rec
}
