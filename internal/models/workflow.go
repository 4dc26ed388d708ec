package models

import (
	"sync"
	"time"
)

// Node names used as error-map keys and log fields
const (
	NodeClassifier  = "classifier"
	NodeStockkeeper = "stockkeeper"
	NodeFulfiller   = "fulfiller"
	NodeAdvisor     = "advisor"
	NodeComposer    = "composer"
)

// ErrorKind names the failure taxonomy recorded on workflow state
type ErrorKind string

const (
	ErrLLMInvocation    ErrorKind = "LLMInvocationError"
	ErrStructuredOutput ErrorKind = "StructuredOutputValidationError"
	ErrToolCall         ErrorKind = "ToolCallError"
	ErrNodeException    ErrorKind = "NodeException"
)

// ErrorRecord captures a supervised node failure. The failing node's
// output slot stays empty; downstream nodes read the record instead.
type ErrorRecord struct {
	Node    string            `json:"node" yaml:"node"`
	Kind    ErrorKind         `json:"kind" yaml:"kind"`
	Message string            `json:"message" yaml:"message"`
	Details map[string]string `json:"details,omitempty" yaml:"details,omitempty"`
	At      time.Time         `json:"at" yaml:"at"`
}

// WorkflowState is the shared state one email accumulates while moving
// through the graph. Each node writes exactly one slot, once; the error map
// is keyed by node name, so merges are disjoint by construction. The mutex
// covers the error map during fan-out.
type WorkflowState struct {
	RunID string        `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Email IncomingEmail `json:"email" yaml:"email"`

	Classifier  *EmailAnalysis     `json:"classifier,omitempty" yaml:"classifier,omitempty"`
	Stockkeeper *StockkeeperOutput `json:"stockkeeper,omitempty" yaml:"stockkeeper,omitempty"`
	Fulfiller   *Order             `json:"fulfiller,omitempty" yaml:"fulfiller,omitempty"`
	Advisor     *AdvisorOutput     `json:"advisor,omitempty" yaml:"advisor,omitempty"`
	Composer    *ComposerOutput    `json:"composer,omitempty" yaml:"composer,omitempty"`

	Errors map[string]ErrorRecord `json:"errors,omitempty" yaml:"errors,omitempty"`

	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`

	mu sync.Mutex
}

// NewWorkflowState creates an empty state for one email
func NewWorkflowState(runID string, email IncomingEmail) *WorkflowState {
	return &WorkflowState{
		RunID:     runID,
		Email:     email,
		Errors:    make(map[string]ErrorRecord),
		StartedAt: time.Now().UTC(),
	}
}

// RecordError stores a node failure. Safe for concurrent use during fan-out.
func (s *WorkflowState) RecordError(rec ErrorRecord) {
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors[rec.Node] = rec
}

// ErrorFor returns the recorded failure for a node, if any
func (s *WorkflowState) ErrorFor(node string) (ErrorRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.Errors[node]
	return rec, ok
}

// HasErrors reports whether any node failed
func (s *WorkflowState) HasErrors() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Errors) > 0
}

// ErrorSummary renders one line per failed node, ordered by node name,
// for prompts and logs.
func (s *WorkflowState) ErrorSummary() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Errors) == 0 {
		return nil
	}
	order := []string{NodeClassifier, NodeStockkeeper, NodeFulfiller, NodeAdvisor, NodeComposer}
	var lines []string
	for _, node := range order {
		if rec, ok := s.Errors[node]; ok {
			lines = append(lines, rec.Node+": "+string(rec.Kind)+": "+rec.Message)
		}
	}
	return lines
}
