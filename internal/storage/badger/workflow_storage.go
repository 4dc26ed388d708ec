package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/hermes/internal/interfaces"
	"github.com/ternarybob/hermes/internal/models"
)

// WorkflowStorage persists terminal workflow states, keyed by email id.
// Reprocessing an email replaces its previous state.
type WorkflowStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewWorkflowStorage creates a new WorkflowStorage instance
func NewWorkflowStorage(db *BadgerDB, logger arbor.ILogger) interfaces.WorkflowStorage {
	return &WorkflowStorage{
		db:     db,
		logger: logger,
	}
}

// SaveState stores the terminal state for an email
func (s *WorkflowStorage) SaveState(ctx context.Context, state *models.WorkflowState) error {
	if state.Email.ID == "" {
		return fmt.Errorf("workflow state has no email id")
	}

	if err := s.db.Store().Upsert(state.Email.ID, state); err != nil {
		return fmt.Errorf("failed to save workflow state: %w", err)
	}

	s.logger.Debug().
		Str("email_id", state.Email.ID).
		Str("run_id", state.RunID).
		Msg("Saved workflow state")
	return nil
}

// GetState loads the stored state for an email
func (s *WorkflowStorage) GetState(ctx context.Context, emailID string) (*models.WorkflowState, error) {
	var state models.WorkflowState
	err := s.db.Store().Get(emailID, &state)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow state: %w", err)
	}
	return &state, nil
}

// ListStates returns every stored state for a run, ordered by email id
func (s *WorkflowStorage) ListStates(ctx context.Context, runID string) ([]*models.WorkflowState, error) {
	var states []*models.WorkflowState
	err := s.db.Store().Find(&states, badgerhold.Where("RunID").Eq(runID).SortBy("StartedAt"))
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow states: %w", err)
	}
	return states, nil
}
