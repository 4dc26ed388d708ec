package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hermes/internal/common"
	"github.com/ternarybob/hermes/internal/models"
)

// ProcessFunc runs the pipeline for one email and returns its terminal
// state. A non-nil error means the email could not be processed at all;
// per-node failures live inside the state and are not errors here.
type ProcessFunc func(ctx context.Context, email models.IncomingEmail) (*models.WorkflowState, error)

// Pool fans a batch of emails over a fixed number of workers. Results come
// back in input order regardless of which worker finished first.
type Pool struct {
	count       int
	stopOnError bool
	logger      arbor.ILogger
}

// NewPool creates a batch pool from the workers config.
func NewPool(cfg common.WorkersConfig, logger arbor.ILogger) *Pool {
	count := cfg.Count
	if count <= 0 {
		count = 2
	}
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Pool{count: count, stopOnError: cfg.StopOnError, logger: logger}
}

// Run processes the batch and returns the terminal states in input order.
// Emails that produced no state are omitted. Under stop-on-error the first
// email that fails, or that completes with node errors recorded, cancels
// the remaining work and Run returns the triggering error.
func (p *Pool) Run(ctx context.Context, emails []models.IncomingEmail, process ProcessFunc) ([]*models.WorkflowState, error) {
	if len(emails) == 0 {
		return nil, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := p.count
	if workers > len(emails) {
		workers = len(emails)
	}
	p.logger.Info().
		Int("emails", len(emails)).
		Int("workers", workers).
		Bool("stop_on_error", p.stopOnError).
		Msg("Starting batch")

	type job struct {
		idx   int
		email models.IncomingEmail
	}
	jobs := make(chan job)
	states := make([]*models.WorkflowState, len(emails))

	var mu sync.Mutex
	var abortErr error
	abort := func(err error) {
		mu.Lock()
		if abortErr == nil {
			abortErr = err
		}
		mu.Unlock()
		cancel()
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := range jobs {
				if runCtx.Err() != nil {
					return
				}
				state, err := process(runCtx, j.email)
				if err != nil {
					p.logger.Error().Err(err).
						Int("worker_id", workerID).
						Str("email_id", j.email.ID).
						Msg("Email processing failed")
					if p.stopOnError {
						abort(fmt.Errorf("email %s: %w", j.email.ID, err))
						return
					}
					continue
				}
				states[j.idx] = state
				if state != nil && state.HasErrors() {
					summary := state.ErrorSummary()
					p.logger.Warn().
						Int("worker_id", workerID).
						Str("email_id", j.email.ID).
						Strs("errors", summary).
						Msg("Email completed with node errors")
					if p.stopOnError {
						abort(fmt.Errorf("email %s: %s", j.email.ID, summary[0]))
						return
					}
				}
			}
		}(i)
	}

feed:
	for idx, email := range emails {
		select {
		case jobs <- job{idx: idx, email: email}:
		case <-runCtx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	done := make([]*models.WorkflowState, 0, len(emails))
	for _, state := range states {
		if state != nil {
			done = append(done, state)
		}
	}

	mu.Lock()
	err := abortErr
	mu.Unlock()
	if err != nil {
		return done, fmt.Errorf("batch aborted: %w", err)
	}
	if ctx.Err() != nil {
		return done, ctx.Err()
	}
	p.logger.Info().Int("processed", len(done)).Msg("Batch complete")
	return done, nil
}
