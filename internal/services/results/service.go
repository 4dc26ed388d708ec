package results

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/hermes/internal/common"
	"github.com/ternarybob/hermes/internal/interfaces"
	"github.com/ternarybob/hermes/internal/models"
)

// TablePusher mirrors the output tables to a spreadsheet. Satisfied by
// sheets.Service; kept as an interface so runs without credentials skip
// the push entirely.
type TablePusher interface {
	ReadTable(ctx context.Context, spreadsheetID, tab string) ([][]string, error)
	WriteTable(ctx context.Context, spreadsheetID, tab string, rows [][]string) error
}

// Writer lands the terminal states of a batch: the four CSV tables and a
// per-email YAML dump under the output directory, plus optional spreadsheet
// mirroring and workflow-store persistence.
type Writer struct {
	outDir  string
	pusher  TablePusher
	sheetID string
	store   interfaces.WorkflowStorage
	logger  arbor.ILogger
}

// NewWriter creates a results writer rooted at outDir.
func NewWriter(outDir string, logger arbor.ILogger) *Writer {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Writer{outDir: outDir, logger: logger}
}

// WithSheet mirrors every table to a tab of the given spreadsheet.
func (w *Writer) WithSheet(pusher TablePusher, spreadsheetID string) *Writer {
	w.pusher = pusher
	w.sheetID = spreadsheetID
	return w
}

// WithStorage persists each terminal state to the workflow store.
func (w *Writer) WithStorage(store interfaces.WorkflowStorage) *Writer {
	w.store = store
	return w
}

// OutDir returns the output directory the writer lands files in.
func (w *Writer) OutDir() string {
	return w.outDir
}

// WriteBatch lands the outputs for one batch of terminal states. All four
// CSVs are written every run, merged with any pre-existing rows by email
// id. YAML dumps and workflow-store saves are per-email and non-fatal; a
// failed table write or spreadsheet push fails the batch.
func (w *Writer) WriteBatch(ctx context.Context, states []*models.WorkflowState) error {
	tables := buildTables(states)
	if len(tables.order) == 0 {
		w.logger.Debug().Msg("No terminal states to write")
	}

	for _, t := range tables.all() {
		path := filepath.Join(w.outDir, t.file)
		existing, err := readRows(path, t.header)
		if err != nil {
			return err
		}
		merged := mergeRows(existing, t.rows, tables.order)
		if err := writeRowsAtomic(path, t.header, merged); err != nil {
			return err
		}
		w.logger.Info().
			Str("file", t.file).
			Int("rows", len(merged)).
			Int("emails", len(tables.order)).
			Msg("Wrote results table")
	}

	for _, state := range states {
		if state == nil {
			continue
		}
		if err := w.writeStateYAML(state); err != nil {
			w.logger.Warn().Err(err).Str("email_id", state.Email.ID).Msg("Failed to write state YAML")
		}
		if w.store != nil {
			if err := w.store.SaveState(ctx, state); err != nil {
				w.logger.Warn().Err(err).Str("email_id", state.Email.ID).Msg("Failed to persist workflow state")
			}
		}
	}

	if w.pusher != nil && w.sheetID != "" {
		if err := w.pushTables(ctx, tables); err != nil {
			return err
		}
	}
	return nil
}

// pushTables mirrors the merged tables to the output spreadsheet, applying
// the same merge against whatever rows the sheet currently holds.
func (w *Writer) pushTables(ctx context.Context, tables *tableSet) error {
	for _, t := range tables.all() {
		tab := strings.TrimSuffix(t.file, ".csv")
		remote, err := w.pusher.ReadTable(ctx, w.sheetID, tab)
		if err != nil {
			return fmt.Errorf("failed to read sheet tab %s: %w", tab, err)
		}
		if len(remote) > 0 && isHeaderRow(remote[0], t.header) {
			remote = remote[1:]
		}
		merged := mergeRows(remote, t.rows, tables.order)
		rows := make([][]string, 0, len(merged)+1)
		rows = append(rows, t.header)
		rows = append(rows, merged...)
		if err := w.pusher.WriteTable(ctx, w.sheetID, tab, rows); err != nil {
			return fmt.Errorf("failed to push sheet tab %s: %w", tab, err)
		}
		w.logger.Info().
			Str("tab", tab).
			Str("spreadsheet_id", w.sheetID).
			Int("rows", len(merged)).
			Msg("Pushed results table to spreadsheet")
	}
	return nil
}

// writeStateYAML dumps the full terminal state for one email under
// results/ for debugging and audits.
func (w *Writer) writeStateYAML(state *models.WorkflowState) error {
	dir := filepath.Join(w.outDir, "results")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}
	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state for %s: %w", state.Email.ID, err)
	}
	path := filepath.Join(dir, sanitizeFileName(state.Email.ID)+".yml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// sanitizeFileName maps an email id onto a safe file name. IMAP message
// ids can carry slashes and angle brackets that must not reach the path.
func sanitizeFileName(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "unknown"
	}
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-' || r == '@':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
