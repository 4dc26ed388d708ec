package sources

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/hermes/internal/models"
)

// Spec names one input table: a local CSV file or a Google Sheets tab
// written as "SHEET_ID#SHEET_NAME".
type Spec struct {
	Path    string
	SheetID string
	Tab     string
}

// ParseSpec parses a source argument. Anything containing '#' is treated
// as a spreadsheet reference; everything else is a file path.
func ParseSpec(arg string) (Spec, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return Spec{}, fmt.Errorf("empty source")
	}

	if strings.Contains(arg, "#") {
		parts := strings.SplitN(arg, "#", 2)
		id, tab := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if id == "" || tab == "" {
			return Spec{}, fmt.Errorf("spreadsheet source %q must be SHEET_ID#SHEET_NAME", arg)
		}
		return Spec{SheetID: id, Tab: tab}, nil
	}
	return Spec{Path: arg}, nil
}

// IsSheet reports whether the spec points at a Google Sheets tab.
func (s Spec) IsSheet() bool {
	return s.SheetID != ""
}

func (s Spec) String() string {
	if s.IsSheet() {
		return s.SheetID + "#" + s.Tab
	}
	return s.Path
}

// Service loads product and email tables from local CSV files or Google
// Sheets tabs and normalizes email bodies for the pipeline.
type Service struct {
	client *http.Client
	logger arbor.ILogger
}

// NewService creates a source service.
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// LoadRecords loads a table as header-keyed records, from disk or from the
// spreadsheet export endpoint.
func (s *Service) LoadRecords(ctx context.Context, spec Spec) ([]map[string]string, error) {
	if spec.IsSheet() {
		return s.sheetRecords(ctx, spec.SheetID, spec.Tab)
	}
	return s.fileRecords(spec.Path)
}

// LoadEmails loads and normalizes the email table from the given source.
func (s *Service) LoadEmails(ctx context.Context, spec Spec) ([]models.IncomingEmail, error) {
	records, err := s.LoadRecords(ctx, spec)
	if err != nil {
		return nil, err
	}

	source := models.EmailSourceCSV
	if spec.IsSheet() {
		source = models.EmailSourceSheet
	}

	emails := s.emailsFromRecords(records, source)
	s.logger.Info().
		Str("source", spec.String()).
		Int("emails", len(emails)).
		Msg("Emails loaded")
	return emails, nil
}

func (s *Service) fileRecords(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	records, err := ReadRecords(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return records, nil
}
