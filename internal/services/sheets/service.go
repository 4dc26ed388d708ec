package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	apiBase = "https://sheets.googleapis.com/v4/spreadsheets"
	scope   = "https://www.googleapis.com/auth/spreadsheets"
)

// Service reads and writes spreadsheet tabs through the Sheets values API.
// Authentication uses application default credentials (service account via
// GOOGLE_APPLICATION_CREDENTIALS), or a static token from
// HERMES_SHEETS_TOKEN when set.
type Service struct {
	client *http.Client
	logger arbor.ILogger
	base   string
}

// NewService builds an authenticated sheets client.
func NewService(ctx context.Context, logger arbor.ILogger) (*Service, error) {
	ts, err := tokenSource(ctx)
	if err != nil {
		return nil, err
	}
	client := oauth2.NewClient(ctx, ts)
	client.Timeout = 30 * time.Second
	return &Service{client: client, logger: logger, base: apiBase}, nil
}

func tokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if token := os.Getenv("HERMES_SHEETS_TOKEN"); token != "" {
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}), nil
	}
	ts, err := google.DefaultTokenSource(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("sheets credentials: %w (set GOOGLE_APPLICATION_CREDENTIALS or HERMES_SHEETS_TOKEN)", err)
	}
	return ts, nil
}

// valueRange mirrors the Sheets API values payload.
type valueRange struct {
	Range          string          `json:"range,omitempty"`
	MajorDimension string          `json:"majorDimension,omitempty"`
	Values         [][]interface{} `json:"values"`
}

// ReadTable fetches every populated row of one tab as strings.
func (s *Service) ReadTable(ctx context.Context, spreadsheetID, tab string) ([][]string, error) {
	endpoint := fmt.Sprintf("%s/%s/values/%s", s.base, url.PathEscape(spreadsheetID), url.PathEscape(tab))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building sheets read request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reading tab %s: %w", tab, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
		// A tab that does not exist yet reads as empty.
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError("read", tab, resp)
	}

	var payload valueRange
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding tab %s: %w", tab, err)
	}

	rows := make([][]string, 0, len(payload.Values))
	for _, raw := range payload.Values {
		row := make([]string, len(raw))
		for i, cell := range raw {
			row[i] = fmt.Sprintf("%v", cell)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteTable replaces the contents of one tab with the given rows,
// clearing anything beyond them first.
func (s *Service) WriteTable(ctx context.Context, spreadsheetID, tab string, rows [][]string) error {
	if err := s.clearTab(ctx, spreadsheetID, tab); err != nil {
		return err
	}

	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, cell := range row {
			cells[j] = cell
		}
		values[i] = cells
	}

	body, err := json.Marshal(valueRange{
		Range:          tab,
		MajorDimension: "ROWS",
		Values:         values,
	})
	if err != nil {
		return fmt.Errorf("encoding rows for tab %s: %w", tab, err)
	}

	endpoint := fmt.Sprintf("%s/%s/values/%s?valueInputOption=RAW",
		s.base, url.PathEscape(spreadsheetID), url.PathEscape(tab))

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building sheets write request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("writing tab %s: %w", tab, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError("write", tab, resp)
	}

	s.logger.Info().
		Str("spreadsheet_id", spreadsheetID).
		Str("tab", tab).
		Int("rows", len(rows)).
		Msg("Sheet tab written")
	return nil
}

// clearTab empties the tab so stale rows below the new table disappear.
func (s *Service) clearTab(ctx context.Context, spreadsheetID, tab string) error {
	endpoint := fmt.Sprintf("%s/%s/values/%s:clear",
		s.base, url.PathEscape(spreadsheetID), url.PathEscape(tab))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader("{}"))
	if err != nil {
		return fmt.Errorf("building sheets clear request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("clearing tab %s: %w", tab, err)
	}
	defer resp.Body.Close()

	// A missing tab cannot be cleared; the write call surfaces real problems.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest && resp.StatusCode != http.StatusNotFound {
		return apiError("clear", tab, resp)
	}
	return nil
}

func apiError(op, tab string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("sheets %s on tab %s returned %d: %s", op, tab, resp.StatusCode, strings.TrimSpace(string(body)))
}
