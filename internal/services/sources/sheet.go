package sources

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// sheetExportURL builds the public CSV export endpoint for one tab of a
// Google spreadsheet. Works for any sheet shared as readable-by-link,
// without credentials.
func sheetExportURL(sheetID, tab string) string {
	return fmt.Sprintf(
		"https://docs.google.com/spreadsheets/d/%s/gviz/tq?tqx=out:csv&sheet=%s",
		url.PathEscape(sheetID), url.QueryEscape(tab),
	)
}

// sheetRecords fetches one spreadsheet tab as CSV and parses it exactly
// like a local file.
func (s *Service) sheetRecords(ctx context.Context, sheetID, tab string) ([]map[string]string, error) {
	endpoint := sheetExportURL(sheetID, tab)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building sheet request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching sheet %s tab %s: %w", sheetID, tab, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("sheet %s tab %s returned %d: %s", sheetID, tab, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// The export endpoint serves an HTML sign-in page for private sheets;
	// catch that before the CSV parser produces nonsense.
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "text/html") {
		return nil, fmt.Errorf("sheet %s tab %s is not publicly readable", sheetID, tab)
	}

	records, err := ReadRecords(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing sheet %s tab %s: %w", sheetID, tab, err)
	}

	s.logger.Debug().
		Str("sheet_id", sheetID).
		Str("tab", tab).
		Int("records", len(records)).
		Msg("Sheet tab fetched")
	return records, nil
}
