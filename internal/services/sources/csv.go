package sources

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/ternarybob/hermes/internal/models"
)

// ReadRecords parses CSV into header-keyed records. Headers are trimmed
// and lowercased; a UTF-8 BOM on the first header cell is stripped. Rows
// shorter than the header leave the missing fields empty.
func ReadRecords(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("csv has no header row")
	}

	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		if i == 0 {
			cell = strings.TrimPrefix(cell, "\uFEFF")
		}
		header[i] = strings.ToLower(strings.TrimSpace(cell))
	}

	records := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		record := make(map[string]string, len(header))
		for i, key := range header {
			if key == "" {
				continue
			}
			if i < len(row) {
				record[key] = strings.TrimSpace(row[i])
			} else {
				record[key] = ""
			}
		}
		records = append(records, record)
	}
	return records, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// emailsFromRecords maps email table records onto incoming emails. The
// body column is "message" with "body" accepted as an alias; records
// without an email id are skipped with a warning. HTML bodies are
// converted to markdown.
func (s *Service) emailsFromRecords(records []map[string]string, source models.EmailSourceType) []models.IncomingEmail {
	emails := make([]models.IncomingEmail, 0, len(records))
	for i, record := range records {
		id := strings.TrimSpace(record["email_id"])
		if id == "" {
			s.logger.Warn().
				Int("row", i+1).
				Msg("Skipping email record without email_id")
			continue
		}

		body := record["message"]
		if body == "" {
			body = record["body"]
		}

		emails = append(emails, models.IncomingEmail{
			ID:      id,
			Subject: strings.TrimSpace(record["subject"]),
			Body:    NormalizeBody(body, s.logger),
			Source:  source,
		})
	}
	return emails
}
