package sources

import (
	"strings"

	"github.com/ternarybob/hermes/internal/models"
)

// FilterByID keeps the emails whose id appears in ids, preserving source
// order. An empty filter keeps everything. Matching is exact but
// whitespace-tolerant.
func FilterByID(emails []models.IncomingEmail, ids []string) []models.IncomingEmail {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			wanted[trimmed] = true
		}
	}
	if len(wanted) == 0 {
		return emails
	}

	out := make([]models.IncomingEmail, 0, len(wanted))
	for _, email := range emails {
		if wanted[email.ID] {
			out = append(out, email)
		}
	}
	return out
}

// Limit returns at most n emails in source order; n <= 0 means no limit.
func Limit(emails []models.IncomingEmail, n int) []models.IncomingEmail {
	if n <= 0 || len(emails) <= n {
		return emails
	}
	return emails[:n]
}
