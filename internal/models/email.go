package models

import "time"

// EmailSourceType identifies where an incoming email was loaded from
type EmailSourceType string

const (
	EmailSourceCSV   EmailSourceType = "csv"
	EmailSourceSheet EmailSourceType = "sheet"
	EmailSourceIMAP  EmailSourceType = "imap"
)

// IncomingEmail is a single customer email to be processed.
// The body is plain text; HTML bodies are converted to markdown at load time.
type IncomingEmail struct {
	ID      string `json:"email_id" yaml:"email_id"`
	Subject string `json:"subject" yaml:"subject"`
	Body    string `json:"body" yaml:"body"`

	// Source metadata (not part of the processing contract)
	From       string          `json:"from,omitempty" yaml:"from,omitempty"`
	Source     EmailSourceType `json:"source,omitempty" yaml:"source,omitempty"`
	ReceivedAt time.Time       `json:"received_at,omitempty" yaml:"received_at,omitempty"`
}
