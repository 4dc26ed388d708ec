package common

import (
	"github.com/google/uuid"
)

// NewRunID generates a unique batch run ID with the "run_" prefix
// Format: run_<uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewEmailID generates an ID for emails that arrive without one
// (e.g. IMAP messages missing a Message-Id header). Format: msg_<uuid>
func NewEmailID() string {
	return "msg_" + uuid.New().String()
}
