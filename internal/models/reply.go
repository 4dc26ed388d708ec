package models

import "strings"

// ClarificationPrefix marks an order line whose product match had only
// moderate confidence. The Fulfiller sets it on the line description; the
// Composer asks the customer to confirm that item instead of treating it
// as fulfilled.
const ClarificationPrefix = "[CLARIFICATION NEEDED:"

// NeedsClarification reports whether the line's match should be confirmed
// with the customer before fulfillment is final.
func (l *OrderLine) NeedsClarification() bool {
	return strings.HasPrefix(strings.TrimSpace(l.Description), ClarificationPrefix)
}

// ComposerOutput is the final customer-facing reply for one email.
type ComposerOutput struct {
	EmailID        string   `json:"email_id" yaml:"email_id"`
	Subject        string   `json:"subject,omitempty" yaml:"subject,omitempty"`
	ResponseBody   string   `json:"response_body" yaml:"response_body" validate:"required"`
	Tone           string   `json:"tone,omitempty" yaml:"tone,omitempty"`
	ResponsePoints []string `json:"response_points,omitempty" yaml:"response_points,omitempty"`
	Language       string   `json:"language,omitempty" yaml:"language,omitempty"`
}
