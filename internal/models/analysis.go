package models

import "strings"

// Intent is the primary purpose of an email.
type Intent string

const (
	IntentOrderRequest   Intent = "order_request"
	IntentProductInquiry Intent = "product_inquiry"
)

// SegmentKind classifies a contiguous portion of an email body.
type SegmentKind string

const (
	SegmentOrder    SegmentKind = "order"
	SegmentInquiry  SegmentKind = "inquiry"
	SegmentPersonal SegmentKind = "personal_statement"
)

// ProductMention is a reference to a product found in an email segment,
// before resolution against the catalog. ProductID is only set when the text
// shows an identifier of the catalog shape (three letters, four digits); the
// resolver handles cleanup and fuzzy rescue of malformed ids. Any field may
// be empty; quantity defaults to 1.
type ProductMention struct {
	ProductID          string  `json:"product_id,omitempty" yaml:"product_id,omitempty"`
	ProductName        string  `json:"product_name,omitempty" yaml:"product_name,omitempty"`
	ProductDescription string  `json:"product_description,omitempty" yaml:"product_description,omitempty"`
	ProductCategory    string  `json:"product_category,omitempty" yaml:"product_category,omitempty"`
	ProductType        string  `json:"product_type,omitempty" yaml:"product_type,omitempty"`
	Quantity           int     `json:"quantity" yaml:"quantity"`
	Confidence         float64 `json:"confidence" yaml:"confidence"`
}

// IsBlank reports whether the mention carries nothing to resolve against.
func (m *ProductMention) IsBlank() bool {
	return m.ProductID == "" && m.ProductName == "" && m.ProductDescription == "" && m.ProductType == ""
}

// EffectiveQuantity returns the requested quantity, defaulting to 1.
func (m *ProductMention) EffectiveQuantity() int {
	if m.Quantity < 1 {
		return 1
	}
	return m.Quantity
}

// Summary renders a short human-readable form of the mention for candidate
// metadata and log lines.
func (m *ProductMention) Summary() string {
	parts := make([]string, 0, 3)
	if m.ProductID != "" {
		parts = append(parts, m.ProductID)
	}
	if m.ProductName != "" {
		parts = append(parts, m.ProductName)
	}
	if m.ProductDescription != "" {
		parts = append(parts, m.ProductDescription)
	}
	if len(parts) == 0 && m.ProductType != "" {
		parts = append(parts, m.ProductType)
	}
	return strings.Join(parts, " ")
}

// Segment is one classified portion of an email.
type Segment struct {
	Kind             SegmentKind      `json:"kind" yaml:"kind"`
	MainSentence     string           `json:"main_sentence" yaml:"main_sentence"`
	RelatedSentences []string         `json:"related_sentences,omitempty" yaml:"related_sentences,omitempty"`
	Mentions         []ProductMention `json:"mentions,omitempty" yaml:"mentions,omitempty"`
}

// Text joins the segment sentences for prompt construction.
func (s *Segment) Text() string {
	if len(s.RelatedSentences) == 0 {
		return s.MainSentence
	}
	return s.MainSentence + " " + strings.Join(s.RelatedSentences, " ")
}

// CustomerPII holds personal details extracted from an email. The LLM
// returns an open key/value map; keys are normalized into the typed fields
// after parsing, with unrecognized keys preserved in Extra.
type CustomerPII struct {
	Name  string            `json:"name,omitempty" yaml:"name,omitempty"`
	Email string            `json:"email,omitempty" yaml:"email,omitempty"`
	Phone string            `json:"phone,omitempty" yaml:"phone,omitempty"`
	Extra map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// IsEmpty reports whether no personal details were extracted
func (p CustomerPII) IsEmpty() bool {
	return p.Name == "" && p.Email == "" && p.Phone == "" && len(p.Extra) == 0
}

// EmailAnalysis is the Classifier's view of an email: detected language,
// primary intent, customer details, and the segments with their product
// mentions. Intent is order_request iff at least one order segment exists.
type EmailAnalysis struct {
	EmailID     string      `json:"email_id" yaml:"email_id"`
	Language    string      `json:"language" yaml:"language"`
	Intent      Intent      `json:"intent" yaml:"intent" validate:"required,oneof=order_request product_inquiry"`
	CustomerPII CustomerPII `json:"customer_pii,omitempty" yaml:"customer_pii,omitempty"`
	Segments    []Segment   `json:"segments" yaml:"segments"`
}

// HasOrderSegments reports whether at least one order segment exists
func (a *EmailAnalysis) HasOrderSegments() bool {
	for i := range a.Segments {
		if a.Segments[i].Kind == SegmentOrder {
			return true
		}
	}
	return false
}

// HasInquirySegments reports whether at least one inquiry segment exists
func (a *EmailAnalysis) HasInquirySegments() bool {
	for i := range a.Segments {
		if a.Segments[i].Kind == SegmentInquiry {
			return true
		}
	}
	return false
}

// MentionsOfKind returns all product mentions across segments of the given kind
func (a *EmailAnalysis) MentionsOfKind(kind SegmentKind) []ProductMention {
	var mentions []ProductMention
	for i := range a.Segments {
		if a.Segments[i].Kind != kind {
			continue
		}
		mentions = append(mentions, a.Segments[i].Mentions...)
	}
	return mentions
}

// AllMentions returns the product mentions from every segment in order.
func (a *EmailAnalysis) AllMentions() []ProductMention {
	var mentions []ProductMention
	for i := range a.Segments {
		mentions = append(mentions, a.Segments[i].Mentions...)
	}
	return mentions
}
