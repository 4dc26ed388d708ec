package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/hermes/internal/interfaces"
	"github.com/ternarybob/hermes/internal/models"
	"github.com/ternarybob/hermes/internal/services/llm"
	"github.com/ternarybob/hermes/internal/services/resolver"
)

// ClassifierAgent segments an email and extracts product mentions and
// customer details. It runs on the weak model; the structured output is
// normalized deterministically after parsing (PII key mapping, mention
// consolidation, intent enforcement).
//
// Output slot: state.Classifier.
type ClassifierAgent struct {
	client     LLMClient
	validate   *validator.Validate
	categories []string
	logger     arbor.ILogger
}

// classifierPayload is the raw structured output of the classifier call.
// CustomerPII stays an open map here; keys are normalized after parsing.
type classifierPayload struct {
	Language    string            `json:"language" validate:"required"`
	Intent      string            `json:"primary_intent" validate:"required,oneof=order_request product_inquiry"`
	CustomerPII map[string]string `json:"customer_pii"`
	Segments    []segmentPayload  `json:"segments" validate:"dive"`
}

type segmentPayload struct {
	SegmentType      string           `json:"segment_type" validate:"required,oneof=order inquiry personal_statement"`
	MainSentence     string           `json:"main_sentence"`
	RelatedSentences []string         `json:"related_sentences"`
	ProductMentions  []mentionPayload `json:"product_mentions" validate:"dive"`
}

type mentionPayload struct {
	ProductID          string  `json:"product_id"`
	ProductName        string  `json:"product_name"`
	ProductDescription string  `json:"product_description"`
	ProductCategory    string  `json:"product_category"`
	ProductType        string  `json:"product_type"`
	Quantity           int     `json:"quantity"`
	Confidence         float64 `json:"confidence" validate:"gte=0,lte=1"`
}

// NewClassifierAgent creates the classifier over the given provider. The
// category list constrains the values the model may put in
// product_category so downstream index filters can match.
func NewClassifierAgent(client LLMClient, validate *validator.Validate, categories []string, logger arbor.ILogger) *ClassifierAgent {
	return &ClassifierAgent{
		client:     client,
		validate:   validate,
		categories: categories,
		logger:     logger,
	}
}

// Run classifies the email on the state and writes the analysis slot.
func (a *ClassifierAgent) Run(ctx context.Context, state *models.WorkflowState) error {
	request := &llm.ContentRequest{
		Model:             a.client.WeakModel(),
		SystemInstruction: a.systemInstruction(),
		Messages: []interfaces.Message{
			{Role: "user", Content: fmt.Sprintf("Subject: %s\n\nBody:\n%s", state.Email.Subject, state.Email.Body)},
		},
		OutputSchema: classifierSchema(),
	}

	payload, _, err := llm.InvokeStructured[classifierPayload](ctx, a.client, a.validate, request, a.client.MaxRetries())
	if err != nil {
		return fmt.Errorf("classifying email %s: %w", state.Email.ID, err)
	}

	analysis := a.toAnalysis(state.Email.ID, payload)
	a.logger.Info().
		Str("email_id", state.Email.ID).
		Str("intent", string(analysis.Intent)).
		Str("language", analysis.Language).
		Int("segments", len(analysis.Segments)).
		Msg("Email classified")

	state.Classifier = analysis
	return nil
}

func (a *ClassifierAgent) systemInstruction() string {
	return fmt.Sprintf(`You are an email analyst for a fashion retailer's customer service desk.

Task: Split the email into segments and extract every product mention and any customer personal details.

Rules:
- segment_type is one of: order (customer wants to buy something), inquiry (customer asks a question), personal_statement (greetings, stories, anything else).
- Each segment has one main_sentence and the related_sentences that belong with it.
- product_id is filled ONLY when the text shows an identifier of three letters followed by four digits, possibly with spaces or brackets (for example "CBT8901" or "[CBT 89 01]"). Record it exactly as written. Never invent an id.
- product_name omits generic category words: "Alpine Explorer backpack" has name "Alpine Explorer" and type "backpack"; a bare "shirt" is a type, not a name.
- product_category, when inferable, must be one of: %s.
- quantity is the number of items requested; 0 when the text gives none.
- confidence is your 0..1 certainty that the mention refers to a real product.
- customer_pii maps detail names to values (for example "name", "email", "phone"). Empty object when none appear.
- language is the dominant language of the email, as an English word ("English", "Spanish", ...).
- primary_intent is order_request when the customer wants to buy anything, otherwise product_inquiry.

Respond with a single JSON object only, no markdown fences.`, strings.Join(a.categories, ", "))
}

// classifierSchema is the JSON schema sent to providers that support
// constrained output.
func classifierSchema() map[string]interface{} {
	mention := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"product_id":          map[string]interface{}{"type": "string"},
			"product_name":        map[string]interface{}{"type": "string"},
			"product_description": map[string]interface{}{"type": "string"},
			"product_category":    map[string]interface{}{"type": "string"},
			"product_type":        map[string]interface{}{"type": "string"},
			"quantity":            map[string]interface{}{"type": "integer"},
			"confidence":          map[string]interface{}{"type": "number"},
		},
	}
	segment := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"segment_type": map[string]interface{}{
				"type": "string",
				"enum": []string{"order", "inquiry", "personal_statement"},
			},
			"main_sentence":     map[string]interface{}{"type": "string"},
			"related_sentences": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"product_mentions":  map[string]interface{}{"type": "array", "items": mention},
		},
		"required": []string{"segment_type", "main_sentence"},
	}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"language": map[string]interface{}{"type": "string"},
			"primary_intent": map[string]interface{}{
				"type": "string",
				"enum": []string{"order_request", "product_inquiry"},
			},
			"customer_pii": map[string]interface{}{"type": "object"},
			"segments":     map[string]interface{}{"type": "array", "items": segment},
		},
		"required": []string{"language", "primary_intent", "segments"},
	}
}

// toAnalysis converts the raw payload into the normalized analysis.
func (a *ClassifierAgent) toAnalysis(emailID string, payload *classifierPayload) *models.EmailAnalysis {
	analysis := &models.EmailAnalysis{
		EmailID:     emailID,
		Language:    strings.TrimSpace(payload.Language),
		CustomerPII: normalizePII(payload.CustomerPII),
	}
	if analysis.Language == "" {
		analysis.Language = "English"
	}

	for i := range payload.Segments {
		seg := &payload.Segments[i]
		segment := models.Segment{
			Kind:             models.SegmentKind(seg.SegmentType),
			MainSentence:     strings.TrimSpace(seg.MainSentence),
			RelatedSentences: seg.RelatedSentences,
		}
		for _, m := range seg.ProductMentions {
			mention := models.ProductMention{
				ProductID:          strings.TrimSpace(m.ProductID),
				ProductName:        strings.TrimSpace(m.ProductName),
				ProductDescription: strings.TrimSpace(m.ProductDescription),
				ProductCategory:    strings.TrimSpace(m.ProductCategory),
				ProductType:        strings.TrimSpace(m.ProductType),
				Quantity:           m.Quantity,
				Confidence:         m.Confidence,
			}
			if mention.IsBlank() {
				continue
			}
			segment.Mentions = append(segment.Mentions, mention)
		}
		analysis.Segments = append(analysis.Segments, segment)
	}

	consolidateMentions(analysis)

	// The intent is derived, not trusted: order_request iff at least one
	// order segment exists.
	if analysis.HasOrderSegments() {
		analysis.Intent = models.IntentOrderRequest
	} else {
		analysis.Intent = models.IntentProductInquiry
	}
	return analysis
}

// piiKeyAliases maps common LLM key spellings onto the typed PII fields.
var piiKeyAliases = map[string]string{
	"name":          "name",
	"full_name":     "name",
	"fullname":      "name",
	"customer_name": "name",
	"customer":      "name",
	"email":         "email",
	"e-mail":        "email",
	"e_mail":        "email",
	"email_address": "email",
	"mail":          "email",
	"phone":         "phone",
	"phone_number":  "phone",
	"phonenumber":   "phone",
	"telephone":     "phone",
	"tel":           "phone",
	"mobile":        "phone",
}

// normalizePII folds an open detail map into the typed fields, preserving
// unrecognized keys in Extra. Key matching is case-insensitive.
func normalizePII(raw map[string]string) models.CustomerPII {
	var pii models.CustomerPII
	for key, value := range raw {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		canonical := piiKeyAliases[strings.ToLower(strings.TrimSpace(key))]
		switch canonical {
		case "name":
			if pii.Name == "" {
				pii.Name = value
				continue
			}
		case "email":
			if pii.Email == "" {
				pii.Email = value
				continue
			}
		case "phone":
			if pii.Phone == "" {
				pii.Phone = value
				continue
			}
		}
		if pii.Extra == nil {
			pii.Extra = make(map[string]string)
		}
		pii.Extra[key] = value
	}
	return pii
}

// consolidateMentions merges mentions of the same referent across segments
// of the same kind: same normalized product id, else same normalized name.
// Quantities are summed, the highest confidence wins, and the first
// mention's descriptive fields are kept. Merged mentions live on the first
// segment of their kind.
func consolidateMentions(analysis *models.EmailAnalysis) {
	for _, kind := range []models.SegmentKind{models.SegmentOrder, models.SegmentInquiry, models.SegmentPersonal} {
		first := -1
		merged := make([]models.ProductMention, 0, 4)
		byKey := make(map[string]int)

		for i := range analysis.Segments {
			segment := &analysis.Segments[i]
			if segment.Kind != kind {
				continue
			}
			if first == -1 {
				first = i
			}
			for _, mention := range segment.Mentions {
				key := mentionKey(&mention)
				if key == "" {
					merged = append(merged, mention)
					continue
				}
				if at, seen := byKey[key]; seen {
					existing := &merged[at]
					existing.Quantity += mention.Quantity
					if mention.Confidence > existing.Confidence {
						existing.Confidence = mention.Confidence
					}
					fillEmptyFields(existing, &mention)
					continue
				}
				byKey[key] = len(merged)
				merged = append(merged, mention)
			}
			segment.Mentions = nil
		}

		if first >= 0 {
			analysis.Segments[first].Mentions = merged
		}
	}
}

// mentionKey identifies a referent: the normalized id when present,
// otherwise the lowercased name. Mentions with neither are never merged.
func mentionKey(m *models.ProductMention) string {
	if m.ProductID != "" {
		return "id:" + resolver.NormalizeID(m.ProductID)
	}
	if m.ProductName != "" {
		return "name:" + strings.ToLower(strings.TrimSpace(m.ProductName))
	}
	return ""
}

// fillEmptyFields copies descriptive fields the first mention lacked.
func fillEmptyFields(dst, src *models.ProductMention) {
	if dst.ProductName == "" {
		dst.ProductName = src.ProductName
	}
	if dst.ProductDescription == "" {
		dst.ProductDescription = src.ProductDescription
	}
	if dst.ProductCategory == "" {
		dst.ProductCategory = src.ProductCategory
	}
	if dst.ProductType == "" {
		dst.ProductType = src.ProductType
	}
}
