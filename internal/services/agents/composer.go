package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/hermes/internal/common"
	"github.com/ternarybob/hermes/internal/interfaces"
	"github.com/ternarybob/hermes/internal/models"
	"github.com/ternarybob/hermes/internal/services/llm"
)

// DefaultApology is the reply of last resort, used by the results writer
// when the composer produced nothing for an email.
const DefaultApology = "We are sorry, but we could not process your email automatically. A member of our team will review it and reply to you personally as soon as possible.\n\nCustomer Care Team\nHermes Fashion"

// ComposerAgent turns the upstream outputs into one customer-facing reply.
// It always runs, even when every other node failed; in that case the reply
// is an apology in the brand voice.
//
// Output slot: state.Composer.
type ComposerAgent struct {
	client   LLMClient
	validate *validator.Validate
	cfg      common.ComposerConfig
	logger   arbor.ILogger
}

type composerPayload struct {
	Subject        string   `json:"subject"`
	ResponseBody   string   `json:"response_body" validate:"required"`
	ResponsePoints []string `json:"response_points"`
	Language       string   `json:"language"`
}

// NewComposerAgent creates the composer with the configured reply voice.
func NewComposerAgent(client LLMClient, validate *validator.Validate, cfg common.ComposerConfig, logger arbor.ILogger) *ComposerAgent {
	return &ComposerAgent{
		client:   client,
		validate: validate,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run writes the final reply for the email into state.Composer.
func (c *ComposerAgent) Run(ctx context.Context, state *models.WorkflowState) error {
	language := "English"
	if state.Classifier != nil && state.Classifier.Language != "" {
		language = state.Classifier.Language
	}

	request := &llm.ContentRequest{
		Model:             c.client.StrongModel(),
		SystemInstruction: c.instruction(language),
		Messages:          []interfaces.Message{{Role: "user", Content: c.prompt(state)}},
		OutputSchema:      composerSchema(),
	}

	payload, _, err := llm.InvokeStructured[composerPayload](ctx, c.client, c.validate, request, c.client.MaxRetries())
	if err != nil {
		return fmt.Errorf("composing reply for email %s: %w", state.Email.ID, err)
	}

	subject := strings.TrimSpace(payload.Subject)
	if subject == "" {
		subject = replySubject(state.Email.Subject)
	}

	state.Composer = &models.ComposerOutput{
		EmailID:        state.Email.ID,
		Subject:        subject,
		ResponseBody:   c.ensureSignature(strings.TrimSpace(payload.ResponseBody)),
		Tone:           c.cfg.Tone,
		ResponsePoints: payload.ResponsePoints,
		Language:       language,
	}

	c.logger.Info().
		Str("email_id", state.Email.ID).
		Str("language", language).
		Int("body_chars", len(state.Composer.ResponseBody)).
		Msg("Reply composed")
	return nil
}

func (c *ComposerAgent) instruction(language string) string {
	var b strings.Builder
	b.WriteString("You write the final reply email for a fashion retailer's customer service desk.\n\n")
	fmt.Fprintf(&b, "Write the entire reply in %s, the language the customer wrote in.\n", language)
	fmt.Fprintf(&b, "Voice: %s. Production quality, ready to send without editing.\n\n", c.cfg.Tone)
	b.WriteString(`Rules:
- Use only the facts given below. Never invent products, prices, stock levels, or order outcomes.
- Confirm ordered items with quantities and prices, and state the order total.
- For out-of-stock items, apologize and present the suggested alternatives with their prices.
- Items marked as needing clarification were matched with only moderate confidence: ask the customer to confirm them instead of treating them as final.
- Mention applied promotions and the savings.
- Answer the customer's questions from the prepared answers. When an answer says a product id does not exist, say so plainly and invite a corrected id.
- Acknowledge personal remarks briefly and naturally.
- If processing problems are listed, apologize that part of the request could not be handled and promise a personal follow-up. Never mention internal systems, tools, or errors by name.
- Greet the customer by name when it is known.
`)
	fmt.Fprintf(&b, "- End the reply with exactly this signature:\n%s\n\n", c.cfg.Signature)
	b.WriteString("Respond with a single JSON object only, no markdown fences. response_points lists the key commitments made in the reply, one short phrase each.")
	return b.String()
}

func (c *ComposerAgent) prompt(state *models.WorkflowState) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Original subject: %s\n", state.Email.Subject)
	if state.Classifier != nil && state.Classifier.CustomerPII.Name != "" {
		fmt.Fprintf(&b, "Customer name: %s\n", state.Classifier.CustomerPII.Name)
	}
	b.WriteString("\n")

	writeOrderSection(&b, state.Fulfiller)
	writeAdviceSection(&b, state.Advisor)
	writePersonalSection(&b, state.Classifier)

	if summary := state.ErrorSummary(); len(summary) > 0 {
		b.WriteString("Processing problems (apologize, do not expose details):\n")
		for _, line := range summary {
			fmt.Fprintf(&b, "- %s\n", line)
		}
		b.WriteString("\n")
	}

	if state.Fulfiller == nil && state.Advisor == nil {
		b.WriteString("Nothing could be processed for this email. Write a short apology promising a personal follow-up.\n")
	}
	return b.String()
}

func writeOrderSection(b *strings.Builder, order *models.Order) {
	if order == nil {
		return
	}
	fmt.Fprintf(b, "Order result (overall status: %s):\n", order.OverallStatus)
	for i := range order.Lines {
		line := &order.Lines[i]
		fmt.Fprintf(b, "- %s x%d at %.2f each, total %.2f [%s]\n",
			line.Description, line.Quantity, line.UnitPrice, line.TotalPrice, line.Status)
		if line.NeedsClarification() {
			b.WriteString("  This match needs the customer's confirmation.\n")
		}
		if line.PromotionApplied && line.PromotionDescription != "" {
			fmt.Fprintf(b, "  Promotion applied: %s (saved %.2f)\n", line.PromotionDescription, line.Discount)
		}
		for _, alt := range line.Alternatives {
			fmt.Fprintf(b, "  Alternative: %s (%s) at %.2f, %d in stock\n", alt.Name, alt.ProductID, alt.Price, alt.Stock)
		}
	}
	fmt.Fprintf(b, "Order total: %.2f", order.TotalPrice)
	if order.TotalDiscount > 0 {
		fmt.Fprintf(b, " (total savings %.2f)", order.TotalDiscount)
	}
	b.WriteString("\n")
	if order.Message != "" {
		fmt.Fprintf(b, "Customer notes on the order: %s\n", order.Message)
	}
	b.WriteString("\n")
}

func writeAdviceSection(b *strings.Builder, advice *models.AdvisorOutput) {
	if advice == nil {
		return
	}
	if len(advice.AnsweredQuestions) > 0 {
		b.WriteString("Prepared answers to the customer's questions:\n")
		for _, qa := range advice.AnsweredQuestions {
			fmt.Fprintf(b, "- Q: %s\n  A (%s): %s\n", qa.Question, qa.AnswerType, qa.Answer)
		}
	}
	if len(advice.UnansweredQuestions) > 0 {
		b.WriteString("Questions with no answer available (offer a personal follow-up):\n")
		for _, q := range advice.UnansweredQuestions {
			fmt.Fprintf(b, "- %s\n", q)
		}
	}
	if len(advice.RelatedProducts) > 0 {
		fmt.Fprintf(b, "Products worth suggesting alongside the answers: %s\n", strings.Join(advice.RelatedProducts, ", "))
	}
	b.WriteString("\n")
}

func writePersonalSection(b *strings.Builder, analysis *models.EmailAnalysis) {
	if analysis == nil {
		return
	}
	var personal []string
	for i := range analysis.Segments {
		if analysis.Segments[i].Kind == models.SegmentPersonal {
			personal = append(personal, analysis.Segments[i].Text())
		}
	}
	if len(personal) == 0 {
		return
	}
	b.WriteString("Personal remarks to acknowledge briefly:\n")
	for _, p := range personal {
		fmt.Fprintf(b, "- %s\n", p)
	}
	b.WriteString("\n")
}

func composerSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"subject":         map[string]interface{}{"type": "string"},
			"response_body":   map[string]interface{}{"type": "string"},
			"response_points": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"language":        map[string]interface{}{"type": "string"},
		},
		"required": []string{"response_body"},
	}
}

// ensureSignature appends the configured signature when the model left
// it off.
func (c *ComposerAgent) ensureSignature(body string) string {
	if c.cfg.Signature == "" || strings.Contains(body, c.cfg.Signature) {
		return body
	}
	return body + "\n\n" + c.cfg.Signature
}

// replySubject derives a reply subject from the original one.
func replySubject(original string) string {
	original = strings.TrimSpace(original)
	if original == "" {
		return "Re: Your message to Hermes Fashion"
	}
	if strings.HasPrefix(strings.ToLower(original), "re:") {
		return original
	}
	return "Re: " + original
}
