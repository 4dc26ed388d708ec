package agents

import (
	"fmt"
	"strings"

	"github.com/ternarybob/hermes/internal/models"
	"github.com/ternarybob/hermes/internal/services/llm"
)

// LLMClient is the provider surface the workflow agents consume. The
// provider factory implements it; tests substitute a scripted stub.
type LLMClient interface {
	llm.Generator
	StrongModel() string
	WeakModel() string
	MaxRetries() int
}

// formatProductLine renders one resolved candidate for a prompt. The fixed
// field order keeps prompts reproducible across runs.
func formatProductLine(c *models.Candidate) string {
	return fmt.Sprintf("- %s | %s | category: %s | price: %.2f | stock: %d | confidence: %.2f",
		c.ProductID, c.Name, c.Category, c.Price, c.Stock, c.Confidence)
}

// formatSegments renders segments of one kind as a numbered prompt block.
func formatSegments(analysis *models.EmailAnalysis, kind models.SegmentKind) string {
	var b strings.Builder
	n := 0
	for i := range analysis.Segments {
		segment := &analysis.Segments[i]
		if segment.Kind != kind {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d. %s\n", n, segment.Text())
	}
	return b.String()
}
