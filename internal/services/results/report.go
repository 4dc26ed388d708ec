package results

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/ternarybob/hermes/internal/models"
)

// reportSummary aggregates the batch counters shown at the top of the PDF
type reportSummary struct {
	emails       int
	orders       map[models.OrderStatus]int
	inquiries    int
	withErrors   int
	totalRevenue float64
}

func summarize(states []*models.WorkflowState) reportSummary {
	sum := reportSummary{orders: make(map[models.OrderStatus]int)}
	for _, state := range states {
		if state == nil {
			continue
		}
		sum.emails++
		if state.Fulfiller != nil {
			sum.orders[state.Fulfiller.OverallStatus]++
			sum.totalRevenue += state.Fulfiller.TotalPrice
		}
		if state.Advisor != nil {
			sum.inquiries++
		}
		if state.HasErrors() {
			sum.withErrors++
		}
	}
	return sum
}

// BuildReport renders the batch summary PDF: run counters, one row per
// email, and the recorded node failures.
func BuildReport(states []*models.WorkflowState, runID string) ([]byte, error) {
	sum := summarize(states)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, "Hermes Batch Report", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 5, fmt.Sprintf("Run %s, generated %s", runID, time.Now().UTC().Format(time.RFC3339)), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 6, "Summary", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	summaryLine := func(label, value string) {
		pdf.CellFormat(60, 5, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 5, value, "", 1, "L", false, 0, "")
	}
	summaryLine("Emails processed", strconv.Itoa(sum.emails))
	summaryLine("Orders created", strconv.Itoa(sum.orders[models.OrderCreated]))
	summaryLine("Orders partially fulfilled", strconv.Itoa(sum.orders[models.OrderPartiallyFulfilled]))
	summaryLine("Orders out of stock", strconv.Itoa(sum.orders[models.OrderOutOfStock]))
	summaryLine("Orders without valid products", strconv.Itoa(sum.orders[models.OrderNoValidProducts]))
	summaryLine("Inquiries answered", strconv.Itoa(sum.inquiries))
	summaryLine("Emails with node failures", strconv.Itoa(sum.withErrors))
	summaryLine("Reserved order value", fmt.Sprintf("%.2f", sum.totalRevenue))
	pdf.Ln(3)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 6, "Emails", "", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(50, 5, "Email ID", "B", 0, "L", false, 0, "")
	pdf.CellFormat(35, 5, "Intent", "B", 0, "L", false, 0, "")
	pdf.CellFormat(40, 5, "Order status", "B", 0, "L", false, 0, "")
	pdf.CellFormat(30, 5, "Questions", "B", 0, "L", false, 0, "")
	pdf.CellFormat(35, 5, "Failures", "B", 1, "L", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	for _, state := range states {
		if state == nil {
			continue
		}
		intent := "unclassified"
		if state.Classifier != nil {
			intent = string(state.Classifier.Intent)
		}
		orderStatus := "-"
		if state.Fulfiller != nil {
			orderStatus = string(state.Fulfiller.OverallStatus)
		}
		questions := "-"
		if state.Advisor != nil {
			questions = strconv.Itoa(len(state.Advisor.AnsweredQuestions))
		}
		failures := "-"
		if n := len(state.ErrorSummary()); n > 0 {
			failures = strconv.Itoa(n)
		}
		pdf.CellFormat(50, 5, truncate(state.Email.ID, 30), "", 0, "L", false, 0, "")
		pdf.CellFormat(35, 5, intent, "", 0, "L", false, 0, "")
		pdf.CellFormat(40, 5, orderStatus, "", 0, "L", false, 0, "")
		pdf.CellFormat(30, 5, questions, "", 0, "L", false, 0, "")
		pdf.CellFormat(35, 5, failures, "", 1, "L", false, 0, "")
	}

	if sum.withErrors > 0 {
		pdf.Ln(3)
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 6, "Failures", "", 1, "L", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		for _, state := range states {
			if state == nil || !state.HasErrors() {
				continue
			}
			pdf.SetFont("Arial", "B", 9)
			pdf.CellFormat(0, 5, truncate(state.Email.ID, 60), "", 1, "L", false, 0, "")
			pdf.SetFont("Arial", "", 9)
			for _, line := range state.ErrorSummary() {
				pdf.MultiCell(0, 5, truncate(line, 400), "", "L", false)
			}
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate report PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteReport renders the batch PDF into the output directory and returns
// its path.
func (w *Writer) WriteReport(states []*models.WorkflowState, runID string) (string, error) {
	data, err := BuildReport(states, runID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(w.outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	name := "hermes-report-" + sanitizeFileName(runID) + ".pdf"
	path := filepath.Join(w.outDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	w.logger.Info().Str("path", path).Int("emails", summarize(states).emails).Msg("Wrote batch report")
	return path, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
