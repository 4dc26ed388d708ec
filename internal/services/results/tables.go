package results

import (
	"strconv"
	"strings"

	"github.com/ternarybob/hermes/internal/models"
	"github.com/ternarybob/hermes/internal/services/agents"
)

// Output file names under the output directory
const (
	ClassificationFile  = "email-classification.csv"
	OrderStatusFile     = "order-status.csv"
	OrderResponseFile   = "order-response.csv"
	InquiryResponseFile = "inquiry-response.csv"
)

// Column headers are part of the file contract and never change shape
var (
	classificationHeader = []string{"email ID", "category"}
	orderStatusHeader    = []string{"email ID", "product ID", "quantity", "status"}
	responseHeader       = []string{"email ID", "response"}
)

// table pairs a file name with its header and the rows each email in the
// current run contributes, keyed by email id so merging can replace the
// rows of a previous run for the same email.
type table struct {
	file   string
	header []string
	rows   map[string][][]string
}

func newTable(file string, header []string) *table {
	return &table{file: file, header: header, rows: make(map[string][][]string)}
}

func (t *table) add(emailID string, row []string) {
	t.rows[emailID] = append(t.rows[emailID], row)
}

// touch records the email id with no rows, so a merge drops any rows an
// earlier run wrote for it.
func (t *table) touch(emailID string) {
	if _, ok := t.rows[emailID]; !ok {
		t.rows[emailID] = nil
	}
}

// tableSet holds the four output tables plus the email ids of the current
// run in processing order.
type tableSet struct {
	classification  *table
	orderStatus     *table
	orderResponse   *table
	inquiryResponse *table
	order           []string
}

func (ts *tableSet) all() []*table {
	return []*table{ts.classification, ts.orderStatus, ts.orderResponse, ts.inquiryResponse}
}

// buildTables derives the CSV rows for a batch of terminal states. Every
// processed email id is touched on every table: an email whose node failed
// this run erases the rows a previous run produced for it.
func buildTables(states []*models.WorkflowState) *tableSet {
	ts := &tableSet{
		classification:  newTable(ClassificationFile, classificationHeader),
		orderStatus:     newTable(OrderStatusFile, orderStatusHeader),
		orderResponse:   newTable(OrderResponseFile, responseHeader),
		inquiryResponse: newTable(InquiryResponseFile, responseHeader),
	}
	seen := make(map[string]bool)
	for _, state := range states {
		if state == nil {
			continue
		}
		id := strings.TrimSpace(state.Email.ID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ts.order = append(ts.order, id)
		for _, t := range ts.all() {
			t.touch(id)
		}

		if state.Classifier != nil {
			ts.classification.add(id, []string{id, string(state.Classifier.Intent)})
		}
		if state.Fulfiller != nil {
			for _, line := range state.Fulfiller.Lines {
				ts.orderStatus.add(id, []string{
					id,
					line.ProductID,
					strconv.Itoa(line.Quantity),
					string(line.Status),
				})
			}
		}
		ts.responseTable(state).add(id, []string{id, responseBody(state)})
	}
	return ts
}

// responseTable routes the reply by the classified intent. Emails whose
// classification failed default to the inquiry table, the neutral choice
// when no order can exist for them.
func (ts *tableSet) responseTable(state *models.WorkflowState) *table {
	if state.Classifier != nil && state.Classifier.Intent == models.IntentOrderRequest {
		return ts.orderResponse
	}
	return ts.inquiryResponse
}

// responseBody returns the composed reply, or the standing apology when
// the composer produced nothing for this email.
func responseBody(state *models.WorkflowState) string {
	if state.Composer != nil {
		if body := strings.TrimSpace(state.Composer.ResponseBody); body != "" {
			return body
		}
	}
	return agents.DefaultApology
}

// mergeRows splices the current run's rows into the rows of a pre-existing
// file. Rows for ids processed this run replace the old rows in place at
// their first occurrence; remaining old rows for those ids are dropped; ids
// the file has never seen are appended in processing order.
func mergeRows(existing [][]string, updated map[string][][]string, runOrder []string) [][]string {
	inserted := make(map[string]bool, len(runOrder))
	merged := make([][]string, 0, len(existing)+len(runOrder))
	for _, row := range existing {
		if len(row) == 0 {
			continue
		}
		id := strings.TrimSpace(row[0])
		rows, replaced := updated[id]
		if !replaced {
			merged = append(merged, row)
			continue
		}
		if !inserted[id] {
			merged = append(merged, rows...)
			inserted[id] = true
		}
	}
	for _, id := range runOrder {
		if inserted[id] {
			continue
		}
		merged = append(merged, updated[id]...)
		inserted[id] = true
	}
	return merged
}
