package resolver

import (
	"context"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/hermes/internal/interfaces"
	"github.com/ternarybob/hermes/internal/models"
	"github.com/ternarybob/hermes/internal/services/catalog"
)

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"[CBT 89 01]", "CBT8901"},
		{"cbt8901", "CBT8901"},
		{" LTH 0976 ", "LTH0976"},
		{"(QTP5432)", "QTP5432"},
		{"CBT8901", "CBT8901"},
	}
	for _, tt := range tests {
		if got := NormalizeID(tt.input); got != tt.expected {
			t.Errorf("NormalizeID(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestNormalizeID_Idempotent(t *testing.T) {
	inputs := []string{"[CBT 89 01]", "lth0976", "QTP5432", "abc 12 34"}
	for _, input := range inputs {
		once := NormalizeID(input)
		if twice := NormalizeID(once); twice != once {
			t.Errorf("NormalizeID not idempotent for %q: %q != %q", input, once, twice)
		}
	}
}

func TestIsValidID(t *testing.T) {
	if !IsValidID("CBT8901") {
		t.Error("CBT8901 should be valid")
	}
	for _, bad := range []string{"CBT890", "1BT8901", "CBT89012", "cbt8901", ""} {
		if IsValidID(bad) {
			t.Errorf("%q should be invalid", bad)
		}
	}
}

// stubIndex serves canned hits so resolution ordering is controlled
// without embedding anything.
type stubIndex struct {
	hits []interfaces.SearchHit
}

func (s *stubIndex) Query(_ context.Context, _ string, k int, where map[string]string) ([]interfaces.SearchHit, error) {
	var out []interfaces.SearchHit
	for _, hit := range s.hits {
		match := true
		for key, want := range where {
			if hit.Metadata[key] != want {
				match = false
				break
			}
		}
		if match {
			out = append(out, hit)
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func testLedger() *catalog.Ledger {
	return catalog.NewLedger([]models.Product{
		{ID: "CBT8901", Name: "Chelsea Boots", Category: "Men's Shoes", Price: 57.0, Stock: 3, Type: "boots"},
		{ID: "LTH0976", Name: "Leather Bifold Wallet", Category: "Accessories", Price: 21.0, Stock: 4, Type: "wallet"},
		{ID: "CHN0987", Name: "Chunky Knit Beanie", Category: "Accessories", Price: 12.0, Stock: 8, Type: "beanie"},
	})
}

func TestResolve_ExactID(t *testing.T) {
	r := New(testLedger(), &stubIndex{}, arbor.NewLogger())

	out, err := r.Resolve(context.Background(), []models.ProductMention{
		{ProductID: "CBT8901", Quantity: 1},
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if len(out.Candidates) != 1 || len(out.ExactIDMisses) != 0 {
		t.Fatalf("expected 1 resolved and 0 misses, got %d / %d", len(out.Candidates), len(out.ExactIDMisses))
	}
	c := out.Candidates[0].Best()
	if c.Method != models.MethodExactID || c.Confidence != 1.0 || c.L2 != 0 {
		t.Errorf("unexpected exact candidate: %+v", c)
	}
	if len(out.Candidates[0].Candidates) != 1 {
		t.Errorf("exact id match must be the sole candidate")
	}
}

func TestResolve_BracketedIDRecordsMiss(t *testing.T) {
	r := New(testLedger(), &stubIndex{}, arbor.NewLogger())

	out, err := r.Resolve(context.Background(), []models.ProductMention{
		{ProductID: "[CBT 89 01]", Quantity: 2},
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// The token only matches after normalization, so the miss is recorded
	// even though the candidate is still an exact match.
	if len(out.ExactIDMisses) != 1 {
		t.Fatalf("bracketed id must record a miss, got %v", out.ExactIDMisses)
	}
	if out.ExactIDMisses[0].ProductID != "[CBT 89 01]" {
		t.Errorf("miss must carry the original mention, got %+v", out.ExactIDMisses[0])
	}
	c := out.Candidates[0].Best()
	if c.ProductID != "CBT8901" || c.Method != models.MethodExactID || c.Confidence != 1.0 || c.L2 != 0 {
		t.Errorf("unexpected candidate: %+v", c)
	}
}

func TestResolve_FuzzyIDRescue(t *testing.T) {
	r := New(testLedger(), &stubIndex{}, arbor.NewLogger())

	// DHN0987 is one edit away from CHN0987 and nothing else.
	out, err := r.Resolve(context.Background(), []models.ProductMention{
		{ProductID: "DHN0987", ProductName: "beanie"},
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if len(out.ExactIDMisses) != 1 {
		t.Fatalf("fuzzy rescue must still record the exact miss, got %d", len(out.ExactIDMisses))
	}
	if out.ExactIDMisses[0].ProductID != "DHN0987" {
		t.Errorf("miss must carry the original mention, got %+v", out.ExactIDMisses[0])
	}

	c := out.Candidates[0].Best()
	if c.ProductID != "CHN0987" {
		t.Fatalf("expected rescue to CHN0987, got %s", c.ProductID)
	}
	if c.Method != models.MethodFuzzyID || c.L2 != 0 {
		t.Errorf("rescued id must report a fuzzy id match: %+v", c)
	}
	if c.Confidence != 0.9 {
		t.Errorf("distance-1 rescue confidence = %f, want 0.9", c.Confidence)
	}
}

func TestResolve_DigitBlockBoundsRescue(t *testing.T) {
	r := New(testLedger(), &stubIndex{}, arbor.NewLogger())

	// CHN0912 is two edits from CHN0987, both in the digit block, so the
	// rescue must not fire even though the total distance is within bounds.
	out, err := r.Resolve(context.Background(), []models.ProductMention{
		{ProductID: "CHN0912"},
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if len(out.Candidates) != 0 {
		t.Errorf("digit-block edits beyond 1 must not be rescued, got %+v", out.Candidates)
	}
	if len(out.ExactIDMisses) != 1 {
		t.Errorf("expected the miss to be recorded, got %d", len(out.ExactIDMisses))
	}
}

func TestResolve_AmbiguousIDNotRescued(t *testing.T) {
	ledger := catalog.NewLedger([]models.Product{
		{ID: "AAA1111", Name: "First", Stock: 1, Price: 1},
		{ID: "AAA1112", Name: "Second", Stock: 1, Price: 1},
	})
	r := New(ledger, &stubIndex{}, arbor.NewLogger())

	// AAA1110 is within distance 1 of both catalog ids.
	out, err := r.Resolve(context.Background(), []models.ProductMention{
		{ProductID: "AAA1110"},
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if len(out.Candidates) != 0 {
		t.Errorf("ambiguous id must not be rescued, got %+v", out.Candidates)
	}
	if len(out.ExactIDMisses) != 1 || len(out.Unresolved) != 1 {
		t.Errorf("expected 1 miss and 1 unresolved, got %d / %d", len(out.ExactIDMisses), len(out.Unresolved))
	}
}

func TestResolve_SemanticMergeAndThreshold(t *testing.T) {
	index := &stubIndex{hits: []interfaces.SearchHit{
		{Metadata: map[string]string{"product_id": "CBT8901", "category": "Men's Shoes"}, L2: 0.41},
		{Metadata: map[string]string{"product_id": "LTH0976", "category": "Accessories"}, L2: 0.41},
		{Metadata: map[string]string{"product_id": "CHN0987", "category": "Accessories"}, L2: 1.9},
	}}
	r := New(testLedger(), index, arbor.NewLogger())

	out, err := r.Resolve(context.Background(), []models.ProductMention{
		{ProductName: "sturdy ankle boots", Quantity: 1},
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	got := out.Candidates[0].Candidates
	// CHN0987 is beyond the 1.2 threshold; the equal-L2 pair is ordered by
	// product id.
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d: %+v", len(got), got)
	}
	if got[0].ProductID != "CBT8901" || got[1].ProductID != "LTH0976" {
		t.Errorf("unexpected tiebreak order: %s, %s", got[0].ProductID, got[1].ProductID)
	}
	if got[0].Method != models.MethodSemantic {
		t.Errorf("expected semantic method, got %s", got[0].Method)
	}
}

func TestResolve_FuzzyNameWins(t *testing.T) {
	// No semantic hits; the near-identical name should still resolve.
	r := New(testLedger(), &stubIndex{}, arbor.NewLogger())

	out, err := r.Resolve(context.Background(), []models.ProductMention{
		{ProductName: "Chelsea Boot"},
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if len(out.Candidates) != 1 {
		t.Fatalf("expected a fuzzy name match, got %+v", out.Unresolved)
	}
	c := out.Candidates[0].Best()
	if c.ProductID != "CBT8901" || c.Method != models.MethodFuzzyName {
		t.Errorf("unexpected candidate: %+v", c)
	}
	if c.Confidence <= 0.9 {
		t.Errorf("one edit on a 13-rune name should score high, got %f", c.Confidence)
	}
}

func TestResolve_BlankMentionUnresolved(t *testing.T) {
	r := New(testLedger(), &stubIndex{}, arbor.NewLogger())

	out, err := r.Resolve(context.Background(), []models.ProductMention{
		{Quantity: 2},
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(out.Unresolved) != 1 || len(out.Candidates) != 0 {
		t.Errorf("blank mention must be unresolved, got %+v", out)
	}
}
