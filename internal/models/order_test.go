package models

import "testing"

func TestComputeOverallStatus(t *testing.T) {
	tests := []struct {
		name     string
		lines    []OrderLine
		expected OrderStatus
	}{
		{"no lines", nil, OrderNoValidProducts},
		{"all created", []OrderLine{{Status: LineCreated}, {Status: LineCreated}}, OrderCreated},
		{"all out of stock", []OrderLine{{Status: LineOutOfStock}}, OrderOutOfStock},
		{"mixed", []OrderLine{{Status: LineCreated}, {Status: LineOutOfStock}}, OrderPartiallyFulfilled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := Order{Lines: tt.lines}
			if got := order.ComputeOverallStatus(); got != tt.expected {
				t.Errorf("ComputeOverallStatus() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestRecomputeTotals(t *testing.T) {
	order := Order{
		Lines: []OrderLine{
			{Status: LineCreated, UnitPrice: 20.0, Quantity: 2, Discount: 4.0},
			{Status: LineCreated, UnitPrice: 10.0, Quantity: 1},
			{Status: LineOutOfStock, UnitPrice: 99.0, Quantity: 3},
		},
		// Stale aggregates that must be overwritten.
		TotalPrice:    1.0,
		TotalDiscount: 1.0,
	}

	order.RecomputeTotals()

	if order.Lines[0].TotalPrice != 40.0 {
		t.Errorf("line 0 total = %f, want 40", order.Lines[0].TotalPrice)
	}
	if order.Lines[2].TotalPrice != 297.0 {
		t.Errorf("out-of-stock line total = %f, want 297", order.Lines[2].TotalPrice)
	}
	if order.TotalPrice != 50.0 {
		t.Errorf("order total = %f, want 50: out-of-stock lines never bill", order.TotalPrice)
	}
	if order.TotalDiscount != 4.0 {
		t.Errorf("order discount = %f, want 4", order.TotalDiscount)
	}
}

func TestRecomputeTotals_EmptyOrder(t *testing.T) {
	order := Order{TotalPrice: 12.0, TotalDiscount: 3.0}
	order.RecomputeTotals()
	if order.TotalPrice != 0 || order.TotalDiscount != 0 {
		t.Errorf("empty order must zero its aggregates, got %f / %f", order.TotalPrice, order.TotalDiscount)
	}
}
