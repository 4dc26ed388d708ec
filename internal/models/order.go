package models

// LineStatus is the stock outcome for one order line
type LineStatus string

const (
	LineCreated    LineStatus = "created"
	LineOutOfStock LineStatus = "out_of_stock"
)

// OrderStatus summarizes an order from its line statuses
type OrderStatus string

const (
	OrderCreated            OrderStatus = "created"
	OrderOutOfStock         OrderStatus = "out_of_stock"
	OrderPartiallyFulfilled OrderStatus = "partially_fulfilled"
	OrderNoValidProducts    OrderStatus = "no_valid_products"
)

// Alternative is an in-stock substitute suggested for an out-of-stock line
type Alternative struct {
	ProductID string  `json:"product_id" yaml:"product_id"`
	Name      string  `json:"name" yaml:"name"`
	Price     float64 `json:"price" yaml:"price"`
	Stock     int     `json:"stock" yaml:"stock"`
	L2        float64 `json:"l2,omitempty" yaml:"l2,omitempty"`
}

// OrderLine is one product position in an order. BasePrice is the catalog
// price; UnitPrice reflects any promotion. TotalPrice is always UnitPrice
// multiplied by Quantity. Description carries the product name and may be
// prefixed with a clarification marker for moderate-confidence matches.
type OrderLine struct {
	ProductID   string     `json:"product_id" yaml:"product_id"`
	Description string     `json:"description" yaml:"description"`
	Quantity    int        `json:"quantity" yaml:"quantity"`
	BasePrice   float64    `json:"base_price" yaml:"base_price"`
	UnitPrice   float64    `json:"unit_price" yaml:"unit_price"`
	TotalPrice  float64    `json:"total_price" yaml:"total_price"`
	Discount    float64    `json:"discount,omitempty" yaml:"discount,omitempty"`
	Status      LineStatus `json:"status" yaml:"status"`
	StockAfter  int        `json:"stock_after" yaml:"stock_after"`

	// Populated for out-of-stock lines
	Alternatives []Alternative `json:"alternatives,omitempty" yaml:"alternatives,omitempty"`

	// Promotion bookkeeping
	PromotionApplied     bool           `json:"promotion_applied,omitempty" yaml:"promotion_applied,omitempty"`
	PromotionDescription string         `json:"promotion_description,omitempty" yaml:"promotion_description,omitempty"`
	Promotion            *PromotionSpec `json:"promotion,omitempty" yaml:"promotion,omitempty"`
}

// Order is the Fulfiller's output for one email
type Order struct {
	EmailID       string      `json:"email_id" yaml:"email_id"`
	OverallStatus OrderStatus `json:"overall_status" yaml:"overall_status"`
	Lines         []OrderLine `json:"lines" yaml:"lines"`
	TotalPrice    float64     `json:"total_price" yaml:"total_price"`
	TotalDiscount float64     `json:"total_discount,omitempty" yaml:"total_discount,omitempty"`
	Message       string      `json:"message,omitempty" yaml:"message,omitempty"`
	StockUpdated  bool        `json:"stock_updated,omitempty" yaml:"stock_updated,omitempty"`
}

// ComputeOverallStatus derives the order status from its line statuses:
// created only when every line was created, out_of_stock only when every
// line missed, partially_fulfilled when mixed, no_valid_products when the
// order has no lines at all.
func (o *Order) ComputeOverallStatus() OrderStatus {
	if len(o.Lines) == 0 {
		return OrderNoValidProducts
	}
	created, missed := 0, 0
	for _, l := range o.Lines {
		switch l.Status {
		case LineCreated:
			created++
		case LineOutOfStock:
			missed++
		}
	}
	switch {
	case created == len(o.Lines):
		return OrderCreated
	case missed == len(o.Lines):
		return OrderOutOfStock
	default:
		return OrderPartiallyFulfilled
	}
}

// RecomputeTotals recalculates per-line totals and the order aggregates.
// Only created lines contribute to the order total price.
func (o *Order) RecomputeTotals() {
	var total, discount float64
	for i := range o.Lines {
		line := &o.Lines[i]
		line.TotalPrice = line.UnitPrice * float64(line.Quantity)
		if line.Status == LineCreated {
			total += line.TotalPrice
			discount += line.Discount
		}
	}
	o.TotalPrice = total
	o.TotalDiscount = discount
}
