package catalog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/hermes/internal/models"
)

var (
	// ErrUnknownProduct is returned when a reservation names an id that is
	// not in the catalog.
	ErrUnknownProduct = errors.New("unknown product")
	// ErrInsufficientStock is returned when a reservation exceeds the
	// remaining stock. The stock level is left untouched.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Ledger holds the catalog with live stock levels. Reservations are
// check-and-decrement under a single mutex, so concurrent workflow nodes
// can never oversell a product.
type Ledger struct {
	mu       sync.Mutex
	products map[string]*models.Product
	order    []string
}

// NewLedger builds a ledger from loaded catalog products.
func NewLedger(products []models.Product) *Ledger {
	ledger := &Ledger{
		products: make(map[string]*models.Product, len(products)),
		order:    make([]string, 0, len(products)),
	}
	for i := range products {
		product := products[i]
		ledger.products[product.ID] = &product
		ledger.order = append(ledger.order, product.ID)
	}
	return ledger
}

// Get returns a copy of the product with the given id.
func (l *Ledger) Get(id string) (models.Product, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	product, ok := l.products[id]
	if !ok {
		return models.Product{}, false
	}
	return *product, true
}

// Products returns copies of all products in catalog order.
func (l *Ledger) Products() []models.Product {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.Product, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.products[id])
	}
	return out
}

// Categories returns the distinct product categories in catalog order.
func (l *Ledger) Categories() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]bool)
	out := make([]string, 0, 8)
	for _, id := range l.order {
		category := l.products[id].Category
		if category == "" || seen[category] {
			continue
		}
		seen[category] = true
		out = append(out, category)
	}
	return out
}

// Len returns the number of catalog products.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.products)
}

// Available returns the remaining stock for a product, or 0 when unknown.
func (l *Ledger) Available(id string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if product, ok := l.products[id]; ok {
		return product.Stock
	}
	return 0
}

// Reserve atomically decrements stock for a quantity. The reservation is
// all-or-nothing: when remaining stock is short the level is unchanged and
// ErrInsufficientStock is returned.
func (l *Ledger) Reserve(id string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("reservation quantity must be positive, got %d", quantity)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	product, ok := l.products[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProduct, id)
	}
	if product.Stock < quantity {
		return fmt.Errorf("%w: %s has %d, requested %d", ErrInsufficientStock, id, product.Stock, quantity)
	}

	product.Stock -= quantity
	return nil
}
