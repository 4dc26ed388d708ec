package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/hermes/internal/models"
)

// smartQuoteReplacer maps typographic quotes from spreadsheet exports to
// their ASCII equivalents so category names compare cleanly.
var smartQuoteReplacer = strings.NewReplacer(
	"‘", "'", // left single quotation mark
	"’", "'", // right single quotation mark
	"‛", "'", // single high-reversed-9 quotation mark
	"“", `"`, // left double quotation mark
	"”", `"`, // right double quotation mark
	"„", `"`, // double low-9 quotation mark
)

// RepairText normalizes typographic quotes and trims surrounding whitespace.
func RepairText(s string) string {
	return strings.TrimSpace(smartQuoteReplacer.Replace(s))
}

// ParseProducts converts raw source records into catalog products. Records
// missing an id or with unparseable numeric fields are skipped with a
// warning; a duplicated product id keeps the last record seen.
func ParseProducts(records []map[string]string, logger arbor.ILogger) []models.Product {
	products := make([]models.Product, 0, len(records))
	position := make(map[string]int, len(records))

	for i, record := range records {
		product, err := parseProduct(record)
		if err != nil {
			logger.Warn().
				Int("row", i+1).
				Err(err).
				Msg("Skipping invalid catalog record")
			continue
		}

		if existing, seen := position[product.ID]; seen {
			logger.Warn().
				Str("product_id", product.ID).
				Msg("Duplicate product id in catalog, keeping last record")
			products[existing] = product
			continue
		}

		position[product.ID] = len(products)
		products = append(products, product)
	}

	return products
}

func parseProduct(record map[string]string) (models.Product, error) {
	id := RepairText(record["product_id"])
	if id == "" {
		return models.Product{}, fmt.Errorf("missing product_id")
	}

	name := RepairText(record["name"])
	if name == "" {
		return models.Product{}, fmt.Errorf("missing name for product %s", id)
	}

	stock, err := strconv.Atoi(strings.TrimSpace(record["stock"]))
	if err != nil {
		return models.Product{}, fmt.Errorf("invalid stock for product %s: %w", id, err)
	}
	if stock < 0 {
		return models.Product{}, fmt.Errorf("negative stock for product %s", id)
	}

	price, err := strconv.ParseFloat(strings.TrimSpace(record["price"]), 64)
	if err != nil {
		return models.Product{}, fmt.Errorf("invalid price for product %s: %w", id, err)
	}

	seasonField := record["season"]
	if seasonField == "" {
		seasonField = record["seasons"]
	}
	var seasons []string
	for _, season := range strings.Split(seasonField, ",") {
		if trimmed := RepairText(season); trimmed != "" {
			seasons = append(seasons, trimmed)
		}
	}

	return models.Product{
		ID:          id,
		Name:        name,
		Category:    RepairText(record["category"]),
		Description: RepairText(record["description"]),
		Stock:       stock,
		Price:       price,
		Seasons:     seasons,
		Type:        RepairText(record["type"]),
	}, nil
}
