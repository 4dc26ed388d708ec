package main

import (
	"fmt"
	"strings"

	"github.com/ternarybob/hermes/internal/models"
	"github.com/ternarybob/hermes/internal/services/catalog"
)

// formatSearchResults formats catalog hits as markdown
func formatSearchResults(query string, results []catalog.SearchResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Catalog results for \"%s\" (%d results)\n\n", query, len(results)))

	if len(results) == 0 {
		sb.WriteString("No matching products.\n")
		return sb.String()
	}

	for i, result := range results {
		p := result.Product
		sb.WriteString(fmt.Sprintf("### %d. %s (%s)\n", i+1, p.Name, p.ID))
		sb.WriteString(fmt.Sprintf("**Category:** %s | **Price:** %.2f | **Stock:** %d\n", p.Category, p.Price, p.Stock))
		if p.Description != "" {
			description := p.Description
			if len(description) > 300 {
				description = description[:300] + "..."
			}
			sb.WriteString(description)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatProductDetails formats one product record as markdown
func formatProductDetails(p *models.Product, available int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# %s\n\n", p.Name))
	sb.WriteString(fmt.Sprintf("**ID:** %s\n", p.ID))
	sb.WriteString(fmt.Sprintf("**Category:** %s\n", p.Category))
	sb.WriteString(fmt.Sprintf("**Price:** %.2f\n", p.Price))
	sb.WriteString(fmt.Sprintf("**Stock:** %d\n", available))
	if len(p.Seasons) > 0 {
		sb.WriteString(fmt.Sprintf("**Seasons:** %s\n", strings.Join(p.Seasons, ", ")))
	}
	if p.Type != "" {
		sb.WriteString(fmt.Sprintf("**Type:** %s\n", p.Type))
	}
	if p.PromotionText != "" {
		sb.WriteString(fmt.Sprintf("**Promotion:** %s\n", p.PromotionText))
	}
	if p.Description != "" {
		sb.WriteString("\n")
		sb.WriteString(p.Description)
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatStock formats the stock answer for one product
func formatStock(p *models.Product, available int) string {
	status := "in stock"
	if available <= 0 {
		status = "out of stock"
	}
	return fmt.Sprintf("%s (%s): %d units, %s\n", p.Name, p.ID, available, status)
}
