package main

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hermes/internal/app"
	"github.com/ternarybob/hermes/internal/services/catalog"
	"github.com/ternarybob/hermes/internal/services/resolver"
)

func errorResult(format string, args ...interface{}) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(fmt.Sprintf(format, args...)),
		},
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// handleSearchProducts implements the search_products tool
func handleSearchProducts(application *app.App, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil || query == "" {
			return errorResult("Error: query parameter is required"), nil
		}
		category := request.GetString("category", "")
		limit := request.GetInt("limit", 5)
		if limit > 25 {
			limit = 25
		}
		if limit < 1 {
			limit = 1
		}

		results, err := catalog.Search(ctx, application.Index, application.Ledger, query, category, limit)
		if err != nil {
			logger.Error().Err(err).Str("query", query).Msg("Catalog search failed")
			return errorResult("Search error: %v", err), nil
		}
		return textResult(formatSearchResults(query, results)), nil
	}
}

// handleProductDetails implements the get_product_details tool
func handleProductDetails(application *app.App, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rawID, err := request.RequireString("product_id")
		if err != nil || rawID == "" {
			return errorResult("Error: product_id parameter is required"), nil
		}
		id := resolver.NormalizeID(rawID)
		product, ok := application.Ledger.Get(id)
		if !ok {
			return errorResult("No product with id %s in the catalog", id), nil
		}
		return textResult(formatProductDetails(&product, application.Ledger.Available(id))), nil
	}
}

// handleCheckStock implements the check_stock tool
func handleCheckStock(application *app.App, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		rawID, err := request.RequireString("product_id")
		if err != nil || rawID == "" {
			return errorResult("Error: product_id parameter is required"), nil
		}
		id := resolver.NormalizeID(rawID)
		product, ok := application.Ledger.Get(id)
		if !ok {
			return errorResult("No product with id %s in the catalog", id), nil
		}
		return textResult(formatStock(&product, application.Ledger.Available(id))), nil
	}
}
