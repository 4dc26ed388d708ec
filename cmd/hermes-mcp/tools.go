package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createSearchProductsTool returns the search_products tool definition
func createSearchProductsTool() mcp.Tool {
	return mcp.NewTool("search_products",
		mcp.WithDescription("Semantic search over the fashion catalog by name, description or use case"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("What to look for (e.g. \"warm scarf for winter\")"),
		),
		mcp.WithString("category",
			mcp.Description("Restrict to one catalog category (e.g. Men's Shoes, Accessories)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results to return (default: 5, max: 25)"),
		),
	)
}

// createProductDetailsTool returns the get_product_details tool definition
func createProductDetailsTool() mcp.Tool {
	return mcp.NewTool("get_product_details",
		mcp.WithDescription("Full catalog record for one product id, including price, seasons and any promotion"),
		mcp.WithString("product_id",
			mcp.Required(),
			mcp.Description("Product ID (three letters and four digits, e.g. LTH0976)"),
		),
	)
}

// createCheckStockTool returns the check_stock tool definition
func createCheckStockTool() mcp.Tool {
	return mcp.NewTool("check_stock",
		mcp.WithDescription("Live stock level for one product id"),
		mcp.WithString("product_id",
			mcp.Required(),
			mcp.Description("Product ID (three letters and four digits, e.g. LTH0976)"),
		),
	)
}
