package main

import (
	"context"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbormodels "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/hermes/internal/app"
	"github.com/ternarybob/hermes/internal/common"
	"github.com/ternarybob/hermes/internal/services/sources"
)

// The MCP server exposes the product catalog over stdio: semantic search,
// product details, and live stock. Configuration comes from HERMES_CONFIG
// (default hermes.toml) and the products source from HERMES_PRODUCTS_SOURCE
// or the first argument.
func main() {
	defer common.RecoverWithCrashFile()

	configPath := os.Getenv("HERMES_CONFIG")
	if configPath == "" {
		configPath = "hermes.toml"
	}
	var configFiles []string
	if _, err := os.Stat(configPath); err == nil {
		configFiles = append(configFiles, configPath)
	}
	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Warn-level console logging only, to keep the stdio transport clean.
	logger := arbor.NewLogger().WithConsoleWriter(arbormodels.WriterConfiguration{
		Type:             arbormodels.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")

	source := os.Getenv("HERMES_PRODUCTS_SOURCE")
	if source == "" && len(os.Args) > 1 {
		source = os.Args[1]
	}
	if source == "" {
		fmt.Fprintln(os.Stderr, "Products source required: set HERMES_PRODUCTS_SOURCE or pass it as the first argument")
		os.Exit(1)
	}
	spec, err := sources.ParseSpec(source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid products source: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	application, err := app.New(ctx, config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer application.Close()

	if err := application.LoadCatalog(ctx, spec); err != nil {
		logger.Fatal().Err(err).Msg("Failed to load catalog")
	}

	mcpServer := server.NewMCPServer(
		"hermes",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTool(createSearchProductsTool(), handleSearchProducts(application, logger))
	mcpServer.AddTool(createProductDetailsTool(), handleProductDetails(application, logger))
	mcpServer.AddTool(createCheckStockTool(), handleCheckStock(application, logger))

	// Blocks on stdio
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
