package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hermes/internal/common"
	"github.com/ternarybob/hermes/internal/interfaces"
	"github.com/ternarybob/hermes/internal/models"
	"github.com/ternarybob/hermes/internal/pipeline"
	"github.com/ternarybob/hermes/internal/services/agents"
	"github.com/ternarybob/hermes/internal/services/catalog"
	"github.com/ternarybob/hermes/internal/services/embeddings"
	"github.com/ternarybob/hermes/internal/services/llm"
	"github.com/ternarybob/hermes/internal/services/promotions"
	"github.com/ternarybob/hermes/internal/services/resolver"
	"github.com/ternarybob/hermes/internal/services/sources"
	"github.com/ternarybob/hermes/internal/services/vectorindex"
	"github.com/ternarybob/hermes/internal/services/workers"
	"github.com/ternarybob/hermes/internal/storage/badger"
)

// App holds the wired services of one hermes process. Catalog-dependent
// pieces (ledger, resolver, pipeline) are built by LoadCatalog once the
// product source is known.
type App struct {
	Config   *common.Config
	Logger   arbor.ILogger
	Storage  interfaces.StorageManager
	LLM      *llm.ProviderFactory
	Embedder interfaces.EmbeddingService
	Index    *vectorindex.Index
	Sources  *sources.Service
	Validate *validator.Validate

	Ledger   *catalog.Ledger
	Resolver *resolver.Resolver
	Pipeline *pipeline.Pipeline
}

// New boots the catalog-independent services: storage, the LLM provider
// with audit logging, the embedding service, and the vector index.
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	storage, err := badger.NewManager(logger, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	audit := llm.NewKVAuditLogger(storage.KeyValue(), logger)
	factory := llm.NewProviderFactory(cfg, logger)
	factory.SetAuditLogger(audit)

	embedder, err := embeddings.NewEmbeddingService(ctx, cfg, logger, audit)
	if err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to initialize embeddings: %w", err)
	}

	app := &App{
		Config:   cfg,
		Logger:   logger,
		Storage:  storage,
		LLM:      factory,
		Embedder: embedder,
		Index:    vectorindex.New(embedder, storage.Embeddings(), cfg.ChromaCollectionName, logger),
		Sources:  sources.NewService(logger),
		Validate: validator.New(),
	}

	logger.Info().
		Str("provider", cfg.LLMProvider).
		Str("strong_model", cfg.LLMStrongModelName).
		Str("weak_model", cfg.LLMWeakModelName).
		Msg("Application services initialized")
	return app, nil
}

// LoadCatalog reads the product source, indexes it for semantic search,
// and builds the workflow pipeline over it. A source that yields no
// products is fatal: no email can be served without a catalog.
func (a *App) LoadCatalog(ctx context.Context, spec sources.Spec) error {
	records, err := a.Sources.LoadRecords(ctx, spec)
	if err != nil {
		return &common.CatalogError{Err: err}
	}
	products := catalog.ParseProducts(records, a.Logger)
	if len(products) == 0 {
		return &common.CatalogError{Err: fmt.Errorf("source %s yielded no products", spec)}
	}
	promotions.Attach(products, a.Config.PromotionSpecs)

	if err := a.Index.IndexProducts(ctx, products); err != nil {
		return &common.CatalogError{Err: fmt.Errorf("failed to index catalog: %w", err)}
	}

	a.Ledger = catalog.NewLedger(products)
	a.Resolver = resolver.New(a.Ledger, a.Index, a.Logger)

	classifier := agents.NewClassifierAgent(a.LLM, a.Validate, a.Ledger.Categories(), a.Logger)
	stockkeeper := agents.NewStockkeeperAgent(a.Resolver, a.Logger)
	fulfiller := agents.NewFulfillerAgent(a.LLM, a.Validate, a.Ledger, a.Index, a.Config.PromotionSpecs, a.Logger)
	advisor := agents.NewAdvisorAgent(a.LLM, a.Validate, a.Ledger, a.Index, a.Logger)
	composer := agents.NewComposerAgent(a.LLM, a.Validate, a.Config.Composer, a.Logger)

	p, err := pipeline.New(pipeline.Nodes{
		Classifier:  classifier.Run,
		Stockkeeper: stockkeeper.Run,
		Fulfiller:   fulfiller.Run,
		Advisor:     advisor.Run,
		Composer:    composer.Run,
	}, a.Logger)
	if err != nil {
		return err
	}
	a.Pipeline = p

	a.Logger.Info().
		Int("products", a.Ledger.Len()).
		Int("indexed", a.Index.Count()).
		Int("promotions", len(a.Config.PromotionSpecs)).
		Str("source", spec.String()).
		Msg("Catalog loaded")
	return nil
}

// ProcessEmails runs a batch through the pipeline and returns the run id
// with the terminal states in input order. The pool honors the workers
// config, including stop-on-error.
func (a *App) ProcessEmails(ctx context.Context, emails []models.IncomingEmail) (string, []*models.WorkflowState, error) {
	if a.Pipeline == nil {
		return "", nil, fmt.Errorf("catalog not loaded")
	}
	runID := common.NewRunID()
	a.Logger.Info().Str("run_id", runID).Int("emails", len(emails)).Msg("Processing batch")

	pool := workers.NewPool(a.Config.Workers, a.Logger)
	states, err := pool.Run(ctx, emails, func(ctx context.Context, email models.IncomingEmail) (*models.WorkflowState, error) {
		state := models.NewWorkflowState(runID, email)
		a.Pipeline.Process(ctx, state)
		return state, nil
	})
	return runID, states, err
}

// Close releases the provider and storage resources.
func (a *App) Close() error {
	if a.LLM != nil {
		if err := a.LLM.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM provider")
		}
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}
	return nil
}
