package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/hermes/internal/common"
	"github.com/ternarybob/hermes/internal/interfaces"
	"github.com/ternarybob/hermes/internal/services/llm"
	"google.golang.org/genai"
)

// NewEmbeddingService selects the embedding backend for the configured
// environment. With a Google API key available the cloud Gemini embedder is
// used; without one the deterministic offline embedder keeps the catalog
// index working for local runs and tests.
func NewEmbeddingService(ctx context.Context, cfg *common.Config, logger arbor.ILogger, audit llm.AuditLogger) (interfaces.EmbeddingService, error) {
	apiKey := cfg.ResolveEmbeddingAPIKey()
	if apiKey == "" {
		logger.Warn().
			Str("model", cfg.EmbeddingModelName).
			Msg("No Google API key for embeddings, using offline deterministic embedder")
		return NewOfflineService(cfg.ChromaEmbeddingDim), nil
	}

	return NewCloudService(ctx, cfg, apiKey, logger, audit)
}

// CloudService generates embeddings with the Gemini embedding API.
type CloudService struct {
	client    *genai.Client
	model     string
	dimension int
	logger    arbor.ILogger
	audit     llm.AuditLogger
}

// NewCloudService creates a Gemini-backed embedding service.
func NewCloudService(ctx context.Context, cfg *common.Config, apiKey string, logger arbor.ILogger, audit llm.AuditLogger) (*CloudService, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini embedding client: %w", err)
	}

	if audit == nil {
		audit = llm.NoopAuditLogger{}
	}

	return &CloudService{
		client:    client,
		model:     cfg.EmbeddingModelName,
		dimension: cfg.ChromaEmbeddingDim,
		logger:    logger,
		audit:     audit,
	}, nil
}

// GenerateEmbedding generates an embedding vector for the given text with
// the configured output dimensionality. Rate limit errors are retried with
// the shared backoff schedule.
func (s *CloudService) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	outputDim := int32(s.dimension)
	embeddingConfig := &genai.EmbedContentConfig{
		OutputDimensionality: &outputDim,
	}
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	start := time.Now()
	var result *genai.EmbedContentResponse
	var apiErr error
	retryConfig := llm.NewDefaultRetryConfig()

	for attempt := 0; attempt <= retryConfig.MaxRetries; attempt++ {
		result, apiErr = s.client.Models.EmbedContent(ctx, s.model, contents, embeddingConfig)
		if apiErr == nil {
			break
		}

		if attempt == retryConfig.MaxRetries || !llm.IsRateLimitError(apiErr) {
			break
		}

		backoff := retryConfig.CalculateBackoff(attempt, llm.ExtractRetryDelay(apiErr))
		s.logger.Warn().
			Int("attempt", attempt+1).
			Str("backoff", backoff.String()).
			Err(apiErr).
			Msg("Retrying embedding API call")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	s.audit.LogEmbed(s.model, apiErr == nil, time.Since(start), apiErr)
	if apiErr != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", apiErr)
	}

	var embedding []float32
	if result != nil && len(result.Embeddings) > 0 {
		embedding = result.Embeddings[0].Values
	}
	if embedding == nil {
		return nil, fmt.Errorf("no embedding returned from API")
	}

	if len(embedding) != s.dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", s.dimension, len(embedding))
	}

	return embedding, nil
}

// Dimension returns the configured output dimensionality.
func (s *CloudService) Dimension() int {
	return s.dimension
}

// ModelName returns the embedding model in use.
func (s *CloudService) ModelName() string {
	return s.model
}

// Close clears the client reference. The genai client holds no resources
// that need explicit cleanup.
func (s *CloudService) Close() error {
	s.client = nil
	return nil
}
