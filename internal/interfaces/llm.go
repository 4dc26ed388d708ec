package interfaces

import "context"

// Message represents a single message in a chat conversation.
//
// Role values:
//   - "system": Sets assistant behavior and constraints
//   - "user": Input from the customer or pipeline
//   - "assistant": Previous model responses, kept for conversation context
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolCall records one tool invocation the model made during a call,
// including the result fed back to it. The set of Name values is what
// required-tool validation compares against.
type ToolCall struct {
	ID     string                 `json:"id,omitempty"`
	Name   string                 `json:"name"`
	Args   map[string]interface{} `json:"args,omitempty"`
	Result string                 `json:"result,omitempty"`
	IsErr  bool                   `json:"is_err,omitempty"`
}

// EmbeddingService generates embedding vectors for semantic search.
//
// Implementations:
//   - Cloud: Google GenAI embeddings with configured output dimensionality
//   - Offline: deterministic hashed bag-of-words vectors for development
//     and tests when no API key is configured
type EmbeddingService interface {
	// GenerateEmbedding returns the embedding vector for the given text.
	// The vector length always equals Dimension().
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the configured embedding dimensionality
	Dimension() int

	// ModelName returns the embedding model identifier, used to key the
	// persistent embedding cache
	ModelName() string

	// Close releases client resources
	Close() error
}
