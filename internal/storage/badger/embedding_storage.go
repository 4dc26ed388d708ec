package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/hermes/internal/interfaces"
	"github.com/ternarybob/hermes/internal/models"
)

// EmbeddingStorage implements the EmbeddingStorage interface for Badger.
// Vectors are keyed by "<collection>/<product_id>".
type EmbeddingStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewEmbeddingStorage creates a new EmbeddingStorage instance
func NewEmbeddingStorage(db *BadgerDB, logger arbor.ILogger) interfaces.EmbeddingStorage {
	return &EmbeddingStorage{
		db:     db,
		logger: logger,
	}
}

// GetEmbedding retrieves a cached vector by key
func (s *EmbeddingStorage) GetEmbedding(ctx context.Context, key string) (*models.StoredEmbedding, error) {
	var embedding models.StoredEmbedding
	err := s.db.Store().Get(key, &embedding)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	return &embedding, nil
}

// PutEmbedding stores or replaces a cached vector
func (s *EmbeddingStorage) PutEmbedding(ctx context.Context, embedding *models.StoredEmbedding) error {
	if embedding.Key == "" {
		return fmt.Errorf("embedding key cannot be empty")
	}
	embedding.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Upsert(embedding.Key, embedding); err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

// DeleteCollection removes every cached vector in a collection
func (s *EmbeddingStorage) DeleteCollection(ctx context.Context, collection string) error {
	var embeddings []models.StoredEmbedding
	if err := s.db.Store().Find(&embeddings, badgerhold.Where("Collection").Eq(collection)); err != nil {
		return fmt.Errorf("failed to list collection %s: %w", collection, err)
	}

	for _, e := range embeddings {
		if err := s.db.Store().Delete(e.Key, &models.StoredEmbedding{}); err != nil {
			s.logger.Warn().Str("key", e.Key).Err(err).Msg("Failed to delete embedding")
		}
	}

	s.logger.Debug().Str("collection", collection).Int("count", len(embeddings)).Msg("Deleted embedding collection")
	return nil
}
