package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/hermes/internal/models"
)

// ErrKeyNotFound is returned when a key/value lookup misses
var ErrKeyNotFound = errors.New("key not found")

// KeyValuePair is one stored entry with bookkeeping timestamps
type KeyValuePair struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// KeyValueStorage is a small persistent string store used for run
// bookkeeping (processed message ids, cached settings).
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	GetAll(ctx context.Context) (map[string]string, error)
}

// EmbeddingStorage persists product embedding vectors so catalog loads do
// not re-embed unchanged products.
type EmbeddingStorage interface {
	GetEmbedding(ctx context.Context, key string) (*models.StoredEmbedding, error)
	PutEmbedding(ctx context.Context, embedding *models.StoredEmbedding) error
	DeleteCollection(ctx context.Context, collection string) error
}

// WorkflowStorage persists terminal workflow states as the audit trail of
// a run.
type WorkflowStorage interface {
	SaveState(ctx context.Context, state *models.WorkflowState) error
	GetState(ctx context.Context, emailID string) (*models.WorkflowState, error)
	ListStates(ctx context.Context, runID string) ([]*models.WorkflowState, error)
}

// StorageManager bundles the stores behind one connection
type StorageManager interface {
	KeyValue() KeyValueStorage
	Embeddings() EmbeddingStorage
	Workflows() WorkflowStorage
	Close() error
}
