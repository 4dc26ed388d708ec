package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hermes/internal/common"
	"github.com/ternarybob/hermes/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db         *BadgerDB
	kv         interfaces.KeyValueStorage
	embeddings interfaces.EmbeddingStorage
	workflows  interfaces.WorkflowStorage
	logger     arbor.ILogger
}

// NewManager creates a new Badger storage manager. The chroma_db_path
// configuration names the directory; the in-memory sentinel keeps the
// whole store in memory.
func NewManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config.ChromaDBPath, config.IsMemoryVectorStore())
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:         db,
		kv:         NewKVStorage(db, logger),
		embeddings: NewEmbeddingStorage(db, logger),
		workflows:  NewWorkflowStorage(db, logger),
		logger:     logger,
	}

	logger.Info().
		Bool("in_memory", config.IsMemoryVectorStore()).
		Msg("Badger storage manager initialized")

	return manager, nil
}

// NewMemoryManager creates an in-memory storage manager for tests
func NewMemoryManager(logger arbor.ILogger) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, "", true)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:         db,
		kv:         NewKVStorage(db, logger),
		embeddings: NewEmbeddingStorage(db, logger),
		workflows:  NewWorkflowStorage(db, logger),
		logger:     logger,
	}, nil
}

// KeyValue returns the KeyValue storage interface
func (m *Manager) KeyValue() interfaces.KeyValueStorage {
	return m.kv
}

// Embeddings returns the Embedding storage interface
func (m *Manager) Embeddings() interfaces.EmbeddingStorage {
	return m.embeddings
}

// Workflows returns the Workflow storage interface
func (m *Manager) Workflows() interfaces.WorkflowStorage {
	return m.workflows
}

// Close closes the database connection
func (m *Manager) Close() error {
	m.logger.Debug().Msg("Closing Badger storage manager")
	return m.db.Close()
}
