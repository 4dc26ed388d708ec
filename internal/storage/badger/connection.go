package badger

import (
	"errors"
	"fmt"
	"os"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

// BadgerDB manages the Badger database connection
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	path   string
}

// NewBadgerDB opens the Badger database at path. An empty path or the
// in-memory sentinel opens a purely in-memory store, used for tests and
// for the ":memory:" vector store configuration.
func NewBadgerDB(logger arbor.ILogger, path string, inMemory bool) (*BadgerDB, error) {
	options := badgerhold.DefaultOptions
	options.Logger = nil // Disable default badger logger to use arbor

	if inMemory {
		options.InMemory = true
		logger.Debug().Msg("Opening in-memory Badger database")
	} else {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		options.Dir = path
		options.ValueDir = path
		logger.Debug().Str("path", path).Msg("Opening Badger database connection")
	}

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	if !inMemory {
		reclaimValueLog(store, logger)
	}

	return &BadgerDB{
		store:  store,
		logger: logger,
		path:   path,
	}, nil
}

// reclaimValueLog compacts value-log space left behind by earlier runs.
// Badger never garbage-collects on its own, so stale embedding versions
// accumulate across catalog reloads until someone asks.
func reclaimValueLog(store *badgerhold.Store, logger arbor.ILogger) {
	for {
		err := store.Badger().RunValueLogGC(0.5)
		if err == nil {
			continue
		}
		if !errors.Is(err, badgerdb.ErrNoRewrite) {
			logger.Warn().Err(err).Msg("Value-log GC stopped early")
		}
		return
	}
}

// Store returns the underlying badgerhold store
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Close closes the database connection
func (b *BadgerDB) Close() error {
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}
