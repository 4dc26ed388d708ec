package vectorindex

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/hermes/internal/interfaces"
	"github.com/ternarybob/hermes/internal/models"
)

// entry is one indexed catalog document held in memory for search.
type entry struct {
	productID string
	vector    []float32
	metadata  map[string]string
}

// Index is an in-process vector index over the product catalog. Vectors are
// generated once per document revision and cached in the embedding store;
// queries run a brute-force scan, which is exact and fast at catalog scale.
type Index struct {
	embedder   interfaces.EmbeddingService
	store      interfaces.EmbeddingStorage
	collection string
	logger     arbor.ILogger

	mu      sync.RWMutex
	entries []entry
}

// New creates a vector index backed by the given embedder and cache store.
func New(embedder interfaces.EmbeddingService, store interfaces.EmbeddingStorage, collection string, logger arbor.ILogger) *Index {
	return &Index{
		embedder:   embedder,
		store:      store,
		collection: collection,
		logger:     logger,
	}
}

// IndexProducts embeds every catalog product document and loads the index.
// Embeddings cached with a matching content hash, model, and dimension are
// reused; anything else is regenerated and written back to the store.
func (idx *Index) IndexProducts(ctx context.Context, products []models.Product) error {
	entries := make([]entry, 0, len(products))
	embedded := 0
	reused := 0

	for i := range products {
		product := &products[i]
		doc := product.DocumentText()
		hash := contentHash(doc, idx.embedder.ModelName())

		vector, fromCache, err := idx.vectorFor(ctx, product.ID, doc, hash)
		if err != nil {
			return fmt.Errorf("indexing product %s: %w", product.ID, err)
		}
		if fromCache {
			reused++
		} else {
			embedded++
		}

		entries = append(entries, entry{
			productID: product.ID,
			vector:    vector,
			metadata: map[string]string{
				"product_id": product.ID,
				"name":       product.Name,
				"category":   product.Category,
				"type":       product.Type,
				"price":      strconv.FormatFloat(product.Price, 'f', -1, 64),
			},
		})
	}

	idx.mu.Lock()
	idx.entries = entries
	idx.mu.Unlock()

	idx.logger.Info().
		Str("collection", idx.collection).
		Int("products", len(entries)).
		Int("embedded", embedded).
		Int("reused", reused).
		Msg("Product index ready")
	return nil
}

// vectorFor returns the embedding for a document, from cache when current.
func (idx *Index) vectorFor(ctx context.Context, productID, doc, hash string) ([]float32, bool, error) {
	stored, err := idx.store.GetEmbedding(ctx, idx.collection+"/"+productID)
	if err != nil && !errors.Is(err, interfaces.ErrKeyNotFound) {
		return nil, false, fmt.Errorf("reading embedding cache: %w", err)
	}
	if stored != nil &&
		stored.ContentHash == hash &&
		stored.Model == idx.embedder.ModelName() &&
		stored.Dim == idx.embedder.Dimension() {
		return stored.Vector, true, nil
	}

	vector, err := idx.embedder.GenerateEmbedding(ctx, doc)
	if err != nil {
		return nil, false, err
	}

	record := &models.StoredEmbedding{
		Key:         idx.collection + "/" + productID,
		Collection:  idx.collection,
		ProductID:   productID,
		ContentHash: hash,
		Model:       idx.embedder.ModelName(),
		Dim:         len(vector),
		Vector:      vector,
		UpdatedAt:   time.Now(),
	}
	if err := idx.store.PutEmbedding(ctx, record); err != nil {
		return nil, false, fmt.Errorf("writing embedding cache: %w", err)
	}

	return vector, false, nil
}

// Query embeds the query text and returns the k nearest documents by L2
// distance, ascending, with product_id as the tiebreak. The optional where
// map filters candidates by exact metadata equality before ranking.
func (idx *Index) Query(ctx context.Context, queryText string, k int, where map[string]string) ([]interfaces.SearchHit, error) {
	if k <= 0 {
		return nil, nil
	}

	queryVector, err := idx.embedder.GenerateEmbedding(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	hits := make([]interfaces.SearchHit, 0, len(idx.entries))
	for i := range idx.entries {
		e := &idx.entries[i]
		if !matchesWhere(e.metadata, where) {
			continue
		}
		if len(e.vector) != len(queryVector) {
			continue
		}

		metadata := make(map[string]string, len(e.metadata))
		for key, value := range e.metadata {
			metadata[key] = value
		}
		hits = append(hits, interfaces.SearchHit{
			Metadata: metadata,
			L2:       l2Distance(queryVector, e.vector),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].L2 != hits[j].L2 {
			return hits[i].L2 < hits[j].L2
		}
		return hits[i].Metadata["product_id"] < hits[j].Metadata["product_id"]
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Count returns the number of indexed documents.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// matchesWhere reports whether metadata satisfies every where clause.
func matchesWhere(metadata, where map[string]string) bool {
	for key, want := range where {
		if metadata[key] != want {
			return false
		}
	}
	return true
}

// l2Distance computes the Euclidean distance between two vectors.
func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// contentHash fingerprints a document and embedding model for cache reuse.
func contentHash(doc, model string) string {
	sum := md5.Sum([]byte(model + "\x00" + doc))
	return hex.EncodeToString(sum[:])
}
