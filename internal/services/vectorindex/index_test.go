package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/hermes/internal/interfaces"
	"github.com/ternarybob/hermes/internal/models"
	"github.com/ternarybob/hermes/internal/services/embeddings"
	badgerstore "github.com/ternarybob/hermes/internal/storage/badger"
)

// countingEmbedder wraps an embedder and counts generation calls so cache
// reuse is observable.
type countingEmbedder struct {
	interfaces.EmbeddingService
	calls int
}

func (c *countingEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.EmbeddingService.GenerateEmbedding(ctx, text)
}

func testProducts() []models.Product {
	return []models.Product{
		{ID: "LTH0976", Name: "Leather Boots", Category: "Shoes", Description: "Rugged leather boots with a lug sole", Stock: 4, Price: 21.0, Type: "boots"},
		{ID: "SCF4432", Name: "Silk Scarf", Category: "Accessories", Description: "Lightweight silk scarf in floral print", Stock: 10, Price: 14.5, Type: "scarf"},
		{ID: "MSG5987", Name: "Messenger Bag", Category: "Bags", Description: "Canvas messenger bag for daily use", Stock: 2, Price: 32.0, Type: "bag"},
	}
}

func newTestIndex(t *testing.T) (*Index, *countingEmbedder, interfaces.StorageManager) {
	t.Helper()
	logger := arbor.NewLogger()

	manager, err := badgerstore.NewMemoryManager(logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	embedder := &countingEmbedder{EmbeddingService: embeddings.NewOfflineService(64)}
	return New(embedder, manager.Embeddings(), "hermes_products", logger), embedder, manager
}

func TestIndex_QueryRanksByDistance(t *testing.T) {
	index, _, _ := newTestIndex(t)
	products := testProducts()

	require.NoError(t, index.IndexProducts(context.Background(), products))
	assert.Equal(t, 3, index.Count())

	// Querying with a product's own document text is an exact vector match.
	hits, err := index.Query(context.Background(), products[0].DocumentText(), 3, nil)
	require.NoError(t, err)
	require.Len(t, hits, 3)

	assert.Equal(t, "LTH0976", hits[0].Metadata["product_id"])
	assert.InDelta(t, 0.0, hits[0].L2, 1e-6)
	assert.LessOrEqual(t, hits[0].L2, hits[1].L2)
	assert.LessOrEqual(t, hits[1].L2, hits[2].L2)
}

func TestIndex_QueryWhereFilter(t *testing.T) {
	index, _, _ := newTestIndex(t)
	require.NoError(t, index.IndexProducts(context.Background(), testProducts()))

	hits, err := index.Query(context.Background(), "something for carrying books", 3, map[string]string{"category": "Bags"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "MSG5987", hits[0].Metadata["product_id"])
}

func TestIndex_ReusesCachedEmbeddings(t *testing.T) {
	index, embedder, manager := newTestIndex(t)
	products := testProducts()

	require.NoError(t, index.IndexProducts(context.Background(), products))
	firstRun := embedder.calls
	assert.Equal(t, len(products), firstRun)

	// A rebuilt index over unchanged documents embeds nothing new.
	rebuilt := New(embedder, manager.Embeddings(), "hermes_products", arbor.NewLogger())
	require.NoError(t, rebuilt.IndexProducts(context.Background(), products))
	assert.Equal(t, firstRun, embedder.calls)

	// Changing a description invalidates only that product's cache entry.
	products[1].Description = "Heavyweight wool scarf in navy"
	require.NoError(t, rebuilt.IndexProducts(context.Background(), products))
	assert.Equal(t, firstRun+1, embedder.calls)
}

func TestIndex_QueryZeroK(t *testing.T) {
	index, _, _ := newTestIndex(t)
	require.NoError(t, index.IndexProducts(context.Background(), testProducts()))

	hits, err := index.Query(context.Background(), "anything", 0, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
