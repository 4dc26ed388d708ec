package models

import "time"

// StoredEmbedding is one cached product vector. Key is
// "<collection>/<product_id>"; ContentHash covers the document text, the
// embedding model and the dimension, so any change re-embeds the product.
type StoredEmbedding struct {
	Key         string            `json:"key"`
	Collection  string            `json:"collection" badgerhold:"index"`
	ProductID   string            `json:"product_id"`
	ContentHash string            `json:"content_hash"`
	Model       string            `json:"model"`
	Dim         int               `json:"dim"`
	Vector      []float32         `json:"vector"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
