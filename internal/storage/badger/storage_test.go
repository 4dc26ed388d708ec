package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/hermes/internal/interfaces"
	"github.com/ternarybob/hermes/internal/models"
)

func newTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	manager, err := NewMemoryManager(arbor.NewLogger())
	if err != nil {
		t.Fatalf("Failed to create memory manager: %v", err)
	}
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestKVStorage(t *testing.T) {
	manager := newTestManager(t)
	kv := manager.KeyValue()
	ctx := context.Background()

	if err := kv.Set(ctx, "Processed/MSG-1", "done"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Keys are case-insensitive.
	value, err := kv.Get(ctx, "processed/msg-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value != "done" {
		t.Errorf("Get = %q, want done", value)
	}

	if _, err := kv.Get(ctx, "never-set"); !errors.Is(err, interfaces.ErrKeyNotFound) {
		t.Errorf("Get missing key = %v, want ErrKeyNotFound", err)
	}

	if err := kv.Set(ctx, "processed/msg-1", "redone"); err != nil {
		t.Fatalf("Set update failed: %v", err)
	}
	value, _ = kv.Get(ctx, "processed/msg-1")
	if value != "redone" {
		t.Errorf("Get after update = %q, want redone", value)
	}

	all, err := kv.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 1 || all["processed/msg-1"] != "redone" {
		t.Errorf("GetAll = %v", all)
	}

	if err := kv.Delete(ctx, "PROCESSED/MSG-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := kv.Get(ctx, "processed/msg-1"); !errors.Is(err, interfaces.ErrKeyNotFound) {
		t.Errorf("Get after delete = %v, want ErrKeyNotFound", err)
	}
	if err := kv.Delete(ctx, "processed/msg-1"); !errors.Is(err, interfaces.ErrKeyNotFound) {
		t.Errorf("Delete missing key = %v, want ErrKeyNotFound", err)
	}
}

func TestEmbeddingStorage(t *testing.T) {
	manager := newTestManager(t)
	store := manager.Embeddings()
	ctx := context.Background()

	if err := store.PutEmbedding(ctx, &models.StoredEmbedding{}); err == nil {
		t.Error("PutEmbedding with empty key should fail")
	}

	seed := func(collection, productID string) {
		t.Helper()
		err := store.PutEmbedding(ctx, &models.StoredEmbedding{
			Key:         collection + "/" + productID,
			Collection:  collection,
			ProductID:   productID,
			ContentHash: "hash-" + productID,
			Model:       "gemini-embedding-001",
			Dim:         3,
			Vector:      []float32{0.1, 0.2, 0.3},
		})
		if err != nil {
			t.Fatalf("PutEmbedding %s/%s failed: %v", collection, productID, err)
		}
	}
	seed("catalog-a", "LTH0976")
	seed("catalog-a", "CBT8901")
	seed("catalog-b", "LTH0976")

	got, err := store.GetEmbedding(ctx, "catalog-a/LTH0976")
	if err != nil {
		t.Fatalf("GetEmbedding failed: %v", err)
	}
	if got.ProductID != "LTH0976" || got.ContentHash != "hash-LTH0976" {
		t.Errorf("GetEmbedding = %+v", got)
	}
	if len(got.Vector) != 3 || got.Vector[1] != 0.2 {
		t.Errorf("Vector = %v", got.Vector)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be stamped on put")
	}

	if err := store.DeleteCollection(ctx, "catalog-a"); err != nil {
		t.Fatalf("DeleteCollection failed: %v", err)
	}
	if _, err := store.GetEmbedding(ctx, "catalog-a/LTH0976"); !errors.Is(err, interfaces.ErrKeyNotFound) {
		t.Errorf("GetEmbedding after delete = %v, want ErrKeyNotFound", err)
	}
	// The other collection is untouched.
	if _, err := store.GetEmbedding(ctx, "catalog-b/LTH0976"); err != nil {
		t.Errorf("GetEmbedding catalog-b = %v", err)
	}
}

func TestWorkflowStorage(t *testing.T) {
	manager := newTestManager(t)
	store := manager.Workflows()
	ctx := context.Background()

	if err := store.SaveState(ctx, &models.WorkflowState{}); err == nil {
		t.Error("SaveState without an email id should fail")
	}

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	save := func(runID, emailID string, offset time.Duration) {
		t.Helper()
		state := models.NewWorkflowState(runID, models.IncomingEmail{ID: emailID, Subject: "Order"})
		state.StartedAt = base.Add(offset)
		if err := store.SaveState(ctx, state); err != nil {
			t.Fatalf("SaveState %s failed: %v", emailID, err)
		}
	}
	save("run-1", "E002", 2*time.Minute)
	save("run-1", "E001", 1*time.Minute)
	save("run-2", "E003", 0)

	got, err := store.GetState(ctx, "E001")
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if got.RunID != "run-1" || got.Email.Subject != "Order" {
		t.Errorf("GetState = %+v", got)
	}

	if _, err := store.GetState(ctx, "E999"); !errors.Is(err, interfaces.ErrKeyNotFound) {
		t.Errorf("GetState missing = %v, want ErrKeyNotFound", err)
	}

	// Reprocessing the same email replaces its stored state.
	save("run-3", "E001", 5*time.Minute)
	got, _ = store.GetState(ctx, "E001")
	if got.RunID != "run-3" {
		t.Errorf("GetState after reprocess RunID = %q, want run-3", got.RunID)
	}

	states, err := store.ListStates(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListStates failed: %v", err)
	}
	if len(states) != 1 {
		t.Fatalf("ListStates run-1 = %d states, want 1 (E001 moved to run-3)", len(states))
	}
	if states[0].Email.ID != "E002" {
		t.Errorf("ListStates[0] = %s", states[0].Email.ID)
	}
}
