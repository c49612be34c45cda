package indexstore

import (
	"context"
	"testing"
)

// fakeRecords is a minimal recordBackend double: just enough to observe
// what CompositeStore.Upsert/Delete send it.
type fakeRecords struct {
	rows map[string]map[string]interface{}
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{rows: map[string]map[string]interface{}{}}
}

func (f *fakeRecords) Upsert(_ context.Context, _, id string, fields map[string]interface{}) error {
	f.rows[id] = fields
	return nil
}
func (f *fakeRecords) Get(_ context.Context, _, id string) (map[string]interface{}, bool, error) {
	row, ok := f.rows[id]
	return row, ok, nil
}
func (f *fakeRecords) Delete(_ context.Context, _, id string) error {
	delete(f.rows, id)
	return nil
}
func (f *fakeRecords) Query(context.Context, string, map[string]interface{}) ([]Record, error) {
	return nil, nil
}
func (f *fakeRecords) Link(context.Context, string, string, string, string, string, map[string]interface{}) error {
	return nil
}
func (f *fakeRecords) Unlink(context.Context, string, string, string, string, string) error {
	return nil
}
func (f *fakeRecords) InitSchema(context.Context) error { return nil }

// fakeVectors is a minimal vectorBackend double recording every call it
// receives, so tests can assert CompositeStore actually routes vectors to
// it instead of silently dropping them into the record backend.
type fakeVectors struct {
	upserts []vectorUpsert
	deletes []vectorDelete
}

type vectorUpsert struct {
	table, id string
	vector    []float32
	payload   map[string]interface{}
}

type vectorDelete struct {
	table, key, value string
}

func (f *fakeVectors) UpsertVector(_ context.Context, table, id string, vector []float32, payload map[string]interface{}) error {
	f.upserts = append(f.upserts, vectorUpsert{table: table, id: id, vector: vector, payload: payload})
	return nil
}
func (f *fakeVectors) DeleteByField(_ context.Context, table, key, value string) error {
	f.deletes = append(f.deletes, vectorDelete{table: table, key: key, value: value})
	return nil
}
func (f *fakeVectors) EnsureCollection(context.Context, string, int) error { return nil }
func (f *fakeVectors) VectorSearch(context.Context, string, string, []float32, int, map[string]interface{}) ([]VectorResult, error) {
	return nil, nil
}

func TestCompositeStoreUpsertRoutesEmbeddingToVectors(t *testing.T) {
	records := newFakeRecords()
	vectors := &fakeVectors{}
	c := &CompositeStore{Records: records, Vectors: vectors}

	vec := []float32{0.1, 0.2, 0.3}
	err := c.Upsert(context.Background(), "video_chunk", "chunk1", map[string]interface{}{"embedding": vec})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if len(vectors.upserts) != 1 {
		t.Fatalf("expected exactly one vector upsert, got %d", len(vectors.upserts))
	}
	got := vectors.upserts[0]
	if got.table != "video_chunk" || got.id != "chunk1" {
		t.Fatalf("unexpected vector upsert target: %+v", got)
	}
	if len(got.vector) != 3 {
		t.Fatalf("expected the vector itself to reach Qdrant, got %v", got.vector)
	}

	if _, ok := records.rows["chunk1"]; ok {
		t.Fatalf("expected an embedding-only upsert to skip the record backend, got a row")
	}
}

func TestCompositeStoreUpsertCarriesNonVectorFieldsAsPayload(t *testing.T) {
	records := newFakeRecords()
	vectors := &fakeVectors{}
	c := &CompositeStore{Records: records, Vectors: vectors}

	err := c.Upsert(context.Background(), "video", "vid1", map[string]interface{}{
		"embedding": []float32{1, 2},
		"video_id":  "vid1",
		"title":     "t",
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if len(vectors.upserts) != 1 {
		t.Fatalf("expected one vector upsert, got %d", len(vectors.upserts))
	}
	payload := vectors.upserts[0].payload
	if payload["video_id"] != "vid1" || payload["title"] != "t" {
		t.Fatalf("expected non-vector fields in the Qdrant payload, got %+v", payload)
	}
	if _, hasEmbedding := payload["embedding"]; hasEmbedding {
		t.Fatalf("expected the embedding field to be stripped from the payload, got %+v", payload)
	}

	row, ok := records.rows["vid1"]
	if !ok {
		t.Fatalf("expected the remaining fields to still reach the record backend")
	}
	if _, hasEmbedding := row["embedding"]; hasEmbedding {
		t.Fatalf("expected the record backend to never see the raw vector, got %+v", row)
	}
}

func TestCompositeStoreUpsertWithoutVectorBackendFallsThroughToRecords(t *testing.T) {
	records := newFakeRecords()
	c := &CompositeStore{Records: records}

	vec := []float32{0.1, 0.2}
	if err := c.Upsert(context.Background(), "video", "vid1", map[string]interface{}{"embedding": vec}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	row, ok := records.rows["vid1"]
	if !ok {
		t.Fatalf("expected the record backend to receive the full field set when no vector backend is configured")
	}
	if _, hasEmbedding := row["embedding"]; !hasEmbedding {
		t.Fatalf("expected the embedding to degrade into a record field, got %+v", row)
	}
}

func TestCompositeStoreDeleteVectorsByField(t *testing.T) {
	vectors := &fakeVectors{}
	c := &CompositeStore{Records: newFakeRecords(), Vectors: vectors}

	if err := c.DeleteVectorsByField(context.Background(), videoChunkTableForTest, "video_id", "vid1"); err != nil {
		t.Fatalf("DeleteVectorsByField: %v", err)
	}
	if len(vectors.deletes) != 1 {
		t.Fatalf("expected exactly one vector delete, got %d", len(vectors.deletes))
	}
	got := vectors.deletes[0]
	if got.table != videoChunkTableForTest || got.key != "video_id" || got.value != "vid1" {
		t.Fatalf("unexpected vector delete: %+v", got)
	}
}

func TestCompositeStoreDeleteVectorsByFieldNoopWithoutVectorBackend(t *testing.T) {
	c := &CompositeStore{Records: newFakeRecords()}
	if err := c.DeleteVectorsByField(context.Background(), videoChunkTableForTest, "video_id", "vid1"); err != nil {
		t.Fatalf("expected a nil Vectors backend to make this a no-op, got %v", err)
	}
}

const videoChunkTableForTest = "video_chunk"
