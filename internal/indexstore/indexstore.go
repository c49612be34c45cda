// Package indexstore implements the Index Store Adapter component (spec
// §4.3): a record + vector + relationship store boundary between the core
// and whatever graph/vector database backs it. Callers never issue raw
// query strings and never rely on nested transactions across records.
package indexstore

import "context"

// Record is a single row returned by Get/Query: its table-scoped id plus
// its field map.
type Record struct {
	ID     string
	Fields map[string]interface{}
}

// RecordStore is the record half of the Index Store contract: upsert by
// key, point lookup, delete, and filtered query.
type RecordStore interface {
	// Upsert creates or merges fields into table's row with the given id.
	Upsert(ctx context.Context, table, id string, fields map[string]interface{}) error
	// Get returns the row for id in table, and false if it does not exist.
	Get(ctx context.Context, table, id string) (map[string]interface{}, bool, error)
	// Delete removes the row for id in table. Deleting an absent row is not
	// an error.
	Delete(ctx context.Context, table, id string) error
	// Query returns every row in table whose fields match filter exactly.
	Query(ctx context.Context, table string, filter map[string]interface{}) ([]Record, error)
}

// RelationshipStore is the edge half of the Index Store contract.
// Relationship ops are idempotent under Link: linking the same
// (src, relation, dst) twice is a no-op on the second call.
type RelationshipStore interface {
	Link(ctx context.Context, srcTable, srcID, relation, dstTable, dstID string, attrs map[string]interface{}) error
	Unlink(ctx context.Context, srcTable, srcID, relation, dstTable, dstID string) error
}

// VectorResult is one hit from a vector_search call: the matched row's id,
// its similarity score, and its stored fields.
type VectorResult struct {
	ID     string
	Score  float32
	Fields map[string]interface{}
}

// VectorStore is the vector k-NN half of the Index Store contract. The
// underlying engine is assumed to support cosine-similar k-NN over a
// declared vector field and to return results in descending score order.
type VectorStore interface {
	VectorSearch(ctx context.Context, table, field string, queryVector []float32, k int, filter map[string]interface{}) ([]VectorResult, error)
}

// SchemaInitializer exposes an idempotent init_schema() operation.
type SchemaInitializer interface {
	InitSchema(ctx context.Context) error
}

// VectorDeleter is an optional Store capability: batch-delete every vector
// whose payload field key equals value. Only stores that keep vectors in a
// separate backend from their records (CompositeStore) need to implement
// it; chunk_transcript type-asserts for it before clearing a video's prior
// chunk vectors.
type VectorDeleter interface {
	DeleteVectorsByField(ctx context.Context, table, key, value string) error
}

// Store is the full Index Store Adapter surface the core depends on:
// records, relationships, vectors, and schema init, regardless of how many
// underlying databases actually implement it.
type Store interface {
	RecordStore
	RelationshipStore
	VectorStore
	SchemaInitializer
}
