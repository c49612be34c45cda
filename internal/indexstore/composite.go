package indexstore

import (
	"context"
	"fmt"
)

// recordBackend is the subset of Neo4jStore's methods CompositeStore needs
// for its record half. Narrowed to an interface (rather than depending on
// *Neo4jStore directly) so the split in Upsert/DeleteVectorsByField below
// can be exercised with fakes.
type recordBackend interface {
	RecordStore
	RelationshipStore
	SchemaInitializer
}

// vectorBackend is the subset of QdrantStore's methods CompositeStore needs
// for its vector half.
type vectorBackend interface {
	VectorStore
	UpsertVector(ctx context.Context, table, id string, vector []float32, payload map[string]interface{}) error
	DeleteByField(ctx context.Context, table, key, value string) error
	EnsureCollection(ctx context.Context, table string, dims int) error
}

// CompositeStore implements the full Store surface by splitting it across
// two physical backends: Neo4j holds records and relationships, Qdrant
// holds vectors. This mirrors spec §4.3's single logical adapter while
// reusing the strongest real client for each half (see DESIGN.md).
type CompositeStore struct {
	Records recordBackend
	Vectors vectorBackend
}

// NewCompositeStore wires a Neo4jStore and QdrantStore into one Store. Both
// may be nil (NewNeo4jStoreFromEnv returns a nil pointer when NEO4J_URI is
// unset; NewQdrantStoreFromEnv falls back to localhost and does not return
// nil on success); nil pointers are converted to true
// nil interfaces here rather than stored as-is, since a typed-nil pointer
// boxed into an interface no longer compares equal to nil.
func NewCompositeStore(records *Neo4jStore, vectors *QdrantStore) *CompositeStore {
	c := &CompositeStore{}
	if records != nil {
		c.Records = records
	}
	if vectors != nil {
		c.Vectors = vectors
	}
	return c
}

// embeddingField is the fields key embed_chunks and update_graph write a
// vector under (spec §4.6 items 6 and 8).
const embeddingField = "embedding"

// Upsert splits fields across both backends: an "embedding" value routes to
// the configured Qdrant backend via UpsertVector (carrying every other
// field along as point payload, so VectorSearch's filter argument has
// something to match against), and whatever is left goes to Neo4j as before.
// Without a configured Vectors backend, fields pass through to Neo4j
// unsplit, same as before this split existed.
func (c *CompositeStore) Upsert(ctx context.Context, table, id string, fields map[string]interface{}) error {
	if c.Records == nil {
		return fmt.Errorf("indexstore: no record backend configured")
	}

	vector, hasVector := fields[embeddingField].([]float32)
	if !hasVector || c.Vectors == nil {
		return c.Records.Upsert(ctx, table, id, fields)
	}

	payload := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if k != embeddingField {
			payload[k] = v
		}
	}
	if err := c.Vectors.UpsertVector(ctx, table, id, vector, payload); err != nil {
		return fmt.Errorf("indexstore: upsert vector %s/%s: %w", table, id, err)
	}
	if len(payload) == 0 {
		return nil
	}
	return c.Records.Upsert(ctx, table, id, payload)
}

func (c *CompositeStore) Get(ctx context.Context, table, id string) (map[string]interface{}, bool, error) {
	if c.Records == nil {
		return nil, false, fmt.Errorf("indexstore: no record backend configured")
	}
	return c.Records.Get(ctx, table, id)
}

func (c *CompositeStore) Delete(ctx context.Context, table, id string) error {
	if c.Records == nil {
		return fmt.Errorf("indexstore: no record backend configured")
	}
	return c.Records.Delete(ctx, table, id)
}

func (c *CompositeStore) Query(ctx context.Context, table string, filter map[string]interface{}) ([]Record, error) {
	if c.Records == nil {
		return nil, fmt.Errorf("indexstore: no record backend configured")
	}
	return c.Records.Query(ctx, table, filter)
}

func (c *CompositeStore) Link(ctx context.Context, srcTable, srcID, relation, dstTable, dstID string, attrs map[string]interface{}) error {
	if c.Records == nil {
		return fmt.Errorf("indexstore: no record backend configured")
	}
	return c.Records.Link(ctx, srcTable, srcID, relation, dstTable, dstID, attrs)
}

func (c *CompositeStore) Unlink(ctx context.Context, srcTable, srcID, relation, dstTable, dstID string) error {
	if c.Records == nil {
		return fmt.Errorf("indexstore: no record backend configured")
	}
	return c.Records.Unlink(ctx, srcTable, srcID, relation, dstTable, dstID)
}

func (c *CompositeStore) VectorSearch(ctx context.Context, table, field string, queryVector []float32, k int, filter map[string]interface{}) ([]VectorResult, error) {
	if c.Vectors == nil {
		return nil, fmt.Errorf("indexstore: no vector backend configured")
	}
	return c.Vectors.VectorSearch(ctx, table, field, queryVector, k, filter)
}

// DeleteVectorsByField clears every vector in table whose payload field key
// equals value. It implements the optional VectorDeleter capability; a nil
// Vectors backend makes this a no-op rather than an error, matching
// Upsert's local-dev degrade path.
func (c *CompositeStore) DeleteVectorsByField(ctx context.Context, table, key, value string) error {
	if c.Vectors == nil {
		return nil
	}
	return c.Vectors.DeleteByField(ctx, table, key, value)
}

// InitSchema initializes both backends. Either half may be absent in
// development configurations; only configured backends are initialized.
func (c *CompositeStore) InitSchema(ctx context.Context) error {
	if c.Records != nil {
		if err := c.Records.InitSchema(ctx); err != nil {
			return err
		}
	}
	if c.Vectors != nil {
		for _, table := range []string{"video", "video_chunk"} {
			if err := c.Vectors.EnsureCollection(ctx, table, embeddingDimensions); err != nil {
				return err
			}
		}
	}
	return nil
}

// embeddingDimensions is the vector width declared for Qdrant collections.
// It must match whatever the configured Embedding Client actually returns;
// internal/embedding has no default model, and nothing checks this width
// against EMBEDDING_MODEL.
const embeddingDimensions = 1536

var _ Store = (*CompositeStore)(nil)
