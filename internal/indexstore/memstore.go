package indexstore

import (
	"context"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store implementation used by unit tests
// across the pipeline, steps, and backfill packages, and usable as a
// local-dev stand-in when no Neo4j/Qdrant backend is configured. It is not
// part of the domain stack wiring (DESIGN.md's CompositeStore is); it
// exists purely so the rest of the core can be exercised without live
// infrastructure.
type MemoryStore struct {
	mu    sync.Mutex
	rows  map[string]map[string]map[string]interface{} // table -> id -> fields
	edges map[string]map[string]bool                   // "srcTable/srcID/relation/dstTable/dstID" -> exists
	vecs  map[string]map[string][]float32              // table -> id -> vector
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:  map[string]map[string]map[string]interface{}{},
		edges: map[string]map[string]bool{},
		vecs:  map[string]map[string][]float32{},
	}
}

func (m *MemoryStore) Upsert(_ context.Context, table, id string, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows[table] == nil {
		m.rows[table] = map[string]map[string]interface{}{}
	}
	row := m.rows[table][id]
	if row == nil {
		row = map[string]interface{}{}
	}
	for k, v := range fields {
		if vec, ok := v.([]float32); ok {
			if m.vecs[table] == nil {
				m.vecs[table] = map[string][]float32{}
			}
			m.vecs[table][id] = vec
			continue
		}
		row[k] = v
	}
	m.rows[table][id] = row
	return nil
}

func (m *MemoryStore) Get(_ context.Context, table, id string) (map[string]interface{}, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[table][id]
	if !ok {
		return nil, false, nil
	}
	out := make(map[string]interface{}, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out, true, nil
}

func (m *MemoryStore) Delete(_ context.Context, table, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows[table], id)
	delete(m.vecs[table], id)
	return nil
}

func (m *MemoryStore) Query(_ context.Context, table string, filter map[string]interface{}) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	ids := make([]string, 0, len(m.rows[table]))
	for id := range m.rows[table] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		row := m.rows[table][id]
		if matches(row, filter) {
			copyRow := make(map[string]interface{}, len(row))
			for k, v := range row {
				copyRow[k] = v
			}
			out = append(out, Record{ID: id, Fields: copyRow})
		}
	}
	return out, nil
}

func matches(row, filter map[string]interface{}) bool {
	for k, v := range filter {
		if row[k] != v {
			return false
		}
	}
	return true
}

func edgeKey(srcTable, srcID, relation, dstTable, dstID string) string {
	return srcTable + "/" + srcID + "/" + relation + "/" + dstTable + "/" + dstID
}

func (m *MemoryStore) Link(_ context.Context, srcTable, srcID, relation, dstTable, dstID string, _ map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.edges[srcTable] == nil {
		m.edges[srcTable] = map[string]bool{}
	}
	m.edges[srcTable][edgeKey(srcTable, srcID, relation, dstTable, dstID)] = true
	return nil
}

func (m *MemoryStore) Unlink(_ context.Context, srcTable, srcID, relation, dstTable, dstID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.edges[srcTable], edgeKey(srcTable, srcID, relation, dstTable, dstID))
	return nil
}

// HasEdge reports whether Link(srcTable, srcID, relation, dstTable, dstID)
// has been called without a matching Unlink. Test-only convenience.
func (m *MemoryStore) HasEdge(srcTable, srcID, relation, dstTable, dstID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.edges[srcTable][edgeKey(srcTable, srcID, relation, dstTable, dstID)]
}

func (m *MemoryStore) VectorSearch(_ context.Context, table, _ string, queryVector []float32, k int, filter map[string]interface{}) ([]VectorResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []VectorResult
	for id, vec := range m.vecs[table] {
		row := m.rows[table][id]
		if !matches(row, filter) {
			continue
		}
		out = append(out, VectorResult{ID: id, Score: cosineSimilarity(queryVector, vec), Fields: row})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func (m *MemoryStore) InitSchema(_ context.Context) error { return nil }

var _ Store = (*MemoryStore)(nil)
