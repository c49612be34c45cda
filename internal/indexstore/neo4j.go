package indexstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/archivescribe/ytingest/internal/platform/logger"
)

// Neo4jStore implements RecordStore, RelationshipStore, and
// SchemaInitializer over a Neo4j graph database, grounded on the teacher's
// internal/platform/neo4jdb client (driver construction from env,
// VerifyConnectivity on startup, session-per-call idiom).
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	log      *logger.Logger
}

// NewNeo4jStoreFromEnv builds a Neo4jStore from NEO4J_URI/NEO4J_USER/
// NEO4J_PASSWORD/NEO4J_DATABASE, matching the teacher's NewFromEnv shape. It
// returns (nil, nil) when NEO4J_URI is unset, letting callers treat Neo4j as
// an optional backend in local/dev configurations.
func NewNeo4jStoreFromEnv(log *logger.Logger) (*Neo4jStore, error) {
	if log == nil {
		return nil, fmt.Errorf("indexstore: logger required")
	}
	uri := strings.TrimSpace(os.Getenv("NEO4J_URI"))
	if uri == "" {
		return nil, nil
	}
	user := strings.TrimSpace(os.Getenv("NEO4J_USER"))
	if user == "" {
		user = "neo4j"
	}
	password := strings.TrimSpace(os.Getenv("NEO4J_PASSWORD"))
	database := strings.TrimSpace(os.Getenv("NEO4J_DATABASE"))

	timeoutSec := 10
	if v := strings.TrimSpace(os.Getenv("NEO4J_TIMEOUT_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	auth := neo4j.BasicAuth(user, password, "")
	driver, err := neo4j.NewDriverWithContext(uri, auth, func(cfg *neo4j.Config) {
		cfg.SocketConnectTimeout = time.Duration(timeoutSec) * time.Second
	})
	if err != nil {
		return nil, fmt.Errorf("indexstore: init neo4j driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("indexstore: verify connectivity: %w", err)
	}

	return &Neo4jStore{
		driver:   driver,
		database: database,
		log:      log.With("client", "Neo4jStore"),
	}, nil
}

// Close releases the underlying driver connection pool.
func (s *Neo4jStore) Close(ctx context.Context) error {
	if s == nil || s.driver == nil {
		return nil
	}
	err := s.driver.Close(ctx)
	s.driver = nil
	return err
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

// label returns the Cypher node label for a logical table name, capitalized
// per Neo4j convention (video -> Video).
func label(table string) string {
	if table == "" {
		return "Record"
	}
	return strings.ToUpper(table[:1]) + table[1:]
}

// Upsert implements RecordStore.Upsert via a MERGE keyed on id, merging in
// fields after flattenProps has JSON-encoded any non-primitive value. Keys
// are stored as given, so a dotted key such as pipeline_state.<step> is a
// single property of that name and needs no schema migration.
func (s *Neo4jStore) Upsert(ctx context.Context, table, id string, fields map[string]interface{}) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	props, err := flattenProps(fields)
	if err != nil {
		return fmt.Errorf("indexstore: encode fields for %s/%s: %w", table, id, err)
	}

	query := fmt.Sprintf("MERGE (n:%s {id: $id}) SET n += $props", label(table))
	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]any{"id": id, "props": props})
	})
	if err != nil {
		return fmt.Errorf("indexstore: upsert %s/%s: %w", table, id, err)
	}
	return nil
}

func (s *Neo4jStore) Get(ctx context.Context, table, id string) (map[string]interface{}, bool, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	query := fmt.Sprintf("MATCH (n:%s {id: $id}) RETURN properties(n) AS props", label(table))
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, nil // no matching row
		}
		props, _ := rec.Get("props")
		return props, nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("indexstore: get %s/%s: %w", table, id, err)
	}
	if result == nil {
		return nil, false, nil
	}
	raw, ok := result.(map[string]any)
	if !ok {
		return nil, false, nil
	}
	return unflattenProps(raw), true, nil
}

func (s *Neo4jStore) Delete(ctx context.Context, table, id string) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	query := fmt.Sprintf("MATCH (n:%s {id: $id}) DETACH DELETE n", label(table))
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]any{"id": id})
	})
	if err != nil {
		return fmt.Errorf("indexstore: delete %s/%s: %w", table, id, err)
	}
	return nil
}

func (s *Neo4jStore) Query(ctx context.Context, table string, filter map[string]interface{}) ([]Record, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	props, err := flattenProps(filter)
	if err != nil {
		return nil, fmt.Errorf("indexstore: encode filter for %s: %w", table, err)
	}
	query := fmt.Sprintf("MATCH (n:%s) WHERE all(k IN keys($filter) WHERE n[k] = $filter[k]) RETURN n.id AS id, properties(n) AS props", label(table))
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"filter": props})
		if err != nil {
			return nil, err
		}
		var out []Record
		for res.Next(ctx) {
			rec := res.Record()
			idVal, _ := rec.Get("id")
			propsVal, _ := rec.Get("props")
			id, _ := idVal.(string)
			propsMap, _ := propsVal.(map[string]any)
			out = append(out, Record{ID: id, Fields: unflattenProps(propsMap)})
		}
		return out, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("indexstore: query %s: %w", table, err)
	}
	rows, _ := result.([]Record)
	return rows, nil
}

func (s *Neo4jStore) Link(ctx context.Context, srcTable, srcID, relation, dstTable, dstID string, attrs map[string]interface{}) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	props, err := flattenProps(attrs)
	if err != nil {
		return fmt.Errorf("indexstore: encode link attrs: %w", err)
	}
	relType := strings.ToUpper(relation)
	query := fmt.Sprintf(
		"MERGE (a:%s {id: $srcID}) MERGE (b:%s {id: $dstID}) MERGE (a)-[r:%s]->(b) SET r += $props",
		label(srcTable), label(dstTable), relType,
	)
	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]any{"srcID": srcID, "dstID": dstID, "props": props})
	})
	if err != nil {
		return fmt.Errorf("indexstore: link %s/%s -%s-> %s/%s: %w", srcTable, srcID, relation, dstTable, dstID, err)
	}
	return nil
}

func (s *Neo4jStore) Unlink(ctx context.Context, srcTable, srcID, relation, dstTable, dstID string) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	relType := strings.ToUpper(relation)
	query := fmt.Sprintf(
		"MATCH (a:%s {id: $srcID})-[r:%s]->(b:%s {id: $dstID}) DELETE r",
		label(srcTable), relType, label(dstTable),
	)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, query, map[string]any{"srcID": srcID, "dstID": dstID})
	})
	if err != nil {
		return fmt.Errorf("indexstore: unlink %s/%s -%s-> %s/%s: %w", srcTable, srcID, relation, dstTable, dstID, err)
	}
	return nil
}

// InitSchema creates the uniqueness constraints the core relies on for
// idempotent upserts. Running it twice is a no-op (CREATE CONSTRAINT IF NOT
// EXISTS).
func (s *Neo4jStore) InitSchema(ctx context.Context) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, table := range []string{"video", "channel", "topic", "video_chunk", "backup"} {
		query := fmt.Sprintf(
			"CREATE CONSTRAINT IF NOT EXISTS FOR (n:%s) REQUIRE n.id IS UNIQUE",
			label(table),
		)
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			return tx.Run(ctx, query, nil)
		})
		if err != nil {
			return fmt.Errorf("indexstore: init schema for %s: %w", table, err)
		}
	}
	return nil
}

// flattenProps JSON-encodes any non-primitive value (maps, slices) so it
// can be stored as a Neo4j property (which only accepts primitives and
// arrays of primitives), under the original key prefixed with "__json__".
// Primitive values pass through unchanged under their own key.
func flattenProps(fields map[string]interface{}) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch v.(type) {
		case string, bool, int, int64, float32, float64, nil:
			out[k] = v
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			out["__json__"+k] = string(encoded)
		}
	}
	return out, nil
}

// unflattenProps reverses flattenProps, decoding any "__json__"-prefixed
// key back into its original structured value.
func unflattenProps(props map[string]any) map[string]interface{} {
	if props == nil {
		return nil
	}
	out := make(map[string]interface{}, len(props))
	for k, v := range props {
		if strings.HasPrefix(k, "__json__") {
			origKey := strings.TrimPrefix(k, "__json__")
			if s, ok := v.(string); ok {
				var decoded interface{}
				if err := json.Unmarshal([]byte(s), &decoded); err == nil {
					out[origKey] = decoded
					continue
				}
			}
		}
		out[k] = v
	}
	return out
}
