package indexstore

import (
	"context"
	"fmt"
	"os"
	"strings"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/archivescribe/ytingest/internal/platform/logger"
)

// QdrantStore implements VectorStore over the official Qdrant gRPC client,
// grounded on WessleyAI-wessley-mvp's engine/semantic/store.go rather than
// the teacher's own hand-rolled REST wrapper — the real SDK maps directly
// onto spec §4.3's vector_search contract.
type QdrantStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	log         *logger.Logger
}

// NewQdrantStoreFromEnv dials QDRANT_ADDR (default "localhost:6334"). It
// never blocks on a reachability check; the first call surfaces any
// connectivity problem.
func NewQdrantStoreFromEnv(log *logger.Logger) (*QdrantStore, error) {
	addr := strings.TrimSpace(os.Getenv("QDRANT_ADDR"))
	if addr == "" {
		addr = "localhost:6334"
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("indexstore: dial qdrant %s: %w", addr, err)
	}
	return &QdrantStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		log:         log.With("client", "QdrantStore"),
	}, nil
}

// Close closes the underlying gRPC connection.
func (q *QdrantStore) Close() error {
	if q == nil || q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

// EnsureCollection creates table as a Qdrant collection with cosine
// distance if it does not already exist. Table names map 1:1 to Qdrant
// collection names.
func (q *QdrantStore) EnsureCollection(ctx context.Context, table string, dims int) error {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("indexstore: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == table {
			return nil
		}
	}
	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: table,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("indexstore: create collection %s: %w", table, err)
	}
	return nil
}

// UpsertVector stores id's vector and payload fields in table. Chunk and
// video upserts that carry an embedding route through here rather than
// RecordStore.Upsert, since the graph store does not hold vectors.
func (q *QdrantStore) UpsertVector(ctx context.Context, table, id string, vector []float32, payload map[string]interface{}) error {
	pbPayload := make(map[string]*pb.Value, len(payload))
	for k, val := range payload {
		pbPayload[k] = toQdrantValue(val)
	}
	point := &pb.PointStruct{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
		Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}}},
		Payload: pbPayload,
	}
	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: table,
		Wait:           &wait,
		Points:         []*pb.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("indexstore: upsert vector %s/%s: %w", table, id, err)
	}
	return nil
}

// DeleteByField removes every point in table whose payload field key equals
// value, used by chunk_transcript to clear a video's prior chunks before
// re-chunking.
func (q *QdrantStore) DeleteByField(ctx context.Context, table, key, value string) error {
	wait := true
	_, err := q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: table,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{Must: []*pb.Condition{fieldMatch(key, value)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("indexstore: delete %s where %s=%s: %w", table, key, value, err)
	}
	return nil
}

// VectorSearch implements VectorStore.VectorSearch: cosine k-NN over table,
// returning results in descending score order as Qdrant itself guarantees.
func (q *QdrantStore) VectorSearch(ctx context.Context, table, field string, queryVector []float32, k int, filter map[string]interface{}) ([]VectorResult, error) {
	req := &pb.SearchPoints{
		CollectionName: table,
		Vector:         queryVector,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if len(filter) > 0 {
		must := make([]*pb.Condition, 0, len(filter))
		for key, val := range filter {
			if s, ok := val.(string); ok {
				must = append(must, fieldMatch(key, s))
			}
		}
		if len(must) > 0 {
			req.Filter = &pb.Filter{Must: must}
		}
	}

	resp, err := q.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("indexstore: vector_search %s: %w", table, err)
	}

	out := make([]VectorResult, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		fields := make(map[string]interface{}, len(r.GetPayload()))
		for k, v := range r.GetPayload() {
			fields[k] = fromQdrantValue(v)
		}
		out = append(out, VectorResult{
			ID:     r.GetId().GetUuid(),
			Score:  r.GetScore(),
			Fields: fields,
		})
	}
	return out, nil
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func toQdrantValue(val interface{}) *pb.Value {
	switch v := val.(type) {
	case string:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(v)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: v}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: v}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: v}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(v)}}
	}
}

func fromQdrantValue(v *pb.Value) interface{} {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	default:
		return nil
	}
}
