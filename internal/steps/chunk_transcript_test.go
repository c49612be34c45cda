package steps

import (
	"context"
	"testing"

	"github.com/archivescribe/ytingest/internal/archive"
	"github.com/archivescribe/ytingest/internal/domain"
	"github.com/archivescribe/ytingest/internal/indexstore"
	"github.com/archivescribe/ytingest/internal/pipeline/registry"
	"github.com/archivescribe/ytingest/internal/pipeline/runner"
	"github.com/archivescribe/ytingest/internal/pipeline/runtime"
)

// vectorDeletingIndex wraps MemoryStore and records DeleteVectorsByField
// calls, standing in for CompositeStore's VectorDeleter capability so
// deleteExistingChunks' vector-clearing path can be exercised without a
// live Qdrant.
type vectorDeletingIndex struct {
	*indexstore.MemoryStore
	deletes []string // video_id values passed to DeleteVectorsByField
}

func (v *vectorDeletingIndex) DeleteVectorsByField(_ context.Context, table, key, value string) error {
	if table == videoChunkTable && key == "video_id" {
		v.deletes = append(v.deletes, value)
	}
	return nil
}

var _ indexstore.VectorDeleter = (*vectorDeletingIndex)(nil)

func TestChunkTranscriptClearsStaleVectorsOnRechunk(t *testing.T) {
	arc, err := archive.New(t.TempDir(), true, nil)
	if err != nil {
		t.Fatalf("archive.New: %v", err)
	}
	idx := &vectorDeletingIndex{MemoryStore: indexstore.NewMemoryStore()}

	deps := Deps{
		Transcripts: fakeTranscriptFetcher{
			text: "hello world",
			timed: []domain.TimedTranscriptEntry{
				{Text: "hello", Start: 0, Duration: 1},
				{Text: "world", Start: 1, Duration: 1},
			},
		},
		Metadata:   fakeMetadataFetcher{meta: map[string]interface{}{"title": "T"}},
		Archive:    arc,
		Index:      idx,
		Embeddings: fakeEmbeddings{dims: 4},
		LLM:        fakeLLM{},
	}

	reg := registry.New()
	RegisterAll(reg, deps, nil)
	r := runner.New(reg, idx, arc, nil)

	steps := []string{NameFetchTranscript, NameFetchMetadata, NameArchiveRaw, NameChunkTranscript}

	ctx := runtime.New(context.Background(), "vid3", "https://example.tld/watch?v=vid3", nil)
	if err := r.Run(ctx, runner.Config{Steps: steps}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(idx.deletes) != 0 {
		t.Fatalf("expected no vector delete on the first chunking pass, got %v", idx.deletes)
	}

	ctx2 := runtime.New(context.Background(), "vid3", "https://example.tld/watch?v=vid3", nil)
	if err := r.Run(ctx2, runner.Config{Steps: steps}); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(idx.deletes) != 1 || idx.deletes[0] != "vid3" {
		t.Fatalf("expected re-chunking to clear vid3's stale chunk vectors, got %v", idx.deletes)
	}
}
