package steps

import (
	"context"
	"testing"

	"github.com/archivescribe/ytingest/internal/archive"
	"github.com/archivescribe/ytingest/internal/blobstore"
	"github.com/archivescribe/ytingest/internal/domain"
	"github.com/archivescribe/ytingest/internal/indexstore"
	"github.com/archivescribe/ytingest/internal/pipeline/registry"
	"github.com/archivescribe/ytingest/internal/pipeline/runner"
	"github.com/archivescribe/ytingest/internal/pipeline/runtime"
)

type fakeTranscriptFetcher struct {
	text  string
	timed []domain.TimedTranscriptEntry
}

func (f fakeTranscriptFetcher) FetchTranscript(_ context.Context, _ string) (string, []domain.TimedTranscriptEntry, error) {
	return f.text, f.timed, nil
}

type fakeMetadataFetcher struct {
	meta map[string]interface{}
}

func (f fakeMetadataFetcher) FetchMetadata(_ context.Context, _, _ string) (map[string]interface{}, error) {
	return f.meta, nil
}

type fakeLLM struct{}

func (fakeLLM) GenerateJSON(_ context.Context, _, _, _ string, _ map[string]interface{}) (map[string]interface{}, error) {
	return map[string]interface{}{
		"tags":    []interface{}{"go", "testing"},
		"summary": "a short summary",
	}, nil
}

type fakeEmbeddings struct{ dims int }

func (f fakeEmbeddings) Embed(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, f.dims), nil
}

func (f fakeEmbeddings) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, f.dims)
	}
	return out, nil
}

func newHarness(t *testing.T) (*registry.Registry, *runner.Runner, *archive.Store, *indexstore.MemoryStore) {
	t.Helper()
	arc, err := archive.New(t.TempDir(), true, nil)
	if err != nil {
		t.Fatalf("archive.New: %v", err)
	}
	idx := indexstore.NewMemoryStore()
	blob, err := blobstore.NewLocalFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("blobstore.NewLocalFSStore: %v", err)
	}

	deps := Deps{
		Transcripts: fakeTranscriptFetcher{
			text: "hello world",
			timed: []domain.TimedTranscriptEntry{
				{Text: "hello", Start: 0, Duration: 1},
				{Text: "world", Start: 1, Duration: 1},
			},
		},
		Metadata: fakeMetadataFetcher{meta: map[string]interface{}{
			"title": "T", "channel_id": "C1", "channel_title": "Ch",
		}},
		Archive:    arc,
		Blob:       blob,
		Index:      idx,
		Embeddings: fakeEmbeddings{dims: 4},
		LLM:        fakeLLM{},
	}

	reg := registry.New()
	RegisterAll(reg, deps, nil)
	r := runner.New(reg, idx, arc, nil)
	return reg, r, arc, idx
}

func TestDefaultPipelineIngestsNewVideo(t *testing.T) {
	_, r, arc, idx := newHarness(t)

	ctx := runtime.New(context.Background(), "abc123", "https://example.tld/watch?v=abc123", map[string]interface{}{
		domain.MetaSourceType: string(domain.SourceSingleImport),
	})
	if err := r.Run(ctx, runner.Config{Steps: DefaultSteps, UpdateGraph: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, step := range DefaultSteps {
		res, ok := ctx.Result(step)
		if !ok || !res.Success {
			t.Fatalf("expected step %s to succeed, got %+v", step, res)
		}
	}

	rec, err := arc.Get("abc123")
	if err != nil || rec == nil {
		t.Fatalf("expected archive record to exist, err=%v", err)
	}
	if rec.RawTranscript != "hello world" {
		t.Fatalf("expected transcript to be archived, got %q", rec.RawTranscript)
	}
	if len(rec.Embedding) != 4 {
		t.Fatalf("expected archive to carry the global embedding, got %v", rec.Embedding)
	}

	row, ok, err := idx.Get(context.Background(), "video", "abc123")
	if err != nil || !ok {
		t.Fatalf("expected video row in index, ok=%v err=%v", ok, err)
	}
	if row["channel_id"] != "C1" {
		t.Fatalf("expected channel_id to be mirrored onto the video row, got %v", row["channel_id"])
	}
	if !idx.HasEdge("video", "abc123", "channel", "channel", "C1") {
		t.Fatalf("expected video->channel edge")
	}
}

func TestChunkTranscriptIsIdempotent(t *testing.T) {
	_, r, _, idx := newHarness(t)
	ctx := runtime.New(context.Background(), "vid2", "https://example.tld/watch?v=vid2", nil)
	steps := []string{NameFetchTranscript, NameFetchMetadata, NameArchiveRaw, NameChunkTranscript}
	if err := r.Run(ctx, runner.Config{Steps: steps}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, _ := idx.Query(context.Background(), videoChunkTable, map[string]interface{}{"video_id": "vid2"})

	ctx2 := runtime.New(context.Background(), "vid2", "https://example.tld/watch?v=vid2", nil)
	if err := r.Run(ctx2, runner.Config{Steps: steps}); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, _ := idx.Query(context.Background(), videoChunkTable, map[string]interface{}{"video_id": "vid2"})

	if len(first) != len(second) {
		t.Fatalf("expected the same chunk count after re-chunking, got %d then %d", len(first), len(second))
	}
}
