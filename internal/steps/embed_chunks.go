package steps

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/archivescribe/ytingest/internal/pipeline/registry"
	"github.com/archivescribe/ytingest/internal/pipeline/runtime"
)

// NameEmbedChunks is the canonical step name (spec §4.6 item 6).
const NameEmbedChunks = "embed_chunks"

// embedBatchSize bounds each embed_batch call, matching spec §5's
// "backpressure... bound parallelism by batch size" for batch operations.
const embedBatchSize = 16

// RegisterEmbedChunks registers the embed_chunks step: depends on
// chunk_transcript, reads the video's chunk rows and selects those whose row
// fields carry no "embedding", embeds their texts in bounded concurrent
// batches via golang.org/x/sync/errgroup, and writes embeddings back via
// upsert. Returns the count embedded. MemoryStore and a CompositeStore with
// a vector backend keep vectors off the row, so with them every chunk is
// selected and re-embedded on each run.
func RegisterEmbedChunks(reg *registry.Registry, deps Deps, source string) {
	reg.Register(NameEmbedChunks, []string{NameChunkTranscript}, source,
		"embeds chunks lacking a stored embedding and writes vectors back to the index",
		func(ctx *runtime.Context) runtime.StepResult {
			rows, err := deps.Index.Query(ctx.Ctx, videoChunkTable, map[string]interface{}{"video_id": ctx.VideoID})
			if err != nil {
				return runtime.Fail(fmt.Errorf("embed_chunks: query chunks: %w", err))
			}

			var pending []string // chunk IDs lacking an embedding
			for _, row := range rows {
				if _, has := row.Fields["embedding"]; !has {
					pending = append(pending, row.ID)
				}
			}
			if len(pending) == 0 {
				return runtime.Ok(0)
			}

			batches := batchStrings(pending, embedBatchSize)
			g, gctx := errgroup.WithContext(ctx.Ctx)
			for _, batch := range batches {
				batch := batch
				g.Go(func() error {
					return embedChunkBatch(gctx, deps, batch)
				})
			}
			if err := g.Wait(); err != nil {
				return runtime.Fail(fmt.Errorf("embed_chunks: %w", err))
			}
			return runtime.Ok(len(pending))
		})
}

func embedChunkBatch(ctx context.Context, deps Deps, chunkIDs []string) error {
	texts := make([]string, len(chunkIDs))
	for i, id := range chunkIDs {
		row, ok, err := deps.Index.Get(ctx, videoChunkTable, id)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		text, _ := row["text"].(string)
		texts[i] = text
	}

	vectors, err := deps.Embeddings.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}
	for i, id := range chunkIDs {
		if i >= len(vectors) || vectors[i] == nil {
			continue
		}
		if err := deps.Index.Upsert(ctx, videoChunkTable, id, map[string]interface{}{"embedding": vectors[i]}); err != nil {
			return err
		}
	}
	return nil
}

func batchStrings(items []string, size int) [][]string {
	if size <= 0 {
		size = len(items)
	}
	var out [][]string
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}
