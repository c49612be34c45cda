package steps

import (
	"fmt"

	"github.com/archivescribe/ytingest/internal/chunking"
	"github.com/archivescribe/ytingest/internal/domain"
	"github.com/archivescribe/ytingest/internal/indexstore"
	"github.com/archivescribe/ytingest/internal/pipeline/registry"
	"github.com/archivescribe/ytingest/internal/pipeline/runtime"
)

// NameChunkTranscript is the canonical step name (spec §4.6 item 5).
const NameChunkTranscript = "chunk_transcript"

// videoChunkTable is the Index Store table chunks live in (spec §6).
const videoChunkTable = "video_chunk"

// RegisterChunkTranscript registers the chunk_transcript step: depends on
// archive_raw, reads timed_transcript from the archive, partitions it per
// spec §4.6 item 5's boundary rules, deletes pre-existing chunks for the
// video first (guaranteeing idempotent re-chunking), and writes the new
// chunk set via upsert. Returns the chunk count.
func RegisterChunkTranscript(reg *registry.Registry, deps Deps, source string) {
	reg.Register(NameChunkTranscript, []string{NameArchiveRaw}, source,
		"partitions a video's timed transcript into bounded, time-ordered chunks",
		func(ctx *runtime.Context) runtime.StepResult {
			rec, err := deps.Archive.Get(ctx.VideoID)
			if err != nil {
				return runtime.Fail(fmt.Errorf("chunk_transcript: load archive: %w", err))
			}
			if rec == nil {
				return runtime.Fail(fmt.Errorf("chunk_transcript: no archive record for %s", ctx.VideoID))
			}

			if err := deleteExistingChunks(ctx, deps, ctx.VideoID); err != nil {
				return runtime.Fail(fmt.Errorf("chunk_transcript: delete existing chunks: %w", err))
			}

			chunks := chunking.Split(rec.TimedTranscript, chunking.Options{})
			for i := range chunks {
				chunks[i].VideoID = ctx.VideoID
				chunks[i].ChunkID = domain.MakeChunkID(ctx.VideoID, chunks[i].Index)
				if err := upsertChunk(ctx, deps, chunks[i]); err != nil {
					return runtime.Fail(fmt.Errorf("chunk_transcript: upsert chunk %d: %w", chunks[i].Index, err))
				}
			}
			return runtime.Ok(len(chunks))
		})
}

func deleteExistingChunks(ctx *runtime.Context, deps Deps, videoID string) error {
	rows, err := deps.Index.Query(ctx.Ctx, videoChunkTable, map[string]interface{}{"video_id": videoID})
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := deps.Index.Delete(ctx.Ctx, videoChunkTable, row.ID); err != nil {
			return err
		}
	}
	if vd, ok := deps.Index.(indexstore.VectorDeleter); ok && len(rows) > 0 {
		if err := vd.DeleteVectorsByField(ctx.Ctx, videoChunkTable, "video_id", videoID); err != nil {
			return err
		}
	}
	return nil
}

func upsertChunk(ctx *runtime.Context, deps Deps, c domain.VideoChunk) error {
	fields := map[string]interface{}{
		"video_id":    c.VideoID,
		"index":       c.Index,
		"text":        c.Text,
		"start_time":  c.StartTime,
		"end_time":    c.EndTime,
		"token_count": c.TokenCount,
	}
	if err := deps.Index.Upsert(ctx.Ctx, videoChunkTable, c.ChunkID, fields); err != nil {
		return err
	}
	return deps.Index.Link(ctx.Ctx, "video", c.VideoID, "video_chunk", videoChunkTable, c.ChunkID, nil)
}
