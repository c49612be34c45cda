package steps

import (
	"fmt"

	"github.com/archivescribe/ytingest/internal/domain"
	"github.com/archivescribe/ytingest/internal/pipeline/registry"
	"github.com/archivescribe/ytingest/internal/pipeline/runtime"
)

// NameArchiveRaw is the canonical step name (spec §4.6 item 3).
const NameArchiveRaw = "archive_raw"

// RegisterArchiveRaw registers the archive_raw step: depends on
// fetch_transcript and fetch_metadata, writes both to the Archive Store
// (update_transcript then update_metadata), and must complete durably
// before any downstream blob/index write begins (spec §3 invariant 3,
// "archive-first"). Returns the archive path as its value.
func RegisterArchiveRaw(reg *registry.Registry, deps Deps, source string) {
	reg.Register(NameArchiveRaw, []string{NameFetchTranscript, NameFetchMetadata}, source,
		"durably writes transcript and metadata to the Archive Store before any downstream write",
		func(ctx *runtime.Context) runtime.StepResult {
			transcriptRes, _ := ctx.Result(NameFetchTranscript)
			transcript, _ := transcriptRes.Value.(string)

			metaRes, _ := ctx.Result(NameFetchMetadata)
			metadata, _ := metaRes.Value.(map[string]interface{})

			var timed []domain.TimedTranscriptEntry
			if v, ok := ctx.Get(timedTranscriptMetaKey); ok {
				timed, _ = v.([]domain.TimedTranscriptEntry)
			}

			importMeta := domain.ImportMetadataFromContext(ctx.Metadata, ctx.StartedAt)

			rec, err := deps.Archive.UpdateTranscript(ctx.VideoID, ctx.URL, transcript, timed, importMeta)
			if err != nil {
				return runtime.Fail(fmt.Errorf("archive_raw: update_transcript: %w", err))
			}
			rec, err = deps.Archive.UpdateMetadata(ctx.VideoID, ctx.URL, metadata)
			if err != nil {
				return runtime.Fail(fmt.Errorf("archive_raw: update_metadata: %w", err))
			}
			// archive_raw does not itself append processing_history; the runner
			// does that generically for every successful step (see
			// runner.persistPipelineState), satisfying testable property §8.1.
			return runtime.Ok(rec.ArchivePath)
		})
}
