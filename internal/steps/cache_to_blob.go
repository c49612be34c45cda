package steps

import (
	"fmt"

	"github.com/archivescribe/ytingest/internal/pipeline/registry"
	"github.com/archivescribe/ytingest/internal/pipeline/runtime"
)

// NameCacheToBlob is the canonical step name (spec §4.6 item 7).
const NameCacheToBlob = "cache_to_blob"

// cacheKey returns the canonical blob key cache_to_blob writes under (spec
// §6, "youtube:video:<video_id>").
func cacheKey(videoID string) string {
	return "youtube:video:" + videoID
}

// cacheRecord is the canonical JSON shape written to the blob cache: the
// full transcript plus selected metadata a downstream reader can consume
// without touching the Archive Store directly.
type cacheRecord struct {
	VideoID         string                 `json:"video_id"`
	URL             string                 `json:"url"`
	RawTranscript   string                 `json:"raw_transcript"`
	YoutubeMetadata map[string]interface{} `json:"youtube_metadata"`
	ArchivePath     string                 `json:"archive_path"`
}

// RegisterCacheToBlob registers the cache_to_blob step: depends on
// archive_raw, writes a canonical JSON representation to the Blob Store
// under "youtube:video:<video_id>", skipping if the key already exists
// (spec §4.6 item 7). Returns the blob key.
func RegisterCacheToBlob(reg *registry.Registry, deps Deps, source string) {
	reg.Register(NameCacheToBlob, []string{NameArchiveRaw}, source,
		"mirrors the archived transcript and metadata to the blob cache",
		func(ctx *runtime.Context) runtime.StepResult {
			key := cacheKey(ctx.VideoID)

			exists, err := deps.Blob.Exists(ctx.Ctx, key)
			if err != nil {
				return runtime.Fail(fmt.Errorf("cache_to_blob: exists: %w", err))
			}
			if exists {
				return runtime.OkCached(key)
			}

			rec, err := deps.Archive.Get(ctx.VideoID)
			if err != nil {
				return runtime.Fail(fmt.Errorf("cache_to_blob: load archive: %w", err))
			}
			if rec == nil {
				return runtime.Fail(fmt.Errorf("cache_to_blob: no archive record for %s", ctx.VideoID))
			}

			payload := cacheRecord{
				VideoID:         rec.VideoID,
				URL:             rec.URL,
				RawTranscript:   rec.RawTranscript,
				YoutubeMetadata: rec.YoutubeMetadata,
				ArchivePath:     rec.ArchivePath,
			}
			if err := deps.Blob.PutJSON(ctx.Ctx, key, payload); err != nil {
				return runtime.Fail(fmt.Errorf("cache_to_blob: put: %w", err))
			}
			return runtime.Ok(key)
		})
}
