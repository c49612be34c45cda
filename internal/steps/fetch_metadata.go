package steps

import (
	"github.com/archivescribe/ytingest/internal/pipeline/registry"
	"github.com/archivescribe/ytingest/internal/pipeline/runtime"
)

// NameFetchMetadata is the canonical step name (spec §4.6 item 2).
const NameFetchMetadata = "fetch_metadata"

// RegisterFetchMetadata registers the fetch_metadata step: fetches the
// YouTube metadata map for ctx.video_id, independent of fetch_transcript,
// with no persistence of its own.
func RegisterFetchMetadata(reg *registry.Registry, deps Deps, source string) {
	reg.Register(NameFetchMetadata, nil, source, "fetches video metadata (title, channel, duration, ...)",
		func(ctx *runtime.Context) runtime.StepResult {
			meta, err := deps.Metadata.FetchMetadata(ctx.Ctx, ctx.VideoID, ctx.URL)
			if err != nil {
				return runtime.Fail(err)
			}
			return runtime.Ok(meta)
		})
}
