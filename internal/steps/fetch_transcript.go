package steps

import (
	"github.com/archivescribe/ytingest/internal/pipeline/registry"
	"github.com/archivescribe/ytingest/internal/pipeline/runtime"
)

// NameFetchTranscript is the canonical step name (spec §4.6 item 1).
const NameFetchTranscript = "fetch_transcript"

// timedTranscriptMetaKey is the Context.Metadata key fetch_transcript uses
// to pass its secondary timed-transcript value to chunk_transcript, per
// spec §4.6 item 1 ("may also emit timed_transcript as a secondary value
// in ctx.metadata").
const timedTranscriptMetaKey = "timed_transcript"

// RegisterFetchTranscript registers the fetch_transcript step: fetches the
// plain transcript text for ctx.URL, with no persistence of its own. The
// step returns any fetcher error, errs.ErrTranscriptUnavailable included,
// as a failed StepResult (spec §7: the step never writes when upstream has
// no transcript).
func RegisterFetchTranscript(reg *registry.Registry, deps Deps, source string) {
	reg.Register(NameFetchTranscript, nil, source, "fetches the raw transcript for a video URL",
		func(ctx *runtime.Context) runtime.StepResult {
			text, timed, err := deps.Transcripts.FetchTranscript(ctx.Ctx, ctx.URL)
			if err != nil {
				return runtime.Fail(err)
			}
			if len(timed) > 0 {
				ctx.Set(timedTranscriptMetaKey, timed)
			}
			return runtime.Ok(text)
		})
}
