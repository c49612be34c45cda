package steps

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/archivescribe/ytingest/internal/domain"
	"github.com/archivescribe/ytingest/internal/pipeline/registry"
	"github.com/archivescribe/ytingest/internal/pipeline/runtime"
)

// NameGenerateTags is the canonical step name (spec §4.6 item 4).
const NameGenerateTags = "generate_tags"

// tagsSchema is the structured-output schema generate_tags asks the LLM
// client to conform to: a list of topic tags plus a short summary, used
// downstream by update_graph's video->topic edges and summary_text.
var tagsSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"tags": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
		"summary": map[string]interface{}{"type": "string"},
	},
	"required":             []string{"tags", "summary"},
	"additionalProperties": false,
}

const tagsGenerationSystemPrompt = "Extract a concise set of topic tags and a one-paragraph summary from the transcript. Respond only with the requested JSON."

// RegisterGenerateTags registers the generate_tags step: depends on
// fetch_transcript, calls the LLM client to produce structured tags and a
// summary, writes the result to the Archive via append_llm_output, and
// returns the parsed value.
func RegisterGenerateTags(reg *registry.Registry, deps Deps, source string) {
	model := deps.TagsModel
	if model == "" {
		model = "tags-model"
	}
	reg.Register(NameGenerateTags, []string{NameFetchTranscript}, source,
		"calls an LLM to produce structured tags/summary metadata from the transcript",
		func(ctx *runtime.Context) runtime.StepResult {
			transcriptRes, _ := ctx.Result(NameFetchTranscript)
			transcript, _ := transcriptRes.Value.(string)

			parsed, err := deps.LLM.GenerateJSON(ctx.Ctx, tagsGenerationSystemPrompt, transcript, "video_tags", tagsSchema)
			if err != nil {
				return runtime.Fail(fmt.Errorf("generate_tags: %w", err))
			}

			value, err := json.Marshal(parsed)
			if err != nil {
				return runtime.Fail(fmt.Errorf("generate_tags: encode result: %w", err))
			}

			out := domain.LLMOutput{
				OutputType:  "tags",
				OutputValue: string(value),
				GeneratedAt: time.Now().UTC(),
				Model:       model,
			}
			if err := deps.Archive.AppendLLMOutput(ctx.VideoID, out); err != nil {
				return runtime.Fail(fmt.Errorf("generate_tags: append_llm_output: %w", err))
			}
			return runtime.Ok(parsed)
		})
}
