package steps

import (
	"fmt"
	"strings"

	"github.com/archivescribe/ytingest/internal/pipeline/registry"
	"github.com/archivescribe/ytingest/internal/pipeline/runtime"
)

// NameUpdateGraph is the canonical step name (spec §4.6 item 8).
const NameUpdateGraph = "update_graph"

// RegisterUpdateGraph registers the update_graph step: depends on
// cache_to_blob, upserts the VideoRecord's fields into the Index Store,
// creates/updates video->channel and video->topic edges derived from
// metadata and tags, and computes+stores the document-level global
// embedding from a canonical summary_text (spec §4.6 item 8).
func RegisterUpdateGraph(reg *registry.Registry, deps Deps, source string) {
	reg.Register(NameUpdateGraph, []string{NameCacheToBlob}, source,
		"upserts the video record and its channel/topic edges, computes the document embedding",
		func(ctx *runtime.Context) runtime.StepResult {
			rec, err := deps.Archive.Get(ctx.VideoID)
			if err != nil {
				return runtime.Fail(fmt.Errorf("update_graph: load archive: %w", err))
			}
			if rec == nil {
				return runtime.Fail(fmt.Errorf("update_graph: no archive record for %s", ctx.VideoID))
			}

			title, _ := rec.YoutubeMetadata["title"].(string)
			channelID, _ := rec.YoutubeMetadata["channel_id"].(string)
			channelTitle, _ := rec.YoutubeMetadata["channel_title"].(string)

			tags := extractTags(ctx)

			if err := deps.Index.Upsert(ctx.Ctx, "video", ctx.VideoID, map[string]interface{}{
				"url":            rec.URL,
				"title":          title,
				"channel_id":     channelID,
				"raw_transcript": rec.RawTranscript,
				"archive_path":   rec.ArchivePath,
				"tags":           tags,
			}); err != nil {
				return runtime.Fail(fmt.Errorf("update_graph: upsert video: %w", err))
			}

			if channelID != "" {
				if err := deps.Index.Upsert(ctx.Ctx, "channel", channelID, map[string]interface{}{"name": channelTitle}); err != nil {
					return runtime.Fail(fmt.Errorf("update_graph: upsert channel: %w", err))
				}
				if err := deps.Index.Link(ctx.Ctx, "video", ctx.VideoID, "channel", "channel", channelID, nil); err != nil {
					return runtime.Fail(fmt.Errorf("update_graph: link channel: %w", err))
				}
			}
			for _, topic := range tags {
				topicID := topicIDFor(topic)
				if err := deps.Index.Upsert(ctx.Ctx, "topic", topicID, map[string]interface{}{"name": topic}); err != nil {
					return runtime.Fail(fmt.Errorf("update_graph: upsert topic %s: %w", topic, err))
				}
				if err := deps.Index.Link(ctx.Ctx, "video", ctx.VideoID, "topic", "topic", topicID, nil); err != nil {
					return runtime.Fail(fmt.Errorf("update_graph: link topic %s: %w", topic, err))
				}
			}

			summaryText := buildSummaryText(ctx.VideoID, channelTitle, title, summarize(ctx), tags)
			vector, err := deps.Embeddings.Embed(ctx.Ctx, summaryText)
			if err != nil {
				return runtime.Fail(fmt.Errorf("update_graph: embed: %w", err))
			}
			if err := deps.Index.Upsert(ctx.Ctx, "video", ctx.VideoID, map[string]interface{}{"embedding": vector}); err != nil {
				return runtime.Fail(fmt.Errorf("update_graph: upsert embedding: %w", err))
			}
			if err := deps.Archive.SetEmbedding(ctx.VideoID, vector); err != nil {
				return runtime.Fail(fmt.Errorf("update_graph: archive set_embedding: %w", err))
			}
			return runtime.Ok(map[string]interface{}{"video_id": ctx.VideoID, "channel_id": channelID, "topics": tags})
		})
}

// extractTags pulls the topic tags generate_tags produced, if that step
// ran and succeeded in this pipeline run; returns nil otherwise (update_graph
// still works when generate_tags was excluded from the requested step set).
func extractTags(ctx *runtime.Context) []string {
	res, ok := ctx.Result(NameGenerateTags)
	if !ok || !res.Success {
		return nil
	}
	m, ok := res.Value.(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := m["tags"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func summarize(ctx *runtime.Context) string {
	res, ok := ctx.Result(NameGenerateTags)
	if !ok || !res.Success {
		return ""
	}
	m, ok := res.Value.(map[string]interface{})
	if !ok {
		return ""
	}
	s, _ := m["summary"].(string)
	return s
}

func topicIDFor(topic string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(topic), " ", "_"))
}

// buildSummaryText assembles the canonical document text update_graph
// embeds (spec §4.6 item 8).
func buildSummaryText(videoID, channel, title, summary string, topics []string) string {
	return fmt.Sprintf("Video ID: %s Channel: %s Title: %s Summary: %s Topics: %s",
		videoID, channel, title, summary, strings.Join(topics, ", "))
}
