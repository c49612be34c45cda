// Package chunking implements the transcript-partitioning logic the
// chunk_transcript step (spec §4.6 C7 item 5) depends on: pause-aware
// boundaries, a target token count per chunk, and monotonically increasing,
// gap-free, overlap-free timing. Grounded on the chunking semantics
// original_source/tools/services/archive describes for the Python
// implementation; no tokenizer library (e.g. tiktoken-go) appears anywhere
// in the retrieved pack, and the spec's token contract is a coarse target
// (~2500), not an exact tokenizer match, so token counting is a
// whitespace-based approximation (see DESIGN.md).
package chunking

import (
	"strings"
	"unicode/utf8"

	"github.com/archivescribe/ytingest/internal/domain"
)

// Options configures Split's behavior.
type Options struct {
	// TargetTokens is the approximate token count per chunk. Defaults to
	// 2500 (spec §4.6 item 5(ii)) when zero.
	TargetTokens int
	// NaturalPauseSeconds is the minimum gap between consecutive transcript
	// entries that counts as a "natural pause" boundary (spec §4.6 item
	// 5(i)). Defaults to 8 seconds when zero.
	NaturalPauseSeconds float64
}

func (o Options) withDefaults() Options {
	if o.TargetTokens <= 0 {
		o.TargetTokens = 2500
	}
	if o.NaturalPauseSeconds <= 0 {
		o.NaturalPauseSeconds = 8
	}
	return o
}

// ApproxTokenCount estimates a token count for text by counting
// whitespace-delimited words, the coarse approximation spec §4.6 item
// 5(ii)'s "target token count per chunk ≈ 2500" calls for.
func ApproxTokenCount(text string) int {
	if text == "" {
		return 0
	}
	n := 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\n' || r == '\t' || r == '\r' {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	if n == 0 && utf8.RuneCountInString(text) > 0 {
		n = 1
	}
	return n
}

// Split partitions a timed transcript into VideoChunks satisfying spec
// §4.6 item 5's invariants. Split decides boundaries, text, timing and
// token count, and numbers the chunks with Index 0, 1, 2, ...; video_id and
// chunk_id (via domain.MakeChunkID) are left for the caller to assign.
//
// Boundary selection prefers a natural pause (a gap of at least
// NaturalPauseSeconds between one entry's end and the next entry's start)
// once the running token count has reached TargetTokens; if no pause is
// found before the transcript runs out, the chunk simply ends at the last
// available entry so no content is dropped.
func Split(entries []domain.TimedTranscriptEntry, opts Options) []domain.VideoChunk {
	opts = opts.withDefaults()
	if len(entries) == 0 {
		return nil
	}

	var chunks []domain.VideoChunk
	idx := 0
	start := 0
	for start < len(entries) {
		end := start
		tokens := 0
		for end < len(entries) {
			tokens += ApproxTokenCount(entries[end].Text)
			reachedTarget := tokens >= opts.TargetTokens
			isLast := end == len(entries)-1
			if isLast {
				end++
				break
			}
			if reachedTarget {
				gap := entries[end+1].Start - (entries[end].Start + entries[end].Duration)
				if gap >= opts.NaturalPauseSeconds {
					end++
					break
				}
			}
			end++
		}
		if end <= start {
			end = start + 1
		}
		window := entries[start:end]
		chunks = append(chunks, buildChunk(idx, window))
		idx++
		start = end
	}
	return chunks
}

func buildChunk(index int, window []domain.TimedTranscriptEntry) domain.VideoChunk {
	var sb strings.Builder
	for i, e := range window {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(e.Text)
	}
	text := sb.String()
	return domain.VideoChunk{
		Index:      index,
		Text:       text,
		StartTime:  window[0].Start,
		EndTime:    window[len(window)-1].Start + window[len(window)-1].Duration,
		TokenCount: ApproxTokenCount(text),
	}
}
