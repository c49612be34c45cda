package steps

import "github.com/archivescribe/ytingest/internal/pipeline/registry"

// DefaultSteps is the full ingestion chain, matching the original source's
// DEFAULT_PIPELINE_STEPS preset (recovered from
// original_source/compose/services/pipeline/steps.py, see SPEC_FULL §4).
var DefaultSteps = []string{
	NameFetchTranscript,
	NameFetchMetadata,
	NameArchiveRaw,
	NameGenerateTags,
	NameChunkTranscript,
	NameEmbedChunks,
	NameCacheToBlob,
	NameUpdateGraph,
}

// MinimalSteps archives raw transcript/metadata without any LLM or
// embedding work, matching the original's MINIMAL_PIPELINE_STEPS preset.
var MinimalSteps = []string{
	NameFetchTranscript,
	NameFetchMetadata,
	NameArchiveRaw,
	NameCacheToBlob,
}

// EmbeddingSteps produces chunk embeddings without tag generation,
// matching the original's EMBEDDING_PIPELINE_STEPS preset.
var EmbeddingSteps = []string{
	NameFetchTranscript,
	NameFetchMetadata,
	NameArchiveRaw,
	NameChunkTranscript,
	NameEmbedChunks,
	NameCacheToBlob,
	NameUpdateGraph,
}

// RegisterAll registers every step in the library against reg, using
// sources to look up each step's version-hash source identifier by name
// (falling back to the step's own name when sources has no entry, which
// still yields a stable, if coarse, version hash).
func RegisterAll(reg *registry.Registry, deps Deps, sources map[string]string) {
	sourceFor := func(name string) string {
		if s, ok := sources[name]; ok && s != "" {
			return s
		}
		return name
	}
	RegisterFetchTranscript(reg, deps, sourceFor(NameFetchTranscript))
	RegisterFetchMetadata(reg, deps, sourceFor(NameFetchMetadata))
	RegisterArchiveRaw(reg, deps, sourceFor(NameArchiveRaw))
	RegisterGenerateTags(reg, deps, sourceFor(NameGenerateTags))
	RegisterChunkTranscript(reg, deps, sourceFor(NameChunkTranscript))
	RegisterEmbedChunks(reg, deps, sourceFor(NameEmbedChunks))
	RegisterCacheToBlob(reg, deps, sourceFor(NameCacheToBlob))
	RegisterUpdateGraph(reg, deps, sourceFor(NameUpdateGraph))
}
