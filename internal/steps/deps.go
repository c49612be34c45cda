// Package steps implements the Step Library component (spec §4.6, C7):
// the concrete fetch/archive/chunk/embed/cache/update-graph steps, each
// registered against a pipeline/registry.Registry. Grounded on
// original_source/compose/services/pipeline/steps.py for step contracts,
// restated using the teacher's Handler-style function signature
// (pipeline/registry.Step).
package steps

import (
	"context"

	"github.com/archivescribe/ytingest/internal/blobstore"
	"github.com/archivescribe/ytingest/internal/domain"
	"github.com/archivescribe/ytingest/internal/embedding"
	"github.com/archivescribe/ytingest/internal/indexstore"
	"github.com/archivescribe/ytingest/internal/llm"
)

// ArchiveStore is the subset of *archive.Store the step library depends
// on. Declared here (rather than importing the concrete type everywhere)
// so tests can substitute a fake.
type ArchiveStore interface {
	Get(videoID string) (*domain.VideoRecord, error)
	UpdateTranscript(videoID, url, transcript string, timed []domain.TimedTranscriptEntry, importMeta *domain.ImportMetadata) (*domain.VideoRecord, error)
	UpdateMetadata(videoID, url string, metadata map[string]interface{}) (*domain.VideoRecord, error)
	AppendLLMOutput(videoID string, out domain.LLMOutput) error
	AppendDerivedOutput(videoID string, out domain.DerivedOutput) error
	AppendProcessingRecord(videoID string, pr domain.ProcessingRecord) error
	SetPipelineState(videoID, step, versionHash string) error
	SetEmbedding(videoID string, embedding []float32) error
}

// TranscriptFetcher is the external collaborator fetch_transcript depends
// on (spec §1: "concrete transcript/metadata fetch clients... specified
// only by the contract the core consumes").
type TranscriptFetcher interface {
	// FetchTranscript returns the plain transcript text and, when
	// available, the timed transcript entries. Implementations return
	// errs.ErrTranscriptUnavailable when upstream has no transcript.
	FetchTranscript(ctx context.Context, url string) (transcript string, timed []domain.TimedTranscriptEntry, err error)
}

// MetadataFetcher is the external collaborator fetch_metadata depends on.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, videoID, url string) (map[string]interface{}, error)
}

// Deps bundles every collaborator the step library's steps may need.
// Individual Register functions only use the fields relevant to their
// step; nil fields are fine for steps that don't need them.
type Deps struct {
	Transcripts TranscriptFetcher
	Metadata    MetadataFetcher
	Archive     ArchiveStore
	Blob        blobstore.Store
	Index       indexstore.Store
	Embeddings  embedding.Client
	LLM         llm.Client

	// TagsModel is the model name recorded on the generate_tags LLM
	// output (spec §3 LLMOutput.model); defaults to "tags-model" if empty.
	TagsModel string
	// EmbeddingModel is the model name used for embed_chunks/update_graph's
	// document embedding; informational only (the Embedding Client is
	// already bound to a model at construction).
	EmbeddingModel string
}
