package archive

import (
	"errors"
	"os"
	"testing"

	"github.com/archivescribe/ytingest/internal/domain"
	"github.com/archivescribe/ytingest/internal/pkg/errs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(dir, true, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestUpdateTranscriptCreatesRecord(t *testing.T) {
	s := newTestStore(t)
	rec, err := s.UpdateTranscript("abc123", "https://example.tld/watch?v=abc123", "hello world", nil, nil)
	if err != nil {
		t.Fatalf("UpdateTranscript: %v", err)
	}
	if rec.RawTranscript != "hello world" {
		t.Fatalf("expected transcript to be set, got %q", rec.RawTranscript)
	}

	exists, err := s.Exists("abc123")
	if err != nil || !exists {
		t.Fatalf("expected record to exist, exists=%v err=%v", exists, err)
	}
}

func TestMergeIsOrderIndependent(t *testing.T) {
	transcriptFirst := newTestStore(t)
	if _, err := transcriptFirst.UpdateTranscript("vid", "https://x/vid", "transcript text", nil, nil); err != nil {
		t.Fatalf("UpdateTranscript: %v", err)
	}
	if _, err := transcriptFirst.UpdateMetadata("vid", "https://x/vid", map[string]interface{}{"title": "T"}); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}

	metadataFirst := newTestStore(t)
	if _, err := metadataFirst.UpdateMetadata("vid", "https://x/vid", map[string]interface{}{"title": "T"}); err != nil {
		t.Fatalf("UpdateMetadata: %v", err)
	}
	if _, err := metadataFirst.UpdateTranscript("vid", "https://x/vid", "transcript text", nil, nil); err != nil {
		t.Fatalf("UpdateTranscript: %v", err)
	}

	a, err := transcriptFirst.Get("vid")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	b, err := metadataFirst.Get("vid")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if a.RawTranscript != b.RawTranscript {
		t.Fatalf("transcript mismatch: %q vs %q", a.RawTranscript, b.RawTranscript)
	}
	if a.YoutubeMetadata["title"] != b.YoutubeMetadata["title"] {
		t.Fatalf("metadata mismatch: %v vs %v", a.YoutubeMetadata, b.YoutubeMetadata)
	}
}

func TestAppendLLMOutputFailsWhenRecordMissing(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendLLMOutput("nonexistent", domain.LLMOutput{OutputType: "tags"})
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAppendLLMOutputPreservesOrder(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.UpdateTranscript("vid", "https://x/vid", "t", nil, nil); err != nil {
		t.Fatalf("UpdateTranscript: %v", err)
	}
	if err := s.AppendLLMOutput("vid", domain.LLMOutput{OutputType: "tags", OutputValue: "first"}); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if err := s.AppendLLMOutput("vid", domain.LLMOutput{OutputType: "tags", OutputValue: "second"}); err != nil {
		t.Fatalf("append 2: %v", err)
	}
	rec, err := s.Get("vid")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(rec.LLMOutputs) != 2 {
		t.Fatalf("expected 2 llm_outputs, got %d", len(rec.LLMOutputs))
	}
	if rec.LLMOutputs[0].OutputValue != "first" || rec.LLMOutputs[1].OutputValue != "second" {
		t.Fatalf("expected insertion order preserved, got %+v", rec.LLMOutputs)
	}
}

func TestWriteAtomicLeavesNoTempFilesBehind(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.UpdateTranscript("vid", "https://x/vid", "t", nil, nil); err != nil {
		t.Fatalf("UpdateTranscript: %v", err)
	}
	rec, err := s.Get("vid")
	if err != nil || rec == nil {
		t.Fatalf("expected record vid to exist, err=%v", err)
	}
	entries, err := os.ReadDir(s.monthDir(rec.FetchedAt))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name()[0] == '.' {
			t.Fatalf("unexpected leftover temp file: %s", e.Name())
		}
	}
}
