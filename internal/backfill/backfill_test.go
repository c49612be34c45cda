package backfill

import (
	"context"
	"testing"

	"github.com/archivescribe/ytingest/internal/archive"
	"github.com/archivescribe/ytingest/internal/pipeline/registry"
	"github.com/archivescribe/ytingest/internal/pipeline/runner"
	"github.com/archivescribe/ytingest/internal/pipeline/runtime"
)

func registerNoop(reg *registry.Registry, source string) {
	reg.Register("generate_tags", nil, source, "", func(ctx *runtime.Context) runtime.StepResult {
		return runtime.Ok("ran")
	})
}

func TestBackfillDetectsVersionBumpAndReprocesses(t *testing.T) {
	arc, err := archive.New(t.TempDir(), true, nil)
	if err != nil {
		t.Fatalf("archive.New: %v", err)
	}
	if _, err := arc.UpdateTranscript("abc123", "https://example.tld/watch?v=abc123", "hello", nil, nil); err != nil {
		t.Fatalf("seed transcript: %v", err)
	}

	regV1 := registry.New()
	registerNoop(regV1, "source-v1")
	runnerV1 := runner.New(regV1, nil, arc, nil)
	ctx := runtime.New(context.Background(), "abc123", "https://example.tld/watch?v=abc123", nil)
	if err := runnerV1.Run(ctx, runner.Config{Steps: []string{"generate_tags"}, UpdateGraph: true}); err != nil {
		t.Fatalf("initial run: %v", err)
	}

	regV2 := registry.New()
	registerNoop(regV2, "source-v2") // different source text -> different version hash
	runnerV2 := runner.New(regV2, nil, arc, nil)
	engine := New(arc, regV2, runnerV2, NewMemoryQuarantineStore(), 0, nil)

	counts, err := engine.BackfillCounts(context.Background())
	if err != nil {
		t.Fatalf("backfill_counts: %v", err)
	}
	if counts["generate_tags"] != 1 {
		t.Fatalf("expected 1 stale item for generate_tags, got %d", counts["generate_tags"])
	}

	result, err := engine.RunBackfill(context.Background(), "generate_tags", 10, runner.Config{})
	if err != nil {
		t.Fatalf("run_backfill: %v", err)
	}
	if result.Succeeded != 1 || result.Failed != 0 {
		t.Fatalf("expected 1 success, 0 failures, got %+v", result)
	}

	rec, err := arc.Get("abc123")
	if err != nil || rec == nil {
		t.Fatalf("expected archive record, err=%v", err)
	}
	if rec.PipelineState["generate_tags"] != regV2.VersionHashOf("generate_tags") {
		t.Fatalf("expected pipeline_state to advance to the new version, got %v", rec.PipelineState["generate_tags"])
	}

	countsAfter, err := engine.BackfillCounts(context.Background())
	if err != nil {
		t.Fatalf("backfill_counts after: %v", err)
	}
	if countsAfter["generate_tags"] != 0 {
		t.Fatalf("expected 0 stale items after backfill, got %d", countsAfter["generate_tags"])
	}
}

func TestBackfillQuarantinesAfterConsecutiveFailures(t *testing.T) {
	arc, err := archive.New(t.TempDir(), true, nil)
	if err != nil {
		t.Fatalf("archive.New: %v", err)
	}
	if _, err := arc.UpdateTranscript("vid1", "https://example.tld/watch?v=vid1", "hello", nil, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}

	reg := registry.New()
	reg.Register("flaky", nil, "flaky-src", "", func(ctx *runtime.Context) runtime.StepResult {
		return runtime.Fail(context.DeadlineExceeded)
	})
	run := runner.New(reg, nil, arc, nil)
	quarantine := NewMemoryQuarantineStore()
	engine := New(arc, reg, run, quarantine, 0, nil)

	for i := 0; i < 5; i++ {
		if _, err := engine.RunBackfill(context.Background(), "flaky", 10, runner.Config{}); err != nil {
			t.Fatalf("run_backfill iteration %d: %v", i, err)
		}
	}

	quarantined, err := quarantine.IsQuarantined(context.Background(), "vid1", "flaky")
	if err != nil {
		t.Fatalf("is_quarantined: %v", err)
	}
	if !quarantined {
		t.Fatalf("expected vid1/flaky to be quarantined after 5 consecutive failures")
	}

	items, err := engine.BackfillQueue(context.Background(), "flaky", 10)
	if err != nil {
		t.Fatalf("backfill_queue: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("quarantine is advisory; item must remain in the stale queue, got %d items", len(items))
	}
}
