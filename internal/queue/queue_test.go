package queue

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/archivescribe/ytingest/internal/pipeline/registry"
	"github.com/archivescribe/ytingest/internal/pipeline/runner"
	"github.com/archivescribe/ytingest/internal/pipeline/runtime"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func newTestProcessor(t *testing.T, fn func(ctx *runtime.Context) runtime.StepResult) (*Processor, string) {
	t.Helper()
	root := t.TempDir()
	reg := registry.New()
	reg.Register("noop", nil, "noop-src", "", fn)
	run := runner.New(reg, nil, nil, nil)
	p := New(Config{Root: root, Steps: []string{"noop"}, InterRowDelay: time.Millisecond}, run, nil, nil, nil)
	if err := p.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs: %v", err)
	}
	return p, root
}

func TestTickClaimsAndCompletesFileWithRows(t *testing.T) {
	var calls int32
	p, root := newTestProcessor(t, func(ctx *runtime.Context) runtime.StepResult {
		atomic.AddInt32(&calls, 1)
		return runtime.Ok("ran")
	})
	writeCSV(t, filepath.Join(root, "pending"), "a.csv",
		"url,channel_id,title\n"+
			"https://example.tld/watch?v=vid1,chanA,First\n"+
			"https://example.tld/watch?v=vid2,chanB,Second\n")

	claimed, err := p.Tick(context.Background())
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if claimed != 1 {
		t.Fatalf("expected 1 claimed file, got %d", claimed)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 step invocations (one per row), got %d", calls)
	}
	if _, err := os.Stat(filepath.Join(root, "completed", "a.csv")); err != nil {
		t.Fatalf("expected a.csv in completed/: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "pending", "a.csv")); !os.IsNotExist(err) {
		t.Fatalf("expected a.csv removed from pending/")
	}
}

func TestTickZeroRowFileMovesStraightToCompletedWithNoStepCalls(t *testing.T) {
	var calls int32
	p, root := newTestProcessor(t, func(ctx *runtime.Context) runtime.StepResult {
		atomic.AddInt32(&calls, 1)
		return runtime.Ok("ran")
	})
	writeCSV(t, filepath.Join(root, "pending"), "empty.csv", "url,channel_id,title\n")

	if _, err := p.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no step invocations for a zero-row file, got %d", calls)
	}
	if _, err := os.Stat(filepath.Join(root, "completed", "empty.csv")); err != nil {
		t.Fatalf("expected empty.csv in completed/: %v", err)
	}
}

func TestResumeProcessingDrivesLeftoverFile(t *testing.T) {
	var calls int32
	p, root := newTestProcessor(t, func(ctx *runtime.Context) runtime.StepResult {
		atomic.AddInt32(&calls, 1)
		return runtime.Ok("ran")
	})
	// Simulate a prior process that crashed mid-file: the CSV sits in
	// processing/, never pending/.
	writeCSV(t, filepath.Join(root, "processing"), "leftover.csv",
		"url\nhttps://example.tld/watch?v=vid3\n")

	n, err := p.resumeProcessing(context.Background())
	if err != nil {
		t.Fatalf("resumeProcessing: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 resumed file, got %d", n)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected 1 step invocation, got %d", calls)
	}
	if _, err := os.Stat(filepath.Join(root, "completed", "leftover.csv")); err != nil {
		t.Fatalf("expected leftover.csv in completed/: %v", err)
	}
}

func TestCancellationMidFileLeavesFileInProcessing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32
	p, root := newTestProcessor(t, func(stepCtx *runtime.Context) runtime.StepResult {
		atomic.AddInt32(&calls, 1)
		cancel() // simulate the stop signal arriving while row 1 is in flight
		return runtime.Ok("ran")
	})
	writeCSV(t, filepath.Join(root, "pending"), "two_rows.csv",
		"url\nhttps://example.tld/watch?v=vid1\nhttps://example.tld/watch?v=vid2\n")

	if _, err := p.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected exactly 1 step invocation before cancellation took effect, got %d", calls)
	}
	if _, err := os.Stat(filepath.Join(root, "processing", "two_rows.csv")); err != nil {
		t.Fatalf("expected two_rows.csv to remain in processing/ for resume, got err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "completed", "two_rows.csv")); !os.IsNotExist(err) {
		t.Fatalf("expected two_rows.csv NOT to be in completed/ after cancellation")
	}
}

func TestInferSourceTypeDistinguishesSingleVsMultiChannel(t *testing.T) {
	single := []Row{{URL: "u1", ChannelID: "chanA"}, {URL: "u2", ChannelID: "chanA"}}
	if got := InferSourceType(single); got != "bulk_channel" {
		t.Fatalf("expected bulk_channel for a single distinct channel_id, got %s", got)
	}
	multi := []Row{{URL: "u1", ChannelID: "chanA"}, {URL: "u2", ChannelID: "chanB"}}
	if got := InferSourceType(multi); got != "bulk_multi_channel" {
		t.Fatalf("expected bulk_multi_channel for two distinct channel_ids, got %s", got)
	}
}
