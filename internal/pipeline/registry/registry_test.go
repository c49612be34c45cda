package registry

import (
	"errors"
	"testing"

	"github.com/archivescribe/ytingest/internal/pipeline/runtime"
	"github.com/archivescribe/ytingest/internal/pkg/errs"
)

func noop(ctx *runtime.Context) runtime.StepResult {
	return runtime.Ok(nil)
}

func TestVersionHashStableForSameSource(t *testing.T) {
	hashCache = map[string]string{}
	h1 := VersionHash("step_a", "func stepA() {}")
	h2 := VersionHash("step_a", "func stepA() {}")
	if h1 != h2 {
		t.Fatalf("expected stable hash, got %q then %q", h1, h2)
	}
	if len(h1) != 12 {
		t.Fatalf("expected 12-char hash, got %q (%d chars)", h1, len(h1))
	}
}

func TestVersionHashChangesWithSource(t *testing.T) {
	hashCache = map[string]string{}
	h1 := VersionHash("step_a", "func stepA() { return 1 }")
	h2 := VersionHash("step_a", "func stepA() { return 2 }")
	if h1 == h2 {
		t.Fatalf("expected different hashes for different source, both were %q", h1)
	}
}

func TestRegisterDuplicateNamePanics(t *testing.T) {
	r := New()
	r.Register("a", nil, "source a", "", noop)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	r.Register("a", nil, "source a v2", "", noop)
}

func TestExecutionOrderRespectsDependencies(t *testing.T) {
	r := New()
	r.Register("fetch_transcript", nil, "s1", "", noop)
	r.Register("fetch_metadata", nil, "s2", "", noop)
	r.Register("archive_raw", []string{"fetch_transcript", "fetch_metadata"}, "s3", "", noop)
	r.Register("chunk_transcript", []string{"archive_raw"}, "s4", "", noop)

	order, err := r.ExecutionOrder([]string{"chunk_transcript"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pos := map[string]int{}
	for i, name := range order {
		pos[name] = i
	}
	for _, dep := range []string{"fetch_transcript", "fetch_metadata"} {
		if pos[dep] >= pos["archive_raw"] {
			t.Fatalf("expected %q before archive_raw, order=%v", dep, order)
		}
	}
	if pos["archive_raw"] >= pos["chunk_transcript"] {
		t.Fatalf("expected archive_raw before chunk_transcript, order=%v", order)
	}
}

func TestExecutionOrderDetectsCycle(t *testing.T) {
	r := New()
	r.Register("a", []string{"b"}, "sa", "", noop)
	r.Register("b", []string{"a"}, "sb", "", noop)

	_, err := r.ExecutionOrder([]string{"a"})
	if !errors.Is(err, errs.ErrCircularDependency) {
		t.Fatalf("expected ErrCircularDependency, got %v", err)
	}
}

func TestExecutionOrderDetectsUnknownStep(t *testing.T) {
	r := New()
	r.Register("a", nil, "sa", "", noop)

	_, err := r.ExecutionOrder([]string{"nonexistent"})
	if !errors.Is(err, errs.ErrUnknownStep) {
		t.Fatalf("expected ErrUnknownStep, got %v", err)
	}
}

func TestExecutionOrderEveryDependencyAppearsEarlier(t *testing.T) {
	r := New()
	r.Register("x", nil, "x", "", noop)
	r.Register("y", []string{"x"}, "y", "", noop)
	r.Register("z", []string{"x", "y"}, "z", "", noop)

	order, err := r.ExecutionOrder([]string{"z"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	reg, _ := r.Get("z")
	for _, dep := range reg.Dependencies {
		if pos[dep] >= pos["z"] {
			t.Fatalf("dependency %q did not appear before z in %v", dep, order)
		}
	}
}
