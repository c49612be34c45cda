package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/archivescribe/ytingest/internal/indexstore"
	"github.com/archivescribe/ytingest/internal/pipeline/registry"
	"github.com/archivescribe/ytingest/internal/pipeline/runtime"
)

func newTestCtx(videoID string) *runtime.Context {
	return runtime.New(context.Background(), videoID, "https://example.tld/watch?v="+videoID, nil)
}

func TestRunExecutesInDependencyOrder(t *testing.T) {
	reg := registry.New()
	var calls []string
	reg.Register("a", nil, "a-src", "", func(ctx *runtime.Context) runtime.StepResult {
		calls = append(calls, "a")
		return runtime.Ok("a-value")
	})
	reg.Register("b", []string{"a"}, "b-src", "", func(ctx *runtime.Context) runtime.StepResult {
		calls = append(calls, "b")
		aRes, _ := ctx.Result("a")
		if aRes.Value != "a-value" {
			t.Errorf("step b did not see step a's result")
		}
		return runtime.Ok("b-value")
	})

	r := New(reg, nil, nil, nil)
	ctx := newTestCtx("vid1")
	if err := r.Run(ctx, Config{Steps: []string{"b"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Fatalf("expected [a b], got %v", calls)
	}
	if res, _ := ctx.Result("b"); !res.Success {
		t.Fatalf("expected step b to succeed")
	}
}

func TestRunPropagatesDependencyFailure(t *testing.T) {
	reg := registry.New()
	reg.Register("a", nil, "a-src", "", func(ctx *runtime.Context) runtime.StepResult {
		return runtime.Fail(errors.New("boom"))
	})
	called := false
	reg.Register("b", []string{"a"}, "b-src", "", func(ctx *runtime.Context) runtime.StepResult {
		called = true
		return runtime.Ok(nil)
	})

	r := New(reg, nil, nil, nil)
	ctx := newTestCtx("vid1")
	if err := r.Run(ctx, Config{Steps: []string{"b"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("step b must not run when its dependency failed")
	}
	bRes, ok := ctx.Result("b")
	if !ok || bRes.Success {
		t.Fatalf("expected step b to be recorded as failed due to dependency, got %+v", bRes)
	}
}

func TestRunStopsOnFailureWithoutContinueOnError(t *testing.T) {
	reg := registry.New()
	reg.Register("a", nil, "a-src", "", func(ctx *runtime.Context) runtime.StepResult {
		return runtime.Fail(errors.New("boom"))
	})
	secondRan := false
	reg.Register("b", nil, "b-src", "", func(ctx *runtime.Context) runtime.StepResult {
		secondRan = true
		return runtime.Ok(nil)
	})

	r := New(reg, nil, nil, nil)
	ctx := newTestCtx("vid1")
	if err := r.Run(ctx, Config{Steps: []string{"a", "b"}, ContinueOnError: false}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if secondRan {
		t.Fatalf("independent step b should not run after a fails when continue_on_error=false")
	}
}

func TestRunContinuesOnErrorWhenConfigured(t *testing.T) {
	reg := registry.New()
	reg.Register("a", nil, "a-src", "", func(ctx *runtime.Context) runtime.StepResult {
		return runtime.Fail(errors.New("boom"))
	})
	secondRan := false
	reg.Register("b", nil, "b-src", "", func(ctx *runtime.Context) runtime.StepResult {
		secondRan = true
		return runtime.Ok(nil)
	})

	r := New(reg, nil, nil, nil)
	ctx := newTestCtx("vid1")
	if err := r.Run(ctx, Config{Steps: []string{"a", "b"}, ContinueOnError: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !secondRan {
		t.Fatalf("expected step b to run when continue_on_error=true")
	}
}

func TestRunRecoversPanickingStep(t *testing.T) {
	reg := registry.New()
	reg.Register("a", nil, "a-src", "", func(ctx *runtime.Context) runtime.StepResult {
		panic("unexpected failure")
	})

	r := New(reg, nil, nil, nil)
	ctx := newTestCtx("vid1")
	if err := r.Run(ctx, Config{Steps: []string{"a"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, ok := ctx.Result("a")
	if !ok || res.Success {
		t.Fatalf("expected panicking step to be recorded as failed, got %+v", res)
	}
}

func TestRunBestEffortUpdatesPipelineState(t *testing.T) {
	reg := registry.New()
	reg.Register("a", nil, "a-src", "", func(ctx *runtime.Context) runtime.StepResult {
		return runtime.Ok(nil)
	})

	store := indexstore.NewMemoryStore()
	r := New(reg, store, nil, nil)
	ctx := newTestCtx("vid1")
	if err := r.Run(ctx, Config{Steps: []string{"a"}, UpdateGraph: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row, ok, err := store.Get(context.Background(), "video", "vid1")
	if err != nil || !ok {
		t.Fatalf("expected a video row to exist after UpdateGraph, ok=%v err=%v", ok, err)
	}
	if row["pipeline_state.a"] != reg.VersionHashOf("a") {
		t.Fatalf("expected pipeline_state.a to be set to current version hash, got %v", row["pipeline_state.a"])
	}
}

func TestExecutionOrderErrorPropagatesBeforeAnyStepRuns(t *testing.T) {
	reg := registry.New()
	ran := false
	reg.Register("a", nil, "a-src", "", func(ctx *runtime.Context) runtime.StepResult {
		ran = true
		return runtime.Ok(nil)
	})

	r := New(reg, nil, nil, nil)
	ctx := newTestCtx("vid1")
	err := r.Run(ctx, Config{Steps: []string{"does_not_exist"}})
	if err == nil {
		t.Fatalf("expected an error for unknown step")
	}
	if ran {
		t.Fatalf("no step should run when execution_order fails to resolve")
	}
}
