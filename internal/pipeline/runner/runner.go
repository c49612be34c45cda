// Package runner implements the Pipeline Runner component (spec §4.5):
// dependency-ordered execution of a requested step set over a shared
// Context, with best-effort pipeline_state propagation to the Index Store.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/archivescribe/ytingest/internal/domain"
	"github.com/archivescribe/ytingest/internal/indexstore"
	"github.com/archivescribe/ytingest/internal/pipeline/registry"
	"github.com/archivescribe/ytingest/internal/pipeline/runtime"
	"github.com/archivescribe/ytingest/internal/platform/logger"
)

// StepExecutionLedger records one append-only entry per step invocation,
// independent of whatever the step itself persists (SPEC_FULL §4.11's
// pipeline step-execution ledger). Kept as a narrow primitive-typed
// interface so this package has no dependency on internal/opstore; the
// gorm-backed implementation lives there and is wired in by cmd/.
type StepExecutionLedger interface {
	RecordStep(ctx context.Context, videoID, step, versionHash string, success bool, errMsg string, durationMS int64, startedAt time.Time) error
}

// ArchiveStateStore is the subset of *archive.Store the runner uses to keep
// a VideoRecord's pipeline_state and processing_history in sync with a
// step's success, satisfying testable property §8.1 ("if
// pipeline_state[s]=v, an entry in processing_history with version=v
// exists") independent of whatever the step itself persists.
type ArchiveStateStore interface {
	SetPipelineState(videoID, step, versionHash string) error
	AppendProcessingRecord(videoID string, pr domain.ProcessingRecord) error
}

// Config controls one pipeline run (spec §4.5 PipelineConfig).
type Config struct {
	Steps           []string
	SkipCached      bool
	ContinueOnError bool
	UpdateGraph     bool
}

// Runner executes a configured step set over a Registry, recording results
// on a Context.
type Runner struct {
	reg     *registry.Registry
	index   indexstore.RecordStore
	archive ArchiveStateStore
	ledger  StepExecutionLedger
	log     *logger.Logger
}

// New constructs a Runner. index and archive may be nil, in which case
// UpdateGraph's best-effort side effects are silently skipped on whichever
// half is absent (useful for tests and for steps that don't touch those
// stores at all).
func New(reg *registry.Registry, index indexstore.RecordStore, archive ArchiveStateStore, log *logger.Logger) *Runner {
	if log == nil {
		log, _ = logger.New("")
	}
	return &Runner{reg: reg, index: index, archive: archive, log: log.With("component", "pipeline.Runner")}
}

// WithStepExecutionLedger attaches a StepExecutionLedger to r and returns
// r, so callers that want the durable ledger can chain it onto New's
// result without another constructor argument:
//
//	run := runner.New(reg, index, archive, log).WithStepExecutionLedger(ops)
func (r *Runner) WithStepExecutionLedger(ledger StepExecutionLedger) *Runner {
	r.ledger = ledger
	return r
}

/*
Run executes cfg.Steps over ctx following spec §4.5's algorithm:

 1. Resolve execution_order(steps).
 2. For each step s in order:
    a. If any dependency has no result yet, or a non-success result, record
    a dependency-failure StepResult for s; stop the run unless
    ContinueOnError.
    b. Invoke s(ctx) with timing. Panics are recovered and converted to a
    failed StepResult, matching "uncaught exceptions are caught".
    c. If UpdateGraph and the step succeeded, best-effort persist
    pipeline_state[s] to the Index Store; a failure here never fails
    the step.
    d. If the step failed and !ContinueOnError, stop.

Run never returns an error for step-level failures; it only returns an
error for resolution/ordering problems raised before any step executes
(UnknownStep, CircularDependency), per spec §7's "runner never raises
during step execution" rule.
*/
func (r *Runner) Run(ctx *runtime.Context, cfg Config) error {
	order, err := r.reg.ExecutionOrder(cfg.Steps)
	if err != nil {
		return err
	}

	for _, name := range order {
		reg, ok := r.reg.Get(name)
		if !ok {
			// ExecutionOrder already validated every name resolves; this
			// branch exists only to guard against a racing unregister,
			// which the registry does not support, so it should never fire.
			ctx.Results[name] = runtime.Fail(fmt.Errorf("registry: step %q vanished mid-run", name))
			continue
		}

		if failed, depErr := r.dependencyFailed(ctx, reg); failed {
			ctx.Results[name] = runtime.Fail(depErr)
			if !cfg.ContinueOnError {
				return nil
			}
			continue
		}

		if cfg.SkipCached {
			if prev, ok := ctx.Results[name]; ok && prev.Success {
				ctx.Results[name] = runtime.OkCached(prev.Value)
				continue
			}
		}

		started := time.Now()
		result := r.invoke(reg, ctx)
		ctx.Results[name] = result
		r.recordExecution(ctx, reg, result, started)

		if cfg.UpdateGraph && result.Success {
			r.persistPipelineState(ctx, reg)
		}

		if !result.Success && !cfg.ContinueOnError {
			return nil
		}
	}
	return nil
}

func (r *Runner) dependencyFailed(ctx *runtime.Context, reg *registry.Registration) (bool, error) {
	for _, dep := range reg.Dependencies {
		res, ok := ctx.Results[dep]
		if !ok || !res.Success {
			return true, fmt.Errorf("dependency %s failed or missing", dep)
		}
	}
	return false, nil
}

func (r *Runner) invoke(reg *registry.Registration, ctx *runtime.Context) (result runtime.StepResult) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("step panicked", "step", reg.Name, "panic", rec)
			result = runtime.Fail(fmt.Errorf("panic: %v", rec)).WithDuration(time.Since(start))
		}
	}()
	result = reg.Fn(ctx)
	result = result.WithDuration(time.Since(start))
	return result
}

func (r *Runner) persistPipelineState(ctx *runtime.Context, reg *registry.Registration) {
	if r.index != nil {
		err := r.index.Upsert(ctx.Ctx, "video", ctx.VideoID, map[string]interface{}{
			"pipeline_state." + reg.Name: reg.VersionHash,
		})
		if err != nil {
			r.log.Warn("best-effort pipeline_state update failed", "step", reg.Name, "video_id", ctx.VideoID, "error", err)
		}
	}
	if r.archive != nil {
		if err := r.archive.SetPipelineState(ctx.VideoID, reg.Name, reg.VersionHash); err != nil {
			r.log.Warn("best-effort archive pipeline_state update failed", "step", reg.Name, "video_id", ctx.VideoID, "error", err)
			return
		}
		pr := domain.ProcessingRecord{Version: reg.VersionHash, ProcessedAt: time.Now().UTC(), Notes: strPtr(reg.Name)}
		if err := r.archive.AppendProcessingRecord(ctx.VideoID, pr); err != nil {
			r.log.Warn("best-effort processing_history append failed", "step", reg.Name, "video_id", ctx.VideoID, "error", err)
		}
	}
}

func (r *Runner) recordExecution(ctx *runtime.Context, reg *registry.Registration, result runtime.StepResult, started time.Time) {
	if r.ledger == nil {
		return
	}
	errMsg := ""
	if result.Err != nil {
		errMsg = result.Err.Error()
	}
	err := r.ledger.RecordStep(ctx.Ctx, ctx.VideoID, reg.Name, reg.VersionHash, result.Success, errMsg, result.DurationMS, started)
	if err != nil {
		r.log.Warn("best-effort step-execution ledger write failed", "step", reg.Name, "video_id", ctx.VideoID, "error", err)
	}
}

func strPtr(s string) *string { return &s }
