// Package backfill implements the Backfill Engine component (spec §4.7):
// per-step staleness detection over the archived corpus and bounded-batch
// reprocessing via the Pipeline Runner. Grounded on
// original_source/compose/services/pipeline/runner.py's
// get_backfill_queue/get_backfill_counts/run_backfill, restated against
// this core's Registry/Runner/Archive types.
package backfill

import (
	"context"
	"sort"

	"golang.org/x/time/rate"

	"github.com/archivescribe/ytingest/internal/domain"
	"github.com/archivescribe/ytingest/internal/pipeline/registry"
	"github.com/archivescribe/ytingest/internal/pipeline/runner"
	"github.com/archivescribe/ytingest/internal/pipeline/runtime"
	"github.com/archivescribe/ytingest/internal/platform/logger"
)

// quarantineThreshold is the consecutive-failure count spec §4.7 names
// ("five consecutive failures... may be recorded as a soft-quarantine
// marker").
const quarantineThreshold = 5

// ArchiveStore is the subset of *archive.Store the engine needs: listing
// every record to check staleness; each backfill queue entry's URL is
// taken from the listed record itself.
type ArchiveStore interface {
	Iter(startMonth, endMonth string) ([]*domain.VideoRecord, error)
}

// QuarantineStore persists the consecutive-failure counter spec §4.7's
// soft-quarantine marker needs, independent of process restarts. The
// gorm-backed implementation lives in internal/opstore; tests may use
// NewMemoryQuarantineStore.
type QuarantineStore interface {
	RecordFailure(ctx context.Context, videoID, step string) (count int, err error)
	ClearFailure(ctx context.Context, videoID, step string) error
	IsQuarantined(ctx context.Context, videoID, step string) (bool, error)
}

// StaleItem is one entry in a backfill queue (spec §4.7 backfill_queue).
type StaleItem struct {
	VideoID         string
	URL             string
	CurrentVersion  string
	RequiredVersion string
	Quarantined     bool
}

// ItemError pairs a video_id with the error its backfill attempt raised.
type ItemError struct {
	VideoID string
	Error   string
}

// Result is run_backfill's aggregate return value.
type Result struct {
	Queued    int
	Succeeded int
	Failed    int
	Errors    []ItemError
}

// Engine implements the Backfill Engine.
type Engine struct {
	archive    ArchiveStore
	reg        *registry.Registry
	runner     *runner.Runner
	quarantine QuarantineStore
	limiter    *rate.Limiter
	log        *logger.Logger
}

// New constructs an Engine. ratePerSecond bounds how fast items are
// dispatched to the runner (spec §5 backpressure); zero disables limiting.
func New(archive ArchiveStore, reg *registry.Registry, run *runner.Runner, quarantine QuarantineStore, ratePerSecond float64, log *logger.Logger) *Engine {
	if log == nil {
		log, _ = logger.New("")
	}
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), 1)
	}
	return &Engine{
		archive:    archive,
		reg:        reg,
		runner:     run,
		quarantine: quarantine,
		limiter:    limiter,
		log:        log.With("component", "backfill.Engine"),
	}
}

// IsStale implements spec §4.7's staleness predicate: r is stale for step
// iff r.pipeline_state[step] is absent or not equal to the registry's
// current version hash.
func IsStale(r *domain.VideoRecord, step, currentVersion string) bool {
	if r == nil {
		return false
	}
	v, ok := r.PipelineState[step]
	return !ok || v != currentVersion
}

// BackfillQueue returns up to limit stale items for step, non-quarantined
// items first and each group ordered by video_id, for deterministic,
// restartable pagination (spec §4.7: "must not
// bias toward the same item across consecutive runs... stable order by
// video_id is acceptable"). limit <= 0 means unbounded.
func (e *Engine) BackfillQueue(ctx context.Context, step string, limit int) ([]StaleItem, error) {
	current := e.reg.VersionHashOf(step)
	records, err := e.archive.Iter("", "")
	if err != nil {
		return nil, err
	}

	var items []StaleItem
	for _, r := range records {
		if !IsStale(r, step, current) {
			continue
		}
		quarantined := false
		if e.quarantine != nil {
			quarantined, _ = e.quarantine.IsQuarantined(ctx, r.VideoID, step)
		}
		items = append(items, StaleItem{
			VideoID:         r.VideoID,
			URL:             r.URL,
			CurrentVersion:  r.PipelineState[step],
			RequiredVersion: current,
			Quarantined:     quarantined,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		// Non-quarantined items sort first so a handful of chronically
		// failing items never monopolize a bounded batch; within each
		// group, order is stable by video_id.
		if items[i].Quarantined != items[j].Quarantined {
			return !items[i].Quarantined
		}
		return items[i].VideoID < items[j].VideoID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

// BackfillCounts returns the number of stale items per registered step
// (spec §4.7 backfill_counts).
func (e *Engine) BackfillCounts(ctx context.Context) (map[string]int, error) {
	records, err := e.archive.Iter("", "")
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, step := range e.reg.Names() {
		current := e.reg.VersionHashOf(step)
		n := 0
		for _, r := range records {
			if IsStale(r, step, current) {
				n++
			}
		}
		counts[step] = n
	}
	return counts, nil
}

// RunBackfill selects up to batchSize stale items for step and invokes the
// Pipeline Runner with steps=[step] for each (spec §4.7 run_backfill).
func (e *Engine) RunBackfill(ctx context.Context, step string, batchSize int, cfg runner.Config) (Result, error) {
	items, err := e.BackfillQueue(ctx, step, batchSize)
	if err != nil {
		return Result{}, err
	}
	result := Result{Queued: len(items)}
	cfg.Steps = []string{step}
	cfg.UpdateGraph = true

	for _, item := range items {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				break
			}
		}
		runCtx := runtime.New(ctx, item.VideoID, item.URL, map[string]interface{}{})
		if err := e.runner.Run(runCtx, cfg); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, ItemError{VideoID: item.VideoID, Error: err.Error()})
			continue
		}
		res, ok := runCtx.Result(step)
		if !ok || !res.Success {
			result.Failed++
			msg := "step did not run"
			if ok && res.Err != nil {
				msg = res.Err.Error()
			}
			result.Errors = append(result.Errors, ItemError{VideoID: item.VideoID, Error: msg})
			e.recordFailure(ctx, item.VideoID, step)
			continue
		}
		result.Succeeded++
		e.recordSuccess(ctx, item.VideoID, step)
	}
	return result, nil
}

// RunBackfillAll runs RunBackfill for every registered step, aggregating
// per-step results (spec §4.7 run_backfill_all).
func (e *Engine) RunBackfillAll(ctx context.Context, batchSize int) (map[string]Result, error) {
	out := map[string]Result{}
	for _, step := range e.reg.Names() {
		res, err := e.RunBackfill(ctx, step, batchSize, runner.Config{})
		if err != nil {
			return nil, err
		}
		out[step] = res
	}
	return out, nil
}

func (e *Engine) recordFailure(ctx context.Context, videoID, step string) {
	if e.quarantine == nil {
		return
	}
	count, err := e.quarantine.RecordFailure(ctx, videoID, step)
	if err != nil {
		e.log.Warn("quarantine record_failure failed", "video_id", videoID, "step", step, "error", err)
		return
	}
	if count >= quarantineThreshold {
		e.log.Warn("item soft-quarantined after consecutive backfill failures",
			"video_id", videoID, "step", step, "consecutive_failures", count)
	}
}

func (e *Engine) recordSuccess(ctx context.Context, videoID, step string) {
	if e.quarantine == nil {
		return
	}
	if err := e.quarantine.ClearFailure(ctx, videoID, step); err != nil {
		e.log.Warn("quarantine clear_failure failed", "video_id", videoID, "step", step, "error", err)
	}
}
