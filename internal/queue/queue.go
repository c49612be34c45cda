// Package queue implements the Queue Processor component (spec §4.8): a
// directory watcher that turns dropped CSV files into Pipeline Runner
// invocations, one row at a time, with an atomic rename protocol as the
// source of truth for a file's position in pending/processing/completed.
//
// Grounded on the teacher's internal/jobs/worker/worker.go ticker-poll /
// claim / dispatch loop shape (runLoop, startHeartbeat-less here since a
// single CSV row is short-lived, not a long-running job needing a
// heartbeat), generalized from a DB-row claim to a filesystem rename
// claim, and on original_source/compose/cli/batch_ingest_youtube.py for
// the CSV-row -> provenance -> pipeline-run shape.
package queue

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/archivescribe/ytingest/internal/domain"
	"github.com/archivescribe/ytingest/internal/notify"
	"github.com/archivescribe/ytingest/internal/opstore"
	"github.com/archivescribe/ytingest/internal/pipeline/runner"
	"github.com/archivescribe/ytingest/internal/pipeline/runtime"
	"github.com/archivescribe/ytingest/internal/platform/logger"
)

// Config controls one Processor (spec §4.8, §6 QUEUE_ROOT/POLL_INTERVAL_SECONDS).
type Config struct {
	Root               string
	Steps              []string
	PollInterval       time.Duration
	InterRowDelay      time.Duration
	SourceTypeOverride *domain.SourceType
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.InterRowDelay <= 0 {
		c.InterRowDelay = time.Second
	}
	return c
}

// Processor watches Config.Root's pending/processing/completed
// subdirectories and drives the Pipeline Runner over each CSV row it
// finds.
type Processor struct {
	cfg     Config
	runner  *runner.Runner
	ledger  *opstore.Store // optional; nil disables ledger coordination
	notify  notify.Notifier
	limiter *rate.Limiter
	log     *logger.Logger
}

// New constructs a Processor. ledger and notifier may both be nil.
func New(cfg Config, run *runner.Runner, ledger *opstore.Store, notifier notify.Notifier, log *logger.Logger) *Processor {
	if log == nil {
		log, _ = logger.New("")
	}
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	cfg = cfg.withDefaults()
	return &Processor{
		cfg:     cfg,
		runner:  run,
		ledger:  ledger,
		notify:  notifier,
		limiter: rate.NewLimiter(rate.Every(cfg.InterRowDelay), 1),
		log:     log.With("component", "queue.Processor"),
	}
}

func (p *Processor) pendingDir() string    { return filepath.Join(p.cfg.Root, "pending") }
func (p *Processor) processingDir() string { return filepath.Join(p.cfg.Root, "processing") }
func (p *Processor) completedDir() string  { return filepath.Join(p.cfg.Root, "completed") }

// EnsureDirs creates the three well-known subdirectories if absent.
func (p *Processor) EnsureDirs() error {
	for _, d := range []string{p.pendingDir(), p.processingDir(), p.completedDir()} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Run polls Config.Root every Config.PollInterval until ctx is cancelled.
// On entry it first resumes any files left in processing/ from a prior
// run (spec §4.8 Cancellation: "processing/ is a legitimate resume
// point"), then ticks normally.
func (p *Processor) Run(ctx context.Context) error {
	if err := p.EnsureDirs(); err != nil {
		return err
	}
	if _, err := p.resumeProcessing(ctx); err != nil {
		p.log.Warn("resume of in-flight files failed", "error", err)
	}

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := p.Tick(ctx); err != nil {
				p.log.Warn("queue tick failed", "error", err)
			}
		}
	}
}

// Tick performs one pass: claim every currently-pending file (in
// lexicographic order, spec §4.8 step 1) and process each to completion
// or to an early, resumable stop if ctx is cancelled mid-file. It returns
// the number of files claimed this pass.
func (p *Processor) Tick(ctx context.Context) (int, error) {
	names, err := p.listPending()
	if err != nil {
		return 0, err
	}
	claimed := 0
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		processingPath, ok := p.claim(name)
		if !ok {
			continue // another worker grabbed it first; spec §4.8 step 2
		}
		claimed++
		p.processFile(ctx, processingPath)
	}
	return claimed, nil
}

func (p *Processor) listPending() ([]string, error) {
	entries, err := os.ReadDir(p.pendingDir())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// claim atomically renames name from pending/ to processing/. A rename
// failure (including a concurrent claimant winning first) means this
// worker skips the file, per spec §4.8 step 2.
func (p *Processor) claim(name string) (string, bool) {
	src := filepath.Join(p.pendingDir(), name)
	dst := filepath.Join(p.processingDir(), name)
	if err := os.Rename(src, dst); err != nil {
		return "", false
	}
	return dst, true
}

// resumeProcessing re-drives every file already sitting in processing/ at
// startup, since a prior process may have been cancelled mid-file.
func (p *Processor) resumeProcessing(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(p.processingDir())
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			continue
		}
		n++
		p.processFile(ctx, filepath.Join(p.processingDir(), e.Name()))
	}
	return n, nil
}

// processFile parses path (already in processing/) and runs the Pipeline
// Runner over each row. It renames path to completed/ only if every row
// was attempted; if ctx is cancelled mid-file, it returns leaving the file
// in processing/ for the next resumeProcessing call (spec §4.8 Cancellation).
func (p *Processor) processFile(ctx context.Context, path string) {
	log := p.log.With("file", path)
	f, err := os.Open(path)
	if err != nil {
		log.Error("open queue file failed", "error", err)
		return
	}
	rows, err := ParseCSV(f)
	f.Close()
	if err != nil {
		log.Error("parse queue file failed", "error", err)
		p.finishFile(ctx, path, err.Error())
		return
	}

	sourceType := InferSourceType(rows)
	if p.cfg.SourceTypeOverride != nil {
		sourceType = *p.cfg.SourceTypeOverride
	}
	if p.ledger != nil {
		if err := p.ledger.RegisterFile(ctx, path, len(rows), string(sourceType)); err != nil {
			log.Warn("ledger RegisterFile failed", "error", err)
		}
	}

	completedAll := true
	for _, row := range rows {
		if ctx.Err() != nil {
			completedAll = false
			break
		}
		if err := p.limiter.Wait(ctx); err != nil {
			completedAll = false
			break
		}
		p.runRow(ctx, path, row, sourceType)
	}

	if !completedAll {
		log.Info("queue file left in processing/ for resume: cancelled mid-file")
		return
	}
	p.finishFile(ctx, path, "")
}

func (p *Processor) runRow(ctx context.Context, path string, row Row, sourceType domain.SourceType) {
	videoID := row.VideoID
	if videoID == "" {
		videoID = videoIDFromURL(row.URL)
	}

	meta := map[string]interface{}{
		domain.MetaSourceType:   string(sourceType),
		domain.MetaImportMethod: string(domain.ImportMethodScheduled),
		domain.MetaIsBulkImport: true,
	}
	if row.ChannelID != "" {
		meta[domain.MetaChannelID] = row.ChannelID
	}
	if row.ChannelTitle != "" {
		meta[domain.MetaChannelName] = row.ChannelTitle
	}

	runCtx := runtime.New(ctx, videoID, row.URL, meta)
	p.notify.Progress(ctx, notify.Event{VideoID: videoID, Message: "queue row starting"})

	cfg := runner.Config{Steps: p.cfg.Steps, UpdateGraph: true}
	ok := true
	if err := p.runner.Run(runCtx, cfg); err != nil {
		ok = false
		p.notify.Failed(ctx, notify.Event{VideoID: videoID, Message: err.Error()})
	} else if res, exists := lastResult(runCtx, cfg.Steps); exists && !res.Success {
		ok = false
		msg := "step failed"
		if res.Err != nil {
			msg = res.Err.Error()
		}
		p.notify.Failed(ctx, notify.Event{VideoID: videoID, Message: msg})
	} else {
		p.notify.Done(ctx, notify.Event{VideoID: videoID, Message: "queue row complete"})
	}

	if p.ledger != nil {
		if err := p.ledger.RecordRowOutcome(ctx, path, ok); err != nil {
			p.log.Warn("ledger RecordRowOutcome failed", "error", err)
		}
	}
}

func lastResult(ctx *runtime.Context, steps []string) (runtime.StepResult, bool) {
	if len(steps) == 0 {
		return runtime.StepResult{}, false
	}
	return ctx.Result(steps[len(steps)-1])
}

func (p *Processor) finishFile(ctx context.Context, path, errMsg string) {
	dst := filepath.Join(p.completedDir(), filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		p.log.Error("rename to completed/ failed", "path", path, "error", err)
		return
	}
	if p.ledger != nil {
		if err := p.ledger.CompleteFile(ctx, path, errMsg); err != nil {
			p.log.Warn("ledger CompleteFile failed", "error", err)
		}
	}
}

// videoIDFromURL extracts a best-effort video id from a YouTube-style URL
// when a CSV row omits the video_id column: the "v" query parameter, or
// the final path segment as a fallback (e.g. youtu.be/<id>).
func videoIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if v := u.Query().Get("v"); v != "" {
		return v
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) > 0 && parts[len(parts)-1] != "" {
		return parts[len(parts)-1]
	}
	return raw
}
