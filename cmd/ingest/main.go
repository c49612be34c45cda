// Command ingest runs the Pipeline Runner over one or more video URLs
// given directly on the command line (spec §9's "single" ingestion CLI;
// SPEC_FULL §6 Open Question 2 resolves the source's overlapping
// single/REPL/batch/simple-batch/scheduled CLI tools into this one thin
// wrapper plus cmd/backfill). Grounded on the teacher's
// cmd/backfill_file_signatures/main.go flag-parsing/exit-code shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/archivescribe/ytingest/internal/domain"
	"github.com/archivescribe/ytingest/internal/pipeline/runner"
	"github.com/archivescribe/ytingest/internal/pipeline/runtime"
	"github.com/archivescribe/ytingest/internal/pkg/errs"
	"github.com/archivescribe/ytingest/internal/steps"
	"github.com/archivescribe/ytingest/internal/wiring"
)

type stepList []string

func (l *stepList) String() string { return strings.Join(*l, ",") }
func (l *stepList) Set(v string) error {
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*l = append(*l, s)
		}
	}
	return nil
}

func main() {
	var stepFlags stepList
	var urls stepList
	var preset string
	var continueOnError bool
	var watchQueue bool
	flag.Var(&stepFlags, "step", "step name to run (repeatable, or comma-separated); defaults to -preset")
	flag.Var(&urls, "url", "video URL to ingest (repeatable, or comma-separated)")
	flag.StringVar(&preset, "preset", "default", "step preset when -step is unset: default|minimal|embedding")
	flag.BoolVar(&continueOnError, "continue-on-error", false, "keep running remaining steps after one fails")
	flag.BoolVar(&watchQueue, "queue", false, "watch QUEUE_ROOT and process dropped CSV files instead of -url")
	flag.Parse()

	ctx := context.Background()
	app, err := wiring.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest: init: %v\n", err)
		os.Exit(3)
	}

	if watchQueue {
		runQueue(ctx, app)
		return
	}

	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "ingest: at least one -url is required (or pass -queue)")
		os.Exit(1)
	}

	stepNames := resolveSteps(stepFlags, preset)
	cfg := runner.Config{Steps: stepNames, UpdateGraph: true, ContinueOnError: continueOnError}

	exitCode := 0
	for _, url := range urls {
		code := runOne(ctx, app, url, cfg)
		if code > exitCode {
			exitCode = code
		}
	}
	os.Exit(exitCode)
}

// runQueue drives the Queue Processor (spec §4.8) until an interrupt or
// terminate signal arrives. Cancellation lets any in-flight CSV row finish
// and leaves its file in processing/ for the next run to resume, per
// spec §4.8's cancellation contract.
func runQueue(parent context.Context, app *wiring.App) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	fmt.Printf("ingest: watching queue root %s\n", app.Cfg.QueueRoot)
	if err := app.Queue.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ingest: queue processor: %v\n", err)
		os.Exit(3)
	}
}

func runOne(ctx context.Context, app *wiring.App, url string, cfg runner.Config) int {
	videoID := videoIDFromURL(url)
	meta := map[string]interface{}{
		domain.MetaSourceType:   string(domain.SourceSingleImport),
		domain.MetaImportMethod: string(domain.ImportMethodCLI),
	}
	runCtx := runtime.New(ctx, videoID, url, meta)

	if err := app.Runner.Run(runCtx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %s: %v\n", url, err)
		return 3
	}

	worstCode := 0
	for _, step := range cfg.Steps {
		res, ok := runCtx.Result(step)
		if !ok {
			continue
		}
		if res.Success {
			fmt.Printf("%s: %s ok (%dms)\n", videoID, step, res.DurationMS)
			continue
		}
		code := 1
		if errs.IsTransient(res.Err) {
			code = 2
		}
		if code > worstCode {
			worstCode = code
		}
		fmt.Printf("%s: %s FAILED [%s]: %v\n", videoID, step, errs.Kind(res.Err), res.Err)
	}
	return worstCode
}

func resolveSteps(explicit stepList, preset string) []string {
	if len(explicit) > 0 {
		return []string(explicit)
	}
	switch preset {
	case "minimal":
		return steps.MinimalSteps
	case "embedding":
		return steps.EmbeddingSteps
	default:
		return steps.DefaultSteps
	}
}

func videoIDFromURL(raw string) string {
	const marker = "v="
	if idx := strings.Index(raw, marker); idx >= 0 {
		rest := raw[idx+len(marker):]
		if end := strings.IndexAny(rest, "&#"); end >= 0 {
			rest = rest[:end]
		}
		return rest
	}
	parts := strings.Split(strings.TrimRight(raw, "/"), "/")
	return parts[len(parts)-1]
}
