// Command backfill drives the Backfill Engine (spec §4.7) and the
// Backup/Restore component (spec §4.9): reprocessing stale items and
// managing backups of the Index Store tables, as one thin subcommand wrapper around
// internal/backfill and internal/backup (SPEC_FULL §6 Open Question 2).
// Grounded on the teacher's cmd/backfill_file_signatures/main.go
// flag-parsing/exit-code shape, extended to flag.NewFlagSet per verb since
// this entry point covers more than one operation.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/archivescribe/ytingest/internal/pipeline/runner"
	"github.com/archivescribe/ytingest/internal/wiring"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	verb := os.Args[1]
	args := os.Args[2:]

	ctx := context.Background()
	app, err := wiring.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backfill: init: %v\n", err)
		os.Exit(3)
	}

	switch verb {
	case "queue":
		os.Exit(cmdQueue(ctx, app, args))
	case "counts":
		os.Exit(cmdCounts(ctx, app, args))
	case "run":
		os.Exit(cmdRun(ctx, app, args))
	case "run-all":
		os.Exit(cmdRunAll(ctx, app, args))
	case "backup":
		os.Exit(cmdBackup(ctx, app))
	case "restore":
		os.Exit(cmdRestore(ctx, app, args))
	case "list-backups":
		os.Exit(cmdListBackups(ctx, app))
	case "delete-backup":
		os.Exit(cmdDeleteBackup(ctx, app, args))
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `backfill: usage: backfill <verb> [flags]

verbs:
  queue -step NAME [-limit N]     print stale items for a step
  counts                          print per-step stale item counts
  run -step NAME [-batch N]       reprocess up to N stale items for a step
  run-all [-batch N]              run every registered step's backfill
  backup                          create a full backup and print its id
  restore -id ID                  restore a completed backup by id
  list-backups                    list all backup job records
  delete-backup -id ID            delete a backup's blobs and job record`)
}

func cmdQueue(ctx context.Context, app *wiring.App, args []string) int {
	fs := flag.NewFlagSet("queue", flag.ExitOnError)
	step := fs.String("step", "", "step name (required)")
	limit := fs.Int("limit", 0, "max items to list (0 = unbounded)")
	fs.Parse(args)
	if *step == "" {
		fmt.Fprintln(os.Stderr, "backfill queue: -step is required")
		return 1
	}

	items, err := app.Backfill.BackfillQueue(ctx, *step, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backfill queue: %v\n", err)
		return 3
	}
	return printJSON(items)
}

func cmdCounts(ctx context.Context, app *wiring.App, _ []string) int {
	counts, err := app.Backfill.BackfillCounts(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backfill counts: %v\n", err)
		return 3
	}
	return printJSON(counts)
}

func cmdRun(ctx context.Context, app *wiring.App, args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	step := fs.String("step", "", "step name (required)")
	batch := fs.Int("batch", 50, "max items to reprocess this run")
	fs.Parse(args)
	if *step == "" {
		fmt.Fprintln(os.Stderr, "backfill run: -step is required")
		return 1
	}

	result, err := app.Backfill.RunBackfill(ctx, *step, *batch, runner.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "backfill run: %v\n", err)
		return 3
	}
	printJSON(result)
	if result.Failed > 0 {
		return 1
	}
	return 0
}

func cmdRunAll(ctx context.Context, app *wiring.App, args []string) int {
	fs := flag.NewFlagSet("run-all", flag.ExitOnError)
	batch := fs.Int("batch", 50, "max items to reprocess per step")
	fs.Parse(args)

	results, err := app.Backfill.RunBackfillAll(ctx, *batch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backfill run-all: %v\n", err)
		return 3
	}
	printJSON(results)
	for _, r := range results {
		if r.Failed > 0 {
			return 1
		}
	}
	return 0
}

func cmdBackup(ctx context.Context, app *wiring.App) int {
	svc := app.NewBackupService()
	meta, err := svc.RunBackup(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backup: %v\n", err)
		return 3
	}
	return printJSON(meta)
}

func cmdRestore(ctx context.Context, app *wiring.App, args []string) int {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	id := fs.String("id", "", "backup id (required)")
	fs.Parse(args)
	if *id == "" {
		fmt.Fprintln(os.Stderr, "backfill restore: -id is required")
		return 1
	}

	svc := app.NewBackupService()
	if err := svc.RestoreBackup(ctx, *id); err != nil {
		fmt.Fprintf(os.Stderr, "restore: %v\n", err)
		return 1
	}
	fmt.Printf("restored backup %s\n", *id)
	return 0
}

func cmdListBackups(ctx context.Context, app *wiring.App) int {
	svc := app.NewBackupService()
	backups, err := svc.ListBackups(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list-backups: %v\n", err)
		return 3
	}
	return printJSON(backups)
}

func cmdDeleteBackup(ctx context.Context, app *wiring.App, args []string) int {
	fs := flag.NewFlagSet("delete-backup", flag.ExitOnError)
	id := fs.String("id", "", "backup id (required)")
	fs.Parse(args)
	if *id == "" {
		fmt.Fprintln(os.Stderr, "backfill delete-backup: -id is required")
		return 1
	}

	svc := app.NewBackupService()
	if err := svc.DeleteBackup(ctx, *id); err != nil {
		fmt.Fprintf(os.Stderr, "delete-backup: %v\n", err)
		return 1
	}
	fmt.Printf("deleted backup %s\n", *id)
	return 0
}

func printJSON(v interface{}) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		return 3
	}
	return 0
}
