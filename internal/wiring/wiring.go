// Package wiring is the composition root for ytingest's CLI entry points
// (cmd/ingest, cmd/backfill): it reads internal/config and constructs every
// adapter the Pipeline Runner, Backfill Engine, and Queue Processor need.
//
// Grounded on the teacher's internal/app.New() sequencing (logger, then
// config, then storage/DB, then domain services, in that order) and
// internal/db.NewPostgresService's DSN-from-env construction, collapsed to
// the adapters this core actually has (no HTTP router, no SSE hub — spec
// §1 places those out of scope).
package wiring

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/archivescribe/ytingest/internal/archive"
	"github.com/archivescribe/ytingest/internal/backfill"
	"github.com/archivescribe/ytingest/internal/backup"
	"github.com/archivescribe/ytingest/internal/blobstore"
	"github.com/archivescribe/ytingest/internal/config"
	"github.com/archivescribe/ytingest/internal/embedding"
	"github.com/archivescribe/ytingest/internal/indexstore"
	"github.com/archivescribe/ytingest/internal/llm"
	"github.com/archivescribe/ytingest/internal/notify"
	"github.com/archivescribe/ytingest/internal/opstore"
	"github.com/archivescribe/ytingest/internal/pipeline/registry"
	"github.com/archivescribe/ytingest/internal/pipeline/runner"
	"github.com/archivescribe/ytingest/internal/platform/logger"
	"github.com/archivescribe/ytingest/internal/queue"
	"github.com/archivescribe/ytingest/internal/steps"
	"github.com/archivescribe/ytingest/internal/youtubeapi"
)

// App bundles every wired component a CLI main() needs.
type App struct {
	Log        *logger.Logger
	Cfg        config.Config
	DB         *gorm.DB
	Archive    *archive.Store
	Blob       blobstore.Store
	Index      indexstore.Store
	Embeddings embedding.Client
	LLM        llm.Client
	Registry   *registry.Registry
	Runner     *runner.Runner
	Ops        *opstore.Store
	Notify     notify.Notifier
	Backfill   *backfill.Engine
	Queue      *queue.Processor
}

// New wires an App from the process environment.
func New(ctx context.Context) (*App, error) {
	log, err := logger.New(config.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("wiring: init logger: %w", err)
	}
	cfg := config.FromEnv()

	arc, err := archive.New(cfg.ArchiveRoot, true, log)
	if err != nil {
		return nil, fmt.Errorf("wiring: init archive store: %w", err)
	}

	blob, err := newBlobStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("wiring: init blob store: %w", err)
	}

	idx, err := newIndexStore(log)
	if err != nil {
		return nil, fmt.Errorf("wiring: init index store: %w", err)
	}

	db, err := newDB(log)
	if err != nil {
		return nil, fmt.Errorf("wiring: init operational store db: %w", err)
	}
	ops := opstore.New(db, log)
	if err := ops.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("wiring: migrate operational store: %w", err)
	}

	embedClient := embedding.New(cfg.EmbeddingURL, "", cfg.EmbeddingModel, log)
	llmClient := llm.New(cfg.LLMURL, cfg.LLMAPIKey, cfg.LLMModel, log)

	metadataFetcher, err := newMetadataFetcher(ctx, log)
	if err != nil {
		return nil, fmt.Errorf("wiring: init metadata fetcher: %w", err)
	}
	transcriptFetcher := youtubeapi.NewTranscriptService(transcriptLanguages(), log)

	var notifier notify.Notifier = notify.NoopNotifier{}
	if natsURL := config.String("NATS_URL", ""); natsURL != "" {
		n, err := notify.NewNATSNotifier(natsURL, log)
		if err != nil {
			log.Warn("wiring: NATS notifier unavailable, falling back to no-op", "error", err)
		} else {
			notifier = n
		}
	}

	reg := registry.New()
	deps := steps.Deps{
		Transcripts:    transcriptFetcher,
		Metadata:       metadataFetcher,
		Archive:        arc,
		Blob:           blob,
		Index:          idx,
		Embeddings:     embedClient,
		LLM:            llmClient,
		TagsModel:      cfg.LLMModel,
		EmbeddingModel: cfg.EmbeddingModel,
	}
	steps.RegisterAll(reg, deps, nil)

	run := runner.New(reg, idx, arc, log).WithStepExecutionLedger(ops)

	bf := backfill.New(arc, reg, run, ops, float64(config.Int("BACKFILL_RATE_PER_SECOND", 0)), log)

	qp := queue.New(queue.Config{
		Root:         cfg.QueueRoot,
		Steps:        steps.DefaultSteps,
		PollInterval: cfg.PollInterval,
	}, run, ops, notifier, log)

	return &App{
		Log:        log,
		Cfg:        cfg,
		DB:         db,
		Archive:    arc,
		Blob:       blob,
		Index:      idx,
		Embeddings: embedClient,
		LLM:        llmClient,
		Registry:   reg,
		Runner:     run,
		Ops:        ops,
		Notify:     notifier,
		Backfill:   bf,
		Queue:      qp,
	}, nil
}

// NewBackupService constructs a backup.Service from an already-wired App.
// It is not part of App itself since only cmd/backfill's "backup" verb
// needs it (spec §4.9 has no steady-state caller).
func (a *App) NewBackupService() *backup.Service {
	return backup.New(a.Index, a.Blob, backup.DefaultTables, a.Log)
}

func newBlobStore(ctx context.Context, cfg config.Config, log *logger.Logger) (blobstore.Store, error) {
	bucket := strings.TrimSpace(cfg.BlobBucket)
	if bucket == "" {
		return blobstore.NewLocalFSStore(cfg.ArchiveRoot + "/blob")
	}
	emulator := ""
	if !cfg.BlobSecure {
		emulator = strings.TrimSpace(cfg.BlobURL)
	}
	return blobstore.NewGCSStore(ctx, bucket, emulator, log)
}

func newIndexStore(log *logger.Logger) (indexstore.Store, error) {
	records, err := indexstore.NewNeo4jStoreFromEnv(log)
	if err != nil {
		return nil, err
	}
	vectors, err := indexstore.NewQdrantStoreFromEnv(log)
	if err != nil {
		return nil, err
	}
	if records == nil {
		_ = vectors.Close()
		log.Warn("wiring: no NEO4J_URI configured, using an in-process MemoryStore (not durable)")
		return indexstore.NewMemoryStore(), nil
	}
	return indexstore.NewCompositeStore(records, vectors), nil
}

// newMetadataFetcher wires the fetch_metadata step's collaborator.
// YOUTUBE_API_KEY is required: unlike the index/blob/db adapters, there
// is no local in-process fallback for the YouTube Data API.
func newMetadataFetcher(ctx context.Context, log *logger.Logger) (*youtubeapi.MetadataService, error) {
	apiKey := strings.TrimSpace(os.Getenv("YOUTUBE_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("YOUTUBE_API_KEY is required")
	}
	return youtubeapi.NewMetadataService(ctx, apiKey, log)
}

// transcriptLanguages parses TRANSCRIPT_LANGUAGES as a comma-separated
// list (e.g. "en,en-US"), defaulting to []string{"en"}.
func transcriptLanguages() []string {
	raw := strings.TrimSpace(config.String("TRANSCRIPT_LANGUAGES", "en"))
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"en"}
	}
	return out
}

// newDB opens the operational store's database. OPSTORE_DSN selects
// Postgres (production); when unset, a local sqlite file under
// OPSTORE_SQLITE_PATH (default ./data/opstore.sqlite3) is used instead,
// mirroring the Index Store adapters' "optional backend, env-gated"
// convention rather than failing a local/dev run outright.
func newDB(log *logger.Logger) (*gorm.DB, error) {
	if dsn := strings.TrimSpace(os.Getenv("OPSTORE_DSN")); dsn != "" {
		return gorm.Open(postgres.Open(dsn), &gorm.Config{DisableForeignKeyConstraintWhenMigrating: true})
	}
	path := config.String("OPSTORE_SQLITE_PATH", "./data/opstore.sqlite3")
	log.Info("wiring: OPSTORE_DSN unset, using sqlite operational store", "path", path)
	return gorm.Open(sqlite.Open(path), &gorm.Config{})
}
