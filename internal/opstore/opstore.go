package opstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/archivescribe/ytingest/internal/platform/logger"
)

// Store wraps a *gorm.DB with the three operational ledgers this package
// defines. One Store is shared by the Queue Processor and the Backfill
// Engine within a process.
type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

// New wires a Store over db. Migrate must be called once at startup
// before the first claim/record call (mirrors teacher convention of an
// explicit AutoMigrate step, not a lazy one hidden inside queries).
func New(db *gorm.DB, log *logger.Logger) *Store {
	if log == nil {
		log, _ = logger.New("")
	}
	return &Store{db: db, log: log.With("component", "opstore.Store")}
}

// Migrate runs AutoMigrate for every table this package owns. Safe to call
// repeatedly; GORM's AutoMigrate is additive and idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&QueueFile{}, &QuarantineMark{}, &StepExecution{})
}

// ---- Queue file ledger ----

// RegisterFile inserts a queue_file row in status=pending for path, or is
// a no-op if one already exists (path is unique). The Queue Processor calls
// it after claiming a CSV by renaming it into processing/, passing the
// processing/ path.
func (s *Store) RegisterFile(ctx context.Context, path string, rowCount int, sourceType string) error {
	row := QueueFile{Path: path, Status: "pending", RowCount: rowCount, SourceType: sourceType}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "path"}}, DoNothing: true}).
		Create(&row).Error
}

// ClaimNextPending claims the oldest pending queue_file row, marking it
// processing and stamping lockedBy/locked_at. The claim is a conditional
// UPDATE guarded by `status = 'pending'`: if a concurrent claimer wins the
// race on the same row, this call's UPDATE affects zero rows and it
// retries against the next-oldest candidate, so two Queue Processor
// instances never both claim the same file. Returns (nil, nil) if nothing
// is pending. Grounded on the teacher's ClaimNextRunnable call shape in
// internal/jobs/worker/worker.go, restated without a database-specific
// locking clause so it runs unmodified against both Postgres (prod) and
// SQLite (tests).
func (s *Store) ClaimNextPending(ctx context.Context, lockedBy string) (*QueueFile, error) {
	const candidateBatch = 20
	var candidates []QueueFile
	if err := s.db.WithContext(ctx).
		Where("status = ?", "pending").
		Order("created_at ASC").
		Limit(candidateBatch).
		Find(&candidates).Error; err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, c := range candidates {
		tx := s.db.WithContext(ctx).Model(&QueueFile{}).
			Where("id = ? AND status = ?", c.ID, "pending").
			Updates(map[string]interface{}{
				"status":    "processing",
				"locked_at": &now,
				"locked_by": lockedBy,
			})
		if tx.Error != nil {
			return nil, tx.Error
		}
		if tx.RowsAffected == 1 {
			c.Status = "processing"
			c.LockedAt = &now
			c.LockedBy = lockedBy
			return &c, nil
		}
	}
	return nil, nil
}

// RecordRowOutcome increments rows_done, and rows_failed when ok is false,
// for the file at path. Called once per CSV row after its pipeline run.
func (s *Store) RecordRowOutcome(ctx context.Context, path string, ok bool) error {
	updates := map[string]interface{}{"rows_done": gorm.Expr("rows_done + 1")}
	if !ok {
		updates["rows_failed"] = gorm.Expr("rows_failed + 1")
	}
	return s.db.WithContext(ctx).Model(&QueueFile{}).Where("path = ?", path).Updates(updates).Error
}

// CompleteFile marks path completed (or failed, if errMsg is non-empty),
// matching the rename the Queue Processor performs on the filesystem in
// the same step (spec §4.8 step 4).
func (s *Store) CompleteFile(ctx context.Context, path string, errMsg string) error {
	status := "completed"
	if errMsg != "" {
		status = "failed"
	}
	now := time.Now().UTC()
	return s.db.WithContext(ctx).Model(&QueueFile{}).Where("path = ?", path).Updates(map[string]interface{}{
		"status":       status,
		"error":        errMsg,
		"completed_at": &now,
	}).Error
}

// ---- Backfill quarantine markers ----

// RecordFailure increments the consecutive-failure counter for
// (videoID, step) and returns the new count. Implements
// backfill.QuarantineStore.
func (s *Store) RecordFailure(ctx context.Context, videoID, step string) (int, error) {
	var mark QuarantineMark
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("video_id = ? AND step = ?", videoID, step).Take(&mark).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			mark = QuarantineMark{VideoID: videoID, Step: step, ConsecutiveFailures: 1}
			return tx.Create(&mark).Error
		case err != nil:
			return err
		default:
			mark.ConsecutiveFailures++
			return tx.Save(&mark).Error
		}
	})
	if err != nil {
		return 0, err
	}
	return mark.ConsecutiveFailures, nil
}

// ClearFailure resets the consecutive-failure counter for (videoID, step)
// to zero. Implements backfill.QuarantineStore.
func (s *Store) ClearFailure(ctx context.Context, videoID, step string) error {
	return s.db.WithContext(ctx).Model(&QuarantineMark{}).
		Where("video_id = ? AND step = ?", videoID, step).
		Update("consecutive_failures", 0).Error
}

// IsQuarantined reports whether (videoID, step) has reached the
// soft-quarantine threshold. Implements backfill.QuarantineStore.
func (s *Store) IsQuarantined(ctx context.Context, videoID, step string) (bool, error) {
	var mark QuarantineMark
	err := s.db.WithContext(ctx).Where("video_id = ? AND step = ?", videoID, step).Take(&mark).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return mark.ConsecutiveFailures >= quarantineThreshold, nil
}

// quarantineThreshold mirrors backfill.quarantineThreshold (spec §4.7's
// "five consecutive failures"); duplicated rather than imported to avoid
// a dependency cycle between opstore and backfill.
const quarantineThreshold = 5

// ---- Step execution ledger ----

// RecordStepExecution appends one row to the step-execution ledger.
func (s *Store) RecordStepExecution(ctx context.Context, e StepExecution) error {
	return s.db.WithContext(ctx).Create(&e).Error
}

// RecordStep satisfies runner.StepExecutionLedger with primitive
// arguments, so internal/pipeline/runner has no compile-time dependency
// on this package or on gorm.
func (s *Store) RecordStep(ctx context.Context, videoID, step, versionHash string, success bool, errMsg string, durationMS int64, startedAt time.Time) error {
	return s.RecordStepExecution(ctx, StepExecution{
		VideoID:     videoID,
		Step:        step,
		VersionHash: versionHash,
		Success:     success,
		Error:       errMsg,
		DurationMS:  durationMS,
		StartedAt:   startedAt,
	})
}
