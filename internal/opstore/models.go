// Package opstore implements the Operational Store (SPEC_FULL §4.11): a
// GORM-backed ledger that augments the filesystem-and-archive-file sources
// of truth with durably queryable state. It backs three concerns:
//
//   - the Queue Processor's per-file ledger of claimed files and their row
//     outcomes; ClaimNextPending offers a ledger-side claim, which the
//     Queue Processor does not call (it claims files by directory rename,
//     spec §4.8, the source of truth for file location; this ledger is an
//     observability aid);
//   - the Backfill Engine's soft-quarantine marker (spec §4.7), persisted
//     so it survives process restarts;
//   - an append-only step-execution ledger giving a processing_history
//     equivalent durable independent of the archive file, for testable
//     property §8.1.
//
// Grounded on the teacher's internal/domain/jobs/job_run.go row shape and
// the claim/lease idiom visible in internal/jobs/worker/worker.go's
// ClaimNextRunnable call (maxAttempts/retryDelay/staleRunning).
package opstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// QueueFile is one row per CSV file the Queue Processor has observed.
// Status is set by the ledger calls (RegisterFile: pending,
// ClaimNextPending: processing, CompleteFile: completed or failed), not by
// the file's directory; a file the Queue Processor registers already sits
// in processing/ while its row says pending, which is why the rename
// protocol (not this table) remains the source of truth for location.
type QueueFile struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Path        string     `gorm:"column:path;not null;uniqueIndex" json:"path"`
	Status      string     `gorm:"column:status;not null;index" json:"status"` // pending|processing|completed|failed
	SourceType  string     `gorm:"column:source_type" json:"source_type,omitempty"`
	RowCount    int        `gorm:"column:row_count;not null;default:0" json:"row_count"`
	RowsDone    int        `gorm:"column:rows_done;not null;default:0" json:"rows_done"`
	RowsFailed  int        `gorm:"column:rows_failed;not null;default:0" json:"rows_failed"`
	LockedAt    *time.Time `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	LockedBy    string     `gorm:"column:locked_by" json:"locked_by,omitempty"`
	Error       string     `gorm:"column:error" json:"error,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;default:now()" json:"updated_at"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (QueueFile) TableName() string { return "queue_file" }

// QuarantineMark is the durable consecutive-failure counter spec §4.7
// names for a (video_id, step) pair.
type QuarantineMark struct {
	ID                  uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	VideoID             string    `gorm:"column:video_id;not null;uniqueIndex:idx_quarantine_video_step" json:"video_id"`
	Step                string    `gorm:"column:step;not null;uniqueIndex:idx_quarantine_video_step" json:"step"`
	ConsecutiveFailures int       `gorm:"column:consecutive_failures;not null;default:0" json:"consecutive_failures"`
	UpdatedAt           time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (QuarantineMark) TableName() string { return "backfill_quarantine" }

// StepExecution is one append-only row per step invocation, the ledger
// equivalent of a VideoRecord's processing_history entry (spec §8.1).
type StepExecution struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	VideoID     string         `gorm:"column:video_id;not null;index" json:"video_id"`
	Step        string         `gorm:"column:step;not null;index" json:"step"`
	VersionHash string         `gorm:"column:version_hash;not null" json:"version_hash"`
	Success     bool           `gorm:"column:success;not null" json:"success"`
	Error       string         `gorm:"column:error" json:"error,omitempty"`
	DurationMS  int64          `gorm:"column:duration_ms;not null" json:"duration_ms"`
	StartedAt   time.Time      `gorm:"column:started_at;not null;index" json:"started_at"`
	Meta        datatypes.JSON `gorm:"column:meta;type:jsonb" json:"meta,omitempty"`
}

func (StepExecution) TableName() string { return "pipeline_step_execution" }
