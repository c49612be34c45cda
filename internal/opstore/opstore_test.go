package opstore

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	s := New(db, nil)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func TestClaimNextPendingSkipsAlreadyClaimedFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RegisterFile(ctx, "pending/a.csv", 3, "bulk_channel"); err != nil {
		t.Fatalf("RegisterFile: %v", err)
	}
	if err := s.RegisterFile(ctx, "pending/a.csv", 3, "bulk_channel"); err != nil {
		t.Fatalf("RegisterFile (duplicate, should be a no-op): %v", err)
	}

	claimed, err := s.ClaimNextPending(ctx, "worker-1")
	if err != nil {
		t.Fatalf("ClaimNextPending: %v", err)
	}
	if claimed == nil || claimed.Path != "pending/a.csv" {
		t.Fatalf("expected to claim pending/a.csv, got %+v", claimed)
	}
	if claimed.Status != "processing" {
		t.Fatalf("expected claimed file status processing, got %s", claimed.Status)
	}

	again, err := s.ClaimNextPending(ctx, "worker-2")
	if err != nil {
		t.Fatalf("ClaimNextPending (second worker): %v", err)
	}
	if again != nil {
		t.Fatalf("expected no pending file left to claim, got %+v", again)
	}
}

func TestCompleteFileRecordsFailureStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RegisterFile(ctx, "pending/b.csv", 1, "single"); err != nil {
		t.Fatalf("RegisterFile: %v", err)
	}
	if _, err := s.ClaimNextPending(ctx, "worker-1"); err != nil {
		t.Fatalf("ClaimNextPending: %v", err)
	}
	if err := s.RecordRowOutcome(ctx, "pending/b.csv", false); err != nil {
		t.Fatalf("RecordRowOutcome: %v", err)
	}
	if err := s.CompleteFile(ctx, "pending/b.csv", "row 1: upstream timeout"); err != nil {
		t.Fatalf("CompleteFile: %v", err)
	}

	var row QueueFile
	if err := s.db.WithContext(ctx).Where("path = ?", "pending/b.csv").Take(&row).Error; err != nil {
		t.Fatalf("reload row: %v", err)
	}
	if row.Status != "failed" || row.RowsFailed != 1 || row.Error == "" {
		t.Fatalf("expected failed status with rows_failed=1, got %+v", row)
	}
}

func TestQuarantineMarkerLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := s.RecordFailure(ctx, "vid1", "generate_tags"); err != nil {
			t.Fatalf("RecordFailure: %v", err)
		}
	}
	quarantined, err := s.IsQuarantined(ctx, "vid1", "generate_tags")
	if err != nil {
		t.Fatalf("IsQuarantined: %v", err)
	}
	if quarantined {
		t.Fatalf("expected not yet quarantined after 4 failures")
	}

	count, err := s.RecordFailure(ctx, "vid1", "generate_tags")
	if err != nil {
		t.Fatalf("RecordFailure (5th): %v", err)
	}
	if count != 5 {
		t.Fatalf("expected consecutive failure count 5, got %d", count)
	}
	quarantined, err = s.IsQuarantined(ctx, "vid1", "generate_tags")
	if err != nil {
		t.Fatalf("IsQuarantined: %v", err)
	}
	if !quarantined {
		t.Fatalf("expected quarantined after 5 consecutive failures")
	}

	if err := s.ClearFailure(ctx, "vid1", "generate_tags"); err != nil {
		t.Fatalf("ClearFailure: %v", err)
	}
	quarantined, err = s.IsQuarantined(ctx, "vid1", "generate_tags")
	if err != nil {
		t.Fatalf("IsQuarantined (after clear): %v", err)
	}
	if quarantined {
		t.Fatalf("expected quarantine cleared after a success")
	}
}

func TestRecordStepAppendsLedgerRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RecordStep(ctx, "vid1", "generate_tags", "abc123def456", true, "", 42, time.Now().UTC()); err != nil {
		t.Fatalf("RecordStep: %v", err)
	}
	if err := s.RecordStep(ctx, "vid1", "generate_tags", "abc123def456", false, "rate limited", 7, time.Now().UTC()); err != nil {
		t.Fatalf("RecordStep: %v", err)
	}

	var rows []StepExecution
	if err := s.db.WithContext(ctx).Where("video_id = ? AND step = ?", "vid1", "generate_tags").Find(&rows).Error; err != nil {
		t.Fatalf("query ledger rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 append-only ledger rows, got %d", len(rows))
	}
}
