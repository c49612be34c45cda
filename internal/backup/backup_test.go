package backup

import (
	"context"
	"testing"

	"github.com/archivescribe/ytingest/internal/blobstore"
	"github.com/archivescribe/ytingest/internal/indexstore"
)

func seedIndex(t *testing.T, idx indexstore.Store) {
	t.Helper()
	ctx := context.Background()
	if err := idx.Upsert(ctx, "video", "vid1", map[string]interface{}{"title": "First"}); err != nil {
		t.Fatalf("seed video: %v", err)
	}
	if err := idx.Upsert(ctx, "video", "vid2", map[string]interface{}{"title": "Second"}); err != nil {
		t.Fatalf("seed video: %v", err)
	}
	if err := idx.Upsert(ctx, "channel", "chanA", map[string]interface{}{"name": "Channel A"}); err != nil {
		t.Fatalf("seed channel: %v", err)
	}
}

func TestRunBackupWritesManifestAndMarksCompleted(t *testing.T) {
	idx := indexstore.NewMemoryStore()
	seedIndex(t, idx)
	blob, err := blobstore.NewLocalFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFSStore: %v", err)
	}

	svc := New(idx, blob, []string{"video", "channel"}, nil)
	meta, err := svc.RunBackup(context.Background())
	if err != nil {
		t.Fatalf("RunBackup: %v", err)
	}
	if meta.Status != StatusCompleted {
		t.Fatalf("expected status completed, got %s", meta.Status)
	}
	if len(meta.TablesBackedUp) != 2 {
		t.Fatalf("expected 2 tables backed up, got %v", meta.TablesBackedUp)
	}

	var manifest Manifest
	if err := blob.GetJSON(context.Background(), meta.BlobPath+"/manifest.json", &manifest); err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if manifest.BackupID != meta.ID {
		t.Fatalf("manifest backup_id mismatch: %s != %s", manifest.BackupID, meta.ID)
	}
	if len(manifest.Tables) != 2 {
		t.Fatalf("expected manifest to list 2 tables, got %v", manifest.Tables)
	}

	stored, ok, err := svc.GetBackup(context.Background(), meta.ID)
	if err != nil || !ok {
		t.Fatalf("GetBackup: ok=%v err=%v", ok, err)
	}
	if stored.Status != StatusCompleted {
		t.Fatalf("expected stored status completed, got %s", stored.Status)
	}
}

func TestRestoreBackupRecreatesRowsPreservingIDs(t *testing.T) {
	idx := indexstore.NewMemoryStore()
	seedIndex(t, idx)
	blob, err := blobstore.NewLocalFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFSStore: %v", err)
	}

	svc := New(idx, blob, []string{"video"}, nil)
	meta, err := svc.RunBackup(context.Background())
	if err != nil {
		t.Fatalf("RunBackup: %v", err)
	}

	// Mutate the live store after the backup: delete vid1, change vid2.
	ctx := context.Background()
	if err := idx.Delete(ctx, "video", "vid1"); err != nil {
		t.Fatalf("delete vid1: %v", err)
	}
	if err := idx.Upsert(ctx, "video", "vid2", map[string]interface{}{"title": "Mutated"}); err != nil {
		t.Fatalf("mutate vid2: %v", err)
	}

	if err := svc.RestoreBackup(ctx, meta.ID); err != nil {
		t.Fatalf("RestoreBackup: %v", err)
	}

	fields, ok, err := idx.Get(ctx, "video", "vid1")
	if err != nil || !ok {
		t.Fatalf("expected vid1 restored, ok=%v err=%v", ok, err)
	}
	if fields["title"] != "First" {
		t.Fatalf("expected restored vid1 title 'First', got %v", fields["title"])
	}
	fields2, ok, err := idx.Get(ctx, "video", "vid2")
	if err != nil || !ok {
		t.Fatalf("expected vid2 restored, ok=%v err=%v", ok, err)
	}
	if fields2["title"] != "Second" {
		t.Fatalf("expected restored vid2 title 'Second' (pre-mutation value), got %v", fields2["title"])
	}
}

func TestRestoreBackupRejectsIncompleteJob(t *testing.T) {
	idx := indexstore.NewMemoryStore()
	blob, err := blobstore.NewLocalFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFSStore: %v", err)
	}
	svc := New(idx, blob, []string{"video"}, nil)

	if err := idx.Upsert(context.Background(), "backup", "bad-id", map[string]interface{}{"status": "pending"}); err != nil {
		t.Fatalf("seed pending backup job: %v", err)
	}
	if err := svc.RestoreBackup(context.Background(), "bad-id"); err == nil {
		t.Fatalf("expected RestoreBackup to reject a non-completed job")
	}
}

func TestDeleteBackupRemovesBlobKeysAndJobRecord(t *testing.T) {
	idx := indexstore.NewMemoryStore()
	seedIndex(t, idx)
	blob, err := blobstore.NewLocalFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalFSStore: %v", err)
	}
	svc := New(idx, blob, []string{"video"}, nil)
	meta, err := svc.RunBackup(context.Background())
	if err != nil {
		t.Fatalf("RunBackup: %v", err)
	}

	if err := svc.DeleteBackup(context.Background(), meta.ID); err != nil {
		t.Fatalf("DeleteBackup: %v", err)
	}
	if _, ok, err := svc.GetBackup(context.Background(), meta.ID); err != nil || ok {
		t.Fatalf("expected backup job record gone, ok=%v err=%v", ok, err)
	}
	keys, err := blob.List(context.Background(), meta.BlobPath)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected no blob keys left under %s, got %v", meta.BlobPath, keys)
	}
}
