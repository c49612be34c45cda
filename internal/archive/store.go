// Package archive implements the Archive Store component (spec §4.1): the
// content-addressed, month-partitioned, atomically-written per-video JSON
// record that is the source of truth for every downstream write.
package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/archivescribe/ytingest/internal/domain"
	"github.com/archivescribe/ytingest/internal/pkg/errs"
	"github.com/archivescribe/ytingest/internal/platform/logger"
)

// Store implements the Archive Store contract over a local filesystem
// root, grounded on original_source's LocalArchiveWriter (month-partitioned
// youtube/ tree, flat-layout fallback) restated with the
// temp-file-in-same-dir-then-rename protocol spec §4.1 requires.
type Store struct {
	root            string
	organizeByMonth bool
	log             *logger.Logger

	// perVideo serializes writers for the same video_id within this
	// process, matching spec §5's "at most one writer per video_id"
	// shared-resource rule; cross-process safety is the caller's
	// responsibility (e.g. sharding the Queue Processor by hash(video_id)).
	mu       sync.Mutex
	perVideo map[string]*sync.Mutex
}

// New constructs a Store rooted at root. organizeByMonth selects the
// YYYY-MM partitioned layout; when false, records live flat under
// <root>/youtube/<video_id>.json.
func New(root string, organizeByMonth bool, log *logger.Logger) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("archive: root must not be empty")
	}
	youtubeDir := filepath.Join(root, "youtube")
	if err := os.MkdirAll(youtubeDir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create youtube dir: %w", err)
	}
	if log == nil {
		log, _ = logger.New("")
	}
	return &Store{
		root:            root,
		organizeByMonth: organizeByMonth,
		log:             log.With("component", "archive.Store"),
		perVideo:        map[string]*sync.Mutex{},
	}, nil
}

func (s *Store) lockFor(videoID string) func() {
	s.mu.Lock()
	lk, ok := s.perVideo[videoID]
	if !ok {
		lk = &sync.Mutex{}
		s.perVideo[videoID] = lk
	}
	s.mu.Unlock()
	lk.Lock()
	return lk.Unlock
}

func (s *Store) youtubeDir() string {
	return filepath.Join(s.root, "youtube")
}

func (s *Store) monthDir(fetchedAt time.Time) string {
	if !s.organizeByMonth {
		return s.youtubeDir()
	}
	return filepath.Join(s.youtubeDir(), fetchedAt.UTC().Format("2006-01"))
}

// pathFor locates the on-disk file for videoID, searching every month
// directory when organizing by month (mirrors LocalArchiveWriter.get's
// directory scan). Returns "", false if no file exists anywhere.
func (s *Store) pathFor(videoID string) (string, bool, error) {
	if !s.organizeByMonth {
		p := filepath.Join(s.youtubeDir(), videoID+".json")
		if _, err := os.Stat(p); err == nil {
			return p, true, nil
		}
		return "", false, nil
	}
	entries, err := os.ReadDir(s.youtubeDir())
	if err != nil {
		return "", false, fmt.Errorf("archive: scan youtube dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		p := filepath.Join(s.youtubeDir(), entry.Name(), videoID+".json")
		if _, err := os.Stat(p); err == nil {
			return p, true, nil
		}
	}
	return "", false, nil
}

// Exists reports whether a record exists for videoID.
func (s *Store) Exists(videoID string) (bool, error) {
	_, ok, err := s.pathFor(videoID)
	return ok, err
}

// Get loads and returns the VideoRecord for videoID, or (nil, nil) if absent.
func (s *Store) Get(videoID string) (*domain.VideoRecord, error) {
	path, ok, err := s.pathFor(videoID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return readRecord(path)
}

func readRecord(path string) (*domain.VideoRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// A reader tolerates a missing partial file; treat as absent.
			return nil, nil
		}
		return nil, fmt.Errorf("archive: read %s: %w", path, err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("archive: decode %s: %w", path, err)
	}
	var rec domain.VideoRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("archive: decode %s: %w", path, err)
	}
	rec.Extra = extraFields(raw)
	return &rec, nil
}

// knownFields lists every json tag the VideoRecord struct itself declares,
// used to separate round-tripped unknown fields (spec §6: "unknown fields
// are preserved on read and re-emitted on write") from known ones.
var knownFields = map[string]bool{
	"video_id": true, "url": true, "fetched_at": true, "youtube_metadata": true,
	"raw_transcript": true, "timed_transcript": true, "llm_outputs": true,
	"derived_outputs": true, "processing_history": true, "import_metadata": true,
	"pipeline_state": true, "embedding": true, "archive_path": true,
}

func extraFields(raw map[string]interface{}) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	extra := map[string]interface{}{}
	for k, v := range raw {
		if !knownFields[k] {
			extra[k] = v
		}
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}

// writeAtomic implements spec §4.1's atomic write protocol: write to a
// sibling temp file in the target's own directory, fsync it, then rename
// over the target. The Archive Store MUST reject configurations that would
// place temp and target on different volumes, which same-directory temp
// files guarantee.
func writeAtomic(path string, rec *domain.VideoRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("archive: create dir %s: %w", dir, err)
	}

	merged := mergeExtra(rec)
	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: encode record: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("archive: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath) // no-op once rename succeeds
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("archive: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("archive: fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("archive: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("archive: rename into place: %w", err)
	}
	return nil
}

// mergeExtra re-serializes a record with any unknown fields folded back in
// at the top level, so round-tripped documents preserve tooling-added keys.
func mergeExtra(rec *domain.VideoRecord) map[string]interface{} {
	data, _ := json.Marshal(rec)
	var out map[string]interface{}
	_ = json.Unmarshal(data, &out)
	for k, v := range rec.Extra {
		if _, known := out[k]; !known {
			out[k] = v
		}
	}
	return out
}

// UpdateTranscript creates the record if absent and merges transcript
// fields (spec §4.1 update_transcript). Merging is order-independent with
// UpdateMetadata: fields absent from this update leave any existing value
// untouched.
func (s *Store) UpdateTranscript(videoID, url, transcript string, timed []domain.TimedTranscriptEntry, importMeta *domain.ImportMetadata) (*domain.VideoRecord, error) {
	unlock := s.lockFor(videoID)
	defer unlock()

	rec, path, err := s.loadOrCreate(videoID)
	if err != nil {
		return nil, err
	}
	rec.URL = url
	rec.RawTranscript = transcript
	if timed != nil {
		rec.TimedTranscript = timed
	}
	if importMeta != nil {
		rec.ImportMetadata = importMeta
	}
	if err := writeAtomic(path, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateMetadata creates the record if absent and shallow-merges
// youtube_metadata (spec §4.1 update_metadata).
func (s *Store) UpdateMetadata(videoID, url string, metadata map[string]interface{}) (*domain.VideoRecord, error) {
	unlock := s.lockFor(videoID)
	defer unlock()

	rec, path, err := s.loadOrCreate(videoID)
	if err != nil {
		return nil, err
	}
	rec.URL = url
	if rec.YoutubeMetadata == nil {
		rec.YoutubeMetadata = map[string]interface{}{}
	}
	for k, v := range metadata {
		rec.YoutubeMetadata[k] = v
	}
	if err := writeAtomic(path, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// loadOrCreate returns the existing record and its on-disk path, or a fresh
// record and a newly-assigned path (under the current month) if none exists
// yet. The assigned month is stable thereafter, per spec §4.1.
func (s *Store) loadOrCreate(videoID string) (*domain.VideoRecord, string, error) {
	path, ok, err := s.pathFor(videoID)
	if err != nil {
		return nil, "", err
	}
	if ok {
		rec, err := readRecord(path)
		if err != nil {
			return nil, "", err
		}
		if rec == nil {
			rec = domain.NewVideoRecord(videoID, time.Now().UTC())
		}
		return rec, path, nil
	}
	now := time.Now().UTC()
	rec := domain.NewVideoRecord(videoID, now)
	rec.ArchivePath = filepath.Join(s.monthDir(now), videoID+".json")
	return rec, rec.ArchivePath, nil
}

// AppendLLMOutput appends out to llm_outputs. Fails with ErrNotFound if no
// record exists for videoID (spec §4.1).
func (s *Store) AppendLLMOutput(videoID string, out domain.LLMOutput) error {
	return s.mutateExisting(videoID, func(rec *domain.VideoRecord) {
		rec.LLMOutputs = append(rec.LLMOutputs, out)
	})
}

// AppendDerivedOutput appends out to derived_outputs. Fails with
// ErrNotFound if no record exists for videoID (spec §4.1).
func (s *Store) AppendDerivedOutput(videoID string, out domain.DerivedOutput) error {
	return s.mutateExisting(videoID, func(rec *domain.VideoRecord) {
		rec.DerivedOutputs = append(rec.DerivedOutputs, out)
	})
}

// AppendProcessingRecord appends rec to processing_history. Fails with
// ErrNotFound if no record exists for videoID (spec §4.1).
func (s *Store) AppendProcessingRecord(videoID string, pr domain.ProcessingRecord) error {
	return s.mutateExisting(videoID, func(rec *domain.VideoRecord) {
		rec.ProcessingHistory = append(rec.ProcessingHistory, pr)
	})
}

// SetPipelineState records the last successful version hash for step on
// videoID's record. Fails with ErrNotFound if no record exists.
func (s *Store) SetPipelineState(videoID, step, versionHash string) error {
	return s.mutateExisting(videoID, func(rec *domain.VideoRecord) {
		if rec.PipelineState == nil {
			rec.PipelineState = map[string]string{}
		}
		rec.PipelineState[step] = versionHash
	})
}

// SetEmbedding stores the global document embedding on videoID's record.
// Fails with ErrNotFound if no record exists.
func (s *Store) SetEmbedding(videoID string, embedding []float32) error {
	return s.mutateExisting(videoID, func(rec *domain.VideoRecord) {
		rec.Embedding = embedding
	})
}

func (s *Store) mutateExisting(videoID string, mutate func(rec *domain.VideoRecord)) error {
	unlock := s.lockFor(videoID)
	defer unlock()

	path, ok, err := s.pathFor(videoID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("archive: %s: %w", videoID, errs.ErrNotFound)
	}
	rec, err := readRecord(path)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("archive: %s: %w", videoID, errs.ErrNotFound)
	}
	mutate(rec)
	return writeAtomic(path, rec)
}

// Iter returns every VideoRecord in month directories within
// [startMonth, endMonth] (inclusive, "YYYY-MM" format; empty strings mean
// unbounded), sorted by month then video_id for a stable, restartable
// traversal.
func (s *Store) Iter(startMonth, endMonth string) ([]*domain.VideoRecord, error) {
	var out []*domain.VideoRecord
	months, err := s.monthsInRange(startMonth, endMonth)
	if err != nil {
		return nil, err
	}
	for _, month := range months {
		dir := month
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("archive: read dir %s: %w", dir, err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			rec, err := readRecord(filepath.Join(dir, name))
			if err != nil {
				return nil, err
			}
			if rec != nil {
				out = append(out, rec)
			}
		}
	}
	return out, nil
}

func (s *Store) monthsInRange(startMonth, endMonth string) ([]string, error) {
	if !s.organizeByMonth {
		return []string{s.youtubeDir()}, nil
	}
	entries, err := os.ReadDir(s.youtubeDir())
	if err != nil {
		return nil, fmt.Errorf("archive: scan youtube dir: %w", err)
	}
	var months []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if startMonth != "" && name < startMonth {
			continue
		}
		if endMonth != "" && name > endMonth {
			continue
		}
		months = append(months, name)
	}
	sort.Strings(months)
	full := make([]string, len(months))
	for i, m := range months {
		full[i] = filepath.Join(s.youtubeDir(), m)
	}
	return full, nil
}

// Count returns the total number of archived records.
func (s *Store) Count() (int, error) {
	recs, err := s.Iter("", "")
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// MonthCounts returns the number of records per YYYY-MM partition. In
// flat-layout mode it returns a single entry keyed "" (no month
// partitioning in effect).
func (s *Store) MonthCounts() (map[string]int, error) {
	counts := map[string]int{}
	if !s.organizeByMonth {
		n, err := s.Count()
		if err != nil {
			return nil, err
		}
		counts[""] = n
		return counts, nil
	}
	entries, err := os.ReadDir(s.youtubeDir())
	if err != nil {
		return nil, fmt.Errorf("archive: scan youtube dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(s.youtubeDir(), e.Name()))
		if err != nil {
			return nil, fmt.Errorf("archive: scan month dir %s: %w", e.Name(), err)
		}
		n := 0
		for _, f := range files {
			if !f.IsDir() && strings.HasSuffix(f.Name(), ".json") {
				n++
			}
		}
		counts[e.Name()] = n
	}
	return counts, nil
}
