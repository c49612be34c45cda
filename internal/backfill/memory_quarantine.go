package backfill

import (
	"context"
	"sync"
)

// MemoryQuarantineStore is an in-process QuarantineStore used by tests and
// as a single-process stand-in when no operational store is configured.
type MemoryQuarantineStore struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMemoryQuarantineStore constructs an empty MemoryQuarantineStore.
func NewMemoryQuarantineStore() *MemoryQuarantineStore {
	return &MemoryQuarantineStore{counts: map[string]int{}}
}

func key(videoID, step string) string { return videoID + "\x00" + step }

func (m *MemoryQuarantineStore) RecordFailure(_ context.Context, videoID, step string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key(videoID, step)]++
	return m.counts[key(videoID, step)], nil
}

func (m *MemoryQuarantineStore) ClearFailure(_ context.Context, videoID, step string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counts, key(videoID, step))
	return nil
}

func (m *MemoryQuarantineStore) IsQuarantined(_ context.Context, videoID, step string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key(videoID, step)] >= quarantineThreshold, nil
}

var _ QuarantineStore = (*MemoryQuarantineStore)(nil)
