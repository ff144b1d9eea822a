package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store is the persistence collaborator for the session pipeline. Writes are
// fire-and-forget from the aggregator's point of view and must tolerate
// duplicate monotonic timestamps (upsert-by-key).
type Store interface {
	PersistSample(ctx context.Context, sessionID string, monotonic float64, fields map[string]float64) error
	FinalizeSession(ctx context.Context, sessionID string, start, end time.Time, duration float64, summary map[string]float64) error
}

// SessionRecord is the finalized session row kept by the in-memory store.
type SessionRecord struct {
	Start    time.Time
	End      time.Time
	Duration float64
	Summary  map[string]float64
}

// MemoryStore keeps samples and finalized sessions in process memory. Used
// by tests and redis-less runs.
type MemoryStore struct {
	mu       sync.Mutex
	samples  map[string]map[string]map[string]float64 // session -> sample key -> fields
	sessions map[string]SessionRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		samples:  make(map[string]map[string]map[string]float64),
		sessions: make(map[string]SessionRecord),
	}
}

func sampleKey(monotonic float64) string {
	return fmt.Sprintf("%.3f", monotonic)
}

func (m *MemoryStore) PersistSample(_ context.Context, sessionID string, monotonic float64, fields map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.samples[sessionID] == nil {
		m.samples[sessionID] = make(map[string]map[string]float64)
	}
	cp := make(map[string]float64, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	m.samples[sessionID][sampleKey(monotonic)] = cp
	return nil
}

func (m *MemoryStore) FinalizeSession(_ context.Context, sessionID string, start, end time.Time, duration float64, summary map[string]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]float64, len(summary))
	for k, v := range summary {
		cp[k] = v
	}
	m.sessions[sessionID] = SessionRecord{Start: start, End: end, Duration: duration, Summary: cp}
	return nil
}

// SampleCount reports how many distinct sample keys exist for a session.
func (m *MemoryStore) SampleCount(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples[sessionID])
}

// Session returns the finalized record for a session, if any.
func (m *MemoryStore) Session(sessionID string) (SessionRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[sessionID]
	return rec, ok
}
