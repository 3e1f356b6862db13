package store

import (
	"context"
	"sync"

	"github.com/getmockd/bizlog/pkg/record"
)

// Memory keeps records in process memory. When a capacity is set the oldest
// records are evicted first.
type Memory struct {
	mu       sync.RWMutex
	records  []sequenced
	seq      int64
	capacity int
}

// NewMemory creates an in-memory store. capacity <= 0 means unbounded.
func NewMemory(capacity int) *Memory {
	return &Memory{capacity: capacity}
}

// Flush implements record.Sink.
func (m *Memory) Flush(_ context.Context, _, _ string, records []record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.seq++
		m.records = append(m.records, sequenced{seq: m.seq, rec: r})
	}
	if m.capacity > 0 && len(m.records) > m.capacity {
		m.records = append([]sequenced(nil), m.records[len(m.records)-m.capacity:]...)
	}
	return nil
}

// Query implements Store.
func (m *Memory) Query(_ context.Context, f Filter) ([]record.Record, error) {
	m.mu.RLock()
	snapshot := make([]sequenced, len(m.records))
	copy(snapshot, m.records)
	m.mu.RUnlock()
	return apply(snapshot, f)
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

// Ensure Memory implements Store.
var _ Store = (*Memory)(nil)
