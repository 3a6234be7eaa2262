package ledger

import (
	"context"
	"sort"
	"sync"
)

// MemStore is an in-memory Store used when no database is configured and in
// tests. Records do not survive a restart, so replayed history is re-credited
// after a crash; runs that care about that must configure Postgres.
type MemStore struct {
	mu      sync.Mutex
	records map[string]ProcessedRecord
}

// NewMemStore constructs an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]ProcessedRecord)}
}

// HasProcessed reports whether the signature has been recorded.
func (m *MemStore) HasProcessed(_ context.Context, signature string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[signature]
	return ok, nil
}

// MarkProcessed records the signature under the store mutex, so the presence
// check and the write are atomic.
func (m *MemStore) MarkProcessed(_ context.Context, rec ProcessedRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.Signature]; ok {
		return false, nil
	}
	m.records[rec.Signature] = rec
	return true, nil
}

// Recent returns up to limit credited records, newest first.
func (m *MemStore) Recent(limit int) []ProcessedRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ProcessedRecord, 0, len(m.records))
	for _, rec := range m.records {
		if rec.Credit > 0 {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ObservedAt.After(out[j].ObservedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

var _ Store = (*MemStore)(nil)
