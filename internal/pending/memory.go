package pending

import (
	"context"
	"sync"
	"time"

	"github.com/punchamoorthee/payflow/internal/domain"
)

// Memory is the default Store backing: a mutex-guarded map. Pending
// bookkeeping is intentionally non-durable; a process restart loses it.
type Memory struct {
	mu      sync.Mutex
	records map[string]domain.PendingPayment
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{records: make(map[string]domain.PendingPayment)}
}

func (m *Memory) Put(_ context.Context, rec domain.PendingPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Reference] = rec
	return nil
}

func (m *Memory) Get(_ context.Context, reference string) (domain.PendingPayment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[reference]
	return rec, ok, nil
}

// Remove deletes and returns the record under a single lock acquisition,
// so two racing callers cannot both observe it.
func (m *Memory) Remove(_ context.Context, reference string) (domain.PendingPayment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[reference]
	if ok {
		delete(m.records, reference)
	}
	return rec, ok, nil
}

func (m *Memory) SweepExpired(_ context.Context, now time.Time, maxAge time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for reference, rec := range m.records {
		if now.Sub(rec.CreatedAt) > maxAge {
			delete(m.records, reference)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) Size(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}

func (m *Memory) Entries(_ context.Context) ([]domain.PendingPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]domain.PendingPayment, 0, len(m.records))
	for _, rec := range m.records {
		entries = append(entries, rec)
	}
	return entries, nil
}
