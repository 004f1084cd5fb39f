package memory

import (
	"context"
	"sync"

	"omvstack.control/internal/core/domain"
)

// CallRepository keeps the most recent audit records in a ring.
type CallRepository struct {
	mu      sync.RWMutex
	records []*domain.CallRecord
	max     int
	total   int64
}

func NewCallRepository(max int) *CallRepository {
	if max <= 0 {
		max = 1000
	}
	return &CallRepository{max: max}
}

func (r *CallRepository) Create(ctx context.Context, record *domain.CallRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *record
	r.records = append(r.records, &copied)
	if len(r.records) > r.max {
		r.records = r.records[len(r.records)-r.max:]
	}
	r.total++
	return nil
}

// ListCalls returns the newest records first. An empty service matches all.
func (r *CallRepository) ListCalls(ctx context.Context, service string, limit int) ([]*domain.CallRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.CallRecord, 0, limit)
	for i := len(r.records) - 1; i >= 0 && len(out) < limit; i-- {
		rec := r.records[i]
		if service != "" && rec.Service != service {
			continue
		}
		copied := *rec
		out = append(out, &copied)
	}
	return out, nil
}

func (r *CallRepository) CountCalls(ctx context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total, nil
}
