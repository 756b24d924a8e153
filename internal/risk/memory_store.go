package risk

import (
	"context"
	"sync"
)

// MemoryStore is the in-memory Store used when no DATABASE_URL is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]*Record // transaction ID -> records
}

// NewMemoryStore creates an in-memory assessment audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]*Record)}
}

func (s *MemoryStore) Record(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	cp.ReasonCodes = append([]string(nil), rec.ReasonCodes...)
	s.records[rec.TransactionID] = append(s.records[rec.TransactionID], &cp)
	return nil
}

func (s *MemoryStore) ListByTransaction(ctx context.Context, txID string, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.records[txID]
	if len(all) == 0 {
		return nil, nil
	}

	start := len(all) - limit
	if limit <= 0 || start < 0 {
		start = 0
	}

	// Most recent first.
	result := make([]*Record, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		cp := *all[i]
		cp.ReasonCodes = append([]string(nil), all[i].ReasonCodes...)
		result = append(result, &cp)
	}
	return result, nil
}
