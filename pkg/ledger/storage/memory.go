package storage

import (
	"context"
	"sync"

	"mercator-hq/meter/pkg/costs"
	"mercator-hq/meter/pkg/ledger"
)

// MemoryStorage implements ledger.Storage using an in-memory map.
type MemoryStorage struct {
	entries map[string]*costs.Entry
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory ledger.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[string]*costs.Entry),
	}
}

// Append stores a copy of the entry.
func (s *MemoryStorage) Append(ctx context.Context, entry *costs.Entry) error {
	if entry == nil || entry.ID == "" {
		return ledger.NewStorageError("memory", "append", ledger.ErrInvalidEntry)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[entry.ID]; exists {
		return ledger.NewStorageError("memory", "append", ledger.ErrDuplicateEntry)
	}
	s.entries[entry.ID] = entry.Clone()

	return nil
}

// Get retrieves a single entry by id.
func (s *MemoryStorage) Get(ctx context.Context, id string) (*costs.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return entry.Clone(), nil
}

// Query retrieves entries matching the query filters.
func (s *MemoryStorage) Query(ctx context.Context, query *ledger.Query) ([]*costs.Entry, error) {
	if query == nil {
		query = &ledger.Query{}
	}
	results := s.collect(query)

	start := min(query.Offset, len(results))
	results = results[start:]
	if query.Limit > 0 && len(results) > query.Limit {
		results = results[:query.Limit]
	}

	return results, nil
}

// QueryStream streams matching entries over a channel.
func (s *MemoryStorage) QueryStream(ctx context.Context, query *ledger.Query) (<-chan *costs.Entry, <-chan error, error) {
	entriesCh := make(chan *costs.Entry, 100)
	errCh := make(chan error, 1)

	// Snapshot under the read lock so a slow consumer never blocks writers.
	results, err := s.Query(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	go func() {
		defer close(entriesCh)
		defer close(errCh)

		for _, entry := range results {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case entriesCh <- entry:
			}
		}
	}()

	return entriesCh, errCh, nil
}

// Stats sums matching entries.
func (s *MemoryStorage) Stats(ctx context.Context, query *ledger.Query) (ledger.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats ledger.Stats
	for _, entry := range s.entries {
		if query.Matches(entry) {
			stats.TotalCostUSD += entry.CostUSD
			stats.Count++
		}
	}
	return stats, nil
}

// Count returns the number of matching entries.
func (s *MemoryStorage) Count(ctx context.Context, query *ledger.Query) (int64, error) {
	stats, err := s.Stats(ctx, query)
	return stats.Count, err
}

// Delete removes matching entries.
func (s *MemoryStorage) Delete(ctx context.Context, query *ledger.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, entry := range s.entries {
		if query.Matches(entry) {
			delete(s.entries, id)
			deleted++
		}
	}
	return deleted, nil
}

// Ping always succeeds.
func (s *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}

// Close releases resources held by the storage backend.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*costs.Entry)
	return nil
}

// Size returns the number of stored entries (for testing).
func (s *MemoryStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// collect returns sorted copies of matching entries.
func (s *MemoryStorage) collect(query *ledger.Query) []*costs.Entry {
	s.mu.RLock()
	results := make([]*costs.Entry, 0)
	for _, entry := range s.entries {
		if query.Matches(entry) {
			results = append(results, entry.Clone())
		}
	}
	s.mu.RUnlock()

	ledger.SortEntries(results, query.SortBy, query.SortOrder)
	return results
}

var _ ledger.Storage = (*MemoryStorage)(nil)
