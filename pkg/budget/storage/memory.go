package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"mercator-hq/meter/pkg/budget"
)

// MemoryStore implements budget.Store in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	budgets map[string]*budget.Budget
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{budgets: make(map[string]*budget.Budget)}
}

// Create inserts a budget.
func (s *MemoryStore) Create(ctx context.Context, b *budget.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.budgets[b.ID]; exists {
		return budget.ErrDuplicateBudget
	}
	s.budgets[b.ID] = b.Clone()
	return nil
}

// Get returns a copy of the budget.
func (s *MemoryStore) Get(ctx context.Context, id string) (*budget.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.budgets[id]
	if !ok {
		return nil, budget.ErrBudgetNotFound
	}
	return b.Clone(), nil
}

// List returns copies ordered by creation time, then id.
func (s *MemoryStore) List(ctx context.Context) ([]*budget.Budget, error) {
	s.mu.RLock()
	out := make([]*budget.Budget, 0, len(s.budgets))
	for _, b := range s.budgets {
		out = append(out, b.Clone())
	}
	s.mu.RUnlock()

	sortBudgets(out)
	return out, nil
}

// AddSpend increments spend and marks crossed thresholds under the store lock.
func (s *MemoryStore) AddSpend(ctx context.Context, id string, delta float64, at time.Time) (*budget.Budget, []budget.Level, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.budgets[id]
	if !ok {
		return nil, nil, budget.ErrBudgetNotFound
	}
	b.SpentUSD += delta
	b.UtilizationPercent = budget.Utilization(b.SpentUSD, b.BudgetUSD)
	b.UpdatedAt = at
	crossed := b.MarkCrossed()
	return b.Clone(), crossed, nil
}

// Reset overwrites the period state of a budget still in period prevStart.
func (s *MemoryStore) Reset(ctx context.Context, b *budget.Budget, prevStart time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.budgets[b.ID]
	if !ok {
		return false, budget.ErrBudgetNotFound
	}
	if !cur.PeriodStart.Equal(prevStart) {
		return false, nil
	}
	cur.PeriodStart = b.PeriodStart
	cur.PeriodEnd = b.PeriodEnd
	cur.SpentUSD = b.SpentUSD
	cur.UtilizationPercent = b.UtilizationPercent
	cur.Status = b.Status
	cur.Reached = slices.Clone(b.Reached)
	cur.UpdatedAt = b.UpdatedAt
	return true, nil
}

// Close drops all budgets.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets = make(map[string]*budget.Budget)
	return nil
}

func sortBudgets(bs []*budget.Budget) {
	slices.SortFunc(bs, func(a, b *budget.Budget) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
