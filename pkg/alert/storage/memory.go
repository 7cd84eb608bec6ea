package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"mercator-hq/meter/pkg/alert"
)

// MemoryStore implements alert.Store in memory.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts map[string]*alert.Alert
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{alerts: make(map[string]*alert.Alert)}
}

// Create inserts an alert.
func (s *MemoryStore) Create(ctx context.Context, a *alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.alerts[a.ID]; exists {
		return alert.ErrDuplicateAlert
	}
	s.alerts[a.ID] = a.Clone()
	return nil
}

// Get returns a copy of the alert.
func (s *MemoryStore) Get(ctx context.Context, id string) (*alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, alert.ErrAlertNotFound
	}
	return a.Clone(), nil
}

// List returns copies ordered by creation time, then id.
func (s *MemoryStore) List(ctx context.Context) ([]*alert.Alert, error) {
	s.mu.RLock()
	out := make([]*alert.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *alert.Alert) int {
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
	return out, nil
}

// MarkTriggered records a firing if last_triggered still equals prev.
func (s *MemoryStore) MarkTriggered(ctx context.Context, id string, prev *time.Time, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return false, alert.ErrAlertNotFound
	}
	if !sameTime(a.LastTriggered, prev) {
		return false, nil
	}
	t := at
	a.LastTriggered = &t
	a.TriggerCount++
	return true, nil
}

// Close drops all alerts.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = make(map[string]*alert.Alert)
	return nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
