package model

import (
	"context"
	"sync"
	"time"
)

// TrainingDateStore persists the last successful training time per task key.
type TrainingDateStore interface {
	LastTraining(ctx context.Context, key string) (time.Time, bool, error)
	SetLastTraining(ctx context.Context, key string, t time.Time) error
	ClearLastTraining(ctx context.Context, key string) error
}

// MemoryDateStore keeps training dates in memory.
type MemoryDateStore struct {
	mu    sync.Mutex
	dates map[string]time.Time
}

func NewMemoryDateStore() *MemoryDateStore {
	return &MemoryDateStore{dates: make(map[string]time.Time)}
}

func (s *MemoryDateStore) LastTraining(_ context.Context, key string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.dates[key]
	return t, ok, nil
}

func (s *MemoryDateStore) SetLastTraining(_ context.Context, key string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dates[key] = t
	return nil
}

func (s *MemoryDateStore) ClearLastTraining(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dates, key)
	return nil
}
