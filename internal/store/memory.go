package store

import (
	"context"
	"sync"

	"user-notifier/internal/model"
)

// MemoryStore keeps preferences in process memory. Used for tests and local runs.
type MemoryStore struct {
	mu    sync.RWMutex
	prefs map[string]model.UserPreferences
}

func NewMemoryStore(seed ...model.UserPreferences) *MemoryStore {
	s := &MemoryStore{prefs: make(map[string]model.UserPreferences, len(seed))}
	for _, p := range seed {
		s.prefs[p.UserID] = p
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, userID string) (*model.UserPreferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prefs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	// Return a copy so callers can mutate freely before Put
	return &p, nil
}

func (s *MemoryStore) Put(_ context.Context, prefs *model.UserPreferences) error {
	if err := validate(prefs); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.prefs[prefs.UserID] = *prefs
	return nil
}
