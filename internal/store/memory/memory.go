package memory

import (
	"context"
	"sync"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
)

// Store keeps watermarks in process memory. It survives nothing and is meant
// for tests and throwaway runs.
type Store struct {
	mu         sync.RWMutex
	watermarks map[string]model.Round
	sets       int
}

func New() *Store {
	return &Store{watermarks: make(map[string]model.Round)}
}

func (s *Store) Get(_ context.Context, name string) (model.Round, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watermarks[name], nil
}

func (s *Store) Set(ctx context.Context, name string, round model.Round) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watermarks[name] = round
	s.sets++
	return nil
}

// Sets returns how many times Set succeeded.
func (s *Store) Sets() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sets
}

func (s *Store) Close() error { return nil }
