package memstore

import (
	"context"
	"sync"

	"github.com/PicoHBK/clubnorte/internal/errors"
)

// Store keeps values in process memory. It is used by tests and by
// CLI runs that should not touch disk.
type Store struct {
	values map[string][]byte
	lock   sync.RWMutex
	writes int
}

func New() *Store {
	return &Store{
		values: make(map[string][]byte),
	}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	v, ok := s.values[key]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.values[key] = append([]byte(nil), value...)
	s.writes++
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.values, key)
	s.writes++
	return nil
}

// Writes returns how many Set/Delete calls the store has served.
func (s *Store) Writes() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.writes
}

func (s *Store) Close() error {
	return nil
}
