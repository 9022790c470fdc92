// Package kvs is the embeddable entry point to the store. A Store wraps a
// core.Engine with a mutex so it can be shared between goroutines, which is
// how the TCP server uses it.
package kvs

import (
	"sync"

	"github.com/0xRadioAc7iv/go-kvs/core"
)

// Re-exported so callers need not import core for the common cases.
var (
	ErrKeyNotFound = core.ErrKeyNotFound
	ErrCorruptLog  = core.ErrCorruptLog
	ErrIO          = core.ErrIO
	ErrClosed      = core.ErrClosed
	ErrTooLarge    = core.ErrTooLarge
)

type (
	Option = core.Option
	Stats  = core.Stats
)

// Store is a goroutine-safe key-value store backed by one directory.
type Store struct {
	mu     sync.Mutex
	engine *core.Engine
}

// Open opens or creates the store in dir.
func Open(dir string, opts ...Option) (*Store, error) {
	engine, err := core.Open(dir, opts...)
	if err != nil {
		return nil, err
	}
	return &Store{engine: engine}, nil
}

func (s *Store) Get(key []byte) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Get(key)
}

func (s *Store) Set(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Set(key, value)
}

// Remove deletes key, returning ErrKeyNotFound when it has no value.
func (s *Store) Remove(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Remove(key)
}

func (s *Store) Exists(key []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Has(key)
}

// Count returns the number of live keys.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Len()
}

// Keys returns every live key, sorted.
func (s *Store) Keys() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Keys()
}

func (s *Store) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Compact()
}

func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Stats()
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Close()
}
