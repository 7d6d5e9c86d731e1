// Package memory keeps cached values in process memory. Nothing survives a restart.
package memory

import (
	"context"
	"time"
)

type Config struct {
	MaxEntries int
	MaxBytes   int
	DefaultTTL time.Duration
}

func DefaultConfig() Config {
	return Config{MaxEntries: 4096, MaxBytes: 256 << 20, DefaultTTL: time.Hour}
}

// Store adapts LRUTTL to the context-aware byte store used by the result cache.
type Store struct {
	lru *LRUTTL[string, []byte]
}

func NewStore(cfg Config) *Store {
	def := DefaultConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = def.DefaultTTL
	}
	return &Store{lru: NewLRUTTL[string, []byte](cfg.MaxEntries, cfg.MaxBytes, cfg.DefaultTTL)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.lru.Set(key, append([]byte(nil), value...), len(value), ttl)
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.lru.Delete(key)
	return nil
}

func (s *Store) Clear(_ context.Context) error {
	s.lru.Clear()
	return nil
}

func (s *Store) Len() int { return s.lru.Len() }
