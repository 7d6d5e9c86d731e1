// Package postgres stores cached values in a Postgres table with an expires_at column.
// Recently read rows are kept in a bounded in-process LRU in front of the table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS result_cache (
  key TEXT PRIMARY KEY,
  value BYTEA NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_result_cache_expires_at ON result_cache (expires_at);
`

// querier is the subset of *pgxpool.Pool the store needs.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Config struct {
	DSN        string
	DefaultTTL time.Duration
	// LocalEntries bounds the in-process read cache; 0 disables it.
	LocalEntries int
}

type cached struct {
	value     []byte
	expiresAt time.Time
}

type Store struct {
	db         querier
	pool       *pgxpool.Pool
	local      *lru.Cache[string, cached]
	defaultTTL time.Duration
	now        func() time.Time

	schemaMu    sync.Mutex
	schemaReady bool
}

// Open connects to cfg.DSN and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("postgres cache: dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres cache: open: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres cache: ping: %w", err)
	}
	s, err := newStore(pool, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.pool = pool
	return s, nil
}

func newStore(db querier, cfg Config) (*Store, error) {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	s := &Store{db: db, defaultTTL: cfg.DefaultTTL, now: time.Now}
	if cfg.LocalEntries > 0 {
		local, err := lru.New[string, cached](cfg.LocalEntries)
		if err != nil {
			return nil, err
		}
		s.local = local
	}
	return s, nil
}

// ensureSchema creates the table on first use. A failed attempt is retried by the next call.
func (s *Store) ensureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady {
		return nil
	}
	if _, err := s.db.Exec(context.WithoutCancel(ctx), schemaSQL); err != nil {
		return fmt.Errorf("postgres cache: create schema: %w", err)
	}
	s.schemaReady = true
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, fmt.Errorf("postgres cache: store is nil")
	}
	now := s.now()
	if s.local != nil {
		if c, ok := s.local.Get(key); ok {
			if now.Before(c.expiresAt) {
				return append([]byte(nil), c.value...), true, nil
			}
			s.local.Remove(key)
		}
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, false, err
	}

	var value []byte
	var expiresAt time.Time
	err := s.db.QueryRow(ctx, `SELECT value, expires_at FROM result_cache WHERE key = $1`, key).Scan(&value, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !now.Before(expiresAt) {
		_, _ = s.db.Exec(ctx, `DELETE FROM result_cache WHERE key = $1 AND expires_at <= $2`, key, now)
		return nil, false, nil
	}
	if s.local != nil {
		s.local.Add(key, cached{value: append([]byte(nil), value...), expiresAt: expiresAt})
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil {
		return fmt.Errorf("postgres cache: store is nil")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	expiresAt := s.now().Add(ttl)
	_, err := s.db.Exec(ctx, `
INSERT INTO result_cache (key, value, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (key)
DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at`, key, value, expiresAt)
	if err != nil {
		return err
	}
	if s.local != nil {
		s.local.Add(key, cached{value: append([]byte(nil), value...), expiresAt: expiresAt})
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if s == nil {
		return nil
	}
	if s.local != nil {
		s.local.Remove(key)
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `DELETE FROM result_cache WHERE key = $1`, key)
	return err
}

func (s *Store) Clear(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if s.local != nil {
		s.local.Purge()
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `DELETE FROM result_cache`)
	return err
}

// PurgeExpired removes every expired row and reports how many were deleted.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM result_cache WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}
