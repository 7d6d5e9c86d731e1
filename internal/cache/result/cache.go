// Package result memoizes AgentResponses by (files, intent) fingerprint on top of a
// pluggable byte store.
package result

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"codementor/internal/types/mentor"
)

// DefaultTTL applies when a caller passes ttl <= 0.
const DefaultTTL = time.Hour

// Store is the keyed byte storage behind a Cache. Implementations must honour ttl
// and be safe for concurrent use with atomic per-key Get/Set.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Cache stores AgentResponses as JSON in a Store.
type Cache struct {
	store Store
	ttl   time.Duration
}

func New(store Store, defaultTTL time.Duration) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Cache{store: store, ttl: defaultTTL}
}

// Get returns the stored response for key. A value that no longer decodes is
// treated as a miss and dropped.
func (c *Cache) Get(ctx context.Context, key string) (mentor.AgentResponse, bool, error) {
	if c == nil || c.store == nil {
		return mentor.AgentResponse{}, false, nil
	}
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil || !ok {
		return mentor.AgentResponse{}, false, err
	}
	var resp mentor.AgentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		_ = c.store.Delete(ctx, key)
		return mentor.AgentResponse{}, false, nil
	}
	return resp.Normalize(), true, nil
}

// Put stores resp under key for ttl (DefaultTTL when ttl <= 0).
func (c *Cache) Put(ctx context.Context, key string, resp mentor.AgentResponse, ttl time.Duration) error {
	if c == nil || c.store == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	raw, err := json.Marshal(resp.Normalize())
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	return c.store.Set(ctx, key, raw, ttl)
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Delete(ctx, key)
}

func (c *Cache) Clear(ctx context.Context) error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Clear(ctx)
}
