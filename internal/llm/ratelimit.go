package llm

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errLimiterClosed = errors.New("llm: rate limiter closed")

// bucket refills continuously at rate tokens per second up to burst.
// A nil *bucket never blocks.
type bucket struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	tokens float64
	last   time.Time
	done   chan struct{}
	now    func() time.Time
}

func newBucket(rps float64, burst int) *bucket {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &bucket{
		rate:   rps,
		burst:  float64(burst),
		tokens: float64(burst),
		last:   time.Now(),
		done:   make(chan struct{}),
		now:    time.Now,
	}
}

// reserve takes a token if one is available, otherwise reports how long until one is.
func (b *bucket) reserve() (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	b.tokens += now.Sub(b.last).Seconds() * b.rate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.last = now
	if b.tokens >= 1 {
		b.tokens--
		return 0, true
	}
	wait := time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait, false
}

// Acquire blocks until a token is taken, ctx ends or the bucket is closed.
func (b *bucket) Acquire(ctx context.Context) error {
	if b == nil {
		return nil
	}
	for {
		wait, ok := b.reserve()
		if ok {
			return nil
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-b.done:
			t.Stop()
			return errLimiterClosed
		case <-t.C:
		}
	}
}

// Close releases waiters. It must be called at most once.
func (b *bucket) Close() {
	if b == nil {
		return
	}
	close(b.done)
}
