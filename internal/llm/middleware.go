package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Middleware decorates an LLMClient.
type Middleware func(LLMClient) LLMClient

// Wrap applies mws so that the first one is outermost: Wrap(c, A, B) is A(B(c)).
func Wrap(inner LLMClient, mws ...Middleware) LLMClient {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// passthrough forwards Name and Close so decorators only override GenerateJSON.
type passthrough struct{ next LLMClient }

func (p passthrough) Name() string { return p.next.Name() }
func (p passthrough) Close() error { return p.next.Close() }

// RateLimit limits request rate with a token bucket. rps <= 0 disables it.
func RateLimit(rps float64, burst int) Middleware {
	return func(next LLMClient) LLMClient {
		return &rateLimited{passthrough: passthrough{next}, rl: newBucket(rps, burst)}
	}
}

type rateLimited struct {
	passthrough
	rl   *bucket
	once sync.Once
}

func (c *rateLimited) Close() error {
	c.once.Do(c.rl.Close)
	return c.next.Close()
}

func (c *rateLimited) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if err := c.rl.Acquire(ctx); err != nil {
		return nil, err
	}
	return c.next.GenerateJSON(ctx, prompt, input)
}

// Retry retries GenerateJSON up to maxAttempts with exponential backoff
// starting at baseDelay. Permanent errors and context cancellation stop it.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next LLMClient) LLMClient {
		return &retrying{passthrough: passthrough{next}, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	passthrough
	max  int
	base time.Duration
}

func (r *retrying) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	var last error
	for i := 0; i < r.max; i++ {
		resp, err := r.next.GenerateJSON(ctx, prompt, input)
		if err == nil {
			return resp, nil
		}
		var pErr *PermanentError
		if errors.As(err, &pErr) {
			return nil, err
		}
		last = err
		if i == r.max-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.base * time.Duration(1<<i)):
		}
	}
	return nil, last
}

// Timeout bounds every call with d. d <= 0 leaves calls unbounded.
func Timeout(d time.Duration) Middleware {
	return func(next LLMClient) LLMClient {
		if d <= 0 {
			return next
		}
		return &timed{passthrough: passthrough{next}, d: d}
	}
}

type timed struct {
	passthrough
	d time.Duration
}

func (t *timed) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	raw, err := t.next.GenerateJSON(ctx, prompt, input)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("llm call exceeded %s: %w", t.d, err)
	}
	return raw, err
}

// WithLogging logs request size, latency and errors per phase. A nil logger means log.Default().
func WithLogging(logger *log.Logger) Middleware {
	if logger == nil {
		logger = log.Default()
	}
	return func(next LLMClient) LLMClient {
		return &logging{passthrough: passthrough{next}, log: logger}
	}
}

type logging struct {
	passthrough
	log *log.Logger
}

func (l *logging) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	in, _ := json.Marshal(input)
	start := time.Now()
	l.log.Printf("LLM request (%s via %s): %d bytes", PhaseFrom(ctx), l.next.Name(), len(prompt)+len(in))
	raw, err := l.next.GenerateJSON(ctx, prompt, input)
	if err != nil {
		l.log.Printf("LLM error (%s): %v", PhaseFrom(ctx), err)
		return raw, err
	}
	l.log.Printf("LLM response (%s): %d bytes in %s", PhaseFrom(ctx), len(raw), time.Since(start).Round(time.Millisecond))
	return raw, nil
}
