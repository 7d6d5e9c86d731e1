package llm

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"codementor/internal/tester"
)

// scripted returns errs in order, then `{}`.
type scripted struct {
	mu    sync.Mutex
	errs  []error
	calls int
	times []time.Time
	block bool
}

func (s *scripted) Name() string { return "scripted" }
func (s *scripted) Close() error { return nil }
func (s *scripted) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	s.mu.Lock()
	s.calls++
	s.times = append(s.times, time.Now())
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(`{}`), nil
}

func TestWrapOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next LLMClient) LLMClient {
			order = append(order, name)
			return next
		}
	}
	Wrap(&scripted{}, mark("A"), mark("B"))
	// B wraps first so that A ends up outermost.
	tester.Eq(t, order, []string{"B", "A"})
}

func TestRetryEventuallySucceeds(t *testing.T) {
	inner := &scripted{errs: []error{errors.New("boom"), errors.New("boom")}}
	cli := Wrap(inner, Retry(3, time.Millisecond))
	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	tester.NoErr(t, err)
	tester.Eq(t, inner.calls, 3)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	perm := NewPermanentError(errors.New("bad request"))
	inner := &scripted{errs: []error{perm}}
	cli := Wrap(inner, Retry(5, time.Millisecond))
	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	var pErr *PermanentError
	tester.True(t, errors.As(err, &pErr))
	tester.Eq(t, inner.calls, 1)
}

func TestRetryReturnsLastError(t *testing.T) {
	last := errors.New("second")
	inner := &scripted{errs: []error{errors.New("first"), last}}
	cli := Wrap(inner, Retry(2, time.Millisecond))
	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	tester.ErrIs(t, err, last)
}

func TestTimeoutBoundsCall(t *testing.T) {
	inner := &scripted{block: true}
	cli := Wrap(inner, Timeout(20*time.Millisecond))
	start := time.Now()
	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	tester.ErrIs(t, err, context.DeadlineExceeded)
	tester.True(t, time.Since(start) < time.Second)
}

func TestTimeoutZeroIsPassthrough(t *testing.T) {
	inner := &scripted{}
	tester.True(t, Wrap(inner, Timeout(0)) == LLMClient(inner))
}

func TestRateLimitSpacing(t *testing.T) {
	inner := &scripted{}
	cli := Wrap(inner, RateLimit(10, 1))
	t.Cleanup(func() { _ = cli.Close() })

	for i := 0; i < 3; i++ {
		_, err := cli.GenerateJSON(context.Background(), "p", nil)
		tester.NoErr(t, err)
	}
	// burst 1 at 10 rps: the third call cannot land before ~200ms.
	tester.True(t, inner.times[2].Sub(inner.times[0]) >= 150*time.Millisecond)
}

func TestRateLimitHonoursContext(t *testing.T) {
	cli := Wrap(&scripted{}, RateLimit(0.001, 1))
	t.Cleanup(func() { _ = cli.Close() })
	_, err := cli.GenerateJSON(context.Background(), "p", nil)
	tester.NoErr(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = cli.GenerateJSON(ctx, "p", nil)
	tester.ErrIs(t, err, context.DeadlineExceeded)
}

func TestPhaseDefaultsToUnknown(t *testing.T) {
	tester.Eq(t, PhaseFrom(context.Background()), "unknown")
	tester.Eq(t, PhaseFrom(WithPhase(context.Background(), "chat")), "chat")
}

func TestBucketRefill(t *testing.T) {
	clock := time.Unix(0, 0)
	b := newBucket(2, 2)
	b.now = func() time.Time { return clock }
	b.last = clock

	for i := 0; i < 2; i++ {
		_, ok := b.reserve()
		tester.True(t, ok)
	}
	wait, ok := b.reserve()
	tester.False(t, ok)
	tester.Eq(t, wait, 500*time.Millisecond)

	clock = clock.Add(500 * time.Millisecond)
	_, ok = b.reserve()
	tester.True(t, ok)

	clock = clock.Add(time.Hour)
	for i := 0; i < 2; i++ {
		_, ok = b.reserve()
		tester.True(t, ok)
	}
	_, ok = b.reserve()
	tester.False(t, ok, "refill is capped at burst")
}

func TestNilBucketNeverBlocks(t *testing.T) {
	var b *bucket
	tester.NoErr(t, b.Acquire(context.Background()))
	b.Close()
	tester.True(t, newBucket(0, 5) == nil)
}
