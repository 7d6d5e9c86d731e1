package sandbox

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"codementor/internal/types/mentor"
)

var ErrPoolClosed = errors.New("sandbox: pool closed")

type job struct {
	ctx     context.Context
	id      string
	files   mentor.FileSet
	command string
	out     chan mentor.SandboxResult
}

// Pool executes jobs on a fixed set of dedicated worker goroutines so the blocking
// process wait never happens on a request goroutine.
type Pool struct {
	runner  Runner
	jobs    chan job
	closed  chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	workers int
}

// NewPool starts workers goroutines feeding runner. workers <= 0 uses runtime.NumCPU().
func NewPool(runner Runner, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{
		runner:  runner,
		jobs:    make(chan job),
		closed:  make(chan struct{}),
		workers: workers,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work()
	}
	return p
}

func (p *Pool) Workers() int { return p.workers }

func (p *Pool) work() {
	defer p.wg.Done()
	for {
		select {
		case <-p.closed:
			return
		case j := <-p.jobs:
			j.out <- p.runner.Run(j.ctx, j.id, j.files, j.command)
		}
	}
}

// Run hands the job to a worker and waits for its result or for ctx to end.
// A job abandoned by its caller keeps running until the runner observes ctx.
func (p *Pool) Run(ctx context.Context, jobID string, files mentor.FileSet, command string) mentor.SandboxResult {
	j := job{ctx: ctx, id: jobID, files: files, command: command, out: make(chan mentor.SandboxResult, 1)}
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return failure(fmt.Errorf("execution cancelled: %w", ctx.Err()))
	case <-p.closed:
		return failure(ErrPoolClosed)
	}
	select {
	case res := <-j.out:
		return res
	case <-ctx.Done():
		return failure(fmt.Errorf("execution cancelled: %w", ctx.Err()))
	}
}

// Close stops accepting jobs and waits for in-flight ones to finish.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.closed) })
	p.wg.Wait()
}
