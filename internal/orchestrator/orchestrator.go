// Package orchestrator routes requests to per-intent workflows, consults the result
// cache first and stores every non-failed outcome.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"codementor/internal/agent"
	"codementor/internal/analyzer"
	"codementor/internal/cache/result"
	"codementor/internal/sandbox"
	"codementor/internal/types/mentor"
)

const DefaultTestCommand = "python index.py"

// Workflow handles one intent. A returned error becomes a FAILED response whose
// insight is the error text.
type Workflow func(ctx context.Context, rc mentor.RequestContext) (mentor.AgentResponse, error)

// Deps are the collaborators the orchestrator coordinates. Nil capabilities make the
// workflows that need them fail in-band.
type Deps struct {
	Cache    *result.Cache
	Analyzer analyzer.Analyzer
	Sandbox  sandbox.Runner

	Reviewer agent.Reviewer
	Security agent.SecurityScanner
	Debugger agent.Debugger
	Chatter  agent.Chatter

	CacheTTL           time.Duration
	DefaultTestCommand string
	Logger             *log.Logger
}

type Orchestrator struct {
	deps Deps
	log  *log.Logger

	mu        sync.RWMutex
	workflows map[mentor.Intent]Workflow

	flight singleflight.Group
}

func New(d Deps) *Orchestrator {
	if d.Analyzer == nil {
		d.Analyzer = analyzer.NewHeuristic()
	}
	if d.DefaultTestCommand == "" {
		d.DefaultTestCommand = DefaultTestCommand
	}
	if d.Logger == nil {
		d.Logger = log.Default()
	}
	o := &Orchestrator{deps: d, log: d.Logger, workflows: map[mentor.Intent]Workflow{}}
	o.Register(mentor.IntentReview, o.review)
	o.Register(mentor.IntentSecurityScan, o.securityScan)
	o.Register(mentor.IntentAutoFix, o.autoFix)
	o.Register(mentor.IntentRefactor, refactorNotImplemented)
	return o
}

// Register installs (or replaces) the workflow for intent. A nil workflow removes it.
func (o *Orchestrator) Register(intent mentor.Intent, wf Workflow) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if wf == nil {
		delete(o.workflows, intent)
		return
	}
	o.workflows[intent] = wf
}

func (o *Orchestrator) workflow(intent mentor.Intent) (Workflow, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	wf, ok := o.workflows[intent]
	return wf, ok
}

// HandleRequest never returns an error: every failure is reported as a FAILED response.
// Concurrent requests with the same cache key share one computation; each caller gets
// its own copy of the result.
func (o *Orchestrator) HandleRequest(ctx context.Context, p mentor.RequestPayload) mentor.AgentResponse {
	if err := p.Validate(); err != nil {
		return mentor.Failed("invalid request: " + err.Error())
	}
	if p.ActiveFile == "" {
		if paths := p.Files.SortedPaths(); len(paths) > 0 {
			p.ActiveFile = paths[0]
		}
	}

	key := result.KeyFor(p.Files, p.Intent)
	ch := o.flight.DoChan(key, func() (any, error) {
		// Followers must not inherit the leader's cancellation.
		return o.compute(context.WithoutCancel(ctx), key, p), nil
	})
	select {
	case res := <-ch:
		return res.Val.(mentor.AgentResponse).Clone()
	case <-ctx.Done():
		return mentor.Failed(fmt.Sprintf("request cancelled: %v", ctx.Err()))
	}
}

// compute runs inside singleflight, which re-raises panics on a fresh goroutine, so any
// collaborator panic (analyzer, cache store) is turned into a FAILED response here.
func (o *Orchestrator) compute(ctx context.Context, key string, p mentor.RequestPayload) (resp mentor.AgentResponse) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Printf("orchestrator: %s panicked: %v", p.Intent, r)
			resp = mentor.Failed(fmt.Sprintf("internal error: %v", r))
		}
	}()
	cached, ok, err := o.deps.Cache.Get(ctx, key)
	if err != nil {
		o.log.Printf("orchestrator: cache read %s: %v", key[:12], err)
	}
	if ok {
		return cached
	}

	wf, ok := o.workflow(p.Intent)
	if !ok {
		return mentor.Failed(fmt.Sprintf("no workflow registered for intent %s", p.Intent))
	}

	metrics := o.deps.Analyzer.Analyze(p.Files)
	rc := mentor.NewRequestContext(p, metrics)

	resp, err = o.run(ctx, p.Intent, wf, rc)
	if err != nil {
		o.log.Printf("orchestrator: %s failed: %v", p.Intent, err)
		return mentor.Failed(err.Error())
	}
	resp = resp.Normalize()
	if resp.Status == mentor.StatusFailed {
		return resp
	}
	if err := o.deps.Cache.Put(ctx, key, resp, o.deps.CacheTTL); err != nil {
		o.log.Printf("orchestrator: cache write %s: %v", key[:12], err)
	}
	return resp
}

// run shields the caller from a panicking workflow.
func (o *Orchestrator) run(ctx context.Context, intent mentor.Intent, wf Workflow, rc mentor.RequestContext) (resp mentor.AgentResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s workflow panicked: %v", intent, r)
		}
	}()
	return wf(ctx, rc)
}

// RunSandbox executes command over files with a fresh job id.
func (o *Orchestrator) RunSandbox(ctx context.Context, files mentor.FileSet, command string) mentor.SandboxResult {
	if o.deps.Sandbox == nil {
		return mentor.SandboxResult{Stderr: "sandbox is not configured", Error: true}
	}
	if err := files.Validate(); err != nil {
		return mentor.SandboxResult{Stderr: err.Error(), Error: true}
	}
	return o.deps.Sandbox.Run(ctx, sandbox.NewJobID(), files, command)
}

// Chat always yields an action; failures come back as explain_only.
func (o *Orchestrator) Chat(ctx context.Context, req mentor.ChatRequest) mentor.ChatAction {
	if o.deps.Chatter == nil {
		return mentor.ExplainOnly("The mentor chat is not configured.")
	}
	act, err := o.deps.Chatter.Chat(ctx, req)
	if err != nil {
		o.log.Printf("orchestrator: chat: %v", err)
	}
	if !act.Action.Valid() {
		return mentor.ExplainOnly("No actionable change was proposed.")
	}
	return act
}

// ClearCache drops every cached response.
func (o *Orchestrator) ClearCache(ctx context.Context) error {
	return o.deps.Cache.Clear(ctx)
}
