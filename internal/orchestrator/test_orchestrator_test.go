package orchestrator

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codementor/internal/analyzer"
	"codementor/internal/cache/memory"
	"codementor/internal/cache/result"
	"codementor/internal/types/mentor"
)

type stubAgent struct {
	mu      sync.Mutex
	calls   map[string]int
	lastRC  mentor.RequestContext
	resp    mentor.AgentResponse
	err     error
	started chan struct{}
	gate    chan struct{}
	chat    mentor.ChatAction
}

func newStubAgent() *stubAgent {
	return &stubAgent{
		calls: map[string]int{},
		resp: mentor.AgentResponse{
			Status:   mentor.StatusSuccess,
			Feedback: []mentor.Issue{{File: "index.py", Severity: mentor.SeverityHigh, Message: "bug"}},
			Insights: "stub",
		},
	}
}

func (s *stubAgent) handle(ctx context.Context, name string, rc mentor.RequestContext) (mentor.AgentResponse, error) {
	s.mu.Lock()
	s.calls[name]++
	s.lastRC = rc
	started, gate := s.started, s.gate
	resp, err := s.resp, s.err
	s.mu.Unlock()
	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if gate != nil {
		<-gate
	}
	return resp, err
}

func (s *stubAgent) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *stubAgent) Review(ctx context.Context, rc mentor.RequestContext) (mentor.AgentResponse, error) {
	return s.handle(ctx, "review", rc)
}
func (s *stubAgent) Scan(ctx context.Context, rc mentor.RequestContext) (mentor.AgentResponse, error) {
	return s.handle(ctx, "security", rc)
}
func (s *stubAgent) Debug(ctx context.Context, rc mentor.RequestContext) (mentor.AgentResponse, error) {
	return s.handle(ctx, "debug", rc)
}
func (s *stubAgent) Chat(ctx context.Context, req mentor.ChatRequest) (mentor.ChatAction, error) {
	s.mu.Lock()
	s.calls["chat"]++
	s.mu.Unlock()
	return s.chat, s.err
}

type stubRunner struct {
	mu       sync.Mutex
	result   mentor.SandboxResult
	commands []string
	ids      []string
}

func (r *stubRunner) Run(_ context.Context, jobID string, _ mentor.FileSet, command string) mentor.SandboxResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, command)
	r.ids = append(r.ids, jobID)
	return r.result
}

type fixture struct {
	orch   *Orchestrator
	agent  *stubAgent
	runner *stubRunner
	store  *memory.Store
}

func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()
	f := &fixture{agent: newStubAgent(), runner: &stubRunner{}}
	var cache *result.Cache
	if withCache {
		f.store = memory.NewStore(memory.DefaultConfig())
		cache = result.New(f.store, time.Hour)
	}
	f.orch = New(Deps{
		Cache: cache,
		Analyzer: analyzer.Func(func(files mentor.FileSet) mentor.StaticMetrics {
			out := mentor.StaticMetrics{}
			for p := range files {
				out[p] = mentor.FileMetrics{
					Complexity: mentor.FloatPtr(6),
					Warnings:   []mentor.Warning{{Line: 1, Message: "w"}},
				}
			}
			return out
		}),
		Sandbox:  f.runner,
		Reviewer: f.agent,
		Security: f.agent,
		Debugger: f.agent,
		Chatter:  f.agent,
		Logger:   log.New(io.Discard, "", 0),
	})
	return f
}

func payload(intent mentor.Intent) mentor.RequestPayload {
	return mentor.RequestPayload{
		Files:  mentor.FileSet{"index.py": "print('hi')", "app/util.py": "x = 1"},
		Intent: intent,
	}
}

func TestEveryIntentIsRouted(t *testing.T) {
	f := newFixture(t, true)
	f.runner.result = mentor.SandboxResult{Stderr: "boom", Error: true}
	for _, intent := range mentor.AllIntents() {
		resp := f.orch.HandleRequest(context.Background(), payload(intent))
		assert.NotEmpty(t, resp.Status, intent)
		assert.NotNil(t, resp.Actions, intent)
		assert.NotNil(t, resp.Feedback, intent)
	}
	assert.Equal(t, 1, f.agent.count("review"))
	assert.Equal(t, 1, f.agent.count("security"))
	assert.Equal(t, 1, f.agent.count("debug"))
}

func TestRefactorIsDeterministicAndUncached(t *testing.T) {
	f := newFixture(t, true)
	a := f.orch.HandleRequest(context.Background(), payload(mentor.IntentRefactor))
	b := f.orch.HandleRequest(context.Background(), payload(mentor.IntentRefactor))
	assert.Equal(t, a, b)
	assert.Equal(t, mentor.StatusFailed, a.Status)
	assert.Equal(t, RefactorNotImplemented, a.Insights)
	assert.Equal(t, map[string]any{"intent": "REFACTOR", "implemented": false}, a.Metadata)
	assert.Equal(t, 0, f.store.Len())
}

func TestRefactorCanBeRegistered(t *testing.T) {
	f := newFixture(t, true)
	f.orch.Register(mentor.IntentRefactor, func(ctx context.Context, rc mentor.RequestContext) (mentor.AgentResponse, error) {
		return mentor.AgentResponse{Insights: "refactored " + rc.ActiveFile}, nil
	})
	resp := f.orch.HandleRequest(context.Background(), payload(mentor.IntentRefactor))
	assert.Equal(t, mentor.StatusSuccess, resp.Status)
	assert.Equal(t, "refactored app/util.py", resp.Insights)
}

func TestUnregisteredIntentFails(t *testing.T) {
	f := newFixture(t, true)
	f.orch.Register(mentor.IntentSecurityScan, nil)
	resp := f.orch.HandleRequest(context.Background(), payload(mentor.IntentSecurityScan))
	assert.Equal(t, mentor.StatusFailed, resp.Status)
	assert.Contains(t, resp.Insights, "no workflow registered for intent SECURITY_SCAN")
}

func TestReviewAttachesScore(t *testing.T) {
	f := newFixture(t, true)
	resp := f.orch.HandleRequest(context.Background(), payload(mentor.IntentReview))
	require.NotNil(t, resp.Score)
	// avg complexity 6 (-10), two warnings (-4), one high issue (-8)
	assert.Equal(t, 78, *resp.Score)
	assert.Equal(t, "app/util.py", f.agent.lastRC.ActiveFile, "active file defaults to the first sorted path")
	assert.Len(t, f.agent.lastRC.StaticData, 2)
}

func TestSecurityScanHasNoScore(t *testing.T) {
	f := newFixture(t, true)
	resp := f.orch.HandleRequest(context.Background(), payload(mentor.IntentSecurityScan))
	assert.Nil(t, resp.Score)
}

func TestCacheHitSkipsWorkflow(t *testing.T) {
	f := newFixture(t, true)
	first := f.orch.HandleRequest(context.Background(), payload(mentor.IntentReview))
	second := f.orch.HandleRequest(context.Background(), payload(mentor.IntentReview))
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.agent.count("review"))
	assert.Equal(t, 1, f.store.Len())

	require.NoError(t, f.orch.ClearCache(context.Background()))
	f.orch.HandleRequest(context.Background(), payload(mentor.IntentReview))
	assert.Equal(t, 2, f.agent.count("review"))
}

func TestFailuresAreNotCached(t *testing.T) {
	f := newFixture(t, true)
	f.agent.err = errors.New("model exploded")

	resp := f.orch.HandleRequest(context.Background(), payload(mentor.IntentReview))
	assert.Equal(t, mentor.StatusFailed, resp.Status)
	assert.Equal(t, "model exploded", resp.Insights)
	assert.Equal(t, 0, f.store.Len())

	f.agent.err = nil
	f.agent.resp = mentor.AgentResponse{Status: mentor.StatusFailed, Insights: "agent said no"}
	resp = f.orch.HandleRequest(context.Background(), payload(mentor.IntentSecurityScan))
	assert.Equal(t, "agent said no", resp.Insights)
	assert.Equal(t, 0, f.store.Len())
}

func TestFailedResultIsRecomputedOnRepeat(t *testing.T) {
	f := newFixture(t, true)
	f.agent.err = errors.New("model exploded")

	first := f.orch.HandleRequest(context.Background(), payload(mentor.IntentReview))
	assert.Equal(t, mentor.StatusFailed, first.Status)
	assert.Equal(t, 1, f.agent.count("review"))

	f.agent.err = nil
	second := f.orch.HandleRequest(context.Background(), payload(mentor.IntentReview))
	assert.Equal(t, 2, f.agent.count("review"), "identical request after a failure reaches the agent again")
	assert.Equal(t, mentor.StatusSuccess, second.Status)

	_ = f.orch.HandleRequest(context.Background(), payload(mentor.IntentReview))
	assert.Equal(t, 2, f.agent.count("review"), "the success is served from cache")
}

func TestAutoFixShortCircuitsOnPassingTests(t *testing.T) {
	f := newFixture(t, true)
	f.runner.result = mentor.SandboxResult{Stdout: "ok", Error: false}

	resp := f.orch.HandleRequest(context.Background(), payload(mentor.IntentAutoFix))
	assert.Equal(t, mentor.StatusSuccess, resp.Status)
	assert.Equal(t, TestsPassedInsight, resp.Insights)
	assert.Empty(t, resp.Actions)
	assert.Empty(t, resp.Feedback)
	assert.Equal(t, 0, f.agent.count("debug"))
	require.Len(t, f.runner.commands, 1)
	assert.Equal(t, DefaultTestCommand, f.runner.commands[0])
	assert.True(t, strings.HasPrefix(f.runner.ids[0], "job-"))
}

func TestAutoFixUsesCustomTestCommand(t *testing.T) {
	f := newFixture(t, false)
	p := payload(mentor.IntentAutoFix)
	p.ExtraContext = map[string]any{"test_command": "pytest -q"}
	f.orch.HandleRequest(context.Background(), p)
	assert.Equal(t, []string{"pytest -q"}, f.runner.commands)
}

func TestAutoFixBlankTestCommandUsesDefault(t *testing.T) {
	f := newFixture(t, false)
	p := payload(mentor.IntentAutoFix)
	p.ExtraContext = map[string]any{"test_command": "   "}
	f.orch.HandleRequest(context.Background(), p)
	assert.Equal(t, []string{DefaultTestCommand}, f.runner.commands)
}

func TestAutoFixSendsStackTraceToDebugger(t *testing.T) {
	f := newFixture(t, true)
	f.runner.result = mentor.SandboxResult{Stderr: "Traceback: ZeroDivisionError", Error: true}
	p := payload(mentor.IntentAutoFix)
	p.ExtraContext = map[string]any{"note": "keep"}

	resp := f.orch.HandleRequest(context.Background(), p)
	assert.Equal(t, mentor.StatusSuccess, resp.Status)
	assert.Equal(t, 1, f.agent.count("debug"))
	assert.Equal(t, "Traceback: ZeroDivisionError", f.agent.lastRC.ExtraContext["stack_trace"])
	assert.Equal(t, "keep", f.agent.lastRC.ExtraContext["note"])
	_, leaked := p.ExtraContext["stack_trace"]
	assert.False(t, leaked, "caller's extra context is never mutated")
}

func TestInvalidPayloadFails(t *testing.T) {
	f := newFixture(t, true)
	resp := f.orch.HandleRequest(context.Background(), mentor.RequestPayload{Files: mentor.FileSet{"../x": ""}, Intent: mentor.IntentReview})
	assert.Equal(t, mentor.StatusFailed, resp.Status)
	resp = f.orch.HandleRequest(context.Background(), mentor.RequestPayload{Intent: "DANCE"})
	assert.Equal(t, mentor.StatusFailed, resp.Status)
	assert.Equal(t, 0, f.agent.count("review"))
}

func TestPanickingWorkflowFails(t *testing.T) {
	f := newFixture(t, true)
	f.orch.Register(mentor.IntentReview, func(context.Context, mentor.RequestContext) (mentor.AgentResponse, error) {
		panic("kaboom")
	})
	resp := f.orch.HandleRequest(context.Background(), payload(mentor.IntentReview))
	assert.Equal(t, mentor.StatusFailed, resp.Status)
	assert.Contains(t, resp.Insights, "kaboom")
}

func TestPanickingAnalyzerFails(t *testing.T) {
	agent := newStubAgent()
	orch := New(Deps{
		Analyzer: analyzer.Func(func(mentor.FileSet) mentor.StaticMetrics { panic("analyzer blew up") }),
		Reviewer: agent,
		Logger:   log.New(io.Discard, "", 0),
	})
	resp := orch.HandleRequest(context.Background(), payload(mentor.IntentReview))
	assert.Equal(t, mentor.StatusFailed, resp.Status)
	assert.Contains(t, resp.Insights, "analyzer blew up")
	assert.Equal(t, 0, agent.count("review"))
}

type panickingStore struct{}

func (panickingStore) Get(context.Context, string) ([]byte, bool, error) { panic("store blew up") }
func (panickingStore) Set(context.Context, string, []byte, time.Duration) error {
	panic("store blew up")
}
func (panickingStore) Delete(context.Context, string) error { return nil }
func (panickingStore) Clear(context.Context) error { return nil }

func TestPanickingCacheStoreFails(t *testing.T) {
	orch := New(Deps{
		Cache:    result.New(panickingStore{}, time.Hour),
		Reviewer: newStubAgent(),
		Logger:   log.New(io.Discard, "", 0),
	})
	resp := orch.HandleRequest(context.Background(), payload(mentor.IntentReview))
	assert.Equal(t, mentor.StatusFailed, resp.Status)
	assert.Contains(t, resp.Insights, "store blew up")
}

func TestConcurrentIdenticalRequestsShareOneComputation(t *testing.T) {
	f := newFixture(t, false)
	f.agent.started = make(chan struct{}, 1)
	f.agent.gate = make(chan struct{})

	const n = 8
	results := make([]mentor.AgentResponse, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.orch.HandleRequest(context.Background(), payload(mentor.IntentReview))
		}(i)
	}
	<-f.agent.started
	time.Sleep(50 * time.Millisecond)
	close(f.agent.gate)
	wg.Wait()

	assert.Equal(t, 1, f.agent.count("review"))
	for _, r := range results {
		assert.Equal(t, results[0], r)
	}
	results[0].Feedback[0].Message = "mutated"
	assert.Equal(t, "bug", results[1].Feedback[0].Message, "callers get independent copies")
}

func TestCancelledCallerGetsFailure(t *testing.T) {
	f := newFixture(t, false)
	f.agent.gate = make(chan struct{})
	defer close(f.agent.gate)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	resp := f.orch.HandleRequest(ctx, payload(mentor.IntentReview))
	assert.Equal(t, mentor.StatusFailed, resp.Status)
	assert.Contains(t, resp.Insights, "cancelled")
}

func TestRunSandbox(t *testing.T) {
	f := newFixture(t, false)
	f.runner.result = mentor.SandboxResult{Stdout: "hi\n"}
	got := f.orch.RunSandbox(context.Background(), mentor.FileSet{"a.sh": "echo hi"}, "sh a.sh")
	assert.Equal(t, mentor.SandboxResult{Stdout: "hi\n"}, got)

	got = f.orch.RunSandbox(context.Background(), mentor.FileSet{"/etc/passwd": ""}, "true")
	assert.True(t, got.Error)
	assert.Len(t, f.runner.commands, 1, "invalid files never reach the runner")
}

func TestChatFallsBackToExplainOnly(t *testing.T) {
	f := newFixture(t, false)
	f.agent.chat = mentor.ChatAction{Action: mentor.ChatInsertCode, Code: "x"}
	assert.Equal(t, mentor.ChatInsertCode, f.orch.Chat(context.Background(), mentor.ChatRequest{}).Action)

	f.agent.chat = mentor.ChatAction{}
	assert.Equal(t, mentor.ChatExplainOnly, f.orch.Chat(context.Background(), mentor.ChatRequest{}).Action)

	bare := New(Deps{Logger: log.New(io.Discard, "", 0)})
	assert.Equal(t, mentor.ChatExplainOnly, bare.Chat(context.Background(), mentor.ChatRequest{}).Action)
}
