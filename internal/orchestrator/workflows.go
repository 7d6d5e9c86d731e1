package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"codementor/internal/sandbox"
	"codementor/internal/scoring"
	"codementor/internal/types/mentor"
)

const (
	TestsPassedInsight     = "Tests passed! No fix needed."
	RefactorNotImplemented = "REFACTOR intent is not implemented yet"
	extraTestCommand       = "test_command"
	extraStackTrace        = "stack_trace"
)

var errNotConfigured = errors.New("capability is not configured")

func (o *Orchestrator) review(ctx context.Context, rc mentor.RequestContext) (mentor.AgentResponse, error) {
	if o.deps.Reviewer == nil {
		return mentor.AgentResponse{}, errNotConfiguredFor("review")
	}
	resp, err := o.deps.Reviewer.Review(ctx, rc)
	if err != nil {
		return mentor.AgentResponse{}, err
	}
	score := scoring.Calculate(rc.StaticData, resp.Feedback)
	resp.Score = &score
	return resp, nil
}

func (o *Orchestrator) securityScan(ctx context.Context, rc mentor.RequestContext) (mentor.AgentResponse, error) {
	if o.deps.Security == nil {
		return mentor.AgentResponse{}, errNotConfiguredFor("security")
	}
	return o.deps.Security.Scan(ctx, rc)
}

// autoFix runs the tests first; only a failing run reaches the debugger, with the
// captured stderr as stack_trace.
func (o *Orchestrator) autoFix(ctx context.Context, rc mentor.RequestContext) (mentor.AgentResponse, error) {
	if o.deps.Sandbox == nil {
		return mentor.AgentResponse{}, errNotConfiguredFor("sandbox")
	}
	cmd := o.deps.DefaultTestCommand
	if s, ok := rc.ExtraString(extraTestCommand); ok {
		cmd = s
	}
	run := o.deps.Sandbox.Run(ctx, sandbox.NewJobID(), rc.Files, cmd)
	if !run.Error {
		return mentor.AgentResponse{Status: mentor.StatusSuccess, Insights: TestsPassedInsight}, nil
	}
	if o.deps.Debugger == nil {
		return mentor.AgentResponse{}, errNotConfiguredFor("debug")
	}
	return o.deps.Debugger.Debug(ctx, rc.WithExtra(extraStackTrace, run.Stderr))
}

func refactorNotImplemented(context.Context, mentor.RequestContext) (mentor.AgentResponse, error) {
	return mentor.AgentResponse{
		Status:   mentor.StatusFailed,
		Insights: RefactorNotImplemented,
		Metadata: map[string]any{"intent": string(mentor.IntentRefactor), "implemented": false},
	}, nil
}

func errNotConfiguredFor(name string) error {
	return fmt.Errorf("%s %w", name, errNotConfigured)
}
