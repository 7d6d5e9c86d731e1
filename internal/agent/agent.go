// Package agent exposes the LLM-backed capabilities the orchestrator dispatches to:
// review, security scan, debugging and IDE chat.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codementor/internal/llm"
	"codementor/internal/types/mentor"
	"codementor/internal/util/jsonutil"
)

var (
	ErrUnavailable     = errors.New("agent unavailable: API key missing")
	ErrMalformedOutput = errors.New("agent returned malformed output")
)

const DefaultTimeout = 60 * time.Second

type Reviewer interface {
	Review(ctx context.Context, rc mentor.RequestContext) (mentor.AgentResponse, error)
}

type SecurityScanner interface {
	Scan(ctx context.Context, rc mentor.RequestContext) (mentor.AgentResponse, error)
}

type Debugger interface {
	Debug(ctx context.Context, rc mentor.RequestContext) (mentor.AgentResponse, error)
}

type Chatter interface {
	Chat(ctx context.Context, req mentor.ChatRequest) (mentor.ChatAction, error)
}

// Gateway implements every capability over a single LLMClient.
// A nil client makes every call fail with ErrUnavailable.
type Gateway struct {
	client  llm.LLMClient
	timeout time.Duration
}

func NewGateway(client llm.LLMClient, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gateway{client: client, timeout: timeout}
}

func (g *Gateway) Available() bool { return g != nil && g.client != nil }

func (g *Gateway) Review(ctx context.Context, rc mentor.RequestContext) (mentor.AgentResponse, error) {
	return g.respond(ctx, phaseReview, reviewerPrompt, rc)
}

func (g *Gateway) Scan(ctx context.Context, rc mentor.RequestContext) (mentor.AgentResponse, error) {
	return g.respond(ctx, phaseSecurity, securityPrompt, rc)
}

func (g *Gateway) Debug(ctx context.Context, rc mentor.RequestContext) (mentor.AgentResponse, error) {
	return g.respond(ctx, phaseDebug, debugPrompt, rc)
}

// Chat never returns a non-actionable reply: unknown or empty actions fall back to
// explain_only. A transport or parse failure is returned alongside that fallback.
func (g *Gateway) Chat(ctx context.Context, req mentor.ChatRequest) (mentor.ChatAction, error) {
	raw, err := g.call(ctx, phaseChat, chatPrompt, req)
	if err != nil {
		return mentor.ExplainOnly("The mentor could not answer: " + err.Error()), err
	}
	var out mentor.ChatAction
	if err := jsonutil.UnmarshalFlex(raw, &out); err != nil {
		err = fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		return mentor.ExplainOnly("The mentor reply could not be understood."), err
	}
	out.Action = mentor.ChatActionKind(strings.ToLower(strings.TrimSpace(string(out.Action))))
	if !out.Action.Valid() {
		expl := strings.TrimSpace(out.Explanation)
		if expl == "" {
			expl = "No actionable change was proposed."
		}
		return mentor.ExplainOnly(expl), nil
	}
	if out.Action == mentor.ChatExplainOnly {
		out.Code = ""
	}
	if out.TargetFile == "" && out.Action != mentor.ChatExplainOnly {
		out.TargetFile = req.CurrentFilePath
	}
	return out, nil
}

func (g *Gateway) respond(ctx context.Context, phase string, p prompt, rc mentor.RequestContext) (mentor.AgentResponse, error) {
	raw, err := g.call(ctx, phase, p, rc)
	if err != nil {
		return mentor.AgentResponse{}, err
	}
	return parseResponse(raw)
}

func (g *Gateway) call(ctx context.Context, phase string, p prompt, input any) ([]byte, error) {
	if !g.Available() {
		return nil, ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(llm.WithPhase(ctx, phase), g.timeout)
	defer cancel()
	raw, err := g.client.GenerateJSON(ctx, p.text(), input)
	if err != nil {
		if errors.Is(err, llm.ErrNoCredential) {
			return nil, ErrUnavailable
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s agent timed out after %s: %w", phase, g.timeout, err)
		}
		if errors.Is(err, llm.ErrInvalidJSON) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
		}
		return nil, fmt.Errorf("%s agent: %w", phase, err)
	}
	return raw, nil
}

// parseResponse decodes model output into an AgentResponse. A missing status means
// SUCCESS; an out-of-range score is dropped rather than rejected.
func parseResponse(raw []byte) (mentor.AgentResponse, error) {
	var resp mentor.AgentResponse
	if err := jsonutil.UnmarshalFlex(raw, &resp); err != nil {
		return mentor.AgentResponse{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	resp.Status = mentor.Status(strings.ToUpper(strings.TrimSpace(string(resp.Status))))
	resp = resp.Normalize()
	if resp.Score != nil && (*resp.Score < 0 || *resp.Score > 100) {
		resp.Score = nil
	}
	if err := resp.Validate(); err != nil {
		return mentor.AgentResponse{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return resp, nil
}

var (
	_ Reviewer        = (*Gateway)(nil)
	_ SecurityScanner = (*Gateway)(nil)
	_ Debugger        = (*Gateway)(nil)
	_ Chatter         = (*Gateway)(nil)
)
