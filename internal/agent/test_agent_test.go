package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codementor/internal/llm"
	"codementor/internal/types/mentor"
)

func reqCtx() mentor.RequestContext {
	return mentor.RequestContext{
		ActiveFile:   "index.py",
		Files:        mentor.FileSet{"index.py": "print(1)"},
		StaticData:   mentor.StaticMetrics{},
		ExtraContext: map[string]any{},
	}
}

func TestReviewParsesModelOutput(t *testing.T) {
	fake := llm.NewFakeClient()
	fake.Set(phaseReview, "```json\n"+`{"feedback":[{"file":"index.py","line":1,"severity":"HIGH","message":"m"},{"file":"index.py","message":"n"}],"score":150,"insights":"ok"}`+"\n```")
	g := NewGateway(fake, time.Second)

	resp, err := g.Review(context.Background(), reqCtx())
	require.NoError(t, err)
	assert.Equal(t, mentor.StatusSuccess, resp.Status, "missing status means success")
	assert.Nil(t, resp.Score, "out of range score is dropped")
	require.Len(t, resp.Feedback, 2)
	assert.Equal(t, mentor.SeverityHigh, resp.Feedback[0].Severity)
	assert.Equal(t, mentor.SeverityMedium, resp.Feedback[1].Severity)
	assert.Empty(t, resp.Actions)
	assert.NotNil(t, resp.Metadata)
}

func TestMalformedOutput(t *testing.T) {
	fake := llm.NewFakeClient()
	fake.Set(phaseSecurity, "sorry, I can't do that")
	fake.Set(phaseDebug, `{"status":"MAYBE"}`)
	g := NewGateway(fake, time.Second)

	_, err := g.Scan(context.Background(), reqCtx())
	assert.ErrorIs(t, err, ErrMalformedOutput)
	_, err = g.Debug(context.Background(), reqCtx())
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestInvalidJSONFromClientIsMalformed(t *testing.T) {
	fake := llm.NewFakeClient()
	fake.Fail(phaseReview, llm.ErrInvalidJSON)
	_, err := NewGateway(fake, time.Second).Review(context.Background(), reqCtx())
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestUnavailableWithoutClient(t *testing.T) {
	g := NewGateway(nil, 0)
	assert.False(t, g.Available())
	_, err := g.Review(context.Background(), reqCtx())
	assert.ErrorIs(t, err, ErrUnavailable)

	act, err := g.Chat(context.Background(), mentor.ChatRequest{UserMessage: "hi"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, mentor.ChatExplainOnly, act.Action)
	assert.Contains(t, act.Explanation, "API key missing")
}

type slowClient struct{}

func (slowClient) Name() string { return "slow" }
func (slowClient) Close() error { return nil }
func (slowClient) GenerateJSON(ctx context.Context, _ string, _ any) (json.RawMessage, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCallsAreBounded(t *testing.T) {
	g := NewGateway(slowClient{}, 30*time.Millisecond)
	start := time.Now()
	_, err := g.Review(context.Background(), reqCtx())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPhaseIsTagged(t *testing.T) {
	var seen []string
	rec := recordingClient{onCall: func(ctx context.Context) { seen = append(seen, llm.PhaseFrom(ctx)) }}
	g := NewGateway(rec, time.Second)
	_, _ = g.Review(context.Background(), reqCtx())
	_, _ = g.Scan(context.Background(), reqCtx())
	_, _ = g.Debug(context.Background(), reqCtx())
	_, _ = g.Chat(context.Background(), mentor.ChatRequest{})
	assert.Equal(t, []string{"review", "security", "debug", "chat"}, seen)
}

type recordingClient struct{ onCall func(ctx context.Context) }

func (recordingClient) Name() string { return "rec" }
func (recordingClient) Close() error { return nil }
func (r recordingClient) GenerateJSON(ctx context.Context, prompt string, _ any) (json.RawMessage, error) {
	r.onCall(ctx)
	if !strings.Contains(prompt, `"$schema"`) {
		return nil, errors.New("prompt carries no schema")
	}
	return json.RawMessage(`{}`), nil
}

func TestChatDefaultsToExplainOnly(t *testing.T) {
	cases := map[string]struct {
		raw  string
		want mentor.ChatAction
	}{
		"empty action": {
			raw:  `{"explanation":"just talk"}`,
			want: mentor.ExplainOnly("just talk"),
		},
		"unknown action": {
			raw:  `{"action":"delete_repo","code":"rm -rf /"}`,
			want: mentor.ExplainOnly("No actionable change was proposed."),
		},
		"explain drops code": {
			raw:  `{"action":"explain_only","code":"x","explanation":"e"}`,
			want: mentor.ExplainOnly("e"),
		},
		"modify defaults target": {
			raw:  `{"action":"Modify_File","code":"y = 2","explanation":"fix"}`,
			want: mentor.ChatAction{Action: mentor.ChatModifyFile, TargetFile: "main.py", Code: "y = 2", Explanation: "fix"},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			fake := llm.NewFakeClient()
			fake.Set(phaseChat, tc.raw)
			got, err := NewGateway(fake, time.Second).Chat(context.Background(), mentor.ChatRequest{CurrentFilePath: "main.py"})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestChatMalformed(t *testing.T) {
	fake := llm.NewFakeClient()
	fake.Set(phaseChat, "not json")
	got, err := NewGateway(fake, time.Second).Chat(context.Background(), mentor.ChatRequest{})
	assert.ErrorIs(t, err, ErrMalformedOutput)
	assert.Equal(t, mentor.ChatExplainOnly, got.Action)
}

func TestPromptsEmbedSchema(t *testing.T) {
	txt := reviewerPrompt.text()
	assert.Contains(t, txt, `"feedback"`)
	assert.Contains(t, txt, `"enum"`)
	assert.Contains(t, chatPrompt.text(), "explain_only")
}
