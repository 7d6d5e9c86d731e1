package llm

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
)

// FakeClient returns deterministic, minimal JSON payloads per phase for offline/testing.
// Canned payloads can be replaced per phase with Set.
type FakeClient struct {
	mu       sync.RWMutex
	override map[string]json.RawMessage
	errs     map[string]error
	calls    atomic.Int64
}

func NewFakeClient() *FakeClient {
	return &FakeClient{override: map[string]json.RawMessage{}, errs: map[string]error{}}
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

// Calls returns how many GenerateJSON calls were made.
func (f *FakeClient) Calls() int { return int(f.calls.Load()) }

// Set replaces the payload returned for phase.
func (f *FakeClient) Set(phase string, raw string) {
	f.mu.Lock()
	f.override[phase] = json.RawMessage(raw)
	f.mu.Unlock()
}

// Fail makes calls for phase return err.
func (f *FakeClient) Fail(phase string, err error) {
	f.mu.Lock()
	f.errs[phase] = err
	f.mu.Unlock()
}

func (f *FakeClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	phase := PhaseFrom(ctx)
	f.mu.RLock()
	raw, ok := f.override[phase]
	err := f.errs[phase]
	f.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if ok {
		return raw, nil
	}

	target := activeFile(input)
	var obj any
	switch phase {
	case "review":
		obj = map[string]any{
			"status":  "SUCCESS",
			"actions": []any{},
			"feedback": []any{map[string]any{
				"file": target, "line": 1, "severity": "low",
				"message": "Fake review: consider adding documentation.",
			}},
			"metadata": map[string]any{"agent": "fake-reviewer"},
			"insights": "Fake review completed.",
		}
	case "security":
		obj = map[string]any{
			"status":   "SUCCESS",
			"actions":  []any{},
			"feedback": []any{},
			"metadata": map[string]any{"agent": "fake-security"},
			"insights": "Fake security scan found no issues.",
		}
	case "debug":
		obj = map[string]any{
			"status":   "SUCCESS",
			"actions":  []any{map[string]any{"file": target, "diff": ""}},
			"feedback": []any{},
			"metadata": map[string]any{"agent": "fake-debugger"},
			"insights": "Fake debugger proposed a fix.",
		}
	case "chat":
		obj = map[string]any{
			"action":      "explain_only",
			"target_file": target,
			"code":        "",
			"explanation": "Fake mentor reply.",
		}
	default:
		obj = map[string]any{}
	}
	b, _ := json.Marshal(obj)
	return json.RawMessage(b), nil
}

// activeFile pulls a file path out of the call input, if it carries one.
func activeFile(input any) string {
	b, err := json.Marshal(input)
	if err != nil {
		return ""
	}
	var probe struct {
		ActiveFile      string `json:"active_file"`
		CurrentFilePath string `json:"current_file_path"`
	}
	_ = json.Unmarshal(b, &probe)
	if probe.ActiveFile != "" {
		return probe.ActiveFile
	}
	return probe.CurrentFilePath
}
