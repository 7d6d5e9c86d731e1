package mentor

import (
	"encoding/json"
	"fmt"
)

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// AgentResponse is the canonical result of every workflow.
type AgentResponse struct {
	Status   Status         `json:"status"`
	Actions  []Mutation     `json:"actions"`
	Feedback []Issue        `json:"feedback"`
	Metadata map[string]any `json:"metadata"`
	Score    *int           `json:"score"`
	Insights string         `json:"insights,omitempty"`
}

// Failed builds a FAILED response carrying msg as the insight.
func Failed(msg string) AgentResponse {
	return AgentResponse{Status: StatusFailed, Insights: msg}.Normalize()
}

// Normalize fills nil slices and maps so the JSON shape is stable.
func (r AgentResponse) Normalize() AgentResponse {
	if r.Status == "" {
		r.Status = StatusSuccess
	}
	if r.Actions == nil {
		r.Actions = []Mutation{}
	}
	if r.Feedback == nil {
		r.Feedback = []Issue{}
	}
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	return r
}

func (r AgentResponse) Validate() error {
	if r.Status != StatusSuccess && r.Status != StatusFailed {
		return fmt.Errorf("invalid status %q", r.Status)
	}
	if r.Score != nil && (*r.Score < 0 || *r.Score > 100) {
		return fmt.Errorf("score %d out of range [0,100]", *r.Score)
	}
	return nil
}

// Clone deep-copies the response through JSON so callers can't alias cached state.
func (r AgentResponse) Clone() AgentResponse {
	b, err := json.Marshal(r)
	if err != nil {
		return r
	}
	var out AgentResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return r
	}
	return out.Normalize()
}

// SandboxResult is the outcome of one sandbox invocation.
type SandboxResult struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Error  bool   `json:"error"`
}
