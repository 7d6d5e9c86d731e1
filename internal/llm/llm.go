package llm

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrInvalidJSON  = errors.New("llm: invalid JSON from model")
	ErrNoCredential = errors.New("llm: API key missing")
)

type LLMClient interface {
	Name() string
	GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error)
	Close() error
}

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// buildPrompt joins the instruction text and the pretty-printed input.
func buildPrompt(prompt string, input any) string {
	if input == nil {
		return prompt
	}
	in, _ := json.MarshalIndent(input, "", "  ")
	return prompt + "\n\n[INPUT JSON]\n" + string(in)
}

// validJSON reports whether raw parses as a JSON value.
func validJSON(raw []byte) bool {
	var scratch any
	return json.Unmarshal(raw, &scratch) == nil
}
