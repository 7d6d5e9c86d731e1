package mentor

import (
	"fmt"
	"strings"
)

// RequestPayload is what callers submit to the orchestrator.
type RequestPayload struct {
	Files        FileSet        `json:"files"`
	Intent       Intent         `json:"intent"`
	ActiveFile   string         `json:"active_file"`
	ExtraContext map[string]any `json:"extra_context,omitempty"`
}

func (p RequestPayload) Validate() error {
	if !p.Intent.Valid() {
		return fmt.Errorf("unknown intent %q", p.Intent)
	}
	if err := p.Files.Validate(); err != nil {
		return err
	}
	if a := strings.TrimSpace(p.ActiveFile); a != "" {
		if err := ValidatePath(a); err != nil {
			return fmt.Errorf("active_file: %w", err)
		}
	}
	return nil
}

// RequestContext is the structured input handed to an agent capability.
type RequestContext struct {
	ActiveFile   string         `json:"active_file"`
	Files        FileSet        `json:"files"`
	StaticData   StaticMetrics  `json:"static_data"`
	ExtraContext map[string]any `json:"extra_context"`
}

// NewRequestContext copies the payload's mutable parts so later edits by the caller
// are never observed by an agent.
func NewRequestContext(p RequestPayload, metrics StaticMetrics) RequestContext {
	extra := make(map[string]any, len(p.ExtraContext))
	for k, v := range p.ExtraContext {
		extra[k] = v
	}
	return RequestContext{
		ActiveFile:   p.ActiveFile,
		Files:        p.Files.Clone(),
		StaticData:   metrics,
		ExtraContext: extra,
	}
}

// WithExtra returns a copy with key set in ExtraContext; rc is left untouched.
func (rc RequestContext) WithExtra(key string, value any) RequestContext {
	extra := make(map[string]any, len(rc.ExtraContext)+1)
	for k, v := range rc.ExtraContext {
		extra[k] = v
	}
	extra[key] = value
	rc.ExtraContext = extra
	return rc
}

// ExtraString reads a non-blank string value from ExtraContext.
func (rc RequestContext) ExtraString(key string) (string, bool) {
	s, ok := rc.ExtraContext[key].(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}
