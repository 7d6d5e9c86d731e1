package mentor

import (
	"encoding/json"
	"strings"
)

// Severity of an issue or warning. The zero value is normalized to SeverityMedium.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"

	// DefaultSeverity applies when a producer leaves severity out entirely.
	DefaultSeverity = SeverityMedium
)

// ParseSeverity lower-cases s. An absent severity becomes DefaultSeverity; any other
// unrecognised value is kept so callers can still tell it apart from the known levels.
func ParseSeverity(s string) Severity {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return DefaultSeverity
	}
	return Severity(v)
}

// Issue is a single finding from static analysis or an agent.
type Issue struct {
	File     string   `json:"file"`
	Line     *int     `json:"line,omitempty"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

func (i *Issue) UnmarshalJSON(b []byte) error {
	type raw Issue
	var r raw
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	r.Severity = ParseSeverity(string(r.Severity))
	*i = Issue(r)
	return nil
}

// Mutation is a proposed change. Diff is opaque to the core.
type Mutation struct {
	File string `json:"file"`
	Diff string `json:"diff"`
}

// Warning is one static-analysis finding inside FileMetrics.
type Warning struct {
	Line     int      `json:"line"`
	Severity Severity `json:"severity,omitempty"`
	Message  string   `json:"msg"`
}

// FileMetrics is what the static analyzer reports for one file. A nil Complexity
// means the analyzer had no numeric value for the file.
type FileMetrics struct {
	Complexity *float64  `json:"complexity,omitempty"`
	Warnings   []Warning `json:"warnings"`
}

// StaticMetrics maps file path to its metrics.
type StaticMetrics map[string]FileMetrics

// IntPtr and FloatPtr are small helpers for optional fields.
func IntPtr(v int) *int { return &v }

func FloatPtr(v float64) *float64 { return &v }
