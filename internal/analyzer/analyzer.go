// Package analyzer produces per-file static metrics: a complexity figure and a list of
// lint-style warnings.
package analyzer

import (
	"path"
	"regexp"
	"strings"

	"codementor/internal/types/mentor"
)

// Analyzer computes StaticMetrics for a FileSet. Every file gets an entry.
type Analyzer interface {
	Analyze(files mentor.FileSet) mentor.StaticMetrics
}

// Func adapts a plain function to Analyzer.
type Func func(files mentor.FileSet) mentor.StaticMetrics

func (f Func) Analyze(files mentor.FileSet) mentor.StaticMetrics { return f(files) }

var (
	rePrint      = regexp.MustCompile(`\bprint\s*\(`)
	reConsoleLog = regexp.MustCompile(`console\.log\s*\(`)
	reSecret     = regexp.MustCompile(`(?i)(api_key|password|secret|token)\s*=\s*['"][^'"]+['"]`)
)

// Heuristic is the built-in analyzer. Complexity is measured for Go (AST based) and
// Python (keyword based); other languages only get line detectors.
type Heuristic struct{}

func NewHeuristic() *Heuristic { return &Heuristic{} }

func (h *Heuristic) Analyze(files mentor.FileSet) mentor.StaticMetrics {
	out := make(mentor.StaticMetrics, len(files))
	for _, name := range files.SortedPaths() {
		out[name] = analyzeFile(name, files[name])
	}
	return out
}

func analyzeFile(name, content string) mentor.FileMetrics {
	m := mentor.FileMetrics{Warnings: []mentor.Warning{}}
	switch strings.ToLower(path.Ext(name)) {
	case ".go":
		c, warn := goComplexity(name, content)
		m.Complexity = c
		if warn != nil {
			m.Warnings = append(m.Warnings, *warn)
		}
	case ".py":
		m.Complexity = pythonComplexity(content)
	}
	m.Warnings = append(m.Warnings, lineWarnings(name, content)...)
	return m
}

func lineWarnings(name, content string) []mentor.Warning {
	isPython := strings.HasSuffix(strings.ToLower(name), ".py")
	var out []mentor.Warning
	for i, line := range strings.Split(content, "\n") {
		n := i + 1
		if isPython && rePrint.MatchString(line) {
			out = append(out, mentor.Warning{Line: n, Message: "Consider using the logging module instead of print()."})
		}
		if reConsoleLog.MatchString(line) {
			out = append(out, mentor.Warning{Line: n, Message: "Consider removing console.log in production."})
		}
		if reSecret.MatchString(line) {
			out = append(out, mentor.Warning{Line: n, Severity: mentor.SeverityHigh, Message: "Potential hardcoded secret detected!"})
		}
	}
	return out
}
