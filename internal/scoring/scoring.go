// Package scoring turns static metrics and agent feedback into a 0-100 quality score.
package scoring

import "codementor/internal/types/mentor"

const (
	baseScore = 100

	highComplexity     = 10.0
	moderateComplexity = 5.0
	highPenalty        = 20
	moderatePenalty    = 10

	warningPenalty = 2
)

// Calculate is deterministic and side-effect free. The result is always in [0,100].
func Calculate(metrics mentor.StaticMetrics, feedback []mentor.Issue) int {
	score := baseScore

	// The two thresholds are exclusive: a high average never also pays the moderate penalty.
	avg := AverageComplexity(metrics)
	if avg > highComplexity {
		score -= highPenalty
	} else if avg > moderateComplexity {
		score -= moderatePenalty
	}

	score -= warningPenalty * WarningCount(metrics)

	for _, issue := range feedback {
		score -= IssuePenalty(issue.Severity)
	}
	return clamp(score)
}

// AverageComplexity averages over every file with a metrics entry; files without
// a numeric complexity count as 1. An empty mapping averages to 0.
func AverageComplexity(metrics mentor.StaticMetrics) float64 {
	if len(metrics) == 0 {
		return 0
	}
	total := 0.0
	for _, m := range metrics {
		if m.Complexity == nil {
			total++
			continue
		}
		total += *m.Complexity
	}
	return total / float64(len(metrics))
}

func WarningCount(metrics mentor.StaticMetrics) int {
	n := 0
	for _, m := range metrics {
		n += len(m.Warnings)
	}
	return n
}

// IssuePenalty is 8 for high, 3 for medium (including an absent severity), 1 otherwise.
func IssuePenalty(s mentor.Severity) int {
	switch mentor.ParseSeverity(string(s)) {
	case mentor.SeverityHigh:
		return 8
	case mentor.SeverityMedium:
		return 3
	default:
		return 1
	}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
