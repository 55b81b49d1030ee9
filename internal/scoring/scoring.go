// Package scoring turns a comparison into numeric impact and quality scores.
package scoring

import (
	"github.com/xkilldash9x/codequal-cli/api/schemas"
)

// DefaultBaseScore is where the quality score starts before deltas.
const DefaultBaseScore = 85.0

// categoryBaseScore is where each per-category score starts.
const categoryBaseScore = 100.0

var severityPoints = map[schemas.Severity]float64{
	schemas.SeverityCritical: 5,
	schemas.SeverityHigh:     3,
	schemas.SeverityMedium:   1,
	schemas.SeverityLow:      0.5,
}

// Points returns the weight of a severity. Unknown severities count as low.
func Points(s schemas.Severity) float64 {
	if p, ok := severityPoints[s]; ok {
		return p
	}
	return severityPoints[schemas.SeverityLow]
}

func sumPoints(issues []schemas.Issue) float64 {
	total := 0.0
	for _, i := range issues {
		total += Points(i.Severity)
	}
	return total
}

// Impact is the net effect of a change: fixed issues add their points, new
// and unchanged issues subtract theirs.
func Impact(result schemas.ComparisonResult) float64 {
	return sumPoints(result.FixedIssues) - sumPoints(result.NewIssues) - sumPoints(result.UnchangedIssues)
}

// Quality computes a 0-100 quality score starting from base. Each issue moves
// the score by its points scaled by its category weight, where a weight equal
// to the uniform share (1/len(weights)) scales by exactly 1. Categories absent
// from weights scale by 1; categories weighted at zero or below do not count.
func Quality(result schemas.ComparisonResult, weights map[schemas.Category]float64, base float64) float64 {
	factor := categoryFactor(weights)
	score := base
	for _, i := range result.FixedIssues {
		score += Points(i.Severity) * factor(i.Category)
	}
	for _, i := range result.NewIssues {
		score -= Points(i.Severity) * factor(i.Category)
	}
	for _, i := range result.UnchangedIssues {
		score -= Points(i.Severity) * factor(i.Category)
	}
	return clamp(score)
}

// CategoryScores returns a clamped 0-100 score per category seen in the result.
func CategoryScores(result schemas.ComparisonResult) map[schemas.Category]float64 {
	scores := make(map[schemas.Category]float64)
	touch := func(c schemas.Category, delta float64) {
		if _, ok := scores[c]; !ok {
			scores[c] = categoryBaseScore
		}
		scores[c] += delta
	}
	for _, i := range result.FixedIssues {
		touch(i.Category, Points(i.Severity))
	}
	for _, i := range result.NewIssues {
		touch(i.Category, -Points(i.Severity))
	}
	for _, i := range result.UnchangedIssues {
		touch(i.Category, -Points(i.Severity))
	}
	for c, s := range scores {
		scores[c] = clamp(s)
	}
	return scores
}

func categoryFactor(weights map[schemas.Category]float64) func(schemas.Category) float64 {
	n := float64(len(weights))
	return func(c schemas.Category) float64 {
		w, ok := weights[c]
		if !ok {
			return 1
		}
		if w <= 0 {
			return 0
		}
		return w * n
	}
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
