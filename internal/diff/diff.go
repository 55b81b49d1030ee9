// Package diff partitions the issues of two branches into new, fixed and
// unchanged sets.
package diff

import (
	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/fingerprint"
)

// index maps fingerprints to issues, keeping first-seen order. When two issues
// on the same side share a fingerprint the later one wins.
type index struct {
	order  []string
	issues map[string]schemas.Issue
}

func newIndex(issues []schemas.Issue) index {
	idx := index{
		order:  make([]string, 0, len(issues)),
		issues: make(map[string]schemas.Issue, len(issues)),
	}
	for _, issue := range issues {
		key := fingerprint.Fingerprint(issue)
		if _, seen := idx.issues[key]; !seen {
			idx.order = append(idx.order, key)
		}
		idx.issues[key] = issue
	}
	return idx
}

// Diff compares baseline (target branch) and candidate (source branch) issues.
// Inputs are not modified; returned issues are copies with Status and Age set.
func Diff(baseline, candidate []schemas.Issue) schemas.ComparisonResult {
	base := newIndex(baseline)
	cand := newIndex(candidate)

	result := schemas.ComparisonResult{
		NewIssues:       []schemas.Issue{},
		FixedIssues:     []schemas.Issue{},
		UnchangedIssues: []schemas.Issue{},
	}

	for _, key := range cand.order {
		issue := cand.issues[key]
		if prior, ok := base.issues[key]; ok {
			issue.Status = schemas.StatusPreExisting
			issue.Age = prior.Age
			if issue.Age == "" || issue.Age == schemas.AgeNew {
				issue.Age = schemas.AgePreExisting
			}
			result.UnchangedIssues = append(result.UnchangedIssues, issue)
			continue
		}
		issue.Status = schemas.StatusNew
		issue.Age = schemas.AgeNew
		result.NewIssues = append(result.NewIssues, issue)
	}

	for _, key := range base.order {
		if _, ok := cand.issues[key]; ok {
			continue
		}
		issue := base.issues[key]
		issue.Status = schemas.StatusResolved
		result.FixedIssues = append(result.FixedIssues, issue)
	}

	result.Summary = Summarize(result)
	return result
}

// Summarize counts issues per severity in each bucket.
func Summarize(result schemas.ComparisonResult) schemas.Summary {
	var s schemas.Summary
	for _, i := range result.NewIssues {
		s.New.Add(i.Severity)
	}
	for _, i := range result.FixedIssues {
		s.Fixed.Add(i.Severity)
	}
	for _, i := range result.UnchangedIssues {
		s.Unchanged.Add(i.Severity)
	}
	return s
}
