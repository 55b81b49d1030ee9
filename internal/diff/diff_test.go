package diff

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/fingerprint"
)

func mkIssue(file string, line int, sev schemas.Severity, msg string) schemas.Issue {
	return schemas.Issue{
		Title:    msg,
		Message:  msg,
		Severity: sev,
		Category: schemas.CategorySecurity,
		Location: &schemas.Location{File: file, Line: line},
	}
}

func TestDiff_Partitions(t *testing.T) {
	t.Parallel()
	shared := mkIssue("a.go", 10, schemas.SeverityHigh, "shared")
	fixed := mkIssue("b.go", 20, schemas.SeverityCritical, "fixed")
	added := mkIssue("c.go", 30, schemas.SeverityMedium, "added")

	result := Diff([]schemas.Issue{shared, fixed}, []schemas.Issue{shared, added})

	require.Len(t, result.NewIssues, 1)
	require.Len(t, result.FixedIssues, 1)
	require.Len(t, result.UnchangedIssues, 1)

	assert.Equal(t, "added", result.NewIssues[0].Message)
	assert.Equal(t, schemas.StatusNew, result.NewIssues[0].Status)
	assert.Equal(t, schemas.AgeNew, result.NewIssues[0].Age)

	assert.Equal(t, "fixed", result.FixedIssues[0].Message)
	assert.Equal(t, schemas.StatusResolved, result.FixedIssues[0].Status)

	assert.Equal(t, "shared", result.UnchangedIssues[0].Message)
	assert.Equal(t, schemas.StatusPreExisting, result.UnchangedIssues[0].Status)
	assert.Equal(t, schemas.AgePreExisting, result.UnchangedIssues[0].Age)

	expected := schemas.Summary{
		New:       schemas.SeverityCounts{Medium: 1, Total: 1},
		Fixed:     schemas.SeverityCounts{Critical: 1, Total: 1},
		Unchanged: schemas.SeverityCounts{High: 1, Total: 1},
	}
	if d := cmp.Diff(expected, result.Summary); d != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", d)
	}
}

func TestDiff_UnchangedCarriesBaselineAge(t *testing.T) {
	t.Parallel()
	old := mkIssue("a.go", 1, schemas.SeverityLow, "old")
	old.Age = "4 months"
	current := old
	current.Age = ""

	result := Diff([]schemas.Issue{old}, []schemas.Issue{current})
	require.Len(t, result.UnchangedIssues, 1)
	assert.Equal(t, "4 months", result.UnchangedIssues[0].Age)
}

func TestDiff_EmptyInputs(t *testing.T) {
	t.Parallel()
	result := Diff(nil, nil)
	assert.NotNil(t, result.NewIssues)
	assert.NotNil(t, result.FixedIssues)
	assert.NotNil(t, result.UnchangedIssues)
	assert.Zero(t, result.Summary.New.Total+result.Summary.Fixed.Total+result.Summary.Unchanged.Total)

	onlyBase := Diff([]schemas.Issue{mkIssue("a.go", 1, schemas.SeverityHigh, "x")}, nil)
	assert.Len(t, onlyBase.FixedIssues, 1)
	assert.Empty(t, onlyBase.NewIssues)

	onlyCand := Diff(nil, []schemas.Issue{mkIssue("a.go", 1, schemas.SeverityHigh, "x")})
	assert.Len(t, onlyCand.NewIssues, 1)
	assert.Empty(t, onlyCand.FixedIssues)
}

func TestDiff_DoesNotMutateInputs(t *testing.T) {
	t.Parallel()
	baseline := []schemas.Issue{mkIssue("a.go", 1, schemas.SeverityHigh, "x"), mkIssue("b.go", 2, schemas.SeverityLow, "y")}
	candidate := []schemas.Issue{mkIssue("a.go", 1, schemas.SeverityHigh, "x"), mkIssue("c.go", 3, schemas.SeverityLow, "z")}
	baseCopy := append([]schemas.Issue(nil), baseline...)
	candCopy := append([]schemas.Issue(nil), candidate...)

	_ = Diff(baseline, candidate)

	if d := cmp.Diff(baseCopy, baseline); d != "" {
		t.Errorf("baseline mutated (-want +got):\n%s", d)
	}
	if d := cmp.Diff(candCopy, candidate); d != "" {
		t.Errorf("candidate mutated (-want +got):\n%s", d)
	}
}

func TestDiff_SameSideCollisionLastWriteWins(t *testing.T) {
	t.Parallel()
	first := mkIssue("a.go", 1, schemas.SeverityHigh, "dup")
	first.ID = "first"
	second := first
	second.ID = "second"
	other := mkIssue("b.go", 5, schemas.SeverityLow, "other")

	result := Diff(nil, []schemas.Issue{first, other, second})

	require.Len(t, result.NewIssues, 2)
	// Position follows the first occurrence, content follows the last.
	assert.Equal(t, "second", result.NewIssues[0].ID)
	assert.Equal(t, "other", result.NewIssues[1].Message)
	assert.Equal(t, 2, result.Summary.New.Total)
}

func TestDiff_MovedIssueIsNewAndFixed(t *testing.T) {
	t.Parallel()
	before := mkIssue("a.go", 10, schemas.SeverityMedium, "moved")
	after := mkIssue("a.go", 11, schemas.SeverityMedium, "moved")

	result := Diff([]schemas.Issue{before}, []schemas.Issue{after})
	assert.Len(t, result.NewIssues, 1)
	assert.Len(t, result.FixedIssues, 1)
	assert.Empty(t, result.UnchangedIssues)
}

func TestDiff_DeterministicOrder(t *testing.T) {
	t.Parallel()
	var candidate []schemas.Issue
	for i := 0; i < 20; i++ {
		candidate = append(candidate, mkIssue("f.go", i, schemas.SeverityLow, "n"))
	}
	first := Diff(nil, candidate)
	for i := 0; i < 5; i++ {
		if d := cmp.Diff(first, Diff(nil, candidate)); d != "" {
			t.Fatalf("non-deterministic output:\n%s", d)
		}
	}
	for i, issue := range first.NewIssues {
		assert.Equal(t, i, issue.Line())
	}
}

func fingerprintSet(buckets ...[]schemas.Issue) map[string]struct{} {
	set := make(map[string]struct{})
	for _, issues := range buckets {
		for _, i := range issues {
			set[fingerprint.Fingerprint(i)] = struct{}{}
		}
	}
	return set
}

func FuzzDiff(f *testing.F) {
	f.Add([]byte("seed"))
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		var baseline, candidate []schemas.Issue
		if err := consumer.GenerateStruct(&baseline); err != nil {
			return
		}
		if err := consumer.GenerateStruct(&candidate); err != nil {
			return
		}

		result := Diff(baseline, candidate)

		assert.Equal(t, fingerprintSet(candidate), fingerprintSet(result.NewIssues, result.UnchangedIssues))
		assert.Equal(t, fingerprintSet(baseline), fingerprintSet(result.FixedIssues, result.UnchangedIssues))

		newSet := fingerprintSet(result.NewIssues)
		fixedSet := fingerprintSet(result.FixedIssues)
		unchangedSet := fingerprintSet(result.UnchangedIssues)
		for key := range newSet {
			assert.NotContains(t, fixedSet, key)
			assert.NotContains(t, unchangedSet, key)
		}
		for key := range fixedSet {
			assert.NotContains(t, unchangedSet, key)
		}
		// Each fingerprint appears at most once across the buckets.
		assert.Equal(t, len(newSet)+len(fixedSet)+len(unchangedSet),
			len(result.NewIssues)+len(result.FixedIssues)+len(result.UnchangedIssues))
	})
}
