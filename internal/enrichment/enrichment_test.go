package enrichment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/mocks"
)

func issue(title string, cat schemas.Category, sev schemas.Severity, file string, line int) schemas.Issue {
	return schemas.Issue{
		Title:    title,
		Message:  title,
		Category: cat,
		Severity: sev,
		Location: &schemas.Location{File: file, Line: line},
	}
}

var ectx = Context{Repository: "https://github.com/acme/shop", BaseRef: "main", HeadRef: "feature/cart", TeamProfile: "backend"}

func sampleResult() schemas.ComparisonResult {
	return schemas.ComparisonResult{
		NewIssues: []schemas.Issue{
			issue("SQL injection in search", schemas.CategorySecurity, schemas.SeverityCritical, "search.go", 10),
			issue("SQL injection in filter", schemas.CategorySecurity, schemas.SeverityCritical, "filter.go", 22),
			issue("Hardcoded secret in config", schemas.CategorySecurity, schemas.SeverityHigh, "config.go", 5),
			issue("N+1 query in loop", schemas.CategoryPerformance, schemas.SeverityMedium, "orders.go", 40),
		},
		UnchangedIssues: []schemas.Issue{
			issue("Long function", schemas.CategoryCodeQuality, schemas.SeverityLow, "handler.go", 100),
		},
		FixedIssues: []schemas.Issue{
			issue("XSS in template", schemas.CategorySecurity, schemas.SeverityHigh, "view.go", 7),
		},
	}
}

func reportFor(t *testing.T, e *schemas.Enrichment, name string) schemas.TaskReport {
	t.Helper()
	for _, r := range e.Tasks {
		if r.Name == name {
			return r
		}
	}
	t.Fatalf("no report for task %s", name)
	return schemas.TaskReport{}
}

func TestEnrich_AllTasksSucceed(t *testing.T) {
	defer goleak.VerifyNone(t)

	enhancer := &mocks.MockLocationEnhancer{}
	educator := &mocks.MockEducator{}
	result := sampleResult()

	candidate := &schemas.EnhanceResult{EnhancedCount: 5}
	baseline := &schemas.EnhanceResult{EnhancedCount: 1}
	content := &schemas.EducationalContent{Modules: []schemas.LearningModule{{Pattern: "security|critical|sql-injection"}}}

	enhancer.On("Enhance", mock.Anything, mock.MatchedBy(func(is []schemas.Issue) bool { return len(is) == 5 }), ectx.Repository, "feature/cart").
		Return(candidate, nil).Once()
	enhancer.On("Enhance", mock.Anything, result.FixedIssues, ectx.Repository, "main").Return(baseline, nil).Once()
	educator.On("Research", mock.Anything, mock.MatchedBy(func(req schemas.EducationRequest) bool {
		return req.DeveloperLevel == DefaultDeveloperLevel && req.TeamProfile == "backend"
	})).Return(content, nil).Once()

	o := New(enhancer, educator, zap.NewNop(), Options{TaskTimeout: time.Second})
	e := o.Enrich(context.Background(), result, ectx)

	require.NotNil(t, e.Location)
	assert.Same(t, candidate, e.Location.Candidate)
	assert.Same(t, baseline, e.Location.Baseline)
	assert.Same(t, content, e.Educational)
	for _, r := range e.Tasks {
		assert.Equal(t, schemas.TaskOK, r.Status, r.Name)
	}
	enhancer.AssertExpectations(t)
	educator.AssertExpectations(t)
}

func TestEnrich_EducatorCalledWithDistinctPatternsOnly(t *testing.T) {
	defer goleak.VerifyNone(t)

	educator := &mocks.MockEducator{}
	var got schemas.EducationRequest
	educator.On("Research", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = args.Get(1).(schemas.EducationRequest) }).
		Return(&schemas.EducationalContent{}, nil).Once()

	o := New(nil, educator, zap.NewNop(), Options{})
	e := o.Enrich(context.Background(), sampleResult(), ectx)
	require.NotNil(t, e.Educational)

	// Two SQL injection issues share a pattern; four new issues become three.
	assert.Len(t, got.Issues, 3)
	assert.Equal(t, "search.go", got.Issues[0].File())
}

func TestEnrich_FailureIsIsolated(t *testing.T) {
	defer goleak.VerifyNone(t)

	core, logs := observer.New(zap.WarnLevel)
	enhancer := &mocks.MockLocationEnhancer{}
	educator := &mocks.MockEducator{}
	enhancer.On("Enhance", mock.Anything, mock.Anything, mock.Anything, "feature/cart").Return(nil, errors.New("github: 502")).Once()
	enhancer.On("Enhance", mock.Anything, mock.Anything, mock.Anything, "main").Return(&schemas.EnhanceResult{}, nil).Once()
	educator.On("Research", mock.Anything, mock.Anything).Return(&schemas.EducationalContent{Summary: "ok"}, nil).Once()

	o := New(enhancer, educator, zap.New(core), Options{TaskTimeout: time.Second})
	e := o.Enrich(context.Background(), sampleResult(), ectx)

	require.NotNil(t, e.Location)
	assert.Nil(t, e.Location.Candidate)
	assert.NotNil(t, e.Location.Baseline)
	assert.Equal(t, "ok", e.Educational.Summary)

	r := reportFor(t, e, TaskLocationCandidate)
	assert.Equal(t, schemas.TaskFailed, r.Status)
	assert.Contains(t, r.Error, "github: 502")
	assert.Equal(t, 1, logs.FilterMessage("Enrichment task did not complete").Len())
}

func TestEnrich_TimeoutTreatedAsFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	educator := &mocks.MockEducator{}
	educator.On("Research", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
		}).
		Return(&schemas.EducationalContent{Summary: "too late"}, nil).Once()

	o := New(nil, educator, zap.NewNop(), Options{TaskTimeout: 50 * time.Millisecond})
	start := time.Now()
	e := o.Enrich(context.Background(), sampleResult(), ectx)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Nil(t, e.Educational, "late results must be dropped")
	assert.Equal(t, schemas.TaskTimedOut, reportFor(t, e, TaskEducation).Status)
}

func TestEnrich_PanicIsRecovered(t *testing.T) {
	defer goleak.VerifyNone(t)

	educator := &mocks.MockEducator{}
	educator.On("Research", mock.Anything, mock.Anything).Run(func(mock.Arguments) { panic("nil map") }).
		Return(nil, nil).Once()

	o := New(nil, educator, zap.NewNop(), Options{})
	e := o.Enrich(context.Background(), sampleResult(), ectx)

	assert.Nil(t, e.Educational)
	r := reportFor(t, e, TaskEducation)
	assert.Equal(t, schemas.TaskFailed, r.Status)
	assert.Contains(t, r.Error, "panicked")
}

func TestEnrich_SkipsWithoutCollaboratorsOrInput(t *testing.T) {
	defer goleak.VerifyNone(t)

	o := New(nil, nil, zap.NewNop(), Options{})
	e := o.Enrich(context.Background(), sampleResult(), ectx)
	assert.Nil(t, e.Location)
	assert.Nil(t, e.Educational)
	require.Len(t, e.Tasks, 3)
	for _, r := range e.Tasks {
		assert.Equal(t, schemas.TaskSkipped, r.Status)
	}

	// With collaborators but an empty diff nothing runs either.
	enhancer := &mocks.MockLocationEnhancer{}
	educator := &mocks.MockEducator{}
	o = New(enhancer, educator, zap.NewNop(), Options{})
	e = o.Enrich(context.Background(), schemas.ComparisonResult{}, ectx)
	for _, r := range e.Tasks {
		assert.Equal(t, schemas.TaskSkipped, r.Status)
	}
	enhancer.AssertNotCalled(t, "Enhance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	educator.AssertNotCalled(t, "Research", mock.Anything, mock.Anything)
}

func TestEnrich_RunsConcurrently(t *testing.T) {
	defer goleak.VerifyNone(t)

	const delay = 200 * time.Millisecond
	enhancer := &mocks.MockLocationEnhancer{}
	educator := &mocks.MockEducator{}
	sleep := func(mock.Arguments) { time.Sleep(delay) }
	enhancer.On("Enhance", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Run(sleep).Return(&schemas.EnhanceResult{}, nil).Twice()
	educator.On("Research", mock.Anything, mock.Anything).Run(sleep).Return(&schemas.EducationalContent{}, nil).Once()

	o := New(enhancer, educator, zap.NewNop(), Options{TaskTimeout: 5 * time.Second, MaxConcurrency: 3})
	start := time.Now()
	o.Enrich(context.Background(), sampleResult(), ectx)

	assert.Less(t, time.Since(start), 3*delay, "tasks should overlap")
}

func TestDedupeByPattern(t *testing.T) {
	issues := sampleResult().NewIssues
	out := DedupeByPattern(issues)
	require.Len(t, out, 3)
	assert.Equal(t, "search.go", out[0].File())
	assert.Equal(t, "config.go", out[1].File())
	assert.Equal(t, "orders.go", out[2].File())
	assert.Empty(t, DedupeByPattern(nil))
}
