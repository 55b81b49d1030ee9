// internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/enrichment"
	"github.com/xkilldash9x/codequal-cli/internal/mocks"
	"github.com/xkilldash9x/codequal-cli/internal/resolver"
)

// -- Test Fixture Setup --

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var (
	primaryModel  = schemas.ModelRef{Provider: "openrouter", Model: "openai/gpt-4o-mini"}
	fallbackModel = schemas.ModelRef{Provider: "anthropic", Model: "claude-3-5-haiku-latest"}
)

type orchestratorTestFixture struct {
	Logger   *zap.Logger
	Logs     *observer.ObservedLogs
	Store    *mocks.MockConfigStore
	Research *mocks.MockResearcher
	Provider *mocks.MockAnalysisProvider
	Skills   *mocks.MockSkillStore
	Reports  *mocks.MockReportStore
	Renderer *mocks.MockReportRenderer
	Spans    *tracetest.SpanRecorder
	Config   *schemas.AnalysisConfig
}

func setupTest(t *testing.T) *orchestratorTestFixture {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return &orchestratorTestFixture{
		Logger:   zap.New(core),
		Logs:     logs,
		Store:    &mocks.MockConfigStore{},
		Research: &mocks.MockResearcher{},
		Provider: &mocks.MockAnalysisProvider{},
		Skills:   &mocks.MockSkillStore{},
		Reports:  &mocks.MockReportStore{},
		Renderer: &mocks.MockReportRenderer{},
		Spans:    tracetest.NewSpanRecorder(),
		Config: &schemas.AnalysisConfig{
			ID:               "cfg-1",
			UserID:           "dev-1",
			RepoType:         "web",
			Language:         "go",
			ModelPreferences: schemas.ModelPreferences{Primary: primaryModel, Fallback: fallbackModel},
			Weights: map[schemas.Category]float64{
				schemas.CategorySecurity:    0.5,
				schemas.CategoryPerformance: 0.5,
			},
			CreatedAt: fixedNow.Add(-10 * 24 * time.Hour),
			UpdatedAt: fixedNow.Add(-10 * 24 * time.Hour),
		},
	}
}

// build wires a real resolver and enrichment orchestrator around the mocks.
func (f *orchestratorTestFixture) build(t *testing.T) *Orchestrator {
	t.Helper()
	res, err := resolver.New(f.Store, f.Research, f.Logger, resolver.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	enr := enrichment.New(nil, nil, f.Logger, enrichment.Options{})
	o, err := New(f.Logger, Dependencies{
		Resolver: res,
		Enricher: enr,
		Provider: f.Provider,
		Skills:   f.Skills,
		Reports:  f.Reports,
		Renderer: f.Renderer,
	}, Options{
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(f.Spans)),
		Now:            func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return o
}

func (f *orchestratorTestFixture) expectStoredConfig() {
	f.Store.On("GetConfig", mock.Anything, "dev-1", "web").Return(f.Config, nil)
}

func (f *orchestratorTestFixture) expectHappyBookkeeping() {
	f.Skills.On("GetUserSkills", mock.Anything, "dev-1").Return(&schemas.DeveloperSkills{UserID: "dev-1", Level: "senior"}, nil)
	f.Skills.On("UpdateSkills", mock.Anything, mock.Anything).Return(nil)
	f.Reports.On("SaveReport", mock.Anything, mock.Anything).Return(nil)
	f.Renderer.On("Format").Return("json")
	f.Renderer.On("Render", mock.Anything, mock.Anything).Return([]byte(`{"ok":true}`), nil)
}

func request() schemas.ComparisonRequest {
	return schemas.ComparisonRequest{
		UserID:     "dev-1",
		Repository: "https://github.com/acme/shop",
		BaseBranch: "main",
		HeadBranch: "feature/cart",
		PRNumber:   42,
		Context:    schemas.RepositoryContext{RepoType: "web", Language: "go"},
	}
}

func sqlInjection() schemas.Issue {
	return schemas.Issue{
		Message:  "SQL injection",
		Category: schemas.CategorySecurity,
		Severity: schemas.SeverityCritical,
		Location: &schemas.Location{File: "a.ts", Line: 1},
	}
}

func nPlusOne() schemas.Issue {
	return schemas.Issue{
		Message:  "N+1 query",
		Category: schemas.CategoryPerformance,
		Severity: schemas.SeverityMedium,
		Location: &schemas.Location{File: "b.ts", Line: 5},
	}
}

func analysis(issues ...schemas.Issue) schemas.AnalysisResult {
	return schemas.AnalysisResult{Issues: issues}
}

// -- Test Cases --

func TestNewOrchestrator(t *testing.T) {
	t.Parallel()
	f := setupTest(t)

	t.Run("should create orchestrator with valid dependencies", func(t *testing.T) {
		t.Parallel()
		assert.NotNil(t, f.build(t))
	})

	t.Run("should return error with nil dependencies", func(t *testing.T) {
		t.Parallel()
		enr := enrichment.New(nil, nil, zap.NewNop(), enrichment.Options{})
		_, err := New(nil, Dependencies{Enricher: enr}, Options{})
		assert.Error(t, err)
		_, err = New(zap.NewNop(), Dependencies{Enricher: enr}, Options{})
		assert.Error(t, err, "Should fail with nil resolver")
	})
}

func TestCompare_FixedCriticalIssue(t *testing.T) {
	f := setupTest(t)
	f.expectStoredConfig()
	f.expectHappyBookkeeping()
	o := f.build(t)

	report, err := o.Compare(context.Background(), request(), analysis(sqlInjection()), analysis())
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Len(t, report.Result.FixedIssues, 1)
	assert.Empty(t, report.Result.NewIssues)
	assert.Equal(t, 5.0, report.ScoreImpact)
	assert.Equal(t, "cfg-1", report.ConfigID)
	assert.Equal(t, string(resolver.SourceLookup), report.ConfigSource)
	assert.Equal(t, schemas.AnalysisSupplied, report.AnalysisOutcome)
	assert.Equal(t, "json", report.Format)
	assert.JSONEq(t, `{"ok":true}`, string(report.Document))
	assert.Equal(t, fixedNow, report.CreatedAt)
	assert.NotEmpty(t, report.ID)

	f.Skills.AssertCalled(t, "UpdateSkills", mock.Anything, []schemas.SkillUpdate{{
		UserID: "dev-1", Category: schemas.CategorySecurity, Delta: 0.5, Reason: "1 fixed, 0 introduced",
	}})
	f.Reports.AssertCalled(t, "SaveReport", mock.Anything, report)
}

func TestCompare_NewMediumIssue(t *testing.T) {
	f := setupTest(t)
	f.expectStoredConfig()
	f.expectHappyBookkeeping()
	o := f.build(t)

	report, err := o.Compare(context.Background(), request(), analysis(), analysis(nPlusOne()))
	require.NoError(t, err)
	assert.Len(t, report.Result.NewIssues, 1)
	assert.Equal(t, -1.0, report.ScoreImpact)
	assert.Less(t, report.QualityScore, 85.0)
}

func TestCompare_UnchangedIssueIsPenalized(t *testing.T) {
	f := setupTest(t)
	f.expectStoredConfig()
	f.expectHappyBookkeeping()
	o := f.build(t)

	report, err := o.Compare(context.Background(), request(), analysis(sqlInjection()), analysis(sqlInjection()))
	require.NoError(t, err)
	assert.Len(t, report.Result.UnchangedIssues, 1)
	assert.Equal(t, -5.0, report.ScoreImpact)
	// Unchanged issues do not move skills, so nothing is written.
	f.Skills.AssertNotCalled(t, "UpdateSkills", mock.Anything, mock.Anything)
}

func TestCompare_ResolveFailureIsFatal(t *testing.T) {
	f := setupTest(t)
	f.Store.On("GetConfig", mock.Anything, "dev-1", "web").Return(nil, nil)
	f.Store.On("FindSimilar", mock.Anything, mock.Anything).Return(nil, nil)
	f.Research.On("Research", mock.Anything, mock.Anything).Return(nil, errors.New("research service down")).Once()
	o := f.build(t)

	report, err := o.Compare(context.Background(), request(), analysis(), analysis(nPlusOne()))
	require.Error(t, err)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, resolver.ErrConfigUnresolved)
	f.Reports.AssertNotCalled(t, "SaveReport", mock.Anything, mock.Anything)
	f.Research.AssertNumberOfCalls(t, "Research", 1)

	failed := f.Logs.FilterMessage("Comparison failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "resolve_config", failed[0].ContextMap()["state"])
}

func TestCompare_BookkeepingFailuresAreSwallowed(t *testing.T) {
	f := setupTest(t)
	f.expectStoredConfig()
	f.Skills.On("GetUserSkills", mock.Anything, "dev-1").Return(nil, errors.New("skills db timeout"))
	f.Skills.On("UpdateSkills", mock.Anything, mock.Anything).Return(errors.New("skills db timeout"))
	f.Reports.On("SaveReport", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	f.Renderer.On("Format").Return("sarif")
	f.Renderer.On("Render", mock.Anything, mock.Anything).Return(nil, errors.New("template error"))
	o := f.build(t)

	report, err := o.Compare(context.Background(), request(), analysis(sqlInjection()), analysis(nPlusOne()))
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Nil(t, report.Document)
	assert.Empty(t, report.Format)

	assert.Equal(t, 1, f.Logs.FilterMessage("Failed to persist comparison report").Len())
	assert.Equal(t, 1, f.Logs.FilterMessage("Failed to update developer skills").Len())
	assert.Equal(t, 1, f.Logs.FilterMessage("Report rendering failed, continuing without a document").Len())
	assert.Equal(t, 1, f.Logs.FilterMessage("Failed to read developer skills, using default level").Len())
}

func TestCompare_EmitsStageSpans(t *testing.T) {
	f := setupTest(t)
	f.expectStoredConfig()
	f.expectHappyBookkeeping()
	o := f.build(t)

	_, err := o.Compare(context.Background(), request(), analysis(), analysis())
	require.NoError(t, err)

	var names []string
	for _, s := range f.Spans.Ended() {
		names = append(names, s.Name())
	}
	for _, want := range []string{"comparison", "comparison.resolve_config", "comparison.analyze",
		"comparison.diff", "comparison.score", "comparison.enrich", "comparison.render", "comparison.persist"} {
		assert.Contains(t, names, want)
	}
}

func TestRun_AnalyzesBothBranches(t *testing.T) {
	f := setupTest(t)
	f.expectStoredConfig()
	f.expectHappyBookkeeping()
	f.Provider.On("Analyze", mock.Anything, schemas.AnalyzeRequest{
		Repository: "https://github.com/acme/shop", Branch: "main", PRNumber: 42, Model: primaryModel,
	}).Return(&schemas.AnalysisResult{Issues: []schemas.Issue{sqlInjection()}}, nil).Once()
	f.Provider.On("Analyze", mock.Anything, schemas.AnalyzeRequest{
		Repository: "https://github.com/acme/shop", Branch: "feature/cart", PRNumber: 42, Model: primaryModel,
	}).Return(&schemas.AnalysisResult{}, nil).Once()
	o := f.build(t)

	report, err := o.Run(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, schemas.AnalysisPrimary, report.AnalysisOutcome)
	assert.Len(t, report.Result.FixedIssues, 1)
	f.Provider.AssertExpectations(t)
}

func TestRun_FallsBackPerBranch(t *testing.T) {
	f := setupTest(t)
	f.expectStoredConfig()
	f.expectHappyBookkeeping()
	f.Provider.On("Analyze", mock.Anything, mock.MatchedBy(func(r schemas.AnalyzeRequest) bool {
		return r.Branch == "main"
	})).Return(&schemas.AnalysisResult{}, nil)
	f.Provider.On("Analyze", mock.Anything, mock.MatchedBy(func(r schemas.AnalyzeRequest) bool {
		return r.Branch == "feature/cart" && r.Model == primaryModel
	})).Return(nil, errors.New("rate limited")).Once()
	f.Provider.On("Analyze", mock.Anything, mock.MatchedBy(func(r schemas.AnalyzeRequest) bool {
		return r.Branch == "feature/cart" && r.Model == fallbackModel
	})).Return(&schemas.AnalysisResult{Issues: []schemas.Issue{nPlusOne()}}, nil).Once()
	o := f.build(t)

	report, err := o.Run(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, schemas.AnalysisFallback, report.AnalysisOutcome)
	assert.Len(t, report.Result.NewIssues, 1)
	assert.Equal(t, 1, f.Logs.FilterMessage("Branch analyzed with fallback model").Len())
}

func TestRun_BothTiersFail(t *testing.T) {
	f := setupTest(t)
	f.expectStoredConfig()
	f.Provider.On("Analyze", mock.Anything, mock.Anything).Return(nil, errors.New("provider down"))
	o := f.build(t)

	_, err := o.Run(context.Background(), request())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnalysisUnavailable)
	f.Reports.AssertNotCalled(t, "SaveReport", mock.Anything, mock.Anything)
}

func TestRun_WithoutProvider(t *testing.T) {
	f := setupTest(t)
	f.Provider = nil
	res, err := resolver.New(f.Store, f.Research, f.Logger)
	require.NoError(t, err)
	o, err := New(f.Logger, Dependencies{Resolver: res, Enricher: enrichment.New(nil, nil, f.Logger, enrichment.Options{})}, Options{})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), request())
	assert.ErrorIs(t, err, ErrAnalysisUnavailable)
}

func TestSkillUpdates(t *testing.T) {
	t.Parallel()
	highSec := sqlInjection()
	highSec.Severity = schemas.SeverityHigh
	highSec.Location = &schemas.Location{File: "c.ts", Line: 9}

	result := schemas.ComparisonResult{
		FixedIssues:     []schemas.Issue{sqlInjection(), nPlusOne()},
		NewIssues:       []schemas.Issue{highSec, nPlusOne()},
		UnchangedIssues: []schemas.Issue{sqlInjection()},
	}
	updates := SkillUpdates("dev-1", result)

	// Performance nets to zero and is omitted.
	require.Len(t, updates, 1)
	assert.Equal(t, schemas.CategorySecurity, updates[0].Category)
	assert.InDelta(t, 0.2, updates[0].Delta, 1e-9)
	assert.Equal(t, "1 fixed, 1 introduced", updates[0].Reason)

	assert.Empty(t, SkillUpdates("dev-1", schemas.ComparisonResult{}))
}

func TestState(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "resolve_config", StateResolveConfig.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, StateDone.Terminal())
	assert.True(t, StateError.Terminal())
	assert.False(t, StateEnrich.Terminal())
}
