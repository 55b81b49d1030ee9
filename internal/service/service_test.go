package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/cache"
	"github.com/xkilldash9x/codequal-cli/internal/config"
	"github.com/xkilldash9x/codequal-cli/internal/education"
	"github.com/xkilldash9x/codequal-cli/internal/research"
	"github.com/xkilldash9x/codequal-cli/internal/store"
)

const baselineFixture = `
issues:
  - title: Slow loop
    message: Loop allocates on every iteration
    severity: medium
    category: performance
    location: {file: cart/total.go, line: 12}
`

const candidateFixture = `
issues:
  - title: SQL injection
    message: Query built with string concatenation
    severity: high
    category: security
    location: {file: cart/store.go, line: 40}
`

// testConfig returns a sqlite + fixture configuration rooted in a temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	fixtures := filepath.Join(dir, "fixtures")
	require.NoError(t, os.MkdirAll(fixtures, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(fixtures, "main.yaml"), []byte(baselineFixture), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(fixtures, "feature__cart.yaml"), []byte(candidateFixture), 0o644))

	cfg := config.NewDefaultConfig()
	cfg.DatabaseCfg.Driver = config.DriverSQLite
	cfg.DatabaseCfg.SQLitePath = filepath.Join(dir, "db", "codequal.db")
	cfg.ProviderCfg.Type = config.ProviderTypeFixture
	cfg.ProviderCfg.FixtureDir = fixtures
	return cfg
}

func TestFactory_Create(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	components, err := NewComponentFactory(FactoryOptions{Version: "test"}).Create(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer components.Shutdown()

	assert.Equal(t, "development", components.Environment)
	assert.NotNil(t, components.Resolver)
	assert.NotNil(t, components.Sweeper)
	assert.IsType(t, &cache.MemoryCache{}, components.Cache)

	report, err := components.Orchestrator.Run(ctx, schemas.ComparisonRequest{
		UserID:     "dev-1",
		Repository: "acme/shop",
		BaseBranch: "main",
		HeadBranch: "feature/cart",
		Context:    schemas.RepositoryContext{RepoType: "web", Language: "go"},
	})
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Len(t, report.Result.NewIssues, 1)
	assert.Len(t, report.Result.FixedIssues, 1)
	assert.Less(t, report.ScoreImpact, 0.0)
	assert.Equal(t, "json", report.Format)
	assert.NotEmpty(t, report.Document)

	lite, ok := components.Store.(*store.SQLiteStore)
	require.True(t, ok)
	n, err := lite.ReportCount(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The researched config was persisted and is found on the next run.
	saved, err := components.Store.GetConfig(ctx, "dev-1", "web")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, report.ConfigID, saved.ID)
}

func TestFactory_Create_Failures(t *testing.T) {
	ctx := context.Background()
	factory := NewComponentFactory(FactoryOptions{})

	t.Run("unsupported database driver", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.DatabaseCfg.Driver = "oracle"
		_, err := factory.Create(ctx, cfg, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "failed to initialize store")
	})

	t.Run("missing fixture dir", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.ProviderCfg.FixtureDir = filepath.Join(t.TempDir(), "missing")
		_, err := factory.Create(ctx, cfg, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "failed to initialize analysis provider")

		// The schema was applied before the failure and the file is reusable.
		lite, err := store.OpenSQLite(ctx, cfg.DatabaseCfg.SQLitePath, zap.NewNop())
		require.NoError(t, err)
		assert.NoError(t, lite.Close())
	})

	t.Run("unknown report format", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.ReportCfg.Format = "pdf"
		_, err := factory.Create(ctx, cfg, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "failed to initialize report renderer")
	})
}

func TestInitializers(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("researcher", func(t *testing.T) {
		r, err := InitializeResearcher(context.Background(), config.ResearchConfig{Type: config.ResearchTypeCatalog}, config.LLMConfig{}, logger)
		require.NoError(t, err)
		assert.IsType(t, &research.CatalogResearcher{}, r)

		_, err = InitializeResearcher(context.Background(), config.ResearchConfig{Type: config.ResearchTypeLLM}, config.LLMConfig{}, logger)
		assert.ErrorContains(t, err, "failed to initialize LLM client")

		_, err = InitializeResearcher(context.Background(), config.ResearchConfig{Type: "oracle"}, config.LLMConfig{}, logger)
		assert.Error(t, err)
	})

	t.Run("enhancer", func(t *testing.T) {
		e, err := InitializeEnhancer(config.LocationConfig{Type: config.LocationTypeNone}, logger)
		require.NoError(t, err)
		assert.Nil(t, e)

		e, err = InitializeEnhancer(config.LocationConfig{Type: config.LocationTypeGitHub, GitHubToken: "t"}, logger)
		require.NoError(t, err)
		assert.NotNil(t, e)

		_, err = InitializeEnhancer(config.LocationConfig{Type: config.LocationTypeGit, RepoPath: t.TempDir()}, logger)
		assert.Error(t, err, "an empty directory is not a repository")
	})

	t.Run("educator", func(t *testing.T) {
		e, err := InitializeEducator(config.EducationConfig{Type: config.EducationTypeNone}, logger)
		require.NoError(t, err)
		assert.Nil(t, e)

		e, err = InitializeEducator(config.EducationConfig{Type: config.EducationTypeCatalog}, logger)
		require.NoError(t, err)
		assert.IsType(t, &education.CatalogEducator{}, e)

		_, err = InitializeEducator(config.EducationConfig{Type: config.EducationTypeWeb}, logger)
		assert.ErrorContains(t, err, "search url is required")
	})

	t.Run("alerter", func(t *testing.T) {
		a, err := InitializeAlerter(config.AlertingConfig{}, logger)
		require.NoError(t, err)
		assert.NoError(t, a.Alert(context.Background(), schemas.Alert{Title: "t", Message: "m", Severity: schemas.AlertInfo}))

		_, err = InitializeAlerter(config.AlertingConfig{Slack: config.SlackConfig{Enabled: true}}, logger)
		assert.Error(t, err, "slack without a webhook")
	})

	t.Run("unreachable redis falls back to memory", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		c, cleanup := InitializeCache(ctx, config.RedisConfig{Enabled: true, Addr: "127.0.0.1:1"}, logger)
		defer cleanup()
		assert.IsType(t, &cache.MemoryCache{}, c)
	})
}

type slowResearcher struct{}

func (slowResearcher) Research(ctx context.Context, _ schemas.ResearchCriteria) (*schemas.ModelRecommendation, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestBoundedResearcher(t *testing.T) {
	r := boundedResearcher{next: slowResearcher{}, timeout: 10 * time.Millisecond}
	_, err := r.Research(context.Background(), schemas.ResearchCriteria{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// countingFactory wraps the real factory and counts Create calls.
type countingFactory struct {
	next  ComponentFactory
	calls atomic.Int32
	fail  bool
}

func (f *countingFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	f.calls.Add(1)
	if f.fail {
		return nil, errors.New("boom")
	}
	return f.next.Create(ctx, cfg, logger)
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	base := testConfig(t)
	factory := &countingFactory{next: NewComponentFactory(FactoryOptions{})}
	reg := NewRegistry(factory, WithEnvironment(base), zaptest.NewLogger(t))
	defer reg.Clear()

	staging, err := reg.Get(ctx, "staging")
	require.NoError(t, err)
	assert.Equal(t, "staging", staging.Environment)

	again, err := reg.Get(ctx, "staging")
	require.NoError(t, err)
	assert.Same(t, staging, again)
	assert.Equal(t, int32(1), factory.calls.Load())

	runner, err := reg.Runner(ctx, "staging")
	require.NoError(t, err)
	assert.Same(t, staging.Orchestrator, runner)

	assert.Equal(t, "development", base.EnvironmentName, "the base config is not modified")
	assert.Len(t, reg.Environments(), 1)

	reg.Clear()
	assert.Empty(t, reg.Environments())
}

func TestRegistry_FailuresAreNotCached(t *testing.T) {
	factory := &countingFactory{fail: true}
	reg := NewRegistry(factory, WithEnvironment(config.NewDefaultConfig()), zaptest.NewLogger(t))

	_, err := reg.Get(context.Background(), "prod")
	require.Error(t, err)
	_, err = reg.Runner(context.Background(), "prod")
	require.Error(t, err)
	assert.Equal(t, int32(2), factory.calls.Load())

	_, err = NewRegistry(factory, WithEnvironment(nil), zaptest.NewLogger(t)).Get(context.Background(), "prod")
	assert.ErrorContains(t, err, "no base configuration")
}
