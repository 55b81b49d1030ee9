// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
)

// -- Store Mocks --

// MockConfigStore mocks schemas.ConfigStore and schemas.StaleConfigLister.
type MockConfigStore struct {
	mock.Mock
}

func (m *MockConfigStore) GetConfig(ctx context.Context, userID, repoType string) (*schemas.AnalysisConfig, error) {
	args := m.Called(ctx, userID, repoType)
	cfg, _ := args.Get(0).(*schemas.AnalysisConfig)
	return cfg, args.Error(1)
}

func (m *MockConfigStore) FindSimilar(ctx context.Context, q schemas.SimilarConfigQuery) ([]schemas.AnalysisConfig, error) {
	args := m.Called(ctx, q)
	cfgs, _ := args.Get(0).([]schemas.AnalysisConfig)
	return cfgs, args.Error(1)
}

func (m *MockConfigStore) SaveConfig(ctx context.Context, cfg *schemas.AnalysisConfig) error {
	return m.Called(ctx, cfg).Error(0)
}

func (m *MockConfigStore) UpdateConfig(ctx context.Context, id string, update schemas.ConfigUpdate) error {
	return m.Called(ctx, id, update).Error(0)
}

func (m *MockConfigStore) ListStale(ctx context.Context, before time.Time) ([]schemas.AnalysisConfig, error) {
	args := m.Called(ctx, before)
	cfgs, _ := args.Get(0).([]schemas.AnalysisConfig)
	return cfgs, args.Error(1)
}

// MockSkillStore mocks schemas.SkillStore.
type MockSkillStore struct {
	mock.Mock
}

func (m *MockSkillStore) GetUserSkills(ctx context.Context, userID string) (*schemas.DeveloperSkills, error) {
	args := m.Called(ctx, userID)
	s, _ := args.Get(0).(*schemas.DeveloperSkills)
	return s, args.Error(1)
}

func (m *MockSkillStore) UpdateSkills(ctx context.Context, updates []schemas.SkillUpdate) error {
	return m.Called(ctx, updates).Error(0)
}

// MockReportStore mocks schemas.ReportStore.
type MockReportStore struct {
	mock.Mock
}

func (m *MockReportStore) SaveReport(ctx context.Context, report *schemas.ComparisonReport) error {
	return m.Called(ctx, report).Error(0)
}

// MockConfigCache mocks schemas.ConfigCache.
type MockConfigCache struct {
	mock.Mock
}

func (m *MockConfigCache) Get(ctx context.Context, key string) (*schemas.AnalysisConfig, error) {
	args := m.Called(ctx, key)
	cfg, _ := args.Get(0).(*schemas.AnalysisConfig)
	return cfg, args.Error(1)
}

func (m *MockConfigCache) Set(ctx context.Context, key string, cfg *schemas.AnalysisConfig) error {
	return m.Called(ctx, key, cfg).Error(0)
}

func (m *MockConfigCache) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

// -- Collaborator Mocks --

// MockResearcher mocks schemas.ModelResearcher.
type MockResearcher struct {
	mock.Mock
}

func (m *MockResearcher) Research(ctx context.Context, criteria schemas.ResearchCriteria) (*schemas.ModelRecommendation, error) {
	args := m.Called(ctx, criteria)
	rec, _ := args.Get(0).(*schemas.ModelRecommendation)
	return rec, args.Error(1)
}

// MockAlerter mocks schemas.Alerter.
type MockAlerter struct {
	mock.Mock
}

func (m *MockAlerter) Alert(ctx context.Context, alert schemas.Alert) error {
	return m.Called(ctx, alert).Error(0)
}

// MockAnalysisProvider mocks schemas.AnalysisProvider.
type MockAnalysisProvider struct {
	mock.Mock
}

func (m *MockAnalysisProvider) Analyze(ctx context.Context, req schemas.AnalyzeRequest) (*schemas.AnalysisResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*schemas.AnalysisResult)
	return res, args.Error(1)
}

// MockLocationEnhancer mocks schemas.LocationEnhancer.
type MockLocationEnhancer struct {
	mock.Mock
}

func (m *MockLocationEnhancer) Enhance(ctx context.Context, issues []schemas.Issue, repository, ref string) (*schemas.EnhanceResult, error) {
	args := m.Called(ctx, issues, repository, ref)
	res, _ := args.Get(0).(*schemas.EnhanceResult)
	return res, args.Error(1)
}

// MockEducator mocks schemas.Educator.
type MockEducator struct {
	mock.Mock
}

func (m *MockEducator) Research(ctx context.Context, req schemas.EducationRequest) (*schemas.EducationalContent, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*schemas.EducationalContent)
	return res, args.Error(1)
}

// MockReportRenderer mocks schemas.ReportRenderer.
type MockReportRenderer struct {
	mock.Mock
}

func (m *MockReportRenderer) Format() string {
	return m.Called().String(0)
}

func (m *MockReportRenderer) Render(ctx context.Context, report *schemas.ComparisonReport) ([]byte, error) {
	args := m.Called(ctx, report)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

// MockLLMClient mocks schemas.LLMClient.
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}
