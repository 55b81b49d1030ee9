package schemas

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// -- Provider Interfaces --

// AnalyzeRequest asks a provider to analyze one branch of a repository.
type AnalyzeRequest struct {
	Repository string
	Branch     string
	PRNumber   int
	// Model is the model the provider should analyze with. Providers that
	// do not support model selection ignore it.
	Model ModelRef
}

// AnalysisProvider produces the raw issue list for a single branch.
type AnalysisProvider interface {
	Analyze(ctx context.Context, req AnalyzeRequest) (*AnalysisResult, error)
}

// ModelResearcher recommends a model for a repository.
type ModelResearcher interface {
	Research(ctx context.Context, criteria ResearchCriteria) (*ModelRecommendation, error)
}

// LocationEnhancer refines issue locations against the source at a ref.
type LocationEnhancer interface {
	Enhance(ctx context.Context, issues []Issue, repository, ref string) (*EnhanceResult, error)
}

// Educator finds learning material for a set of issues.
type Educator interface {
	Research(ctx context.Context, req EducationRequest) (*EducationalContent, error)
}

// ReportRenderer turns an assembled report into a document. The orchestrator
// passes the output through without inspecting it.
type ReportRenderer interface {
	Format() string
	Render(ctx context.Context, report *ComparisonReport) ([]byte, error)
}

// Alerter delivers monitoring alerts.
type Alerter interface {
	Alert(ctx context.Context, alert Alert) error
}

// -- Store Interfaces --

// ConfigStore persists AnalysisConfigs. Lookups return (nil, nil) when no
// config matches.
type ConfigStore interface {
	GetConfig(ctx context.Context, userID, repoType string) (*AnalysisConfig, error)
	FindSimilar(ctx context.Context, q SimilarConfigQuery) ([]AnalysisConfig, error)
	SaveConfig(ctx context.Context, cfg *AnalysisConfig) error
	UpdateConfig(ctx context.Context, id string, update ConfigUpdate) error
}

// StaleConfigLister is implemented by stores that can enumerate configs last
// updated before a cutoff.
type StaleConfigLister interface {
	ListStale(ctx context.Context, before time.Time) ([]AnalysisConfig, error)
}

// SkillStore reads and updates developer skill profiles.
type SkillStore interface {
	GetUserSkills(ctx context.Context, userID string) (*DeveloperSkills, error)
	UpdateSkills(ctx context.Context, updates []SkillUpdate) error
}

// ReportStore persists assembled comparison reports.
type ReportStore interface {
	SaveReport(ctx context.Context, report *ComparisonReport) error
}

// ConfigCache holds the last good config per environment key. A miss is
// (nil, nil).
type ConfigCache interface {
	Get(ctx context.Context, key string) (*AnalysisConfig, error)
	Set(ctx context.Context, key string, cfg *AnalysisConfig) error
	Delete(ctx context.Context, key string) error
}

// -- LLM Interfaces --

// GenerationRequest is a single prompt sent to a model.
type GenerationRequest struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
	// JSON asks the model for a JSON object response where supported.
	JSON bool
}

// LLMClient generates text for a prompt.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}
