package schemas

import "time"

// StaleAfter is the age past which an AnalysisConfig is considered stale.
const StaleAfter = 90 * 24 * time.Hour

// RepoSize buckets repositories by size for weight synthesis.
type RepoSize string

const (
	RepoSizeSmall      RepoSize = "small"
	RepoSizeMedium     RepoSize = "medium"
	RepoSizeLarge      RepoSize = "large"
	RepoSizeEnterprise RepoSize = "enterprise"
)

// Criticality is how important the repository is to the business.
type Criticality string

const (
	CriticalityLow      Criticality = "low"
	CriticalityMedium   Criticality = "medium"
	CriticalityHigh     Criticality = "high"
	CriticalityCritical Criticality = "critical"
)

// RepositoryContext describes the repository being compared. It drives config
// lookup, similarity search and weight synthesis.
type RepositoryContext struct {
	RepoType    string      `json:"repo_type" mapstructure:"repo_type"`
	Language    string      `json:"language" mapstructure:"language"`
	Size        RepoSize    `json:"size,omitempty" mapstructure:"size"`
	Complexity  string      `json:"complexity,omitempty" mapstructure:"complexity"`
	Criticality Criticality `json:"criticality,omitempty" mapstructure:"criticality"`
	Frameworks  []string    `json:"frameworks,omitempty" mapstructure:"frameworks"`
}

// ModelRef names a model at a provider, e.g. {openai, gpt-4o-mini}.
type ModelRef struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// String renders the ref as provider/model.
func (m ModelRef) String() string {
	if m.Provider == "" {
		return m.Model
	}
	return m.Provider + "/" + m.Model
}

// IsZero reports whether no model is set.
func (m ModelRef) IsZero() bool { return m.Model == "" }

// ModelPreferences holds the primary model and the model used when the
// primary call fails.
type ModelPreferences struct {
	Primary  ModelRef `json:"primary"`
	Fallback ModelRef `json:"fallback"`
}

// AnalysisConfig is a persisted, per-user/per-team configuration for analyzing
// a class of repository.
type AnalysisConfig struct {
	ID               string               `json:"id"`
	UserID           string               `json:"user_id"`
	TeamID           string               `json:"team_id,omitempty"`
	RepoType         string               `json:"repo_type"`
	Language         string               `json:"language"`
	Complexity       string               `json:"complexity,omitempty"`
	ModelPreferences ModelPreferences     `json:"model_preferences"`
	Weights          map[Category]float64 `json:"weights"`
	Thresholds       map[string]float64   `json:"thresholds,omitempty"`
	Features         map[string]bool      `json:"features,omitempty"`
	Version          int                  `json:"version"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// Age returns how long ago the config was last updated. Configs that were
// never updated age from their creation.
func (c *AnalysisConfig) Age(now time.Time) time.Duration {
	ts := c.UpdatedAt
	if ts.IsZero() {
		ts = c.CreatedAt
	}
	if ts.IsZero() {
		return 0
	}
	return now.Sub(ts)
}

// IsStale reports whether the config is older than StaleAfter.
func (c *AnalysisConfig) IsStale(now time.Time) bool {
	return c.Age(now) > StaleAfter
}

// ConfigUpdate is a partial update applied by ConfigStore.UpdateConfig. Nil
// fields are left untouched.
type ConfigUpdate struct {
	ModelPreferences *ModelPreferences    `json:"model_preferences,omitempty"`
	Weights          map[Category]float64 `json:"weights,omitempty"`
	Thresholds       map[string]float64   `json:"thresholds,omitempty"`
	Features         map[string]bool      `json:"features,omitempty"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// SimilarConfigQuery filters configs created for comparable repositories.
type SimilarConfigQuery struct {
	RepoType   string
	Language   string
	Complexity string
}

// ResearchCriteria is what a ModelResearcher is asked to pick a model for.
type ResearchCriteria struct {
	Repository RepositoryContext `json:"repository"`
	Purpose    string            `json:"purpose"`
}

// ModelRecommendation is the output of model research.
type ModelRecommendation struct {
	Provider  string   `json:"provider"`
	Model     string   `json:"model"`
	Reasoning []string `json:"reasoning,omitempty"`
}

// Ref converts the recommendation into a ModelRef.
func (r ModelRecommendation) Ref() ModelRef {
	return ModelRef{Provider: r.Provider, Model: r.Model}
}
