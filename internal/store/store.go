// Package store persists analysis configs, developer skills and comparison
// reports. Postgres is the production backend; SQLite serves local runs.
package store

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	tableConfigs     = "analysis_configs"
	tableSkillScores = "skill_scores"
	tableSkillEvents = "skill_events"
	tableReports     = "comparison_reports"

	// similarLimit caps how many similar configs a lookup returns.
	similarLimit = 10
	// initialSkillScore is where a category starts the first time it moves.
	initialSkillScore = 50.0
)

var configColumns = []string{
	"id", "user_id", "team_id", "repo_type", "language", "complexity",
	"primary_provider", "primary_model", "fallback_provider", "fallback_model",
	"weights", "thresholds", "features", "version", "created_at", "updated_at",
}

var reportColumns = []string{
	"id", "user_id", "repository", "base_branch", "head_branch", "pr_number",
	"config_id", "success", "analysis_outcome", "score_impact", "quality_score",
	"new_count", "fixed_count", "unchanged_count", "payload", "created_at",
}

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (*schemas.AnalysisConfig, error) {
	var cfg schemas.AnalysisConfig
	var weights, thresholds, feats []byte
	err := row.Scan(
		&cfg.ID, &cfg.UserID, &cfg.TeamID, &cfg.RepoType, &cfg.Language, &cfg.Complexity,
		&cfg.ModelPreferences.Primary.Provider, &cfg.ModelPreferences.Primary.Model,
		&cfg.ModelPreferences.Fallback.Provider, &cfg.ModelPreferences.Fallback.Model,
		&weights, &thresholds, &feats, &cfg.Version, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeJSON(weights, &cfg.Weights); err != nil {
		return nil, fmt.Errorf("failed to decode weights of config %s: %w", cfg.ID, err)
	}
	if err := decodeJSON(thresholds, &cfg.Thresholds); err != nil {
		return nil, fmt.Errorf("failed to decode thresholds of config %s: %w", cfg.ID, err)
	}
	if err := decodeJSON(feats, &cfg.Features); err != nil {
		return nil, fmt.Errorf("failed to decode features of config %s: %w", cfg.ID, err)
	}
	return &cfg, nil
}

// configValues returns the insert values in configColumns order.
func configValues(cfg *schemas.AnalysisConfig) ([]any, error) {
	weights, err := encodeJSON(cfg.Weights)
	if err != nil {
		return nil, err
	}
	thresholds, err := encodeJSON(cfg.Thresholds)
	if err != nil {
		return nil, err
	}
	features, err := encodeJSON(cfg.Features)
	if err != nil {
		return nil, err
	}
	version := cfg.Version
	if version == 0 {
		version = 1
	}
	return []any{
		cfg.ID, cfg.UserID, cfg.TeamID, cfg.RepoType, cfg.Language, cfg.Complexity,
		cfg.ModelPreferences.Primary.Provider, cfg.ModelPreferences.Primary.Model,
		cfg.ModelPreferences.Fallback.Provider, cfg.ModelPreferences.Fallback.Model,
		weights, thresholds, features, version, cfg.CreatedAt.UTC(), cfg.UpdatedAt.UTC(),
	}, nil
}

// updateSet returns the column assignments of a partial update in a fixed order.
func updateSet(u schemas.ConfigUpdate) ([]string, []any, error) {
	var cols []string
	var vals []any
	if u.ModelPreferences != nil {
		cols = append(cols, "primary_provider", "primary_model", "fallback_provider", "fallback_model")
		vals = append(vals,
			u.ModelPreferences.Primary.Provider, u.ModelPreferences.Primary.Model,
			u.ModelPreferences.Fallback.Provider, u.ModelPreferences.Fallback.Model)
	}
	for _, field := range []struct {
		col string
		val any
		set bool
	}{
		{"weights", u.Weights, u.Weights != nil},
		{"thresholds", u.Thresholds, u.Thresholds != nil},
		{"features", u.Features, u.Features != nil},
	} {
		if !field.set {
			continue
		}
		b, err := encodeJSON(field.val)
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, field.col)
		vals = append(vals, b)
	}
	updated := u.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	cols = append(cols, "updated_at")
	vals = append(vals, updated.UTC())
	return cols, vals, nil
}

func reportValues(r *schemas.ComparisonReport) ([]any, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report %s: %w", r.ID, err)
	}
	s := r.Result.Summary
	return []any{
		r.ID, r.Request.UserID, r.Request.Repository, r.Request.BaseBranch, r.Request.HeadBranch, r.Request.PRNumber,
		r.ConfigID, r.Success, string(r.AnalysisOutcome), r.ScoreImpact, r.QualityScore,
		s.New.Total, s.Fixed.Total, s.Unchanged.Total, payload, r.CreatedAt.UTC(),
	}, nil
}

func encodeJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode column: %w", err)
	}
	return b, nil
}

func decodeJSON(b []byte, v any) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	return json.Unmarshal(b, v)
}

// SkillLevel maps an average skill score to a developer level.
func SkillLevel(categories map[schemas.Category]float64) string {
	if len(categories) == 0 {
		return "intermediate"
	}
	total := 0.0
	for _, v := range categories {
		total += v
	}
	switch avg := total / float64(len(categories)); {
	case avg < 40:
		return "junior"
	case avg >= 70:
		return "senior"
	default:
		return "intermediate"
	}
}
