package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS analysis_configs (
    id                TEXT PRIMARY KEY,
    user_id           TEXT NOT NULL,
    team_id           TEXT NOT NULL DEFAULT '',
    repo_type         TEXT NOT NULL,
    language          TEXT NOT NULL DEFAULT '',
    complexity        TEXT NOT NULL DEFAULT '',
    primary_provider  TEXT NOT NULL,
    primary_model     TEXT NOT NULL,
    fallback_provider TEXT NOT NULL DEFAULT '',
    fallback_model    TEXT NOT NULL DEFAULT '',
    weights           TEXT NOT NULL DEFAULT '{}',
    thresholds        TEXT NOT NULL DEFAULT '{}',
    features          TEXT NOT NULL DEFAULT '{}',
    version           INTEGER NOT NULL DEFAULT 1,
    created_at        TIMESTAMP NOT NULL,
    updated_at        TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_configs_user_repo ON analysis_configs (user_id, repo_type);
CREATE INDEX IF NOT EXISTS idx_configs_similar ON analysis_configs (repo_type, language);
CREATE INDEX IF NOT EXISTS idx_configs_updated ON analysis_configs (updated_at);

CREATE TABLE IF NOT EXISTS skill_scores (
    user_id    TEXT NOT NULL,
    category   TEXT NOT NULL,
    score      REAL NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (user_id, category)
);

CREATE TABLE IF NOT EXISTS skill_events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id    TEXT NOT NULL,
    category   TEXT NOT NULL,
    delta      REAL NOT NULL,
    reason     TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS comparison_reports (
    id               TEXT PRIMARY KEY,
    user_id          TEXT NOT NULL,
    repository       TEXT NOT NULL,
    base_branch      TEXT NOT NULL,
    head_branch      TEXT NOT NULL,
    pr_number        INTEGER NOT NULL DEFAULT 0,
    config_id        TEXT NOT NULL,
    success          BOOLEAN NOT NULL,
    analysis_outcome TEXT NOT NULL DEFAULT '',
    score_impact     REAL NOT NULL,
    quality_score    REAL NOT NULL,
    new_count        INTEGER NOT NULL,
    fixed_count      INTEGER NOT NULL,
    unchanged_count  INTEGER NOT NULL,
    payload          TEXT NOT NULL,
    created_at       TIMESTAMP NOT NULL
);`

// SQLiteStore implements the config, skill and report stores on a local
// SQLite file.
type SQLiteStore struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	now func() time.Time
	log *zap.Logger
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStore{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Question),
		now: time.Now,
		log: logger.Named("store.sqlite"),
	}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) GetConfig(ctx context.Context, userID, repoType string) (*schemas.AnalysisConfig, error) {
	query, args, err := s.sb.Select(configColumns...).
		From(tableConfigs).
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Eq{"repo_type": repoType}).
		OrderBy("updated_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build config query: %w", err)
	}
	cfg, err := scanConfig(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query config: %w", err)
	}
	return cfg, nil
}

func (s *SQLiteStore) FindSimilar(ctx context.Context, q schemas.SimilarConfigQuery) ([]schemas.AnalysisConfig, error) {
	b := s.sb.Select(configColumns...).
		From(tableConfigs).
		Where(sq.Eq{"repo_type": q.RepoType}).
		Where(sq.Eq{"language": q.Language})
	if q.Complexity != "" {
		b = b.Where(sq.Eq{"complexity": q.Complexity})
	}
	query, args, err := b.OrderBy("updated_at DESC").Limit(similarLimit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build similar config query: %w", err)
	}
	return s.queryConfigs(ctx, query, args)
}

func (s *SQLiteStore) ListStale(ctx context.Context, before time.Time) ([]schemas.AnalysisConfig, error) {
	query, args, err := s.sb.Select(configColumns...).
		From(tableConfigs).
		Where(sq.Lt{"updated_at": before.UTC()}).
		OrderBy("updated_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build stale config query: %w", err)
	}
	return s.queryConfigs(ctx, query, args)
}

func (s *SQLiteStore) queryConfigs(ctx context.Context, query string, args []any) ([]schemas.AnalysisConfig, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query configs: %w", err)
	}
	defer rows.Close()

	var configs []schemas.AnalysisConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan config row: %w", err)
		}
		configs = append(configs, *cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return configs, nil
}

func (s *SQLiteStore) SaveConfig(ctx context.Context, cfg *schemas.AnalysisConfig) error {
	values, err := configValues(cfg)
	if err != nil {
		return err
	}
	query, args, err := s.sb.Insert(tableConfigs).
		Columns(configColumns...).
		Values(values...).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
            primary_provider = excluded.primary_provider,
            primary_model = excluded.primary_model,
            fallback_provider = excluded.fallback_provider,
            fallback_model = excluded.fallback_model,
            weights = excluded.weights,
            thresholds = excluded.thresholds,
            features = excluded.features,
            version = excluded.version,
            updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build config insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save config %s: %w", cfg.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateConfig(ctx context.Context, id string, update schemas.ConfigUpdate) error {
	cols, vals, err := updateSet(update)
	if err != nil {
		return err
	}
	b := s.sb.Update(tableConfigs)
	for i, c := range cols {
		b = b.Set(c, vals[i])
	}
	query, args, err := b.Set("version", sq.Expr("version + 1")).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build config update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update config %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("config %s: %w", id, schemas.ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) GetUserSkills(ctx context.Context, userID string) (*schemas.DeveloperSkills, error) {
	query, args, err := s.sb.Select("category", "score", "updated_at").
		From(tableSkillScores).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build skills query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query skills: %w", err)
	}
	defer rows.Close()

	skills := &schemas.DeveloperSkills{UserID: userID, Categories: make(map[schemas.Category]float64)}
	for rows.Next() {
		var category string
		var score float64
		var updated time.Time
		if err := rows.Scan(&category, &score, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan skill row: %w", err)
		}
		skills.Categories[schemas.Category(category)] = score
		if updated.After(skills.UpdatedAt) {
			skills.UpdatedAt = updated
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	if len(skills.Categories) == 0 {
		return nil, fmt.Errorf("skills for %s: %w", userID, schemas.ErrNotFound)
	}
	skills.Level = SkillLevel(skills.Categories)
	return skills, nil
}

func (s *SQLiteStore) UpdateSkills(ctx context.Context, updates []schemas.SkillUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	now := s.now().UTC()
	for _, u := range updates {
		_, err := s.sb.Insert(tableSkillScores).
			Columns("user_id", "category", "score", "updated_at").
			Values(u.UserID, string(u.Category), initialSkillScore+u.Delta, now).
			Suffix(skillUpsertSuffix, u.Delta).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to apply skill update for %s/%s: %w", u.UserID, u.Category, err)
		}
		_, err = s.sb.Insert(tableSkillEvents).
			Columns("user_id", "category", "delta", "reason", "created_at").
			Values(u.UserID, string(u.Category), u.Delta, u.Reason, now).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to record skill event for %s/%s: %w", u.UserID, u.Category, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SaveReport(ctx context.Context, report *schemas.ComparisonReport) error {
	values, err := reportValues(report)
	if err != nil {
		return err
	}
	_, err = s.sb.Insert(tableReports).
		Columns(reportColumns...).
		Values(values...).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", report.ID, err)
	}
	return nil
}

// ReportCount returns how many reports are stored for a user.
func (s *SQLiteStore) ReportCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.sb.Select("COUNT(*)").
		From(tableReports).
		Where(sq.Eq{"user_id": userID}).
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count reports: %w", err)
	}
	return n, nil
}
