package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
)

// DBPool abstracts pgxpool.Pool so the store can be exercised with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const postgresSchema = `
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
    weights           JSONB NOT NULL DEFAULT '{}',
    thresholds        JSONB NOT NULL DEFAULT '{}',
    features          JSONB NOT NULL DEFAULT '{}',
    version           INTEGER NOT NULL DEFAULT 1,
    created_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_configs_user_repo ON analysis_configs (user_id, repo_type);
CREATE INDEX IF NOT EXISTS idx_configs_similar ON analysis_configs (repo_type, language);
CREATE INDEX IF NOT EXISTS idx_configs_updated ON analysis_configs (updated_at);

CREATE TABLE IF NOT EXISTS skill_scores (
    user_id    TEXT NOT NULL,
    category   TEXT NOT NULL,
    score      DOUBLE PRECISION NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (user_id, category)
);

CREATE TABLE IF NOT EXISTS skill_events (
    id         BIGSERIAL PRIMARY KEY,
    user_id    TEXT NOT NULL,
    category   TEXT NOT NULL,
    delta      DOUBLE PRECISION NOT NULL,
    reason     TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL
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
    score_impact     DOUBLE PRECISION NOT NULL,
    quality_score    DOUBLE PRECISION NOT NULL,
    new_count        INTEGER NOT NULL,
    fixed_count      INTEGER NOT NULL,
    unchanged_count  INTEGER NOT NULL,
    payload          JSONB NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL
);`

// skillUpsertSuffix adds the delta to an existing score instead of resetting it.
const skillUpsertSuffix = "ON CONFLICT (user_id, category) DO UPDATE SET score = skill_scores.score + ?, updated_at = excluded.updated_at"

// PostgresStore implements the config, skill and report stores on Postgres.
type PostgresStore struct {
	pool DBPool
	sb   sq.StatementBuilderType
	now  func() time.Time
	log  *zap.Logger
}

// NewPostgres creates a store and verifies the connection.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresStore, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresStore{
		pool: pool,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now:  time.Now,
		log:  logger.Named("store.postgres"),
	}, nil
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// GetConfig returns the most recently updated config of a user for a repo
// type, or (nil, nil).
func (s *PostgresStore) GetConfig(ctx context.Context, userID, repoType string) (*schemas.AnalysisConfig, error) {
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

	cfg, err := scanConfig(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query config: %w", err)
	}
	return cfg, nil
}

// FindSimilar returns configs for the same repo type and language, newest
// first. Complexity narrows the match when set.
func (s *PostgresStore) FindSimilar(ctx context.Context, q schemas.SimilarConfigQuery) ([]schemas.AnalysisConfig, error) {
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

// ListStale returns configs last updated before the cutoff, oldest first.
func (s *PostgresStore) ListStale(ctx context.Context, before time.Time) ([]schemas.AnalysisConfig, error) {
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

func (s *PostgresStore) queryConfigs(ctx context.Context, query string, args []any) ([]schemas.AnalysisConfig, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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

// SaveConfig inserts a config, replacing any existing row with the same ID.
func (s *PostgresStore) SaveConfig(ctx context.Context, cfg *schemas.AnalysisConfig) error {
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
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save config %s: %w", cfg.ID, err)
	}
	return nil
}

// UpdateConfig applies a partial update and bumps the version.
func (s *PostgresStore) UpdateConfig(ctx context.Context, id string, update schemas.ConfigUpdate) error {
	cols, vals, err := updateSet(update)
	if err != nil {
		return err
	}
	b := s.sb.Update(tableConfigs)
	for i, c := range cols {
		b = b.Set(c, vals[i])
	}
	query, args, err := b.Set("version", sq.Expr("version + 1")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build config update: %w", err)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update config %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("config %s: %w", id, schemas.ErrNotFound)
	}
	return nil
}

// GetUserSkills returns the skill profile of a user, or ErrNotFound.
func (s *PostgresStore) GetUserSkills(ctx context.Context, userID string) (*schemas.DeveloperSkills, error) {
	query, args, err := s.sb.Select("category", "score", "updated_at").
		From(tableSkillScores).
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build skills query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
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

// UpdateSkills applies all deltas in one transaction and records an event
// per update.
func (s *PostgresStore) UpdateSkills(ctx context.Context, updates []schemas.SkillUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	now := s.now().UTC()
	batch := &pgx.Batch{}
	for _, u := range updates {
		upsert, args, err := s.sb.Insert(tableSkillScores).
			Columns("user_id", "category", "score", "updated_at").
			Values(u.UserID, string(u.Category), initialSkillScore+u.Delta, now).
			Suffix(skillUpsertSuffix, u.Delta).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build skill upsert: %w", err)
		}
		batch.Queue(upsert, args...)

		event, args, err := s.sb.Insert(tableSkillEvents).
			Columns("user_id", "category", "delta", "reason", "created_at").
			Values(u.UserID, string(u.Category), u.Delta, u.Reason, now).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build skill event insert: %w", err)
		}
		batch.Queue(event, args...)
	}

	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send batch: batch results is nil")
	}
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			u := updates[i/2]
			return fmt.Errorf("failed to apply skill update for %s/%s: %w", u.UserID, u.Category, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveReport stores an assembled comparison report.
func (s *PostgresStore) SaveReport(ctx context.Context, report *schemas.ComparisonReport) error {
	values, err := reportValues(report)
	if err != nil {
		return err
	}
	query, args, err := s.sb.Insert(tableReports).Columns(reportColumns...).Values(values...).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build report insert: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save report %s: %w", report.ID, err)
	}
	return nil
}
