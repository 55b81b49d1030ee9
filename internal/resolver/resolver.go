// Package resolver finds or creates the AnalysisConfig used for a comparison.
//
// Resolution walks a fixed chain: cache, exact lookup, similar configs, and
// finally a single model research call whose result is persisted. Read
// failures along the way degrade to the next step; failing to persist a
// researched config is fatal.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
)

// ErrConfigUnresolved is returned when no config could be found or created.
var ErrConfigUnresolved = errors.New("analysis config could not be resolved")

// Source records which step of the chain produced a config.
type Source string

const (
	SourceCache    Source = "cache"
	SourceLookup   Source = "lookup"
	SourceSimilar  Source = "similar"
	SourceResearch Source = "research"
)

// Resolution is a resolved config plus how it was obtained.
type Resolution struct {
	Config  *schemas.AnalysisConfig
	Source  Source
	Stale   bool
	AgeDays int
}

// Resolver implements the config resolution chain.
type Resolver struct {
	store      schemas.ConfigStore
	researcher schemas.ModelResearcher
	cache      schemas.ConfigCache
	alerter    schemas.Alerter
	env        string
	fallback   schemas.ModelRef
	now        func() time.Time
	logger     *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCache adds a last-good-config cache in front of the store.
func WithCache(c schemas.ConfigCache) Option { return func(r *Resolver) { r.cache = c } }

// WithAlerter sets where stale-config alerts go.
func WithAlerter(a schemas.Alerter) Option { return func(r *Resolver) { r.alerter = a } }

// WithEnvironment scopes cache keys to an environment.
func WithEnvironment(env string) Option { return func(r *Resolver) { r.env = env } }

// WithFallbackModel sets the fallback model written into researched configs.
func WithFallbackModel(m schemas.ModelRef) Option { return func(r *Resolver) { r.fallback = m } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(r *Resolver) { r.now = now } }

// New creates a Resolver. store and researcher are required.
func New(store schemas.ConfigStore, researcher schemas.ModelResearcher, logger *zap.Logger, opts ...Option) (*Resolver, error) {
	if store == nil {
		return nil, fmt.Errorf("config store cannot be nil")
	}
	if researcher == nil {
		return nil, fmt.Errorf("model researcher cannot be nil")
	}
	r := &Resolver{
		store:      store,
		researcher: researcher,
		env:        "default",
		now:        time.Now,
		logger:     logger.Named("config_resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve returns the config for userID and repo.
func (r *Resolver) Resolve(ctx context.Context, userID string, repo schemas.RepositoryContext) (*Resolution, error) {
	log := r.logger.With(zap.String("user_id", userID), zap.String("repo_type", repo.RepoType), zap.String("language", repo.Language))
	key := r.cacheKey(userID, repo)

	if r.cache != nil {
		cfg, err := r.cache.Get(ctx, key)
		if err != nil {
			log.Warn("Config cache lookup failed, continuing", zap.Error(err))
		} else if cfg != nil {
			log.Debug("Config served from cache", zap.String("config_id", cfg.ID))
			return r.finish(ctx, cfg, SourceCache, key, log), nil
		}
	}

	cfg, err := r.store.GetConfig(ctx, userID, repo.RepoType)
	if err != nil {
		log.Warn("Config lookup failed, treating as not found", zap.Error(err))
		cfg = nil
	}
	if cfg != nil {
		return r.finish(ctx, cfg, SourceLookup, key, log), nil
	}

	similar, err := r.store.FindSimilar(ctx, schemas.SimilarConfigQuery{
		RepoType:   repo.RepoType,
		Language:   repo.Language,
		Complexity: repo.Complexity,
	})
	if err != nil {
		log.Warn("Similar config search failed, treating as none", zap.Error(err))
		similar = nil
	}
	if best := mostRecent(similar); best != nil {
		log.Info("Using config from a similar repository", zap.String("config_id", best.ID))
		return r.finish(ctx, best, SourceSimilar, key, log), nil
	}

	log.Info("No existing config, researching a model")
	cfg, err = r.research(ctx, userID, repo)
	if err != nil {
		return nil, err
	}
	return r.finish(ctx, cfg, SourceResearch, key, log), nil
}

// Refresh re-runs model research for an existing config and applies the
// result through UpdateConfig. The cached resolution for userID and repo is
// evicted so the next Resolve reads the updated config from the store.
func (r *Resolver) Refresh(ctx context.Context, userID, configID string, repo schemas.RepositoryContext) (*schemas.ConfigUpdate, error) {
	rec, err := r.researcher.Research(ctx, schemas.ResearchCriteria{Repository: repo, Purpose: "refresh"})
	if err != nil {
		return nil, fmt.Errorf("failed to research model for config %s: %w", configID, err)
	}
	prefs := schemas.ModelPreferences{Primary: rec.Ref(), Fallback: r.fallback}
	update := schemas.ConfigUpdate{
		ModelPreferences: &prefs,
		Weights:          ComputeWeights(repo),
		UpdatedAt:        r.now().UTC(),
	}
	if err := r.store.UpdateConfig(ctx, configID, update); err != nil {
		return nil, fmt.Errorf("failed to update config %s: %w", configID, err)
	}
	if r.cache != nil {
		if err := r.cache.Delete(ctx, r.cacheKey(userID, repo)); err != nil {
			r.logger.Warn("Failed to evict refreshed config from cache", zap.String("config_id", configID), zap.Error(err))
		}
	}
	r.logger.Info("Config refreshed", zap.String("config_id", configID), zap.String("primary", prefs.Primary.String()))
	return &update, nil
}

func (r *Resolver) research(ctx context.Context, userID string, repo schemas.RepositoryContext) (*schemas.AnalysisConfig, error) {
	rec, err := r.researcher.Research(ctx, schemas.ResearchCriteria{Repository: repo, Purpose: "pull request comparison"})
	if err != nil {
		return nil, fmt.Errorf("%w: model research failed: %w", ErrConfigUnresolved, err)
	}

	now := r.now().UTC()
	cfg := &schemas.AnalysisConfig{
		ID:         uuid.NewString(),
		UserID:     userID,
		RepoType:   repo.RepoType,
		Language:   repo.Language,
		Complexity: repo.Complexity,
		ModelPreferences: schemas.ModelPreferences{
			Primary:  rec.Ref(),
			Fallback: r.fallback,
		},
		Weights:    ComputeWeights(repo),
		Thresholds: defaultThresholds(),
		Features:   defaultFeatures(),
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := r.store.SaveConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to persist researched config: %w", ErrConfigUnresolved, err)
	}
	r.logger.Info("Researched config persisted",
		zap.String("config_id", cfg.ID),
		zap.String("primary", cfg.ModelPreferences.Primary.String()),
		zap.Strings("reasoning", rec.Reasoning))
	return cfg, nil
}

// finish applies the staleness check and refreshes the cache.
func (r *Resolver) finish(ctx context.Context, cfg *schemas.AnalysisConfig, src Source, key string, log *zap.Logger) *Resolution {
	now := r.now()
	res := &Resolution{
		Config:  cfg,
		Source:  src,
		Stale:   cfg.IsStale(now),
		AgeDays: int(cfg.Age(now) / (24 * time.Hour)),
	}

	if res.Stale {
		log.Warn("Analysis config is stale",
			zap.String("config_id", cfg.ID),
			zap.Int("age_days", res.AgeDays),
			zap.String("source", string(src)))
		r.alertStale(ctx, cfg, res.AgeDays, log)
	}

	if r.cache != nil && src != SourceCache {
		if err := r.cache.Set(ctx, key, cfg); err != nil {
			log.Warn("Failed to cache resolved config", zap.Error(err))
		}
	}
	return res
}

func (r *Resolver) alertStale(ctx context.Context, cfg *schemas.AnalysisConfig, ageDays int, log *zap.Logger) {
	if r.alerter == nil {
		return
	}
	err := r.alerter.Alert(ctx, StaleAlert(cfg, ageDays))
	if err != nil {
		log.Error("Failed to emit stale config alert", zap.String("config_id", cfg.ID), zap.Error(err))
	}
}

// StaleAlert builds the monitoring alert for a stale config.
func StaleAlert(cfg *schemas.AnalysisConfig, ageDays int) schemas.Alert {
	return schemas.Alert{
		Severity: schemas.AlertWarning,
		Title:    "Stale analysis configuration",
		Message: fmt.Sprintf("Config %s for %s/%s has not been updated in %d days; model choice may be outdated.",
			cfg.ID, cfg.RepoType, cfg.Language, ageDays),
		Fields: map[string]string{
			"config_id": cfg.ID,
			"user_id":   cfg.UserID,
			"repo_type": cfg.RepoType,
			"language":  cfg.Language,
			"model":     cfg.ModelPreferences.Primary.String(),
			"age_days":  fmt.Sprint(ageDays),
		},
	}
}

// cacheKey covers every field the lookup and similar steps match on.
func (r *Resolver) cacheKey(userID string, repo schemas.RepositoryContext) string {
	return strings.Join([]string{r.env, userID, repo.RepoType, strings.ToLower(repo.Language), strings.ToLower(repo.Complexity)}, ":")
}

// mostRecent returns the config with the latest UpdatedAt, or nil.
func mostRecent(configs []schemas.AnalysisConfig) *schemas.AnalysisConfig {
	if len(configs) == 0 {
		return nil
	}
	sorted := append([]schemas.AnalysisConfig(nil), configs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt)
	})
	best := sorted[0]
	return &best
}
