// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mitchellh/go-homedir"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/alerting"
	"github.com/xkilldash9x/codequal-cli/internal/cache"
	"github.com/xkilldash9x/codequal-cli/internal/config"
	"github.com/xkilldash9x/codequal-cli/internal/education"
	"github.com/xkilldash9x/codequal-cli/internal/llmclient"
	"github.com/xkilldash9x/codequal-cli/internal/location"
	"github.com/xkilldash9x/codequal-cli/internal/providers"
	"github.com/xkilldash9x/codequal-cli/internal/research"
	"github.com/xkilldash9x/codequal-cli/internal/store"
)

// InitializeStore opens the configured database and returns the store plus a
// cleanup func that closes it.
func InitializeStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (Store, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		logger.Info("Initializing PostgreSQL store.")
		poolConfig, err := pgxpool.ParseConfig(cfg.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to parse PGX pool config: %w", err)
		}
		if cfg.MaxConns > 0 {
			poolConfig.MaxConns = cfg.MaxConns
		}
		poolConfig.MinConns = 1
		poolConfig.MaxConnLifetime = 1 * time.Hour
		poolConfig.MaxConnIdleTime = 30 * time.Minute
		if cfg.ConnectTimeout > 0 {
			poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
		}

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("unable to create PGX connection pool: %w", err)
		}
		pg, err := store.NewPostgres(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		cleanup := func() {
			logger.Debug("Closing PostgreSQL connection pool.")
			pool.Close()
		}
		return pg, cleanup, nil

	case config.DriverSQLite:
		path, err := homedir.Expand(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to expand sqlite path: %w", err)
		}
		logger.Info("Initializing SQLite store.", zap.String("path", path))
		lite, err := store.OpenSQLite(ctx, path, logger)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := lite.Close(); err != nil {
				logger.Warn("Error closing SQLite database.", zap.Error(err))
			}
		}
		return lite, cleanup, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// InitializeCache connects to Redis when enabled and falls back to an
// in-process cache otherwise. An unreachable Redis is not fatal.
func InitializeCache(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (schemas.ConfigCache, func()) {
	if !cfg.Enabled {
		return cache.NewMemoryCache(cfg.TTL), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unavailable, using in-memory config cache.", zap.String("addr", cfg.Addr), zap.Error(err))
		_ = client.Close()
		return cache.NewMemoryCache(cfg.TTL), func() {}
	}
	logger.Debug("Redis config cache connected.", zap.String("addr", cfg.Addr))
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn("Error closing Redis client.", zap.Error(err))
		}
	}
	return cache.NewRedisCache(client, cfg.KeyPrefix, cfg.TTL, logger), cleanup
}

// InitializeResearcher builds the model researcher. The LLM researcher needs
// at least one reachable provider.
func InitializeResearcher(ctx context.Context, rcfg config.ResearchConfig, lcfg config.LLMConfig, logger *zap.Logger) (schemas.ModelResearcher, error) {
	switch rcfg.Type {
	case config.ResearchTypeLLM:
		router, err := llmclient.NewRouterFromConfig(ctx, lcfg, logger)
		if err != nil {
			logger.Error("Failed to initialize LLM client. Model research will fail.", zap.Error(err))
			return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
		}
		r, err := research.NewLLMResearcher(router, lcfg.Primary.Ref(), lcfg.Fallback.Ref(), logger)
		if err != nil {
			return nil, err
		}
		return boundedResearcher{next: r, timeout: rcfg.Timeout}, nil
	case config.ResearchTypeCatalog, "":
		return research.NewCatalogResearcher(), nil
	default:
		return nil, fmt.Errorf("unsupported research type: %s", rcfg.Type)
	}
}

// boundedResearcher caps each research call at timeout.
type boundedResearcher struct {
	next    schemas.ModelResearcher
	timeout time.Duration
}

func (b boundedResearcher) Research(ctx context.Context, criteria schemas.ResearchCriteria) (*schemas.ModelRecommendation, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	return b.next.Research(ctx, criteria)
}

// InitializeProvider builds the branch analysis provider.
func InitializeProvider(cfg config.ProviderConfig, logger *zap.Logger) (schemas.AnalysisProvider, error) {
	switch cfg.Type {
	case config.ProviderTypeHTTP:
		return providers.NewHTTPProvider(cfg, nil, logger)
	case config.ProviderTypeFixture:
		dir, err := homedir.Expand(cfg.FixtureDir)
		if err != nil {
			return nil, fmt.Errorf("failed to expand fixture dir: %w", err)
		}
		return providers.NewFixtureProvider(dir)
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Type)
	}
}

// InitializeEnhancer builds the location enhancer, or returns nil when
// location enhancement is off.
func InitializeEnhancer(cfg config.LocationConfig, logger *zap.Logger) (schemas.LocationEnhancer, error) {
	var source location.Source
	switch cfg.Type {
	case config.LocationTypeGitHub:
		gh, err := location.NewGitHubSource(&http.Client{Timeout: 30 * time.Second}, cfg.GitHubToken, cfg.GitHubBaseURL)
		if err != nil {
			return nil, err
		}
		source = gh
	case config.LocationTypeGit:
		path, err := homedir.Expand(cfg.RepoPath)
		if err != nil {
			return nil, fmt.Errorf("failed to expand repo path: %w", err)
		}
		gs, err := location.OpenGitSource(path)
		if err != nil {
			return nil, err
		}
		source = gs
	case config.LocationTypeNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported location type: %s", cfg.Type)
	}
	return location.NewEnhancer(source, cfg.ContextLines, logger), nil
}

// InitializeEducator builds the educator, or returns nil when education is
// off.
func InitializeEducator(cfg config.EducationConfig, logger *zap.Logger) (schemas.Educator, error) {
	switch cfg.Type {
	case config.EducationTypeWeb:
		return education.NewWebEducator(cfg, nil, logger)
	case config.EducationTypeCatalog:
		return education.NewCatalogEducator(), nil
	case config.EducationTypeNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported education type: %s", cfg.Type)
	}
}

// InitializeAlerter always logs alerts and additionally posts them to Slack
// when configured.
func InitializeAlerter(cfg config.AlertingConfig, logger *zap.Logger) (schemas.Alerter, error) {
	alerters := alerting.Multi{alerting.NewLogAlerter(logger)}
	if cfg.Slack.Enabled {
		slack, err := alerting.NewSlackAlerter(cfg.Slack)
		if err != nil {
			return nil, err
		}
		alerters = append(alerters, slack)
	}
	return alerters, nil
}
