// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codequal-cli/internal/config"
	"github.com/xkilldash9x/codequal-cli/internal/enrichment"
	"github.com/xkilldash9x/codequal-cli/internal/orchestrator"
	"github.com/xkilldash9x/codequal-cli/internal/reporting"
	"github.com/xkilldash9x/codequal-cli/internal/resolver"
	"github.com/xkilldash9x/codequal-cli/internal/scheduler"
)

// ComponentFactory creates the set of components for one environment.
// Commands depend on this interface so they can be tested without a database.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// FactoryOptions are process-wide settings shared by every environment.
type FactoryOptions struct {
	Version        string
	TracerProvider trace.TracerProvider
}

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct {
	opts FactoryOptions
}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory(opts FactoryOptions) ComponentFactory {
	return &concreteFactory{opts: opts}
}

// Create resolves every collaborator named by cfg. Nothing is selected per
// request afterwards.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	env := cfg.Environment()
	logger = logger.With(zap.String("environment", env))
	components := &Components{Environment: env, logger: logger}

	// Ensure cleanup happens if initialization fails midway.
	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Store
	st, closeStore, err := InitializeStore(ctx, cfg.Database(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize store: %w", err)
		return nil, initializationErr
	}
	components.Store = st
	components.onShutdown("store", closeStore)
	logger.Debug("Store initialized.", zap.String("driver", cfg.Database().Driver))

	// 2. Config cache
	cc, closeCache := InitializeCache(ctx, cfg.Redis(), logger)
	components.Cache = cc
	components.onShutdown("cache", closeCache)
	logger.Debug("Config cache initialized.")

	// 3. Alerting
	alerter, err := InitializeAlerter(cfg.Alerting(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize alerting: %w", err)
		return nil, initializationErr
	}
	components.Alerter = alerter
	logger.Debug("Alerter initialized.")

	// 4. Model research
	researcher, err := InitializeResearcher(ctx, cfg.Research(), cfg.LLM(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize model researcher: %w", err)
		return nil, initializationErr
	}
	logger.Debug("Model researcher initialized.", zap.String("type", cfg.Research().Type))

	// 5. Config resolver
	res, err := resolver.New(st, researcher, logger,
		resolver.WithCache(cc),
		resolver.WithAlerter(alerter),
		resolver.WithEnvironment(env),
		resolver.WithFallbackModel(cfg.LLM().Fallback.Ref()),
	)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize config resolver: %w", err)
		return nil, initializationErr
	}
	components.Resolver = res
	logger.Debug("Config resolver initialized.")

	// 6. Analysis provider
	provider, err := InitializeProvider(cfg.Provider(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize analysis provider: %w", err)
		return nil, initializationErr
	}
	logger.Debug("Analysis provider initialized.", zap.String("type", cfg.Provider().Type))

	// 7. Enrichment
	ecfg := cfg.Enrichment()
	enhancer, err := InitializeEnhancer(ecfg.Location, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize location enhancer: %w", err)
		return nil, initializationErr
	}
	educator, err := InitializeEducator(ecfg.Education, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize educator: %w", err)
		return nil, initializationErr
	}
	enricher := enrichment.New(enhancer, educator, logger, enrichment.Options{
		TaskTimeout:    ecfg.TaskTimeout,
		MaxConcurrency: ecfg.MaxConcurrency,
	})
	logger.Debug("Enrichment initialized.",
		zap.Bool("location", enhancer != nil),
		zap.Bool("education", educator != nil))

	// 8. Renderer
	renderer, err := reporting.New(cfg.Report().Format, f.opts.Version, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize report renderer: %w", err)
		return nil, initializationErr
	}

	// 9. Orchestrator
	orch, err := orchestrator.New(logger, orchestrator.Dependencies{
		Resolver: res,
		Enricher: enricher,
		Provider: provider,
		Skills:   st,
		Reports:  st,
		Renderer: renderer,
	}, orchestrator.Options{
		BaseScore:      cfg.Scoring().BaseScore,
		TracerProvider: f.opts.TracerProvider,
	})
	if err != nil {
		initializationErr = fmt.Errorf("failed to create orchestrator: %w", err)
		return nil, initializationErr
	}
	components.Orchestrator = orch
	logger.Debug("Orchestrator initialized.")

	// 10. Staleness sweeper
	sweeper, err := scheduler.NewSweeper(st, alerter, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create staleness sweeper: %w", err)
		return nil, initializationErr
	}
	components.Sweeper = sweeper

	logger.Info("All components initialized successfully.")
	return components, nil
}
