// File: internal/service/registry.go
package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codequal-cli/internal/config"
	"github.com/xkilldash9x/codequal-cli/internal/server"
)

// ConfigLoader returns the configuration for an environment.
type ConfigLoader func(env string) (config.Interface, error)

// WithEnvironment returns a loader that reuses base for every environment,
// changing only the environment name. Environments then share settings but
// keep separate cache keys and alert tags.
func WithEnvironment(base *config.Config) ConfigLoader {
	return func(env string) (config.Interface, error) {
		if base == nil {
			return nil, fmt.Errorf("no base configuration")
		}
		cfg := *base
		cfg.EnvironmentName = env
		return &cfg, nil
	}
}

// Registry creates components lazily, once per environment, and shares them
// between requests.
type Registry struct {
	factory ComponentFactory
	load    ConfigLoader
	logger  *zap.Logger

	mu   sync.Mutex
	envs map[string]*Components
}

// NewRegistry creates an empty registry.
func NewRegistry(factory ComponentFactory, load ConfigLoader, logger *zap.Logger) *Registry {
	return &Registry{
		factory: factory,
		load:    load,
		logger:  logger.Named("registry"),
		envs:    make(map[string]*Components),
	}
}

// Get returns the components for env, creating them on first use. A failed
// creation is not cached, so the next call retries.
func (r *Registry) Get(ctx context.Context, env string) (*Components, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.envs[env]; ok {
		return c, nil
	}
	cfg, err := r.load(env)
	if err != nil {
		return nil, fmt.Errorf("failed to load config for environment %q: %w", env, err)
	}
	c, err := r.factory.Create(ctx, cfg, r.logger)
	if err != nil {
		return nil, err
	}
	r.envs[env] = c
	r.logger.Info("Environment initialized.", zap.String("environment", env))
	return c, nil
}

// Runner implements server.RunnerSource.
func (r *Registry) Runner(ctx context.Context, env string) (server.Runner, error) {
	c, err := r.Get(ctx, env)
	if err != nil {
		return nil, err
	}
	return c.Orchestrator, nil
}

// Environments lists the environments initialized so far.
func (r *Registry) Environments() []*Components {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Components, 0, len(r.envs))
	for _, c := range r.envs {
		out = append(out, c)
	}
	return out
}

// Clear shuts down every environment and empties the registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for env, c := range r.envs {
		c.Shutdown()
		delete(r.envs, env)
	}
}
