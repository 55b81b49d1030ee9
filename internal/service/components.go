// File: internal/service/components.go
package service

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/orchestrator"
	"github.com/xkilldash9x/codequal-cli/internal/resolver"
	"github.com/xkilldash9x/codequal-cli/internal/scheduler"
)

// Store is everything the comparison stack persists. Both the postgres and
// the sqlite stores implement it.
type Store interface {
	schemas.ConfigStore
	schemas.StaleConfigLister
	schemas.SkillStore
	schemas.ReportStore
}

// Components holds the initialized services for one environment.
type Components struct {
	Environment  string
	Store        Store
	Cache        schemas.ConfigCache
	Alerter      schemas.Alerter
	Resolver     *resolver.Resolver
	Orchestrator *orchestrator.Orchestrator
	Sweeper      *scheduler.Sweeper

	// closers release resources in reverse order of acquisition.
	closers []closer
	logger  *zap.Logger
}

type closer struct {
	name string
	fn   func()
}

func (c *Components) onShutdown(name string, fn func()) {
	c.closers = append(c.closers, closer{name: name, fn: fn})
}

// Shutdown releases the environment's resources. Later acquisitions are
// released first, so the cache and the database outlive nothing that uses
// them. It is safe to call on partially initialized components.
func (c *Components) Shutdown() {
	logger := c.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Debug("Beginning components shutdown sequence.")

	for i := len(c.closers) - 1; i >= 0; i-- {
		cl := c.closers[i]
		cl.fn()
		logger.Debug("Component released.", zap.String("component", cl.name))
	}
	c.closers = nil

	logger.Info("All components shut down successfully.", zap.String("environment", c.Environment))
}
