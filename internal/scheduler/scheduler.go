// Package scheduler runs the periodic staleness sweep over stored analysis
// configs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/resolver"
)

// DefaultSchedule runs the sweep daily at 06:00.
const DefaultSchedule = "0 6 * * *"

const sweepTimeout = 5 * time.Minute

// SweepResult summarizes one sweep.
type SweepResult struct {
	Stale   int
	Alerted int
}

// Sweeper finds stale configs and alerts on each of them.
type Sweeper struct {
	lister  schemas.StaleConfigLister
	alerter schemas.Alerter
	now     func() time.Time
	logger  *zap.Logger
}

func NewSweeper(lister schemas.StaleConfigLister, alerter schemas.Alerter, logger *zap.Logger) (*Sweeper, error) {
	if lister == nil {
		return nil, errors.New("stale config lister cannot be nil")
	}
	if alerter == nil {
		return nil, errors.New("alerter cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Sweeper{lister: lister, alerter: alerter, now: time.Now, logger: logger.Named("sweeper")}, nil
}

// Sweep alerts on every config older than schemas.StaleAfter. A failed alert
// does not stop the sweep; alert errors are joined into the returned error.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	now := s.now()
	stale, err := s.lister.ListStale(ctx, now.Add(-schemas.StaleAfter))
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to list stale configs: %w", err)
	}

	res := SweepResult{Stale: len(stale)}
	var errs []error
	for i := range stale {
		cfg := &stale[i]
		ageDays := int(cfg.Age(now) / (24 * time.Hour))
		if err := s.alerter.Alert(ctx, resolver.StaleAlert(cfg, ageDays)); err != nil {
			s.logger.Error("Failed to emit stale config alert", zap.String("config_id", cfg.ID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		res.Alerted++
	}
	s.logger.Info("Staleness sweep complete", zap.Int("stale", res.Stale), zap.Int("alerted", res.Alerted))
	return res, errors.Join(errs...)
}

// Scheduler runs a Sweeper on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	sweeper *Sweeper
	spec    string
	logger  *zap.Logger

	stateLock sync.Mutex
	isRunning bool
}

// New parses a standard 5-field cron expression (descriptors such as
// "@every 1h" are accepted too). An empty expression uses DefaultSchedule.
func New(schedule string, sweeper *Sweeper, logger *zap.Logger) (*Scheduler, error) {
	if sweeper == nil {
		return nil, errors.New("sweeper cannot be nil")
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	log := logger.Named("scheduler")
	cl := cronLogger{log.Sugar()}
	s := &Scheduler{
		cron:    cron.New(cron.WithParser(parser), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		sweeper: sweeper,
		spec:    schedule,
		logger:  log,
	}
	return s, nil
}

// Start schedules the sweep and returns immediately. Sweeps run with a
// context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	if s.isRunning {
		s.logger.Warn("Scheduler.Start called, but scheduler is already running.")
		return nil
	}

	_, err := s.cron.AddFunc(s.spec, func() {
		sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
		defer cancel()
		if _, err := s.sweeper.Sweep(sweepCtx); err != nil {
			s.logger.Error("Staleness sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	s.cron.Start()
	s.isRunning = true
	s.logger.Info("Staleness sweep scheduled", zap.String("schedule", s.spec))
	return nil
}

// Stop stops scheduling and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	if !s.isRunning {
		return
	}
	<-s.cron.Stop().Done()
	s.isRunning = false
	s.logger.Info("Scheduler stopped.")
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
