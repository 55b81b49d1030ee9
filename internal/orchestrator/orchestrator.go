// Package orchestrator runs a full branch comparison: it resolves the analysis
// config, obtains both branch analyses, diffs and scores them, enriches the
// result and persists the assembled report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/diff"
	"github.com/xkilldash9x/codequal-cli/internal/enrichment"
	"github.com/xkilldash9x/codequal-cli/internal/llmclient"
	"github.com/xkilldash9x/codequal-cli/internal/resolver"
	"github.com/xkilldash9x/codequal-cli/internal/scoring"
)

const tracerName = "github.com/xkilldash9x/codequal-cli/internal/orchestrator"

// skillStep scales severity points into skill deltas.
const skillStep = 0.1

// ErrAnalysisUnavailable is returned by Run when a branch could not be
// analyzed by either the primary or the fallback model.
var ErrAnalysisUnavailable = errors.New("branch analysis unavailable")

// ConfigResolver is the part of the resolver the orchestrator needs.
type ConfigResolver interface {
	Resolve(ctx context.Context, userID string, repo schemas.RepositoryContext) (*resolver.Resolution, error)
}

// Enricher decorates a comparison with optional payloads. It never fails.
type Enricher interface {
	Enrich(ctx context.Context, result schemas.ComparisonResult, ec enrichment.Context) *schemas.Enrichment
}

// Dependencies are the collaborators of an Orchestrator. Resolver and
// Enricher are required. Provider is only needed by Run. The stores and the
// renderer are optional.
type Dependencies struct {
	Resolver ConfigResolver
	Enricher Enricher
	Provider schemas.AnalysisProvider
	Skills   schemas.SkillStore
	Reports  schemas.ReportStore
	Renderer schemas.ReportRenderer
}

// Options tunes scoring and instrumentation.
type Options struct {
	BaseScore      float64
	TracerProvider trace.TracerProvider
	Now            func() time.Time
}

// Orchestrator drives a comparison through its states.
type Orchestrator struct {
	deps   Dependencies
	base   float64
	tracer trace.Tracer
	now    func() time.Time
	logger *zap.Logger
}

// New creates an Orchestrator.
func New(logger *zap.Logger, deps Dependencies, opts Options) (*Orchestrator, error) {
	if logger == nil || deps.Resolver == nil || deps.Enricher == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if opts.BaseScore <= 0 {
		opts.BaseScore = scoring.DefaultBaseScore
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		deps:   deps,
		base:   opts.BaseScore,
		tracer: opts.TracerProvider.Tracer(tracerName),
		now:    opts.Now,
		logger: logger.Named("orchestrator"),
	}, nil
}

// analyses is what the Analyze state hands to Diff.
type analyses struct {
	baseline  []schemas.Issue
	candidate []schemas.Issue
	outcome   schemas.AnalysisOutcome
}

// acquireFunc obtains both branch analyses once the config is known.
type acquireFunc func(ctx context.Context, cfg *schemas.AnalysisConfig) (*analyses, error)

// Run resolves the config, analyzes both branches through the provider and
// compares them.
func (o *Orchestrator) Run(ctx context.Context, req schemas.ComparisonRequest) (*schemas.ComparisonReport, error) {
	if o.deps.Provider == nil {
		return nil, fmt.Errorf("%w: no analysis provider configured", ErrAnalysisUnavailable)
	}
	return o.execute(ctx, req, func(ctx context.Context, cfg *schemas.AnalysisConfig) (*analyses, error) {
		return o.analyzeBranches(ctx, req, cfg.ModelPreferences)
	})
}

// Compare runs a comparison over analyses the caller already has.
func (o *Orchestrator) Compare(ctx context.Context, req schemas.ComparisonRequest, baseline, candidate schemas.AnalysisResult) (*schemas.ComparisonReport, error) {
	return o.execute(ctx, req, func(context.Context, *schemas.AnalysisConfig) (*analyses, error) {
		return &analyses{baseline: baseline.Issues, candidate: candidate.Issues, outcome: schemas.AnalysisSupplied}, nil
	})
}

func (o *Orchestrator) execute(ctx context.Context, req schemas.ComparisonRequest, acquire acquireFunc) (*schemas.ComparisonReport, error) {
	ctx, root := o.tracer.Start(ctx, "comparison",
		trace.WithAttributes(
			attribute.String("codequal.repository", req.Repository),
			attribute.String("codequal.base", req.BaseBranch),
			attribute.String("codequal.head", req.HeadBranch),
		))
	defer root.End()

	log := o.logger.With(
		zap.String("repository", req.Repository),
		zap.String("base", req.BaseBranch),
		zap.String("head", req.HeadBranch),
		zap.String("user_id", req.UserID))
	m := &machine{log: log}
	m.enter(StateStart)

	report, err := o.drive(ctx, m, req, acquire)
	if err != nil {
		m.fail(err)
		root.RecordError(err)
		root.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	m.enter(StateDone)
	root.SetAttributes(attribute.Float64("codequal.score_impact", report.ScoreImpact))
	return report, nil
}

func (o *Orchestrator) drive(ctx context.Context, m *machine, req schemas.ComparisonRequest, acquire acquireFunc) (*schemas.ComparisonReport, error) {
	// ResolveConfig
	m.enter(StateResolveConfig)
	var res *resolver.Resolution
	err := o.stage(ctx, "resolve_config", func(ctx context.Context) error {
		var err error
		res, err = o.deps.Resolver.Resolve(ctx, req.UserID, req.Context)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve analysis config: %w", err)
	}
	cfg := res.Config
	m.log = m.log.With(zap.String("config_id", cfg.ID))

	// Analyze
	m.enter(StateAnalyze)
	var in *analyses
	err = o.stage(ctx, "analyze", func(ctx context.Context) error {
		var err error
		in, err = acquire(ctx, cfg)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Diff
	m.enter(StateDiff)
	var result schemas.ComparisonResult
	_ = o.stage(ctx, "diff", func(context.Context) error {
		result = diff.Diff(in.baseline, in.candidate)
		return nil
	})

	// Score
	m.enter(StateScore)
	report := &schemas.ComparisonReport{
		ID:              uuid.NewString(),
		Request:         req,
		ConfigID:        cfg.ID,
		ConfigSource:    string(res.Source),
		ConfigStale:     res.Stale,
		AnalysisOutcome: in.outcome,
		Result:          result,
		CreatedAt:       o.now().UTC(),
	}
	_ = o.stage(ctx, "score", func(context.Context) error {
		report.ScoreImpact = scoring.Impact(result)
		report.QualityScore = scoring.Quality(result, cfg.Weights, o.base)
		report.CategoryScores = scoring.CategoryScores(result)
		return nil
	})
	report.Success = true

	// Enrich
	m.enter(StateEnrich)
	_ = o.stage(ctx, "enrich", func(ctx context.Context) error {
		report.Enrichment = o.deps.Enricher.Enrich(ctx, result, enrichment.Context{
			Repository:     req.Repository,
			BaseRef:        req.BaseBranch,
			HeadRef:        req.HeadBranch,
			DeveloperLevel: o.developerLevel(ctx, req.UserID, m.log),
			TeamProfile:    req.TeamProfile,
		})
		return nil
	})

	// Assemble
	m.enter(StateAssemble)
	o.render(ctx, report, m.log)

	// Persist
	m.enter(StatePersist)
	o.persist(ctx, report, m.log)

	m.log.Info("Comparison complete",
		zap.Int("new", result.Summary.New.Total),
		zap.Int("fixed", result.Summary.Fixed.Total),
		zap.Int("unchanged", result.Summary.Unchanged.Total),
		zap.Float64("score_impact", report.ScoreImpact),
		zap.Float64("quality_score", report.QualityScore),
		zap.String("analysis", string(report.AnalysisOutcome)))
	return report, nil
}

// stage wraps fn in a child span.
func (o *Orchestrator) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := o.tracer.Start(ctx, "comparison."+name)
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// analyzeBranches analyzes base and head concurrently. Each branch walks the
// primary/fallback model chain independently.
func (o *Orchestrator) analyzeBranches(ctx context.Context, req schemas.ComparisonRequest, prefs schemas.ModelPreferences) (*analyses, error) {
	var outcomes [2]llmclient.Outcome[*schemas.AnalysisResult]
	branches := [2]string{req.BaseBranch, req.HeadBranch}

	g, gctx := errgroup.WithContext(ctx)
	for i, branch := range branches {
		g.Go(func() error {
			outcomes[i] = llmclient.CallWithFallback(gctx, prefs.Primary, prefs.Fallback,
				func(ctx context.Context, model schemas.ModelRef) (*schemas.AnalysisResult, error) {
					res, err := o.deps.Provider.Analyze(ctx, schemas.AnalyzeRequest{
						Repository: req.Repository,
						Branch:     branch,
						PRNumber:   req.PRNumber,
						Model:      model,
					})
					if err == nil && res == nil {
						err = errors.New("provider returned no result")
					}
					return res, err
				})
			if !outcomes[i].OK() {
				return fmt.Errorf("%w: branch %s: %v", ErrAnalysisUnavailable, branch, outcomes[i].Err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	in := &analyses{
		baseline:  outcomes[0].Value.Issues,
		candidate: outcomes[1].Value.Issues,
		outcome:   schemas.AnalysisPrimary,
	}
	for i, out := range outcomes {
		if out.Kind == llmclient.FallbackSuccess {
			in.outcome = schemas.AnalysisFallback
			o.logger.Warn("Branch analyzed with fallback model",
				zap.String("branch", branches[i]),
				zap.String("model", out.Model.String()),
				zap.NamedError("primary_error", out.PrimaryErr))
		}
	}
	return in, nil
}

// developerLevel reads the skill profile for the educator. Any failure falls
// back to the default level.
func (o *Orchestrator) developerLevel(ctx context.Context, userID string, log *zap.Logger) string {
	if o.deps.Skills == nil || userID == "" {
		return enrichment.DefaultDeveloperLevel
	}
	skills, err := o.deps.Skills.GetUserSkills(ctx, userID)
	if err != nil {
		if !errors.Is(err, schemas.ErrNotFound) {
			log.Warn("Failed to read developer skills, using default level", zap.Error(err))
		}
		return enrichment.DefaultDeveloperLevel
	}
	if skills == nil || skills.Level == "" {
		return enrichment.DefaultDeveloperLevel
	}
	return skills.Level
}

func (o *Orchestrator) render(ctx context.Context, report *schemas.ComparisonReport, log *zap.Logger) {
	if o.deps.Renderer == nil {
		return
	}
	_ = o.stage(ctx, "render", func(ctx context.Context) error {
		doc, err := o.deps.Renderer.Render(ctx, report)
		if err != nil {
			log.Warn("Report rendering failed, continuing without a document",
				zap.String("format", o.deps.Renderer.Format()), zap.Error(err))
			return err
		}
		report.Document = doc
		report.Format = o.deps.Renderer.Format()
		return nil
	})
}

// persist saves the report and moves skills. Failures here never affect the
// outcome of the run.
func (o *Orchestrator) persist(ctx context.Context, report *schemas.ComparisonReport, log *zap.Logger) {
	_ = o.stage(ctx, "persist", func(ctx context.Context) error {
		var errs []error
		if o.deps.Reports != nil {
			if err := o.deps.Reports.SaveReport(ctx, report); err != nil {
				log.Error("Failed to persist comparison report", zap.String("report_id", report.ID), zap.Error(err))
				errs = append(errs, err)
			}
		}
		if o.deps.Skills != nil && report.Request.UserID != "" {
			updates := SkillUpdates(report.Request.UserID, report.Result)
			if len(updates) > 0 {
				if err := o.deps.Skills.UpdateSkills(ctx, updates); err != nil {
					log.Error("Failed to update developer skills", zap.Int("updates", len(updates)), zap.Error(err))
					errs = append(errs, err)
				}
			}
		}
		return errors.Join(errs...)
	})
}

// SkillUpdates derives per-category skill deltas from a comparison. Fixing an
// issue raises the category by a tenth of its points; introducing one lowers
// it by the same amount. Unchanged issues do not move skills and categories
// whose delta nets to zero are omitted. Output follows first appearance of
// each category, fixed issues first.
func SkillUpdates(userID string, result schemas.ComparisonResult) []schemas.SkillUpdate {
	var order []schemas.Category
	deltas := make(map[schemas.Category]float64)
	fixed := make(map[schemas.Category]int)
	introduced := make(map[schemas.Category]int)

	add := func(c schemas.Category, d float64) {
		if _, ok := deltas[c]; !ok {
			order = append(order, c)
		}
		deltas[c] += d
	}
	for _, i := range result.FixedIssues {
		add(i.Category, scoring.Points(i.Severity)*skillStep)
		fixed[i.Category]++
	}
	for _, i := range result.NewIssues {
		add(i.Category, -scoring.Points(i.Severity)*skillStep)
		introduced[i.Category]++
	}

	var updates []schemas.SkillUpdate
	for _, c := range order {
		d := deltas[c]
		if d > -1e-9 && d < 1e-9 {
			continue
		}
		updates = append(updates, schemas.SkillUpdate{
			UserID:   userID,
			Category: c,
			Delta:    d,
			Reason:   fmt.Sprintf("%d fixed, %d introduced", fixed[c], introduced[c]),
		})
	}
	return updates
}
