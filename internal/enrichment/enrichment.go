// Package enrichment runs the independent, failable tasks that decorate a
// comparison with location and educational data.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/fingerprint"
)

// Task names.
const (
	TaskLocationCandidate = "location-candidate"
	TaskLocationBaseline  = "location-baseline"
	TaskEducation         = "education"
)

// DefaultDeveloperLevel is used when no skill profile is known.
const DefaultDeveloperLevel = "intermediate"

const (
	defaultTaskTimeout    = 30 * time.Second
	defaultMaxConcurrency = 3
)

// Context carries what the tasks need to know about the comparison.
type Context struct {
	Repository     string
	BaseRef        string
	HeadRef        string
	DeveloperLevel string
	TeamProfile    string
}

// Options tunes the orchestrator.
type Options struct {
	TaskTimeout    time.Duration
	MaxConcurrency int
}

// Orchestrator fans enrichment tasks out and collects whatever succeeds.
type Orchestrator struct {
	enhancer schemas.LocationEnhancer
	educator schemas.Educator
	opts     Options
	logger   *zap.Logger
}

// New creates an Orchestrator. Either collaborator may be nil, in which case
// its tasks are skipped.
func New(enhancer schemas.LocationEnhancer, educator schemas.Educator, logger *zap.Logger, opts Options) *Orchestrator {
	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = defaultTaskTimeout
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	return &Orchestrator{
		enhancer: enhancer,
		educator: educator,
		opts:     opts,
		logger:   logger.Named("enrichment"),
	}
}

// task produces a payload or an error. It must not touch shared state; the
// orchestrator stores payloads only for tasks that finish in time.
type task struct {
	name string
	skip string
	run  func(ctx context.Context) (any, error)
}

type outcome struct {
	payload any
	err     error
}

// Enrich runs all tasks and waits for every one to finish, fail or time out.
// It never returns an error; a failed task leaves its payload nil.
func (o *Orchestrator) Enrich(ctx context.Context, result schemas.ComparisonResult, ec Context) *schemas.Enrichment {
	if ec.DeveloperLevel == "" {
		ec.DeveloperLevel = DefaultDeveloperLevel
	}
	tasks := o.plan(result, ec)

	reports := make([]schemas.TaskReport, len(tasks))
	payloads := make([]any, len(tasks))

	var g errgroup.Group
	g.SetLimit(o.opts.MaxConcurrency)
	for i, t := range tasks {
		if t.skip != "" {
			reports[i] = schemas.TaskReport{Name: t.name, Status: schemas.TaskSkipped, Error: t.skip}
			continue
		}
		g.Go(func() error {
			reports[i], payloads[i] = o.runTask(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	enrichment := &schemas.Enrichment{Tasks: reports}
	for i, t := range tasks {
		switch t.name {
		case TaskLocationCandidate, TaskLocationBaseline:
			res, _ := payloads[i].(*schemas.EnhanceResult)
			if res == nil {
				continue
			}
			if enrichment.Location == nil {
				enrichment.Location = &schemas.LocationData{}
			}
			if t.name == TaskLocationCandidate {
				enrichment.Location.Candidate = res
			} else {
				enrichment.Location.Baseline = res
			}
		case TaskEducation:
			enrichment.Educational, _ = payloads[i].(*schemas.EducationalContent)
		}
	}
	return enrichment
}

func (o *Orchestrator) plan(result schemas.ComparisonResult, ec Context) []task {
	candidateIssues := make([]schemas.Issue, 0, len(result.NewIssues)+len(result.UnchangedIssues))
	candidateIssues = append(candidateIssues, result.NewIssues...)
	candidateIssues = append(candidateIssues, result.UnchangedIssues...)

	locationSkip := func(issues []schemas.Issue, ref string) string {
		switch {
		case o.enhancer == nil:
			return "no location enhancer configured"
		case ec.Repository == "" || ref == "":
			return "repository or ref not provided"
		case len(issues) == 0:
			return "no issues"
		}
		return ""
	}

	educationIssues := DedupeByPattern(result.NewIssues)
	educationSkip := ""
	switch {
	case o.educator == nil:
		educationSkip = "no educator configured"
	case len(educationIssues) == 0:
		educationSkip = "no new issues"
	}

	return []task{
		{
			name: TaskLocationCandidate,
			skip: locationSkip(candidateIssues, ec.HeadRef),
			run: func(ctx context.Context) (any, error) {
				return o.enhancer.Enhance(ctx, candidateIssues, ec.Repository, ec.HeadRef)
			},
		},
		{
			name: TaskLocationBaseline,
			skip: locationSkip(result.FixedIssues, ec.BaseRef),
			run: func(ctx context.Context) (any, error) {
				return o.enhancer.Enhance(ctx, result.FixedIssues, ec.Repository, ec.BaseRef)
			},
		},
		{
			name: TaskEducation,
			skip: educationSkip,
			run: func(ctx context.Context) (any, error) {
				return o.educator.Research(ctx, schemas.EducationRequest{
					Issues:         educationIssues,
					DeveloperLevel: ec.DeveloperLevel,
					TeamProfile:    ec.TeamProfile,
				})
			},
		},
	}
}

// runTask executes t with the shared timeout. A task that overruns is
// reported as timed out; its goroutine is left to finish on its own and its
// late result is dropped.
func (o *Orchestrator) runTask(ctx context.Context, t task) (schemas.TaskReport, any) {
	start := time.Now()
	tctx, cancel := context.WithTimeout(ctx, o.opts.TaskTimeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("task panicked: %v", r)}
			}
		}()
		payload, err := t.run(tctx)
		done <- outcome{payload: payload, err: err}
	}()

	report := schemas.TaskReport{Name: t.name}
	var payload any
	select {
	case out := <-done:
		if out.err != nil {
			report.Status = schemas.TaskFailed
			report.Error = out.err.Error()
		} else {
			report.Status = schemas.TaskOK
			payload = out.payload
		}
	case <-tctx.Done():
		report.Status = schemas.TaskFailed
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			report.Status = schemas.TaskTimedOut
		}
		report.Error = tctx.Err().Error()
	}
	report.Duration = time.Since(start)

	if report.Status != schemas.TaskOK {
		o.logger.Warn("Enrichment task did not complete",
			zap.String("task", t.name),
			zap.String("status", string(report.Status)),
			zap.Duration("duration", report.Duration),
			zap.String("error", report.Error))
	} else {
		o.logger.Debug("Enrichment task complete", zap.String("task", t.name), zap.Duration("duration", report.Duration))
	}
	return report, payload
}

// DedupeByPattern keeps the first issue of every defect pattern, preserving
// input order.
func DedupeByPattern(issues []schemas.Issue) []schemas.Issue {
	seen := make(map[string]struct{}, len(issues))
	out := make([]schemas.Issue, 0, len(issues))
	for _, issue := range issues {
		key := fingerprint.Pattern(issue)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, issue)
	}
	return out
}
