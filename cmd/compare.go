package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/observability"
	"github.com/xkilldash9x/codequal-cli/internal/reporting"
)

type compareOptions struct {
	req           schemas.ComparisonRequest
	size          string
	criticality   string
	baselineFile  string
	candidateFile string
	output        string
	format        string
}

// newCompareCmd creates and configures the `compare` command.
func newCompareCmd() *cobra.Command {
	opts := &compareOptions{}
	compareCmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare the issues of a feature branch against its base branch",
		Long: `Compare resolves the analysis config for the user and repository, analyzes
both branches and reports new, fixed and unchanged issues with a score impact.

With --baseline-file and --candidate-file the analyses are read from YAML or
JSON files instead of being requested from the analysis provider.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, opts)
		},
	}

	f := compareCmd.Flags()
	f.StringVar(&opts.req.Repository, "repo", "", "Repository URL or owner/name")
	f.StringVar(&opts.req.BaseBranch, "base", "main", "Base branch")
	f.StringVar(&opts.req.HeadBranch, "head", "", "Feature branch")
	f.IntVar(&opts.req.PRNumber, "pr", 0, "Pull request number")
	f.StringVar(&opts.req.UserID, "user", "", "User the config and skills belong to")
	f.StringVar(&opts.req.TeamProfile, "team-profile", "", "Team profile passed to enrichment")
	f.StringVar(&opts.req.Context.RepoType, "repo-type", "", "Repository type (e.g. web, api, library)")
	f.StringVar(&opts.req.Context.Language, "language", "", "Primary language of the repository")
	f.StringVar(&opts.req.Context.Complexity, "complexity", "", "Repository complexity")
	f.StringSliceVar(&opts.req.Context.Frameworks, "framework", nil, "Frameworks used by the repository (repeatable)")
	f.StringVar(&opts.size, "size", "", "Repository size: small, medium, large or enterprise")
	f.StringVar(&opts.criticality, "criticality", "", "Repository criticality: low, medium, high or critical")
	f.StringVar(&opts.baselineFile, "baseline-file", "", "Read the base branch analysis from a file")
	f.StringVar(&opts.candidateFile, "candidate-file", "", "Read the feature branch analysis from a file")
	f.StringVarP(&opts.output, "output", "o", "", "Output file path for the report. Defaults to stdout.")
	f.StringVarP(&opts.format, "format", "f", "", "Report format: json or sarif. (Overrides config/env)")

	_ = compareCmd.MarkFlagRequired("repo")
	_ = compareCmd.MarkFlagRequired("head")
	_ = compareCmd.MarkFlagRequired("user")
	compareCmd.MarkFlagsRequiredTogether("baseline-file", "candidate-file")
	return compareCmd
}

func runCompare(cmd *cobra.Command, opts *compareOptions) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	if opts.format != "" {
		cfg.ReportCfg.Format = opts.format
	}

	req := opts.req
	req.Context.Size = schemas.RepoSize(opts.size)
	req.Context.Criticality = schemas.Criticality(opts.criticality)

	components, err := createComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer components.Shutdown()

	var report *schemas.ComparisonReport
	if opts.baselineFile != "" {
		baseline, err := readAnalysis(opts.baselineFile)
		if err != nil {
			return err
		}
		candidate, err := readAnalysis(opts.candidateFile)
		if err != nil {
			return err
		}
		report, err = components.Orchestrator.Compare(ctx, req, *baseline, *candidate)
		if err != nil {
			return err
		}
	} else {
		report, err = components.Orchestrator.Run(ctx, req)
		if err != nil {
			return err
		}
	}

	doc, err := reportDocument(ctx, report, logger)
	if err != nil {
		return err
	}
	if err := reporting.WriteDocument(opts.output, doc); err != nil {
		return err
	}

	logger.Info("Comparison complete",
		zap.String("report_id", report.ID),
		zap.Int("new", len(report.Result.NewIssues)),
		zap.Int("fixed", len(report.Result.FixedIssues)),
		zap.Int("unchanged", len(report.Result.UnchangedIssues)),
		zap.Float64("score_impact", report.ScoreImpact),
		zap.Float64("quality_score", report.QualityScore))
	if opts.output != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Report %s written to %s (score impact %+.1f)\n", report.ID, opts.output, report.ScoreImpact)
	}
	return nil
}

// reportDocument returns the rendered report. A comparison whose renderer
// failed still succeeded, so it falls back to the JSON form of the report.
func reportDocument(ctx context.Context, report *schemas.ComparisonReport, logger *zap.Logger) ([]byte, error) {
	if len(report.Document) > 0 {
		return report.Document, nil
	}
	logger.Warn("Report rendering failed, writing JSON report instead",
		zap.String("report_id", report.ID),
		zap.String("format", report.Format))
	doc, err := reporting.NewJSONRenderer().Render(ctx, report)
	if err != nil {
		return nil, fmt.Errorf("failed to render fallback report: %w", err)
	}
	return doc, nil
}

// readAnalysis reads an AnalysisResult from a YAML or JSON file.
func readAnalysis(path string) (*schemas.AnalysisResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis file: %w", err)
	}
	var result schemas.AnalysisResult
	if err := yaml.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to parse analysis file %s: %w", path, err)
	}
	for i := range result.Issues {
		result.Issues[i].Severity = schemas.NormalizeSeverity(string(result.Issues[i].Severity))
		result.Issues[i].Category = schemas.NormalizeCategory(string(result.Issues[i].Category))
	}
	return &result, nil
}
