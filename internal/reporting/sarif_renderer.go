// internal/reporting/sarif_renderer.go
package reporting

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/fingerprint"
	"github.com/xkilldash9x/codequal-cli/internal/reporting/sarif"
)

// Constants for tool identification in the SARIF report.
const (
	ToolName     = "codequal"
	ToolInfoURI  = "https://github.com/xkilldash9x/codequal-cli"
	SARIFVersion = "2.1.0"
	SARIFSchema  = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json"

	// FingerprintKey names the partial fingerprint carrying the issue identity.
	FingerprintKey = "codequal/v1"
	// minEnhancedConfidence is the confidence above which an enhanced location
	// replaces the reported one in the document.
	minEnhancedConfidence = 0.5
)

// ruleIDSanitizer matches runs of characters not allowed in rule IDs.
var ruleIDSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_.]+`)

// SARIFRenderer renders a comparison as a SARIF 2.1.0 log. Candidate issues
// carry baselineState new or unchanged; fixed issues are emitted as absent.
type SARIFRenderer struct {
	toolVersion string
	logger      *zap.Logger
}

func NewSARIFRenderer(toolVersion string, logger *zap.Logger) *SARIFRenderer {
	return &SARIFRenderer{toolVersion: toolVersion, logger: logger.Named("sarif_renderer")}
}

func (*SARIFRenderer) Format() string { return FormatSARIF }

func (r *SARIFRenderer) Render(_ context.Context, report *schemas.ComparisonReport) ([]byte, error) {
	if report == nil {
		return nil, fmt.Errorf("report cannot be nil")
	}
	start := time.Now()

	b := newSARIFBuilder(r.toolVersion, report)
	b.add(report.Result.NewIssues, sarif.BaselineNew)
	b.add(report.Result.UnchangedIssues, sarif.BaselineUnchanged)
	b.add(report.Result.FixedIssues, sarif.BaselineAbsent)

	out, err := json.MarshalIndent(b.log, "", "  ")
	if err != nil {
		r.logger.Error("Failed to encode SARIF log to JSON", zap.Error(err))
		return nil, fmt.Errorf("failed to encode SARIF output: %w", err)
	}

	run := b.log.Runs[0]
	r.logger.Debug("Rendered SARIF report",
		zap.String("report_id", report.ID),
		zap.Int("total_results", len(run.Results)),
		zap.Int("total_rules", len(run.Tool.Driver.Rules)),
		zap.Duration("duration", time.Since(start)))
	return append(out, '\n'), nil
}

// sarifBuilder accumulates one log. It is used by a single Render call.
type sarifBuilder struct {
	log         *sarif.Log
	rules       map[string]string
	ruleIDUsage map[string]int
	enhanced    map[string]*schemas.EnhancedLocation
}

func newSARIFBuilder(toolVersion string, report *schemas.ComparisonReport) *sarifBuilder {
	run := &sarif.Run{
		Tool: &sarif.Tool{
			Driver: &sarif.ToolComponent{
				Name:           ToolName,
				Version:        pString(toolVersion),
				InformationURI: pString(ToolInfoURI),
				Rules:          []*sarif.ReportingDescriptor{},
			},
		},
		AutomationDetails: &sarif.AutomationDetails{ID: report.ID},
		Results:           []*sarif.Result{},
		Properties: sarif.PropertyBag{
			"scoreImpact":  report.ScoreImpact,
			"qualityScore": report.QualityScore,
			"baseBranch":   report.Request.BaseBranch,
			"configId":     report.ConfigID,
		},
	}
	if report.Request.Repository != "" {
		run.VersionControl = []*sarif.VersionControl{{
			RepositoryURI: report.Request.Repository,
			Branch:        pString(report.Request.HeadBranch),
		}}
	}

	return &sarifBuilder{
		log: &sarif.Log{
			Version: SARIFVersion,
			Schema:  SARIFSchema,
			Runs:    []*sarif.Run{run},
		},
		rules:       make(map[string]string),
		ruleIDUsage: make(map[string]int),
		enhanced:    enhancedLocations(report.Enrichment),
	}
}

// enhancedLocations indexes enrichment output by issue fingerprint.
func enhancedLocations(e *schemas.Enrichment) map[string]*schemas.EnhancedLocation {
	out := make(map[string]*schemas.EnhancedLocation)
	if e == nil || e.Location == nil {
		return out
	}
	for _, res := range []*schemas.EnhanceResult{e.Location.Baseline, e.Location.Candidate} {
		if res == nil {
			continue
		}
		for _, issue := range res.Issues {
			if issue.Enhanced != nil && issue.Enhanced.Confidence >= minEnhancedConfidence {
				out[fingerprint.Fingerprint(issue)] = issue.Enhanced
			}
		}
	}
	return out
}

func (b *sarifBuilder) add(issues []schemas.Issue, state sarif.BaselineState) {
	run := b.log.Runs[0]
	for _, issue := range issues {
		fp := fingerprint.Fingerprint(issue)
		text := issue.Message
		if text == "" {
			text = issue.Title
		}
		res := &sarif.Result{
			RuleID:              b.ensureRule(issue),
			Message:             &sarif.Message{Text: pString(text)},
			Level:               levelFor(issue.Severity),
			BaselineState:       state,
			Locations:           b.locations(issue, fp),
			PartialFingerprints: map[string]string{FingerprintKey: fp},
			Properties:          sarif.PropertyBag{"category": string(issue.Category), "severity": string(issue.Severity)},
		}
		if issue.SuggestedFix != "" {
			res.Properties["suggestedFix"] = issue.SuggestedFix
		}
		run.Results = append(run.Results, res)
	}
}

// ensureRule returns the rule for the issue's defect pattern, registering it
// on first use.
func (b *sarifBuilder) ensureRule(issue schemas.Issue) string {
	pattern := fingerprint.Pattern(issue)
	if id, ok := b.rules[pattern]; ok {
		return id
	}

	base := "CODEQUAL-" + sanitizeRuleName(pattern)
	usage := b.ruleIDUsage[base]
	b.ruleIDUsage[base] = usage + 1
	id := base
	if usage > 0 {
		id = fmt.Sprintf("%s-%d", base, usage)
	}

	name := string(issue.Category)
	if tokens := fingerprint.Tokens(pattern); len(tokens) > 0 {
		name = strings.Join(tokens, ", ")
	}
	driver := b.log.Runs[0].Tool.Driver
	driver.Rules = append(driver.Rules, &sarif.ReportingDescriptor{
		ID:               id,
		Name:             pString(name),
		ShortDescription: &sarif.MultiformatMessageString{Text: pString(fmt.Sprintf("%s %s issue", issue.Severity, name))},
		Properties: sarif.PropertyBag{
			"tags":     []string{string(issue.Category), "codequal"},
			"severity": string(issue.Severity),
		},
	})
	b.rules[pattern] = id
	return id
}

func (b *sarifBuilder) locations(issue schemas.Issue, fp string) []*sarif.Location {
	file, line, col := issue.File(), issue.Line(), 0
	var snippet string
	if e, ok := b.enhanced[fp]; ok {
		file, line, col, snippet = e.File, e.Line, e.Column, e.Snippet
	}
	if file == "" {
		return nil
	}
	loc := &sarif.PhysicalLocation{ArtifactLocation: &sarif.ArtifactLocation{URI: pString(file)}}
	if line > 0 {
		loc.Region = &sarif.Region{StartLine: line, StartColumn: col}
		if snippet != "" {
			loc.Region.Snippet = &sarif.Message{Text: pString(snippet)}
		}
	}
	return []*sarif.Location{{PhysicalLocation: loc}}
}

func sanitizeRuleName(name string) string {
	s := strings.Trim(ruleIDSanitizer.ReplaceAllString(strings.ToUpper(name), "-"), "-")
	if s == "" {
		return "UNCATEGORIZED"
	}
	return s
}

func levelFor(severity schemas.Severity) sarif.Level {
	switch severity {
	case schemas.SeverityCritical, schemas.SeverityHigh:
		return sarif.LevelError
	case schemas.SeverityMedium:
		return sarif.LevelWarning
	default:
		return sarif.LevelNote
	}
}

// pString returns a pointer to the given string value.
func pString(s string) *string {
	return &s
}
