package schemas

import "strings"

// -- Issue Schemas --

// Severity represents the severity level of an issue reported by an analysis
// provider. Values are lowercase; provider input is normalized on the way in.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists every severity from most to least severe.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// NormalizeSeverity maps provider spellings ("CRITICAL", " High ") onto the
// canonical values. Anything unrecognized is treated as low.
func NormalizeSeverity(s string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium, "moderate":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Category is the domain an issue belongs to. The set is open; the constants
// below are the ones the scoring weights know about by default.
type Category string

const (
	CategorySecurity        Category = "security"
	CategoryPerformance     Category = "performance"
	CategoryCodeQuality     Category = "code-quality"
	CategoryArchitecture    Category = "architecture"
	CategoryDependencies    Category = "dependencies"
	CategoryTesting         Category = "testing"
	CategoryMaintainability Category = "maintainability"
)

// NormalizeCategory lowercases a provider category and replaces spaces and
// underscores with dashes, so "Code_Quality" and "code quality" agree.
func NormalizeCategory(s string) Category {
	c := strings.ToLower(strings.TrimSpace(s))
	c = strings.NewReplacer(" ", "-", "_", "-").Replace(c)
	if c == "" {
		return CategoryCodeQuality
	}
	return Category(c)
}

// IssueStatus records which side of a comparison an issue was found on.
type IssueStatus string

const (
	StatusNew         IssueStatus = "new"
	StatusResolved    IssueStatus = "resolved"
	StatusPreExisting IssueStatus = "pre-existing"
)

// Age labels assigned by the differ.
const (
	AgeNew         = "new"
	AgePreExisting = "pre-existing"
)

// Location is where a provider says an issue lives.
type Location struct {
	File   string `json:"file" yaml:"file"`
	Line   int    `json:"line" yaml:"line"`
	Column int    `json:"column,omitempty" yaml:"column,omitempty"`
}

// EnhancedLocation is attached by location enrichment. It never replaces the
// provider-reported Location, which is part of the issue's identity.
type EnhancedLocation struct {
	File       string  `json:"file"`
	Line       int     `json:"line"`
	Column     int     `json:"column,omitempty"`
	Confidence float64 `json:"confidence"`
	Snippet    string  `json:"snippet,omitempty"`
}

// Issue is a single defect reported by an analysis provider for one branch.
//
// File, Line, Category, Severity and Message make up the identity used for
// cross-branch matching and must not change after the provider produced them.
type Issue struct {
	ID           string            `json:"id,omitempty" yaml:"id,omitempty"`
	Title        string            `json:"title" yaml:"title"`
	Message      string            `json:"message" yaml:"message"`
	Severity     Severity          `json:"severity" yaml:"severity"`
	Category     Category          `json:"category" yaml:"category"`
	Location     *Location         `json:"location,omitempty" yaml:"location,omitempty"`
	SuggestedFix string            `json:"suggested_fix,omitempty" yaml:"suggested_fix,omitempty"`
	CodeSnippet  string            `json:"code_snippet,omitempty" yaml:"code_snippet,omitempty"`
	Age          string            `json:"age,omitempty" yaml:"age,omitempty"`
	Status       IssueStatus       `json:"status,omitempty" yaml:"status,omitempty"`
	Enhanced     *EnhancedLocation `json:"enhanced_location,omitempty" yaml:"-"`
}

// File returns the reported file or "" when the issue has no location.
func (i Issue) File() string {
	if i.Location == nil {
		return ""
	}
	return i.Location.File
}

// Line returns the reported line or 0 when the issue has no location.
func (i Issue) Line() int {
	if i.Location == nil {
		return 0
	}
	return i.Location.Line
}

// AnalysisResult is the raw output of a provider for one branch.
type AnalysisResult struct {
	Issues   []Issue            `json:"issues" yaml:"issues"`
	Scores   map[string]float64 `json:"scores,omitempty" yaml:"scores,omitempty"`
	Metadata map[string]any     `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	// Model is the model that produced the result, when the provider reports it.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
}
