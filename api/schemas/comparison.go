package schemas

import "time"

// -- Comparison Schemas --

// SeverityCounts tallies issues by severity.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
}

// Add counts one issue of the given severity.
func (c *SeverityCounts) Add(s Severity) {
	switch s {
	case SeverityCritical:
		c.Critical++
	case SeverityHigh:
		c.High++
	case SeverityMedium:
		c.Medium++
	default:
		c.Low++
	}
	c.Total++
}

// Summary holds per-bucket severity counts of a comparison.
type Summary struct {
	New       SeverityCounts `json:"new"`
	Fixed     SeverityCounts `json:"fixed"`
	Unchanged SeverityCounts `json:"unchanged"`
}

// ComparisonResult partitions the issues of two branches.
type ComparisonResult struct {
	NewIssues       []Issue `json:"new_issues"`
	FixedIssues     []Issue `json:"fixed_issues"`
	UnchangedIssues []Issue `json:"unchanged_issues"`
	Summary         Summary `json:"summary"`
}

// -- Enrichment Schemas --

// EnhanceResult is what a LocationEnhancer returns for one branch.
type EnhanceResult struct {
	Issues        []Issue `json:"issues"`
	EnhancedCount int     `json:"enhanced_count"`
}

// LocationData holds location enrichment for both sides of a comparison.
type LocationData struct {
	Candidate *EnhanceResult `json:"candidate,omitempty"`
	Baseline  *EnhanceResult `json:"baseline,omitempty"`
}

// EducationRequest asks an Educator for learning material.
type EducationRequest struct {
	Issues         []Issue `json:"issues"`
	DeveloperLevel string  `json:"developer_level"`
	TeamProfile    string  `json:"team_profile,omitempty"`
}

// Resource is a link to external learning material.
type Resource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// LearningModule groups resources for one defect pattern.
type LearningModule struct {
	Pattern    string     `json:"pattern"`
	Title      string     `json:"title"`
	Difficulty string     `json:"difficulty,omitempty"`
	Resources  []Resource `json:"resources"`
}

// EducationalContent is what an Educator returns.
type EducationalContent struct {
	Modules []LearningModule `json:"modules"`
	Summary string           `json:"summary,omitempty"`
}

// TaskStatus is the outcome of a single enrichment task.
type TaskStatus string

const (
	TaskOK       TaskStatus = "ok"
	TaskFailed   TaskStatus = "failed"
	TaskTimedOut TaskStatus = "timed_out"
	TaskSkipped  TaskStatus = "skipped"
)

// TaskReport records how an enrichment task went. It is diagnostic only;
// consumers of Enrichment only need to check payloads for nil.
type TaskReport struct {
	Name     string        `json:"name"`
	Status   TaskStatus    `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Enrichment is the aggregated output of the enrichment stage. A nil payload
// means the task was skipped, failed, timed out or produced nothing.
type Enrichment struct {
	Location    *LocationData       `json:"location,omitempty"`
	Educational *EducationalContent `json:"educational,omitempty"`
	Tasks       []TaskReport        `json:"tasks,omitempty"`
}

// -- Report Schemas --

// ComparisonRequest is the input of a comparison run.
type ComparisonRequest struct {
	UserID      string            `json:"user_id" binding:"required"`
	Repository  string            `json:"repository" binding:"required"`
	BaseBranch  string            `json:"base_branch" binding:"required"`
	HeadBranch  string            `json:"head_branch" binding:"required"`
	PRNumber    int               `json:"pr_number,omitempty"`
	TeamProfile string            `json:"team_profile,omitempty"`
	Context     RepositoryContext `json:"context"`
}

// AnalysisOutcome records which model tier produced the branch analyses.
type AnalysisOutcome string

const (
	AnalysisPrimary  AnalysisOutcome = "primary"
	AnalysisFallback AnalysisOutcome = "fallback"
	AnalysisSupplied AnalysisOutcome = "supplied"
)

// ComparisonReport is the assembled output of a comparison.
type ComparisonReport struct {
	ID              string               `json:"id"`
	Success         bool                 `json:"success"`
	Request         ComparisonRequest    `json:"request"`
	ConfigID        string               `json:"config_id"`
	ConfigSource    string               `json:"config_source"`
	ConfigStale     bool                 `json:"config_stale"`
	AnalysisOutcome AnalysisOutcome      `json:"analysis_outcome"`
	Result          ComparisonResult     `json:"result"`
	ScoreImpact     float64              `json:"score_impact"`
	QualityScore    float64              `json:"quality_score"`
	CategoryScores  map[Category]float64 `json:"category_scores,omitempty"`
	Enrichment      *Enrichment          `json:"enrichment,omitempty"`
	Document        []byte               `json:"-"`
	Format          string               `json:"format,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

// -- Skill Schemas --

// DeveloperSkills is the stored skill profile of a developer.
type DeveloperSkills struct {
	UserID     string               `json:"user_id"`
	Level      string               `json:"level"`
	Categories map[Category]float64 `json:"categories"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// SkillUpdate moves a developer's skill in one category.
type SkillUpdate struct {
	UserID   string   `json:"user_id"`
	Category Category `json:"category"`
	Delta    float64  `json:"delta"`
	Reason   string   `json:"reason"`
}

// -- Alert Schemas --

// AlertSeverity classifies monitoring alerts.
type AlertSeverity string

const (
	AlertInfo    AlertSeverity = "info"
	AlertWarning AlertSeverity = "warning"
)

// Alert is emitted to the monitoring channel.
type Alert struct {
	Severity AlertSeverity     `json:"severity"`
	Title    string            `json:"title"`
	Message  string            `json:"message"`
	Fields   map[string]string `json:"fields,omitempty"`
}
