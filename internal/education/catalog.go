// Package education finds learning material for the defect patterns a
// comparison introduced.
package education

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/fingerprint"
)

type entry struct {
	title     string
	resources []schemas.Resource
}

var tokenCatalog = map[string]entry{
	"sql-injection": {"Preventing SQL injection", []schemas.Resource{
		{Title: "OWASP SQL Injection Prevention Cheat Sheet", URL: "https://cheatsheetseries.owasp.org/cheatsheets/SQL_Injection_Prevention_Cheat_Sheet.html"},
		{Title: "Go database/sql: avoiding SQL injection risk", URL: "https://go.dev/doc/database/sql-injection"},
	}},
	"xss": {"Preventing cross-site scripting", []schemas.Resource{
		{Title: "OWASP Cross Site Scripting Prevention Cheat Sheet", URL: "https://cheatsheetseries.owasp.org/cheatsheets/Cross_Site_Scripting_Prevention_Cheat_Sheet.html"},
	}},
	"hardcoded-secret": {"Managing secrets outside source code", []schemas.Resource{
		{Title: "OWASP Secrets Management Cheat Sheet", URL: "https://cheatsheetseries.owasp.org/cheatsheets/Secrets_Management_Cheat_Sheet.html"},
	}},
	"command-injection": {"Avoiding OS command injection", []schemas.Resource{
		{Title: "OWASP OS Command Injection Defense Cheat Sheet", URL: "https://cheatsheetseries.owasp.org/cheatsheets/OS_Command_Injection_Defense_Cheat_Sheet.html"},
	}},
	"path-traversal": {"Validating file paths", []schemas.Resource{
		{Title: "OWASP Path Traversal", URL: "https://owasp.org/www-community/attacks/Path_Traversal"},
	}},
	"insecure-deserialization": {"Deserializing untrusted data safely", []schemas.Resource{
		{Title: "OWASP Deserialization Cheat Sheet", URL: "https://cheatsheetseries.owasp.org/cheatsheets/Deserialization_Cheat_Sheet.html"},
	}},
	"n-plus-one": {"Eliminating N+1 queries", []schemas.Resource{
		{Title: "Use The Index, Luke: Joins and nested loops", URL: "https://use-the-index-luke.com/sql/join/nested-loops-join-n1-problem"},
	}},
	"memory-leak": {"Finding and fixing memory leaks", []schemas.Resource{
		{Title: "Diagnostics in Go", URL: "https://go.dev/doc/diagnostics"},
	}},
	"missing-validation": {"Input validation", []schemas.Resource{
		{Title: "OWASP Input Validation Cheat Sheet", URL: "https://cheatsheetseries.owasp.org/cheatsheets/Input_Validation_Cheat_Sheet.html"},
	}},
	"outdated-dependency": {"Keeping dependencies current", []schemas.Resource{
		{Title: "OWASP Vulnerable Dependency Management Cheat Sheet", URL: "https://cheatsheetseries.owasp.org/cheatsheets/Vulnerable_Dependency_Management_Cheat_Sheet.html"},
	}},
	"missing-tests": {"Writing effective tests", []schemas.Resource{
		{Title: "Go wiki: Table-driven tests", URL: "https://go.dev/wiki/TableDrivenTests"},
	}},
	"error-handling": {"Handling errors deliberately", []schemas.Resource{
		{Title: "Error handling and Go", URL: "https://go.dev/blog/error-handling-and-go"},
	}},
}

// categoryCatalog covers patterns with no recognized defect token.
var categoryCatalog = map[schemas.Category]entry{
	schemas.CategorySecurity: {"Secure coding fundamentals", []schemas.Resource{
		{Title: "OWASP Top Ten", URL: "https://owasp.org/www-project-top-ten/"},
	}},
	schemas.CategoryPerformance: {"Performance fundamentals", []schemas.Resource{
		{Title: "Go performance: profiling", URL: "https://go.dev/blog/pprof"},
	}},
	schemas.CategoryArchitecture: {"Software architecture fundamentals", []schemas.Resource{
		{Title: "Go wiki: Code review comments", URL: "https://go.dev/wiki/CodeReviewComments"},
	}},
	schemas.CategoryCodeQuality: {"Writing maintainable code", []schemas.Resource{
		{Title: "Effective Go", URL: "https://go.dev/doc/effective_go"},
	}},
	schemas.CategoryDependencies: {"Dependency hygiene", []schemas.Resource{
		{Title: "Managing dependencies", URL: "https://go.dev/doc/modules/managing-dependencies"},
	}},
	schemas.CategoryTesting: {"Testing fundamentals", []schemas.Resource{
		{Title: "Add a test", URL: "https://go.dev/doc/tutorial/add-a-test"},
	}},
}

// Difficulty maps a developer level to the difficulty of the modules
// recommended to them.
func Difficulty(level string) string {
	switch strings.ToLower(level) {
	case "junior":
		return "beginner"
	case "senior":
		return "advanced"
	default:
		return "intermediate"
	}
}

// CatalogEducator answers from a static table of curated resources. It never
// leaves the process.
type CatalogEducator struct{}

func NewCatalogEducator() *CatalogEducator { return &CatalogEducator{} }

func (CatalogEducator) Research(_ context.Context, req schemas.EducationRequest) (*schemas.EducationalContent, error) {
	difficulty := Difficulty(req.DeveloperLevel)
	seen := make(map[string]struct{})
	content := &schemas.EducationalContent{Modules: []schemas.LearningModule{}}

	for _, issue := range req.Issues {
		pattern := fingerprint.Pattern(issue)
		if _, ok := seen[pattern]; ok {
			continue
		}
		seen[pattern] = struct{}{}

		if m, ok := catalogModule(pattern, issue.Category); ok {
			m.Difficulty = difficulty
			content.Modules = append(content.Modules, m)
		}
	}
	content.Summary = summarize(len(content.Modules), len(seen))
	return content, nil
}

// catalogModule builds the module for a pattern from its tokens, falling back
// to the category entry.
func catalogModule(pattern string, category schemas.Category) (schemas.LearningModule, bool) {
	m := schemas.LearningModule{Pattern: pattern}
	var titles []string
	for _, tok := range fingerprint.Tokens(pattern) {
		e, ok := tokenCatalog[tok]
		if !ok {
			continue
		}
		titles = append(titles, e.title)
		m.Resources = append(m.Resources, e.resources...)
	}
	if len(titles) == 0 {
		e, ok := categoryCatalog[category]
		if !ok {
			return m, false
		}
		titles = append(titles, e.title)
		m.Resources = append(m.Resources, e.resources...)
	}
	m.Title = strings.Join(titles, " / ")
	return m, true
}

func summarize(modules, patterns int) string {
	return fmt.Sprintf("%d learning modules for %d defect patterns", modules, patterns)
}
