package research

import (
	"context"
	"strings"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
)

// catalogEntry is one row of the offline model table.
type catalogEntry struct {
	languages []string
	sizes     []schemas.RepoSize
	rec       schemas.ModelRecommendation
}

var defaultCatalog = []catalogEntry{
	{
		sizes: []schemas.RepoSize{schemas.RepoSizeLarge, schemas.RepoSizeEnterprise},
		rec: schemas.ModelRecommendation{Provider: "openrouter", Model: "anthropic/claude-sonnet-4",
			Reasoning: []string{"large codebases benefit from long context and stronger cross-file reasoning"}},
	},
	{
		languages: []string{"python", "javascript", "typescript"},
		rec: schemas.ModelRecommendation{Provider: "openrouter", Model: "openai/gpt-4.1-mini",
			Reasoning: []string{"strong coverage of dynamic language idioms at low cost"}},
	},
	{
		languages: []string{"go", "rust", "java", "kotlin", "c#"},
		rec: schemas.ModelRecommendation{Provider: "openrouter", Model: "google/gemini-2.5-flash",
			Reasoning: []string{"good accuracy on statically typed languages with fast turnaround"}},
	},
}

var catalogDefault = schemas.ModelRecommendation{
	Provider:  "openrouter",
	Model:     "openai/gpt-4o-mini",
	Reasoning: []string{"general purpose default"},
}

// CatalogResearcher answers from a fixed table. It never calls out and is
// used when no LLM credentials are configured.
type CatalogResearcher struct {
	entries []catalogEntry
}

// NewCatalogResearcher returns a researcher over the built-in table.
func NewCatalogResearcher() *CatalogResearcher {
	return &CatalogResearcher{entries: defaultCatalog}
}

// Research implements schemas.ModelResearcher. The first matching entry wins.
func (c *CatalogResearcher) Research(ctx context.Context, criteria schemas.ResearchCriteria) (*schemas.ModelRecommendation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lang := strings.ToLower(criteria.Repository.Language)
	for _, e := range c.entries {
		if len(e.sizes) > 0 && !containsSize(e.sizes, criteria.Repository.Size) {
			continue
		}
		if len(e.languages) > 0 && !containsString(e.languages, lang) {
			continue
		}
		rec := e.rec
		rec.Reasoning = append([]string(nil), e.rec.Reasoning...)
		return &rec, nil
	}
	rec := catalogDefault
	rec.Reasoning = append([]string(nil), catalogDefault.Reasoning...)
	return &rec, nil
}

func containsSize(list []schemas.RepoSize, s schemas.RepoSize) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
