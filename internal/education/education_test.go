package education

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/config"
)

var (
	sqli = schemas.Issue{
		Message:  "SQL injection in search handler",
		Category: schemas.CategorySecurity, Severity: schemas.SeverityCritical,
	}
	sqliElsewhere = schemas.Issue{
		Message:  "Possible SQL injection when building filter",
		Category: schemas.CategorySecurity, Severity: schemas.SeverityCritical,
	}
	longFunc = schemas.Issue{
		Message:  "Function too long",
		Category: schemas.CategoryCodeQuality, Severity: schemas.SeverityLow,
	}
)

func TestDifficulty(t *testing.T) {
	assert.Equal(t, "beginner", Difficulty("junior"))
	assert.Equal(t, "advanced", Difficulty("Senior"))
	assert.Equal(t, "intermediate", Difficulty("intermediate"))
	assert.Equal(t, "intermediate", Difficulty(""))
}

func TestCatalogEducator(t *testing.T) {
	content, err := NewCatalogEducator().Research(context.Background(), schemas.EducationRequest{
		Issues:         []schemas.Issue{sqli, sqliElsewhere, longFunc},
		DeveloperLevel: "junior",
	})
	require.NoError(t, err)
	require.Len(t, content.Modules, 2, "issues sharing a pattern share a module")

	m := content.Modules[0]
	assert.Equal(t, "security|critical|sql-injection", m.Pattern)
	assert.Equal(t, "Preventing SQL injection", m.Title)
	assert.Equal(t, "beginner", m.Difficulty)
	assert.NotEmpty(t, m.Resources)

	assert.Equal(t, "Writing maintainable code", content.Modules[1].Title, "untokenized patterns fall back to the category")
	assert.Equal(t, "2 learning modules for 2 defect patterns", content.Summary)
}

func TestCatalogEducator_UnknownCategory(t *testing.T) {
	content, err := NewCatalogEducator().Research(context.Background(), schemas.EducationRequest{
		Issues: []schemas.Issue{{Message: "odd", Category: "licensing", Severity: schemas.SeverityLow}},
	})
	require.NoError(t, err)
	assert.Empty(t, content.Modules)
	assert.Equal(t, "0 learning modules for 1 defect patterns", content.Summary)
}

func TestSearchQuery(t *testing.T) {
	assert.Equal(t, "sql injection security beginner", searchQuery("security|critical|sql-injection", "beginner"))
	assert.Equal(t, "code quality intermediate", searchQuery("code-quality|low", "intermediate"))
}

const resultsPage = `<html><body>
<div class="result"><a href="/docs/sqli">SQL   injection guide</a></div>
<div class="result"><a href="https://example.org/owasp">OWASP cheat sheet</a></div>
<div class="result"><a href="/docs/sqli">duplicate</a></div>
<div class="result"><span>no link</span></div>
<div class="result"><a href="/docs/third">Third</a></div>
</body></html>`

func TestWebEducator(t *testing.T) {
	var queries []string
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		queries = append(queries, r.URL.Query().Get("q"))
		fmt.Fprint(w, resultsPage)
	}))
	defer srv.Close()

	w, err := NewWebEducator(config.EducationConfig{
		SearchURL:      srv.URL + "/search",
		ResultSelector: "div.result",
		MaxResults:     2,
	}, srv.Client(), zaptest.NewLogger(t))
	require.NoError(t, err)

	content, err := w.Research(context.Background(), schemas.EducationRequest{
		Issues:         []schemas.Issue{sqli, sqliElsewhere},
		DeveloperLevel: "senior",
	})
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load(), "one search per distinct pattern")
	assert.Equal(t, []string{"sql injection security advanced"}, queries)
	require.Len(t, content.Modules, 1)
	m := content.Modules[0]
	assert.Equal(t, "Preventing SQL injection", m.Title)
	assert.Equal(t, "advanced", m.Difficulty)
	assert.Equal(t, []schemas.Resource{
		{Title: "SQL injection guide", URL: srv.URL + "/docs/sqli"},
		{Title: "OWASP cheat sheet", URL: "https://example.org/owasp"},
	}, m.Resources)
}

func TestWebEducator_Failures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Query().Get("q"), "sql") {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `<a class="result-link" href="/docs/style">Style</a>`)
	}))
	defer srv.Close()

	w, err := NewWebEducator(config.EducationConfig{SearchURL: srv.URL}, srv.Client(), zaptest.NewLogger(t))
	require.NoError(t, err)

	t.Run("a failed search drops only its pattern", func(t *testing.T) {
		content, err := w.Research(context.Background(), schemas.EducationRequest{Issues: []schemas.Issue{sqli, longFunc}})
		require.NoError(t, err)
		require.Len(t, content.Modules, 1)
		assert.Equal(t, "code-quality|low", content.Modules[0].Pattern)
		assert.Equal(t, "Learning resources: code-quality", content.Modules[0].Title)
	})

	t.Run("every search failing is an error", func(t *testing.T) {
		_, err := w.Research(context.Background(), schemas.EducationRequest{Issues: []schemas.Issue{sqli}})
		assert.ErrorContains(t, err, "502")
	})

	t.Run("no issues is an empty result", func(t *testing.T) {
		content, err := w.Research(context.Background(), schemas.EducationRequest{})
		require.NoError(t, err)
		assert.Empty(t, content.Modules)
	})
}

func TestNewWebEducator(t *testing.T) {
	_, err := NewWebEducator(config.EducationConfig{}, nil, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "search url is required")

	w, err := NewWebEducator(config.EducationConfig{SearchURL: "https://docs.example.com/search"}, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, defaultResultSelector, w.selector)
	assert.Equal(t, defaultMaxResults, w.maxResults)
	assert.NotNil(t, w.client)
}
