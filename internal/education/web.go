package education

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/config"
	"github.com/xkilldash9x/codequal-cli/internal/fingerprint"
)

const (
	defaultResultSelector = "a.result-link"
	defaultMaxResults     = 3
	searchConcurrency     = 4
	userAgent             = "codequal/1.0"
)

// WebEducator searches a documentation site for each defect pattern and
// scrapes result links from the returned HTML.
type WebEducator struct {
	client     *http.Client
	searchURL  *url.URL
	selector   string
	maxResults int
	logger     *zap.Logger
}

// NewWebEducator creates a WebEducator. client defaults to one bounded by
// cfg.Timeout.
func NewWebEducator(cfg config.EducationConfig, client *http.Client, logger *zap.Logger) (*WebEducator, error) {
	if cfg.SearchURL == "" {
		return nil, fmt.Errorf("education search url is required")
	}
	u, err := url.Parse(cfg.SearchURL)
	if err != nil {
		return nil, fmt.Errorf("invalid education search url: %w", err)
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	w := &WebEducator{
		client:     client,
		searchURL:  u,
		selector:   cfg.ResultSelector,
		maxResults: cfg.MaxResults,
		logger:     logger.Named("educator"),
	}
	if w.selector == "" {
		w.selector = defaultResultSelector
	}
	if w.maxResults <= 0 {
		w.maxResults = defaultMaxResults
	}
	return w, nil
}

// Research runs one search per distinct pattern. A failed search is logged
// and its pattern dropped; the call fails only when every search failed.
func (w *WebEducator) Research(ctx context.Context, req schemas.EducationRequest) (*schemas.EducationalContent, error) {
	var patterns []string
	seen := make(map[string]struct{})
	for _, issue := range req.Issues {
		p := fingerprint.Pattern(issue)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		patterns = append(patterns, p)
	}

	difficulty := Difficulty(req.DeveloperLevel)
	modules := make([]*schemas.LearningModule, len(patterns))
	errs := make([]error, len(patterns))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(searchConcurrency)
	for i, p := range patterns {
		g.Go(func() error {
			resources, err := w.search(gctx, searchQuery(p, difficulty))
			if err != nil {
				errs[i] = err
				w.logger.Warn("Education search failed", zap.String("pattern", p), zap.Error(err))
				return nil
			}
			if len(resources) == 0 {
				return nil
			}
			modules[i] = &schemas.LearningModule{
				Pattern:    p,
				Title:      moduleTitle(p),
				Difficulty: difficulty,
				Resources:  resources,
			}
			return nil
		})
	}
	_ = g.Wait()

	content := &schemas.EducationalContent{Modules: []schemas.LearningModule{}}
	failed := 0
	for i := range patterns {
		if errs[i] != nil {
			failed++
			continue
		}
		if modules[i] != nil {
			content.Modules = append(content.Modules, *modules[i])
		}
	}
	if len(patterns) > 0 && failed == len(patterns) {
		return nil, fmt.Errorf("all %d education searches failed: %w", failed, errs[0])
	}
	content.Summary = summarize(len(content.Modules), len(patterns))
	return content, nil
}

func (w *WebEducator) search(ctx context.Context, query string) ([]schemas.Resource, error) {
	u := *w.searchURL
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	doc, err := w.fetchDocument(ctx, u.String())
	if err != nil {
		return nil, err
	}

	var resources []schemas.Resource
	seen := make(map[string]struct{})
	doc.Find(w.selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link := s
		if goquery.NodeName(s) != "a" {
			link = s.Find("a[href]").First()
		}
		href, ok := link.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return true
		}
		ref, err := w.searchURL.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}
		abs := ref.String()
		if _, dup := seen[abs]; dup {
			return true
		}
		seen[abs] = struct{}{}

		title := strings.Join(strings.Fields(link.Text()), " ")
		if title == "" {
			title = abs
		}
		resources = append(resources, schemas.Resource{Title: title, URL: abs})
		return len(resources) < w.maxResults
	})
	return resources, nil
}

func (w *WebEducator) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request search page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}
	return doc, nil
}

// searchQuery turns a pattern key into search terms, e.g.
// "security|critical|sql-injection" becomes "sql injection security beginner".
func searchQuery(pattern, difficulty string) string {
	parts := strings.SplitN(pattern, "|", 3)
	terms := make([]string, 0, 4)
	for _, tok := range fingerprint.Tokens(pattern) {
		terms = append(terms, strings.ReplaceAll(tok, "-", " "))
	}
	if len(parts) > 0 && parts[0] != "" {
		terms = append(terms, strings.ReplaceAll(parts[0], "-", " "))
	}
	terms = append(terms, difficulty)
	return strings.Join(terms, " ")
}

func moduleTitle(pattern string) string {
	if e, ok := tokenCatalog[firstToken(pattern)]; ok {
		return e.title
	}
	category, _, _ := strings.Cut(pattern, "|")
	return "Learning resources: " + category
}

func firstToken(pattern string) string {
	toks := fingerprint.Tokens(pattern)
	if len(toks) == 0 {
		return ""
	}
	return toks[0]
}
