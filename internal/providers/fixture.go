package providers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
	"github.com/xkilldash9x/codequal-cli/internal/location"
)

var fixtureExtensions = []string{".yaml", ".yml", ".json"}

// FixtureProvider serves recorded analysis results from disk, one file per
// branch. Files are looked up as <dir>/<repo>/<branch>.<ext> and then
// <dir>/<branch>.<ext>, with "/" in branch names replaced by "__". JSON
// fixtures are read by the YAML decoder.
type FixtureProvider struct {
	dir string
}

func NewFixtureProvider(dir string) (*FixtureProvider, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("fixture directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("fixture path %s is not a directory", dir)
	}
	return &FixtureProvider{dir: dir}, nil
}

func (p *FixtureProvider) Analyze(ctx context.Context, req schemas.AnalyzeRequest) (*schemas.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := p.find(req.Repository, req.Branch)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", path, err)
	}
	var result schemas.AnalysisResult
	if err := yaml.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}
	for i := range result.Issues {
		result.Issues[i].Severity = schemas.NormalizeSeverity(string(result.Issues[i].Severity))
		result.Issues[i].Category = schemas.NormalizeCategory(string(result.Issues[i].Category))
	}
	if result.Issues == nil {
		result.Issues = []schemas.Issue{}
	}
	if result.Model == "" {
		result.Model = req.Model.Model
	}
	return &result, nil
}

func (p *FixtureProvider) find(repository, branch string) (string, error) {
	name := strings.ReplaceAll(branch, "/", "__")
	var dirs []string
	if _, repo, err := location.ParseRepository(repository); err == nil {
		dirs = append(dirs, filepath.Join(p.dir, repo))
	}
	dirs = append(dirs, p.dir)

	for _, d := range dirs {
		for _, ext := range fixtureExtensions {
			candidate := filepath.Join(d, name+ext)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			} else if !errors.Is(err, fs.ErrNotExist) {
				return "", fmt.Errorf("failed to stat fixture %s: %w", candidate, err)
			}
		}
	}
	return "", fmt.Errorf("no fixture for branch %s in %s", branch, p.dir)
}
