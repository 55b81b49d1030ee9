// Package location refines provider-reported issue locations against the
// source of the branch the issue was found on.
package location

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
)

// ErrFileNotFound is returned by a Source when the path does not exist at ref.
var ErrFileNotFound = errors.New("file not found at ref")

// DefaultContextLines is how far from the reported line a snippet is searched
// before falling back to the whole file.
const DefaultContextLines = 10

// MinConfidence is the lowest confidence an enhanced location is reported with.
const MinConfidence = 0.5

// Source reads a file of a repository at a ref.
type Source interface {
	ReadFile(ctx context.Context, repository, ref, path string) ([]byte, error)
}

// Enhancer implements schemas.LocationEnhancer over a Source.
type Enhancer struct {
	source       Source
	contextLines int
	logger       *zap.Logger
}

func NewEnhancer(source Source, contextLines int, logger *zap.Logger) *Enhancer {
	if contextLines <= 0 {
		contextLines = DefaultContextLines
	}
	return &Enhancer{source: source, contextLines: contextLines, logger: logger.Named("location")}
}

// Enhance returns copies of issues with Enhanced set where the issue could be
// placed in the source. Reported locations are never modified. Each file is
// read once. It fails only when every read failed for a reason other than a
// missing file.
func (e *Enhancer) Enhance(ctx context.Context, issues []schemas.Issue, repository, ref string) (*schemas.EnhanceResult, error) {
	out := make([]schemas.Issue, len(issues))
	copy(out, issues)

	files := make(map[string][]string)
	var reads, failures int
	var lastErr error

	result := &schemas.EnhanceResult{}
	for i := range out {
		path := cleanPath(out[i].File())
		if path == "" {
			continue
		}
		lines, seen := files[path]
		if !seen {
			reads++
			raw, err := e.source.ReadFile(ctx, repository, ref, path)
			switch {
			case errors.Is(err, ErrFileNotFound):
				e.logger.Debug("Issue file not present at ref", zap.String("file", path), zap.String("ref", ref))
			case err != nil:
				failures++
				lastErr = err
				e.logger.Warn("Failed to read source file", zap.String("file", path), zap.String("ref", ref), zap.Error(err))
			default:
				lines = strings.Split(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n")
			}
			files[path] = lines
		}
		if lines == nil {
			continue
		}
		if loc := Locate(lines, out[i], e.contextLines); loc != nil {
			loc.File = path
			out[i].Enhanced = loc
			result.EnhancedCount++
		}
	}

	if reads > 0 && failures == reads {
		return nil, fmt.Errorf("failed to read any source file at %s: %w", ref, lastErr)
	}
	result.Issues = out
	return result, nil
}

// Locate places issue within lines. With a code snippet it searches for the
// snippet's first non-blank line, nearest the reported line first; without
// one it confirms the reported line exists. Returns nil when nothing matches.
func Locate(lines []string, issue schemas.Issue, contextLines int) *schemas.EnhancedLocation {
	reported := issue.Line()
	needle := firstLine(issue.CodeSnippet)

	if needle == "" {
		if reported < 1 || reported > len(lines) || strings.TrimSpace(lines[reported-1]) == "" {
			return nil
		}
		text := lines[reported-1]
		return &schemas.EnhancedLocation{
			Line:       reported,
			Column:     len(text) - len(strings.TrimLeft(text, " \t")) + 1,
			Confidence: MinConfidence,
			Snippet:    strings.TrimSpace(text),
		}
	}

	if reported >= 1 {
		for d := 0; d <= contextLines; d++ {
			candidates := []int{reported - d}
			if d > 0 {
				candidates = append(candidates, reported+d)
			}
			for _, n := range candidates {
				if loc := match(lines, n, needle); loc != nil {
					loc.Confidence = max(1.0-0.04*float64(d), 0.6)
					return loc
				}
			}
		}
	}

	for n := 1; n <= len(lines); n++ {
		if loc := match(lines, n, needle); loc != nil {
			loc.Confidence = MinConfidence
			return loc
		}
	}
	return nil
}

func match(lines []string, n int, needle string) *schemas.EnhancedLocation {
	if n < 1 || n > len(lines) {
		return nil
	}
	col := strings.Index(lines[n-1], needle)
	if col < 0 {
		return nil
	}
	return &schemas.EnhancedLocation{Line: n, Column: col + 1, Snippet: strings.TrimSpace(lines[n-1])}
}

func firstLine(snippet string) string {
	for _, l := range strings.Split(snippet, "\n") {
		if t := strings.TrimSpace(l); t != "" {
			return t
		}
	}
	return ""
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "./")
	return strings.TrimLeft(p, "/")
}
