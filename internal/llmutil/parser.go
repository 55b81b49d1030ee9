// internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// fencedRegex matches a markdown code fence with an optional language tag.
// \x60 is a backtick; raw strings cannot contain one.
var fencedRegex = regexp.MustCompile("(?s)\x60\x60\x60[a-zA-Z]*\\s*(.*?)\\s*\x60\x60\x60")

// ExtractJSON pulls the JSON payload out of a model reply: it unwraps a code
// fence if present, then trims any chatter around the outermost object or
// array.
func ExtractJSON(response string) string {
	s := strings.TrimSpace(response)
	if m := fencedRegex.FindStringSubmatch(s); len(m) > 1 {
		s = strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}

	open, closing := "{", "}"
	objAt := strings.Index(s, "{")
	arrAt := strings.Index(s, "[")
	if objAt == -1 || (arrAt != -1 && arrAt < objAt) {
		open, closing = "[", "]"
	}
	first := strings.Index(s, open)
	last := strings.LastIndex(s, closing)
	if first == -1 || last <= first {
		return s
	}
	return s[first : last+1]
}

// ParseJSONResponse parses a model reply into T, tolerating fences and
// surrounding prose.
func ParseJSONResponse[T any](response string) (*T, error) {
	payload := ExtractJSON(response)
	var out T
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, truncate(payload, 500))
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
