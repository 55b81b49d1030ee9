// Package fingerprint derives stable identity keys for issues so the same
// defect can be recognized on two branches.
package fingerprint

import (
	"sort"
	"strconv"
	"strings"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
)

// MessagePrefixLen caps how much of the normalized message takes part in the
// fingerprint. Messages that agree on their first 50 characters collide.
const MessagePrefixLen = 50

const (
	unknownFile = "unknown"
	separator   = "|"
)

// Fingerprint returns the identity key of an issue. It is pure and depends only
// on the issue's file, line, category, severity and message prefix.
func Fingerprint(issue schemas.Issue) string {
	file := issue.File()
	if file == "" {
		file = unknownFile
	}

	text := issue.Message
	if strings.TrimSpace(text) == "" {
		text = issue.Title
	}

	var b strings.Builder
	b.WriteString(file)
	b.WriteString(separator)
	b.WriteString(strconv.Itoa(issue.Line()))
	b.WriteString(separator)
	b.WriteString(string(issue.Category))
	b.WriteString(separator)
	b.WriteString(string(issue.Severity))
	b.WriteString(separator)
	b.WriteString(normalizePrefix(text, MessagePrefixLen))
	return b.String()
}

// normalizePrefix lowercases, trims and collapses whitespace, then keeps at
// most n runes.
func normalizePrefix(s string, n int) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	runes := []rune(s)
	if len(runes) > n {
		runes = runes[:n]
	}
	return strings.TrimRight(string(runes), " ")
}

// token recognizers for Pattern. Order does not matter; output tokens are sorted.
var patternTokens = []struct {
	token    string
	keywords []string
}{
	{"sql-injection", []string{"sql injection", "sqli", "sql-injection", "unsanitized query"}},
	{"xss", []string{"xss", "cross-site scripting", "cross site scripting"}},
	{"hardcoded-secret", []string{"hardcoded secret", "hardcoded password", "hardcoded credential", "hard-coded", "hardcoded api key", "api key in source", "secret in source"}},
	{"command-injection", []string{"command injection", "os command", "shell injection"}},
	{"path-traversal", []string{"path traversal", "directory traversal", "../"}},
	{"csrf", []string{"csrf", "cross-site request forgery"}},
	{"insecure-deserialization", []string{"deserialization", "unmarshal untrusted"}},
	{"n-plus-one", []string{"n+1", "n + 1", "query in loop", "queries in a loop"}},
	{"memory-leak", []string{"memory leak", "goroutine leak", "unbounded growth"}},
	{"missing-validation", []string{"missing validation", "input validation", "unvalidated"}},
	{"outdated-dependency", []string{"outdated dependency", "vulnerable dependency", "deprecated package", "known vulnerability"}},
	{"missing-tests", []string{"missing test", "no test", "untested", "test coverage"}},
	{"error-handling", []string{"unchecked error", "error ignored", "swallowed error", "missing error handling"}},
}

// Pattern returns a coarser key used to group issues that would produce the
// same educational lookup: category, severity and any recognized defect tokens.
func Pattern(issue schemas.Issue) string {
	haystack := strings.ToLower(issue.Title + " " + issue.Message)

	var tokens []string
	for _, p := range patternTokens {
		for _, kw := range p.keywords {
			if strings.Contains(haystack, kw) {
				tokens = append(tokens, p.token)
				break
			}
		}
	}
	sort.Strings(tokens)

	key := string(issue.Category) + separator + string(issue.Severity)
	if len(tokens) > 0 {
		key += separator + strings.Join(tokens, "+")
	}
	return key
}

// Tokens returns the recognized defect tokens embedded in a pattern key.
func Tokens(pattern string) []string {
	parts := strings.SplitN(pattern, separator, 3)
	if len(parts) < 3 || parts[2] == "" {
		return nil
	}
	return strings.Split(parts[2], "+")
}
