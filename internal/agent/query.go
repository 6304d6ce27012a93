// File: internal/agent/query.go
package agent

import (
	"regexp"
	"strings"
)

var annotationRegex = regexp.MustCompile(`[（(].*?[）)]`)

// CleanQuery strips parenthesised annotations, ASCII or full-width, and
// surrounding whitespace from a task query.
func CleanQuery(q string) string {
	return strings.TrimSpace(annotationRegex.ReplaceAllString(q, ""))
}
