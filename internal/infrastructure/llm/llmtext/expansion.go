// Package llmtext holds the prompt text and response parsing shared by the
// generative model adapters.
package llmtext

import (
	"fmt"
	"regexp"
	"strings"
)

// minAlternativeLength drops fragments such as "Sure:" or stray headings.
const minAlternativeLength = 11

var listMarker = regexp.MustCompile(`^(?:[-*•]+|\d+[.)])\s*`)

func ExpansionPrompt(query string, n int) string {
	return fmt.Sprintf(`Generate %d alternative search queries for this question:
"%s"

Requirements:
- Keep domain terminology accurate
- Rephrase naturally, using different wording and angles
- Make each query specific and clear
- No numbering, output %d queries, one per line

Alternative queries:`, n, query, n)
}

// ParseAlternatives splits a model response into at most n cleaned lines.
func ParseAlternatives(raw string, n int) []string {
	out := make([]string, 0, n)
	for _, line := range strings.Split(raw, "\n") {
		if n > 0 && len(out) >= n {
			break
		}
		cleaned := cleanAlternative(line)
		if len([]rune(cleaned)) < minAlternativeLength {
			continue
		}
		out = append(out, cleaned)
	}
	return out
}

func cleanAlternative(line string) string {
	s := strings.TrimSpace(line)
	s = listMarker.ReplaceAllString(s, "")
	s = strings.Trim(s, "\"'` ")
	return strings.TrimSpace(s)
}
