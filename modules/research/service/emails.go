package service

import (
	"regexp"
	"strings"
)

var emailRe = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)

// extractEmails scans blob for email addresses, lowercases and de-duplicates
// them preserving first-seen order, and caps the result at 25.
func extractEmails(blob string) []string {
	matches := emailRe.FindAllString(blob, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		lower := strings.ToLower(m)
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, lower)
		if len(out) >= 25 {
			break
		}
	}
	return out
}
