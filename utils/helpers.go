package utils

import (
	"regexp"
	"strings"
	"time"
)

var tagRe = regexp.MustCompile(`<[^>]+>`)

// StripHTML removes markup tags from legacy slide block text
func StripHTML(html string) string {
	return strings.TrimSpace(tagRe.ReplaceAllString(html, ""))
}

// FormatUTC formats a timestamp as RFC3339 in UTC for API responses
func FormatUTC(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
