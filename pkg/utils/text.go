package utils

import (
	"regexp"
	"strings"
)

var whitespace = regexp.MustCompile(`\s+`)

// CleanText removes extra whitespace and normalizes text
func CleanText(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// TruncateText truncates text to a maximum length, preserving word boundaries
func TruncateText(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}

	truncated := text[:maxLength]
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > 0 {
		truncated = truncated[:lastSpace]
	}

	return truncated + "..."
}
