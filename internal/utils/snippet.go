package utils

import "strings"

const logSnippetLimit = 120

// LogSnippet trims value to a loggable length without splitting runes.
func LogSnippet(value string) string {
	return Truncate(value, logSnippetLimit)
}

// Truncate shortens s to at most max runes, appending "..." when cut.
func Truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if s == "" || max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
