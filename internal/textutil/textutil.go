package textutil

import (
	"strings"
	"unicode/utf8"
)

// CollapseWhitespace folds every whitespace run, newlines included, into a
// single space and trims the ends. Diagnostics and snippets render on one
// line this way.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TruncateBytes caps s at max bytes without splitting a UTF-8 sequence.
// Non-positive max returns the empty string.
func TruncateBytes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Snippet flattens s to one line and caps it at maxRunes, appending an
// ellipsis when anything was dropped. Empty input renders as "<empty>" so
// log lines stay grep-able.
func Snippet(s string, maxRunes int) string {
	clean := CollapseWhitespace(s)
	if clean == "" {
		return "<empty>"
	}
	runes := []rune(clean)
	if maxRunes > 0 && len(runes) > maxRunes {
		clean = string(runes[:maxRunes]) + "..."
	}
	return clean
}
