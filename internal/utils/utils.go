package utils

import (
	"path/filepath"
	"strings"
	"unicode"
)

// TruncateForLog shortens the provided string to the specified limit, appending an ellipsis when truncated.
func TruncateForLog(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// SingleLine collapses any whitespace run, including newlines, into a single space.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ShortError renders err as a single display-friendly line no longer than limit runes.
func ShortError(err error, limit int) string {
	if err == nil {
		return ""
	}
	return TruncateForLog(SingleLine(err.Error()), limit)
}

// BaseName strips any directory components a client may have sent with an upload name.
func BaseName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := filepath.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, base)
}
