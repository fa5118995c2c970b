package engine

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// fallbackName labels recordings whose task name sanitizes to nothing.
const fallbackName = "recording"

// sanitizeName turns a task name into a safe path component. The name is
// NFC-normalized so visually identical names map to the same directory.
func sanitizeName(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' ||
			r == '"' || r == '<' || r == '>' || r == '|':
			b.WriteRune('_')
		case unicode.IsControl(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	sanitized := strings.Trim(b.String(), " .")
	if sanitized == "" {
		return fallbackName
	}
	return sanitized
}
