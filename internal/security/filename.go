// Package security holds helpers for turning caller-supplied identifiers
// into values that are safe to embed in paths and headers.
package security

import "strings"

// maxFilenameLen bounds the sanitized name.
const maxFilenameLen = 128

// SanitizeFilename maps s onto the ASCII letters, digits, '.', '_' and
// '-'. Runs of any other rune collapse to a single '_', and leading or
// trailing punctuation is trimmed so the result can never name a parent
// directory or look like a flag. An empty result becomes "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		if safeRune(r) {
			if pending {
				b.WriteByte('_')
				pending = false
			}
			b.WriteRune(r)
			continue
		}
		pending = b.Len() > 0
	}
	out := strings.Trim(b.String(), "._-")
	if out == "" {
		return "unknown"
	}
	return out
}

func safeRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '_', r == '-':
		return true
	}
	return false
}
