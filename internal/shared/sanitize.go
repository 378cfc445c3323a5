package shared

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxNameBytes = 180

var unsafeNameChars = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "'", "<", "_", ">", "_", "|", "_",
)

// SanitizeFilename makes s safe to use as a single path component on common filesystems.
//
// Separators and reserved characters are replaced, control characters dropped, whitespace collapsed
// and leading/trailing dots trimmed. Empty results become "Unknown".
func SanitizeFilename(s string) string {
	s = unsafeNameChars.Replace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, ". ")

	if len(s) > maxNameBytes {
		cut := maxNameBytes
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimSpace(s[:cut])
	}

	if s == "" {
		return "Unknown"
	}
	return s
}
