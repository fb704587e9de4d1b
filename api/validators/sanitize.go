package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims input, collapses runs of whitespace and drops control
// characters, then truncates to maxLen runes.
func SanitizeString(input string, maxLen int) string {
	fields := strings.FieldsFunc(input, unicode.IsSpace)
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.Join(fields, " "))

	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			return strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return cleaned
}
