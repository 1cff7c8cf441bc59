package validators

import (
	"strings"
	"unicode"
)

// MaxNotesLength bounds operator notes stored on ledger entries, in runes.
const MaxNotesLength = 500

// SanitizeString trims input, drops control characters other than newlines
// and cuts the result to maxLen runes. maxLen <= 0 disables the cut.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r != '\n' && unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))

	if maxLen <= 0 {
		return cleaned
	}
	runes := []rune(cleaned)
	if len(runes) <= maxLen {
		return cleaned
	}
	return strings.TrimSpace(string(runes[:maxLen]))
}
