package validation

import (
	"strings"
	"unicode"
)

// maxSearchTermLength caps user-supplied search strings before they reach
// the aggregator or a LIKE clause.
const maxSearchTermLength = 64

// SanitizeForFormulaInjection prepends a single quote if the string starts
// with a formula character, so spreadsheet software opening an exported CSV
// treats the cell as text.
func SanitizeForFormulaInjection(s string) string {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) > 0 {
		firstChar := rune(trimmed[0])
		if firstChar == '=' || firstChar == '+' || firstChar == '-' || firstChar == '@' || firstChar == '\t' || firstChar == '\r' {
			return "'" + s
		}
	}
	return s
}

// StripUnprintable removes non-printable characters, allowing common
// whitespace like space, tab, newline, and carriage return.
func StripUnprintable(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1
	}, s)
}

// NormalizeSearchTerm strips unprintables, trims whitespace and enforces
// the length cap. The result is safe to hand to the holdings search and to
// asset catalog LIKE queries.
func NormalizeSearchTerm(s string) string {
	s = strings.TrimSpace(StripUnprintable(s))
	if len(s) > maxSearchTermLength {
		s = s[:maxSearchTermLength]
	}
	return s
}
