package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeForFormulaInjection(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text untouched", "Bitcoin", "Bitcoin"},
		{"equals prefixed", "=SUM(A1:A9)", "'=SUM(A1:A9)"},
		{"plus prefixed", "+1234", "'+1234"},
		{"minus prefixed", "-cmd", "'-cmd"},
		{"at prefixed", "@import", "'@import"},
		{"leading whitespace before formula", "  =HYPERLINK(...)", "'  =HYPERLINK(...)"},
		{"empty string", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizeForFormulaInjection(tc.input))
		})
	}
}

func TestNormalizeSearchTerm(t *testing.T) {
	assert.Equal(t, "btc", NormalizeSearchTerm("  btc  "))
	assert.Equal(t, "bitcoin", NormalizeSearchTerm("bit\x00coin"))
	assert.Equal(t, "", NormalizeSearchTerm("\x00\x01"))

	long := strings.Repeat("a", 200)
	assert.Len(t, NormalizeSearchTerm(long), 64)
}
