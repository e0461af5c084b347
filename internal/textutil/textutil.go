// Package textutil normalises user-provided text before it is matched.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize applies NFKC compatibility folding when normal is set and drops
// non-printable runes when printable is set. Newlines and tabs survive
// printable filtering. The result is trimmed.
func Normalize(s string, normal, printable bool) string {
	if s == "" {
		return ""
	}
	if normal {
		s = norm.NFKC.String(s)
	}
	if printable {
		s = strings.Map(func(r rune) rune {
			if r == '\n' || r == '\t' || unicode.IsPrint(r) {
				return r
			}
			return -1
		}, s)
	}
	return strings.TrimSpace(s)
}
