package event

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText folds text into a canonical form before pattern matching.
// NFKC normalization collapses fullwidth and compatibility variants
// (ｒｍ → rm), closing the classic matcher-bypass where a visually identical
// command slips past an ASCII pattern. Zero-width characters are stripped
// for the same reason.
func NormalizeText(s string) string {
	if s == "" {
		return s
	}
	s = norm.NFKC.String(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff': // zero-width space/joiners, BOM
			return -1
		}
		return r
	}, s)
}
