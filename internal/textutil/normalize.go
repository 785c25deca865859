package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// cases.Caser keeps internal state, so each call builds its own.
func newFolder() cases.Caser {
	return cases.Fold()
}

// Fold applies Unicode case folding so values that differ only in case
// compare equal ("Sony", "SONY", "sony").
func Fold(value string) string {
	if value == "" {
		return ""
	}
	folder := newFolder()
	return folder.String(value)
}

// NormalizeLabel trims surrounding whitespace, collapses inner whitespace
// runs to a single space and case-folds the result. An all-whitespace input
// normalizes to the empty string.
func NormalizeLabel(value string) string {
	fields := strings.FieldsFunc(value, unicode.IsSpace)
	if len(fields) == 0 {
		return ""
	}
	return Fold(strings.Join(fields, " "))
}

// ContainsFold reports whether needle occurs in haystack ignoring case.
func ContainsFold(haystack, needle string) bool {
	return strings.Contains(Fold(haystack), Fold(needle))
}
