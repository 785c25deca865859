// Package textutil normalizes free-text labels and file names.
//
// NormalizeLabel is the single canonical form used when annotation values are
// stored and compared: surrounding whitespace is trimmed, inner whitespace
// runs collapse to one space and the result is Unicode case folded, so
// "  Alfa  Romeo" and "alfa romeo" are the same label. Fold and ContainsFold
// apply the same folding for case-insensitive query matching.
//
// SanitizeFileName produces safe output names for exported previews.
package textutil
