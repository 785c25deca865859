package textutil

import "strings"

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons, and asterisks become dashes; other unsafe
// characters are removed. The result is trimmed of leading/trailing whitespace.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.TrimSpace(fileNameReplacer.Replace(name))
}

// PreviewFileName derives the export name for a source's derived asset, for
// example "DSC0001.ARW" with kind "thumbnail" becomes "DSC0001.thumbnail.jpg".
func PreviewFileName(sourceName, kind string) string {
	base := SanitizeFileName(sourceName)
	if idx := strings.LastIndexByte(base, '.'); idx > 0 {
		base = base[:idx]
	}
	if base == "" {
		base = "preview"
	}
	kind = SanitizeFileName(kind)
	if kind == "" {
		return base + ".jpg"
	}
	return base + "." + kind + ".jpg"
}
