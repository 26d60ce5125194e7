package claims

import (
	"regexp"
	"strings"
)

var (
	// "Claims (10)" on its own line, optionally followed by a stray count and ")".
	headerBlock = regexp.MustCompile(`(?is)^\s*claims?\s*(\(\s*\d+\s*\))?\s*(\n|\r\n)+\s*(\d+\s*(\n|\r\n)+\s*)?\)\s*(\n|\r\n)+`)

	// "Claims (10)" directly followed by the first claim.
	headerInline = regexp.MustCompile(`(?is)^\s*claims?\s*\(\s*\d+\s*\)\s*`)
)

// StripHeader removes a leading claims-section header such as "Claims (10)".
// Block-style headers take precedence over inline ones.
func StripHeader(text string) string {
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r\n", "\n"))
	if stripped := headerBlock.ReplaceAllString(text, ""); stripped != text {
		return strings.TrimSpace(stripped)
	}
	return strings.TrimSpace(headerInline.ReplaceAllString(text, ""))
}
