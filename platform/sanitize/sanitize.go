// Package sanitize strips markup from untrusted inbound text before it is
// stored or fed to field extraction.
package sanitize

import (
	"regexp"
	"strings"
)

var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// Text reduces a message body to plain text: HTML tags are removed, common
// entities decoded, and surrounding whitespace trimmed. The tag strip runs
// again after decoding to catch tags hidden behind encoded angle brackets.
func Text(s string) string {
	result := htmlTagRe.ReplaceAllString(s, "")
	result = strings.ReplaceAll(result, "&lt;", "<")
	result = strings.ReplaceAll(result, "&gt;", ">")
	result = strings.ReplaceAll(result, "&amp;", "&")
	result = strings.ReplaceAll(result, "&quot;", "\"")
	result = strings.ReplaceAll(result, "&#39;", "'")
	result = htmlTagRe.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}
