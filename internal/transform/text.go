package transform

import (
	"regexp"
	"strings"
)

var (
	controlChars = regexp.MustCompile(`[\x00-\x1F\x7F]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// CleanText normalizes message text: control characters are stripped,
// runs of whitespace collapse to a single space, and the result is
// trimmed. The function is pure and idempotent; cleaning a cleaned
// string returns it unchanged.
func CleanText(text string) string {
	text = controlChars.ReplaceAllString(text, " ")
	text = whitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
