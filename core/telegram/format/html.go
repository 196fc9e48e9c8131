package format

import (
	"strings"
	"unicode/utf8"
)

// EscapeHTML escapes text for Telegram's HTML parse mode.
// Telegram only requires <, > and & to be escaped; quotes are kept readable.
func EscapeHTML(text string) string {
	return strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(text)
}

// Bold wraps escaped text into a <b> tag.
func Bold(text string) string {
	return "<b>" + EscapeHTML(text) + "</b>"
}

// Truncate limits s to max runes, appending an ellipsis when cut.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	if max == 1 {
		return string(r[:1])
	}
	return string(r[:max-1]) + "…"
}
