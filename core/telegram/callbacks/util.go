// Package callbacks reads and writes inline button data in telebot's
// "\f<unique>|<payload>" layout.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

const marker = "\f"

// ParseCallbackData returns the button key and its payload. Data that telebot
// already split for a registered endpoint is used as is.
func ParseCallbackData(cb *tele.Callback) (unique, payload string) {
	switch {
	case cb == nil:
		return "", ""
	case cb.Unique != "":
		return cb.Unique, cb.Data
	}
	return SplitData(cb.Data)
}

// SplitData cuts raw data at the first '|'. Foreign data without the marker
// is read as a bare key.
func SplitData(raw string) (unique, payload string) {
	unique, payload, _ = strings.Cut(strings.TrimPrefix(raw, marker), "|")
	return strings.TrimSpace(unique), payload
}

// EncodeData is the inverse of SplitData.
func EncodeData(unique, payload string) string {
	if payload == "" {
		return marker + unique
	}
	return marker + unique + "|" + payload
}
