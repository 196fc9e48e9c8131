package callbacks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	cases := []struct {
		name    string
		cb      *tele.Callback
		unique  string
		payload string
	}{
		{name: "nil", cb: nil},
		{name: "raw with payload", cb: &tele.Callback{Data: "\fadd|doc-1"}, unique: "add", payload: "doc-1"},
		{name: "raw without payload", cb: &tele.Callback{Data: "\fcart"}, unique: "cart"},
		{name: "payload keeps separators", cb: &tele.Callback{Data: "\fremove|a|b"}, unique: "remove", payload: "a|b"},
		{name: "already split", cb: &tele.Callback{Unique: "product", Data: "doc-2"}, unique: "product", payload: "doc-2"},
		{name: "foreign data", cb: &tele.Callback{Data: "legacy"}, unique: "legacy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			unique, payload := ParseCallbackData(tc.cb)
			assert.Equal(t, tc.unique, unique)
			assert.Equal(t, tc.payload, payload)
		})
	}
}

func TestEncodeDataRoundTrip(t *testing.T) {
	assert.Equal(t, "\fadd|doc-9", EncodeData("add", "doc-9"))

	unique, payload := SplitData(EncodeData("back_to_menu", ""))
	assert.Equal(t, "back_to_menu", unique)
	assert.Empty(t, payload)
}
