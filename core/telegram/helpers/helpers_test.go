package helpers

import (
	"testing"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/stretchr/testify/assert"
	tele "gopkg.in/telebot.v4"
)

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "", DisplayName(nil))
	assert.Equal(t, "Ada Lovelace", DisplayName(&tele.User{FirstName: "Ada", LastName: "Lovelace"}))
	assert.Equal(t, "Ada", DisplayName(&tele.User{FirstName: " Ada "}))
	assert.Equal(t, "ada_l", DisplayName(&tele.User{Username: "ada_l"}))
}

func TestBuildContextCachesMetadata(t *testing.T) {
	c := tele.NewContext(nil, tele.Update{
		ID: 11,
		Message: &tele.Message{
			Sender: &tele.User{ID: 5},
			Chat:   &tele.Chat{ID: 6},
		},
	})

	ctx := BuildContext(c)
	assert.Equal(t, "11:6:5", logger.RIDFrom(ctx))
	assert.Equal(t, int64(5), logger.UserIDFrom(ctx))

	cached, ok := ContextFrom(c)
	assert.True(t, ok)
	assert.Equal(t, ctx, cached)

	ctx = WithHandler(c, "callback.add")
	assert.Equal(t, "callback.add", logger.HandlerFrom(ctx))
}
