package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"

	tele "gopkg.in/telebot.v4"
)

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry()
	noop := func(tele.Context) error { return nil }
	reg.RegisterCommand("/start", Command{Handler: noop, Description: "Open the catalog", Aliases: []string{"menu"}})
	reg.RegisterCommand("/start", Command{Handler: noop, Description: "dup"})
	reg.RegisterCommand("help", Command{Handler: noop, Description: "no slash"})
	reg.RegisterCommand("/debug", Command{Handler: noop, Description: "hidden", Hidden: true})

	key, cmd, ok := reg.LookupCommand("/start@shop_bot payload")
	assert.True(t, ok)
	assert.Equal(t, "/start", key)
	assert.Equal(t, "Open the catalog", cmd.Description)

	key, _, ok = reg.LookupCommand("/menu")
	assert.True(t, ok)
	assert.Equal(t, "/start", key)

	_, _, ok = reg.LookupCommand("start")
	assert.False(t, ok, "plain text must not resolve to a command")

	_, _, ok = reg.LookupCommand("user@example.com")
	assert.False(t, ok)

	assert.Len(t, reg.Commands(), 2)
	visible := reg.ListCommands(true)
	assert.Equal(t, []tele.Command{{Text: "start", Description: "Open the catalog"}}, visible)
}
