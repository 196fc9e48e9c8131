package router

import (
	tg "github.com/m3rciful/shopbot/core/telegram"

	tele "gopkg.in/telebot.v4"
)

// TextOptions controls fallback behaviour for non-text messages.
type TextOptions struct {
	UnknownMedia tele.HandlerFunc
}

// TextRoutes sends registered commands (including aliases) to their handlers
// and any other text to handler.
func TextRoutes(reg *tg.Registry, handler tele.HandlerFunc, opts TextOptions) []tg.Route {
	text := func(c tele.Context) error {
		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil {
				return observe(c, normalizeHandlerName(key), func() error {
					return cmd.Handler(c)
				})
			}
		}
		if handler != nil {
			return observe(c, "text", func() error {
				return handler(c)
			})
		}
		skipped(c, "unknown_text")
		return nil
	}

	media := func(c tele.Context) error {
		if opts.UnknownMedia != nil {
			return observe(c, "unexpected_media", func() error {
				return opts.UnknownMedia(c)
			})
		}
		skipped(c, "unexpected_media")
		return nil
	}

	routes := []tg.Route{{Endpoint: tele.OnText, Handler: text}}
	for _, ep := range []string{tele.OnDocument, tele.OnPhoto, tele.OnSticker, tele.OnVoice} {
		routes = append(routes, tg.Route{Endpoint: ep, Handler: media})
	}
	return routes
}
