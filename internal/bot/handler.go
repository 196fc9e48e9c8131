package bot

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/callbacks"
	"github.com/m3rciful/shopbot/core/telegram/dispatch"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"
	"github.com/m3rciful/shopbot/internal/engine"
	tele "gopkg.in/telebot.v4"
)

const (
	toastBusy = "⏳ Busy, try again in a moment"
	toastSlow = "⏳ Too fast, slow down"
)

// Engine runs conversation turns.
type Engine interface {
	Handle(ctx context.Context, ev engine.Event) error
}

// Queue serializes work per user.
type Queue interface {
	Enqueue(ctx context.Context, key int64, action string, run func(ctx context.Context) error) error
}

// Handler turns updates into engine events and queues them per user.
// Telegram handlers return as soon as the event is queued.
type Handler struct {
	engine Engine
	queue  Queue
}

// NewHandler wires a Handler.
func NewHandler(e Engine, q Queue) *Handler {
	return &Handler{engine: e, queue: q}
}

// OnStart handles /start.
func (h *Handler) OnStart(c tele.Context) error {
	ev, ok := baseEvent(c)
	if !ok {
		return nil
	}
	ev.Kind = engine.KindCommand
	ev.Command = "/start"
	return h.submit(c, ev)
}

// OnCallback handles button presses.
func (h *Handler) OnCallback(c tele.Context) error {
	cb := c.Callback()
	ev, ok := baseEvent(c)
	if !ok || cb == nil {
		return nil
	}
	ev.Kind = engine.KindCallback
	ev.CallbackID = cb.ID
	ev.Action, ev.Arg = callbacks.ParseCallbackData(cb)
	if cb.Message != nil {
		ev.MessageID = cb.Message.ID
	}
	return h.submit(c, ev)
}

// OnText handles free text and, with empty text, any other message.
func (h *Handler) OnText(c tele.Context) error {
	ev, ok := baseEvent(c)
	if !ok {
		return nil
	}
	ev.Kind = engine.KindText
	if msg := c.Message(); msg != nil {
		ev.MessageID = msg.ID
		ev.Text = msg.Text
	}
	return h.submit(c, ev)
}

// OnLimited answers updates dropped by the rate limiter.
func (h *Handler) OnLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond(&tele.CallbackResponse{Text: toastSlow})
	}
	return nil
}

func baseEvent(c tele.Context) (engine.Event, bool) {
	user := c.Sender()
	if user == nil || user.IsBot {
		return engine.Event{}, false
	}
	ev := engine.Event{UserID: user.ID, ChatID: user.ID, DisplayName: tghelpers.DisplayName(user)}
	if chat := c.Chat(); chat != nil {
		ev.ChatID = chat.ID
	}
	return ev, true
}

func (h *Handler) submit(c tele.Context, ev engine.Event) error {
	ctx := tghelpers.BuildContext(c)
	action := ev.Kind.String()
	err := h.queue.Enqueue(ctx, ev.UserID, action, func(ctx context.Context) error {
		return h.engine.Handle(ctx, ev)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, dispatch.ErrQueueFull):
		logger.Warn(ctx, "tg", "update.dropped",
			slog.String("status", "rate_limited"),
			slog.String("action", action),
		)
		if ev.CallbackID != "" {
			return c.Respond(&tele.CallbackResponse{Text: toastBusy})
		}
		return nil
	}
	return err
}
