// Package bot connects the conversation engine to the Telegram Bot API.
package bot

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/keyboard"
	"github.com/m3rciful/shopbot/core/telegram/netutil"
	"github.com/m3rciful/shopbot/internal/shop"
	"github.com/m3rciful/shopbot/internal/view"
	tele "gopkg.in/telebot.v4"
)

// API is the part of tele.Bot used for rendering.
type API interface {
	Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error)
	Edit(msg tele.Editable, what any, opts ...any) (*tele.Message, error)
	Delete(msg tele.Editable) error
	Respond(c *tele.Callback, resp ...*tele.CallbackResponse) error
}

// Fetcher downloads product images.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Bot API descriptions meaning the edit target cannot take the new text.
var goneMarkers = []string{
	"message to edit not found",
	"there is no text in the message to edit",
	"message can't be edited",
}

const notModified = "message is not modified"

// Renderer draws views with the Bot API.
type Renderer struct {
	api   API
	media Fetcher
}

// NewRenderer builds a Renderer. media may be nil, in which case images are skipped.
func NewRenderer(api API, media Fetcher) *Renderer {
	return &Renderer{api: api, media: media}
}

// Markup converts view actions to an inline keyboard.
func Markup(rows [][]view.Action) *tele.ReplyMarkup {
	btnRows := make([][]keyboard.InlineBtn, 0, len(rows))
	for _, row := range rows {
		btns := make([]keyboard.InlineBtn, 0, len(row))
		for _, a := range row {
			btns = append(btns, keyboard.InlineBtn{Text: a.Label, Unique: a.Key, Data: a.Arg})
		}
		btnRows = append(btnRows, btns)
	}
	return keyboard.InlineButtonsRows(btnRows...)
}

func sendOptions(v view.View) []any {
	var opts []any
	if markup := Markup(v.Rows); markup != nil {
		opts = append(opts, markup)
	}
	if v.HTML {
		opts = append(opts, tele.ModeHTML)
	}
	return opts
}

// Send posts v as a new message. Views with an image go out as a photo;
// a failed download or upload degrades to text.
func (r *Renderer) Send(ctx context.Context, chatID int64, v view.View) (int, error) {
	to := tele.ChatID(chatID)
	opts := sendOptions(v)
	if v.ImageURL != "" && r.media != nil {
		id, err := r.sendPhoto(ctx, to, v, opts)
		if err == nil {
			return id, nil
		}
		logger.Warn(ctx, "tg", "photo.fallback",
			slog.String("err", logger.SanitizeLimit(netutil.RedactError(err), 256)),
			slog.String("err_code", netutil.ClassifyError(err)),
		)
	}
	msg, err := r.api.Send(to, v.Text, opts...)
	if err != nil {
		return 0, fmt.Errorf("send message: %w", err)
	}
	return msg.ID, nil
}

func (r *Renderer) sendPhoto(ctx context.Context, to tele.Recipient, v view.View, opts []any) (int, error) {
	data, err := r.media.Fetch(ctx, v.ImageURL)
	if err != nil {
		return 0, err
	}
	photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(data)), Caption: v.Text}
	msg, err := r.api.Send(to, photo, opts...)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// Edit replaces the text and keyboard of a message.
func (r *Renderer) Edit(_ context.Context, chatID int64, messageID int, v view.View) (int, error) {
	target := tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
	msg, err := r.api.Edit(target, v.Text, sendOptions(v)...)
	if err != nil {
		desc := strings.ToLower(err.Error())
		if strings.Contains(desc, notModified) {
			return messageID, nil
		}
		for _, marker := range goneMarkers {
			if strings.Contains(desc, marker) {
				return 0, fmt.Errorf("%w: %s", shop.ErrRenderTargetGone, err.Error())
			}
		}
		return 0, fmt.Errorf("edit message: %w", err)
	}
	if msg == nil {
		return messageID, nil
	}
	return msg.ID, nil
}

// Delete removes a message.
func (r *Renderer) Delete(_ context.Context, chatID int64, messageID int) error {
	return r.api.Delete(tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID})
}

// Answer acknowledges a button press, showing text as a toast when set.
func (r *Renderer) Answer(_ context.Context, callbackID, text string) error {
	return r.api.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}
