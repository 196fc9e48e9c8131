package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/m3rciful/shopbot/core/telegram/dispatch"
	"github.com/m3rciful/shopbot/internal/engine"
	"github.com/m3rciful/shopbot/internal/shop"
	"github.com/m3rciful/shopbot/internal/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type sent struct {
	to   tele.Recipient
	what any
	opts []any
}

type fakeAPI struct {
	seq      int
	sent     []sent
	edited   []tele.StoredMessage
	deleted  []tele.StoredMessage
	answered []*tele.CallbackResponse
	sendErr  func(what any) error
	editErr  error
}

func (f *fakeAPI) Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error) {
	if f.sendErr != nil {
		if err := f.sendErr(what); err != nil {
			return nil, err
		}
	}
	f.seq++
	f.sent = append(f.sent, sent{to: to, what: what, opts: opts})
	return &tele.Message{ID: f.seq}, nil
}

func (f *fakeAPI) Edit(msg tele.Editable, _ any, _ ...any) (*tele.Message, error) {
	if f.editErr != nil {
		return nil, f.editErr
	}
	f.edited = append(f.edited, msg.(tele.StoredMessage))
	return &tele.Message{ID: 77}, nil
}

func (f *fakeAPI) Delete(msg tele.Editable) error {
	f.deleted = append(f.deleted, msg.(tele.StoredMessage))
	return nil
}

func (f *fakeAPI) Respond(_ *tele.Callback, resp ...*tele.CallbackResponse) error {
	f.answered = append(f.answered, resp...)
	return nil
}

type fakeFetcher struct {
	data []byte
	err  error
}

func (f fakeFetcher) Fetch(context.Context, string) ([]byte, error) { return f.data, f.err }

var cardView = view.View{
	Text:     "<b>Apple</b>",
	HTML:     true,
	ImageURL: "http://cms/uploads/apple.png",
	Rows:     [][]view.Action{{{Label: "➕ Add to cart", Key: view.KeyAdd, Arg: "pA"}}},
}

func TestMarkup(t *testing.T) {
	assert.Nil(t, Markup(nil))
	m := Markup([][]view.Action{
		{{Label: "Apple", Key: view.KeyProduct, Arg: "pA"}},
		{{Label: "🛒 Cart", Key: view.KeyCart}},
	})
	require.Len(t, m.InlineKeyboard, 2)
	assert.Equal(t, "Apple", m.InlineKeyboard[0][0].Text)
	assert.Equal(t, view.KeyProduct, m.InlineKeyboard[0][0].Unique)
	assert.Equal(t, "pA", m.InlineKeyboard[0][0].Data)
}

func TestSendPhoto(t *testing.T) {
	api := &fakeAPI{}
	r := NewRenderer(api, fakeFetcher{data: []byte("png")})

	id, err := r.Send(context.Background(), 5, cardView)
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	require.Len(t, api.sent, 1)
	photo, ok := api.sent[0].what.(*tele.Photo)
	require.True(t, ok)
	assert.Equal(t, "<b>Apple</b>", photo.Caption)
	assert.Contains(t, api.sent[0].opts, tele.ModeHTML)
	assert.Equal(t, "5", api.sent[0].to.Recipient())
}

func TestSendPhotoFallsBackToText(t *testing.T) {
	api := &fakeAPI{}
	r := NewRenderer(api, fakeFetcher{err: errors.New("404")})
	_, err := r.Send(context.Background(), 5, cardView)
	require.NoError(t, err)
	assert.Equal(t, "<b>Apple</b>", api.sent[0].what)

	api = &fakeAPI{sendErr: func(what any) error {
		if _, ok := what.(*tele.Photo); ok {
			return errors.New("telegram: Bad Request: caption is too long (400)")
		}
		return nil
	}}
	r = NewRenderer(api, fakeFetcher{data: []byte("png")})
	_, err = r.Send(context.Background(), 5, cardView)
	require.NoError(t, err)
	require.Len(t, api.sent, 1)
	assert.Equal(t, "<b>Apple</b>", api.sent[0].what)
}

func TestEditErrors(t *testing.T) {
	api := &fakeAPI{}
	r := NewRenderer(api, nil)

	id, err := r.Edit(context.Background(), 5, 10, view.View{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, 77, id)
	assert.Equal(t, tele.StoredMessage{MessageID: "10", ChatID: 5}, api.edited[0])

	api.editErr = errors.New("telegram: Bad Request: there is no text in the message to edit (400)")
	_, err = r.Edit(context.Background(), 5, 10, view.View{Text: "x"})
	assert.ErrorIs(t, err, shop.ErrRenderTargetGone)

	api.editErr = errors.New("telegram: Bad Request: message is not modified (400)")
	id, err = r.Edit(context.Background(), 5, 10, view.View{Text: "x"})
	require.NoError(t, err)
	assert.Equal(t, 10, id)

	api.editErr = errors.New("telegram: Too Many Requests (429)")
	_, err = r.Edit(context.Background(), 5, 10, view.View{Text: "x"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, shop.ErrRenderTargetGone)
}

func TestDeleteAndAnswer(t *testing.T) {
	api := &fakeAPI{}
	r := NewRenderer(api, nil)
	require.NoError(t, r.Delete(context.Background(), 5, 3))
	require.NoError(t, r.Answer(context.Background(), "cb1", "✅ Added to cart"))
	assert.Equal(t, tele.StoredMessage{MessageID: "3", ChatID: 5}, api.deleted[0])
	assert.Equal(t, "✅ Added to cart", api.answered[0].Text)
}

type syncQueue struct {
	keys []int64
	err  error
}

func (q *syncQueue) Enqueue(ctx context.Context, key int64, _ string, run func(context.Context) error) error {
	if q.err != nil {
		return q.err
	}
	q.keys = append(q.keys, key)
	return run(ctx)
}

type recordingEngine struct {
	events []engine.Event
}

func (e *recordingEngine) Handle(_ context.Context, ev engine.Event) error {
	e.events = append(e.events, ev)
	return nil
}

func newHandler() (*Handler, *recordingEngine, *syncQueue) {
	e, q := &recordingEngine{}, &syncQueue{}
	return NewHandler(e, q), e, q
}

func TestCallbackEvent(t *testing.T) {
	h, e, q := newHandler()
	c := tele.NewContext(nil, tele.Update{ID: 1, Callback: &tele.Callback{
		ID:      "cb-9",
		Sender:  &tele.User{ID: 42, FirstName: "Ada", LastName: "Lovelace"},
		Message: &tele.Message{ID: 11, Chat: &tele.Chat{ID: 42}},
		Data:    "\fremove|pA",
	}})
	require.NoError(t, h.OnCallback(c))
	require.Len(t, e.events, 1)
	assert.Equal(t, engine.Event{
		Kind:        engine.KindCallback,
		UserID:      42,
		ChatID:      42,
		MessageID:   11,
		CallbackID:  "cb-9",
		Action:      view.KeyRemove,
		Arg:         "pA",
		DisplayName: "Ada Lovelace",
	}, e.events[0])
	assert.Equal(t, []int64{42}, q.keys)
}

func TestTextAndStartEvents(t *testing.T) {
	h, e, _ := newHandler()
	msg := func(text string) tele.Context {
		return tele.NewContext(nil, tele.Update{ID: 2, Message: &tele.Message{
			ID: 20, Sender: &tele.User{ID: 7, FirstName: "Bob"}, Chat: &tele.Chat{ID: 7}, Text: text,
		}})
	}
	require.NoError(t, h.OnStart(msg("/start")))
	require.NoError(t, h.OnText(msg("user@example.com")))
	require.Len(t, e.events, 2)
	assert.Equal(t, engine.KindCommand, e.events[0].Kind)
	assert.Equal(t, "/start", e.events[0].Command)
	assert.Equal(t, engine.KindText, e.events[1].Kind)
	assert.Equal(t, "user@example.com", e.events[1].Text)
	assert.Equal(t, 20, e.events[1].MessageID)
	assert.Equal(t, "Bob", e.events[1].DisplayName)
}

func TestIgnoresBotsAndAnonymous(t *testing.T) {
	h, e, _ := newHandler()
	require.NoError(t, h.OnText(tele.NewContext(nil, tele.Update{Message: &tele.Message{Sender: &tele.User{ID: 1, IsBot: true}, Text: "hi"}})))
	require.NoError(t, h.OnText(tele.NewContext(nil, tele.Update{Message: &tele.Message{Text: "hi"}})))
	assert.Empty(t, e.events)
}

func TestQueueFullIsDropped(t *testing.T) {
	h, e, q := newHandler()
	q.err = dispatch.ErrQueueFull
	c := tele.NewContext(nil, tele.Update{Message: &tele.Message{Sender: &tele.User{ID: 3}, Chat: &tele.Chat{ID: 3}, Text: "x"}})
	assert.NoError(t, h.OnText(c))
	assert.Empty(t, e.events)

	q.err = dispatch.ErrQueueClosed
	assert.ErrorIs(t, h.OnText(c), dispatch.ErrQueueClosed)
}
