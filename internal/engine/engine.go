// Package engine is the per-user conversation state machine of the shop bot.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/state"
	"github.com/m3rciful/shopbot/internal/shop"
	"github.com/m3rciful/shopbot/internal/view"
)

// State is a conversation state.
type State string

const (
	// StateStart is transient and always re-enters StateMenu.
	StateStart         State = "start"
	StateMenu          State = "menu"
	StateCart          State = "cart"
	StateAwaitingEmail State = "awaiting_email"
)

// ParseState maps a stored value to a State; anything unknown is StateStart.
func ParseState(s string) State {
	switch State(s) {
	case StateMenu, StateCart, StateAwaitingEmail:
		return State(s)
	}
	return StateStart
}

// Kind tells what the user did.
type Kind int

const (
	KindCommand Kind = iota + 1
	KindCallback
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindCallback:
		return "callback"
	case KindText:
		return "text"
	}
	return "unknown"
}

// Event is one inbound user action.
type Event struct {
	Kind   Kind
	UserID int64
	ChatID int64
	// MessageID is the message that carried the pressed button, or the text message.
	MessageID  int
	CallbackID string
	Command    string
	Action     string
	Arg        string
	Text       string
	// DisplayName is the user's first and last name.
	DisplayName string
}

func (ev Event) label() string {
	switch ev.Kind {
	case KindCallback:
		return ev.Action
	case KindCommand:
		return ev.Command
	}
	return ev.Kind.String()
}

// Catalog reads products.
type Catalog interface {
	ListProducts(ctx context.Context) []shop.Product
	GetProduct(ctx context.Context, id string) (shop.Product, error)
}

// Carts manages the remote cart of a user.
type Carts interface {
	GetOrCreate(ctx context.Context, userID int64) (shop.Cart, error)
	Lines(ctx context.Context, cartID string) []shop.CartLine
	AddLine(ctx context.Context, cartID, productID string, quantity float64) (shop.CartLine, error)
	RemoveProduct(ctx context.Context, cartID, productID string) (removed int, ok bool)
	Clear(ctx context.Context, cartID string) error
}

// Registry stores contacts left at checkout.
type Registry interface {
	Upsert(ctx context.Context, userID int64, email, displayName string) (shop.ClientRecord, error)
}

// Notifier hands a placed order to a human operator.
type Notifier interface {
	NotifyOrder(ctx context.Context, order shop.Order) error
}

// Renderer delivers views to a chat.
// Edit returns shop.ErrRenderTargetGone when the message cannot be edited.
type Renderer interface {
	Send(ctx context.Context, chatID int64, v view.View) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, v view.View) (int, error)
	Delete(ctx context.Context, chatID int64, messageID int) error
	Answer(ctx context.Context, callbackID, text string) error
}

// Observer records engine activity, e.g. for metrics.
type Observer interface {
	ObserveTransition(from, to, action string)
	ObserveRenderFallback()
}

type nopObserver struct{}

func (nopObserver) ObserveTransition(string, string, string) {}
func (nopObserver) ObserveRenderFallback()                   {}

// Options wires an Engine.
type Options struct {
	Catalog  Catalog
	Carts    Carts
	Registry Registry
	// Notifier is optional.
	Notifier Notifier
	Renderer Renderer
	Sessions state.Store
	Locks    state.Locker
	Views    view.Builder
	Observer Observer
	Now      func() time.Time
}

// Engine handles events one user at a time.
type Engine struct {
	catalog  Catalog
	carts    Carts
	registry Registry
	notifier Notifier
	render   Renderer
	sessions state.Store
	locks    state.Locker
	views    view.Builder
	obs      Observer
	now      func() time.Time
}

// New validates opts.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Catalog == nil:
		return nil, errors.New("engine: catalog is required")
	case opts.Carts == nil:
		return nil, errors.New("engine: carts is required")
	case opts.Registry == nil:
		return nil, errors.New("engine: registry is required")
	case opts.Renderer == nil:
		return nil, errors.New("engine: renderer is required")
	}
	e := &Engine{
		catalog:  opts.Catalog,
		carts:    opts.Carts,
		registry: opts.Registry,
		notifier: opts.Notifier,
		render:   opts.Renderer,
		sessions: opts.Sessions,
		locks:    opts.Locks,
		views:    opts.Views,
		obs:      opts.Observer,
		now:      opts.Now,
	}
	if e.sessions == nil {
		e.sessions = state.NewMemoryStore(0)
	}
	if e.locks == nil {
		e.locks = state.NewKeyedMutex()
	}
	if e.obs == nil {
		e.obs = nopObserver{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Handle runs one turn of the user's conversation. Events of one user never interleave.
// The returned error covers session locking and persistence only; domain failures
// are reported to the user.
func (e *Engine) Handle(ctx context.Context, ev Event) error {
	start := e.now()
	unlock, err := e.locks.Lock(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("engine: lock session: %w", err)
	}
	defer func() {
		if err := unlock(logger.Detach(ctx)); err != nil {
			logger.Warn(ctx, "session", "unlock.fail", slog.String("err", err.Error()))
		}
	}()

	sess, found, err := e.sessions.Load(ctx, ev.UserID)
	if err != nil {
		logger.Warn(ctx, "session", "load.fail", slog.String("err", err.Error()))
		sess, found = state.Session{}, false
	}
	from := ParseState(sess.State)
	if !found {
		from = StateStart
	}

	t := &turn{Engine: e, ev: ev, sess: sess.Clone()}
	to := t.run(ctx, from)

	if ev.CallbackID != "" {
		if err := e.render.Answer(ctx, ev.CallbackID, t.toast); err != nil {
			logger.Debug(ctx, "tg", "callback.answer.fail", slog.String("err", err.Error()))
		}
	}

	t.sess.State = string(to)
	t.sess.UpdatedAt = e.now()
	saveErr := e.sessions.Save(ctx, ev.UserID, t.sess)

	e.obs.ObserveTransition(string(from), string(to), ev.label())
	logger.Info(ctx, "engine", "fsm.transition",
		slog.String("status", "ok"),
		slog.String("from_state", string(from)),
		slog.String("to_state", string(to)),
		slog.String("action", ev.label()),
		slog.Duration("duration", logger.RoundMS(e.now().Sub(start))),
	)
	if saveErr != nil {
		return fmt.Errorf("engine: save session: %w", saveErr)
	}
	return nil
}

// StateOf returns the stored state of userID, StateStart when unknown.
func (e *Engine) StateOf(ctx context.Context, userID int64) (State, error) {
	sess, found, err := e.sessions.Load(ctx, userID)
	if err != nil || !found {
		return StateStart, err
	}
	return ParseState(sess.State), nil
}
