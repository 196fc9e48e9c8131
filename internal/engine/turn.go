package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/state"
	"github.com/m3rciful/shopbot/internal/shop"
	"github.com/m3rciful/shopbot/internal/view"
)

// User-facing texts.
const (
	msgUnavailable   = "Products temporarily unavailable"
	msgNotFound      = "Product not found"
	msgCartFailed    = "Failed to load cart"
	msgInvalidEmail  = "⚠️ Please enter a valid email"
	msgEmailCanceled = "❌ Email entry cancelled."
	msgSaveFailed    = "⚠️ Could not save your data.\nPlease try later or contact us."
	msgFailure       = "⚠️ An error occurred. Try later."
	msgEmptyOrder    = "🛒 Your cart is empty, there is nothing to order."
	msgThanks        = "✅ Thank you for your order!\nYour email (%s) has been saved.\nA manager will contact you to arrange payment."

	toastAdded       = "✅ Added to cart"
	toastAddFailed   = "❌ Failed to add"
	toastRemoved     = "✅ Removed"
	toastRemoveFail  = "❌ Failed to remove"
	toastUnsupported = "Unsupported action"
	toastWaitEmail   = "📧 Enter your email or press Cancel"
	toastCartEmpty   = "🛒 Your cart is empty"
)

// errEmptyOrder means the cart had no lines when the order was placed.
var errEmptyOrder = errors.New("engine: empty order")

const tempPromptID = "prompt_message_id"

// turn is the work of one event against one session.
type turn struct {
	*Engine
	ev    Event
	sess  state.Session
	toast string
}

func (t *turn) run(ctx context.Context, from State) (to State) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "engine", "turn.panic",
				slog.String("state", string(from)),
				slog.String("action", t.ev.label()),
				slog.String("err", fmt.Sprint(r)),
				slog.String("stack", logger.SanitizeLimit(string(debug.Stack()), 2048)),
			)
			to = t.reset(ctx)
		}
	}()

	to, err := t.dispatch(ctx, from)
	if err != nil {
		logger.Error(ctx, "engine", "turn.fail",
			slog.String("state", string(from)),
			slog.String("action", t.ev.label()),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return t.reset(ctx)
	}
	return to
}

func (t *turn) dispatch(ctx context.Context, from State) (State, error) {
	if t.ev.Kind == KindCommand {
		return t.start(ctx)
	}
	switch from {
	case StateStart:
		if t.ev.Kind == KindCallback {
			// a button from before the session existed still works
			return t.onMenu(ctx)
		}
		return t.start(ctx)
	case StateMenu:
		return t.onMenu(ctx)
	case StateCart:
		return t.onCart(ctx)
	case StateAwaitingEmail:
		return t.onAwaitingEmail(ctx)
	}
	return StateStart, fmt.Errorf("unhandled state %q", from)
}

func (t *turn) onMenu(ctx context.Context) (State, error) {
	if t.ev.Kind != KindCallback {
		t.ignore(ctx, StateMenu)
		return StateMenu, nil
	}
	switch t.ev.Action {
	case view.KeyProduct:
		return t.showProduct(ctx)
	case view.KeyAdd:
		return t.addToCart(ctx)
	case view.KeyCart:
		return t.showCart(ctx, StateMenu)
	case view.KeyBackToMenu:
		return t.showMenu(ctx, true)
	case view.KeyRemove:
		return t.removeFromCart(ctx)
	case view.KeyCheckout:
		return t.checkout(ctx, StateMenu)
	}
	t.toast = toastUnsupported
	return StateMenu, nil
}

func (t *turn) onCart(ctx context.Context) (State, error) {
	if t.ev.Kind != KindCallback {
		t.ignore(ctx, StateCart)
		return StateCart, nil
	}
	switch t.ev.Action {
	case view.KeyRemove:
		return t.removeFromCart(ctx)
	case view.KeyCheckout:
		return t.checkout(ctx, StateCart)
	case view.KeyBackToMenu:
		return t.showMenu(ctx, true)
	case view.KeyProduct, view.KeyAdd, view.KeyCart:
		// pressed on an older message sent while in the menu
		return t.onMenu(ctx)
	}
	t.toast = toastUnsupported
	return StateCart, nil
}

func (t *turn) onAwaitingEmail(ctx context.Context) (State, error) {
	if t.ev.Kind == KindText {
		return t.submitEmail(ctx)
	}
	if t.ev.Action == view.KeyCancelEmail {
		t.dropPrompt(ctx)
		if _, err := t.render.Send(ctx, t.ev.ChatID, view.Notice(msgEmailCanceled)); err != nil {
			return StateMenu, err
		}
		return t.showMenu(ctx, false)
	}
	t.toast = toastWaitEmail
	return StateAwaitingEmail, nil
}

func (t *turn) ignore(ctx context.Context, s State) {
	logger.Debug(ctx, "engine", "input.ignored",
		slog.String("state", string(s)),
		slog.String("action", t.ev.label()),
	)
}

// start resets the session and shows the menu in a new message.
func (t *turn) start(ctx context.Context) (State, error) {
	t.sess.Temp = nil
	return t.showMenu(ctx, false)
}

// reset reports a failure to the user and returns to the menu, best-effort.
func (t *turn) reset(ctx context.Context) State {
	t.sess.Temp = nil
	if _, err := t.render.Send(ctx, t.ev.ChatID, view.Notice(msgFailure)); err != nil {
		logger.Warn(ctx, "engine", "reset.notify.fail", slog.String("err", err.Error()))
		return StateMenu
	}
	if _, err := t.showMenu(ctx, false); err != nil {
		logger.Warn(ctx, "engine", "reset.menu.fail", slog.String("err", err.Error()))
	}
	return StateMenu
}

// showMenu sends the catalog menu. With replace set the pressed message is
// deleted first.
func (t *turn) showMenu(ctx context.Context, replace bool) (State, error) {
	menu, ok := t.views.Menu(t.catalog.ListProducts(ctx))
	if !ok {
		_, err := t.render.Send(ctx, t.ev.ChatID, view.Notice(msgUnavailable))
		return StateMenu, err
	}
	if replace {
		t.deleteMessage(ctx, t.ev.MessageID)
	}
	_, err := t.render.Send(ctx, t.ev.ChatID, menu)
	return StateMenu, err
}

func (t *turn) showProduct(ctx context.Context) (State, error) {
	product, err := t.catalog.GetProduct(ctx, t.ev.Arg)
	if err != nil {
		msg := msgUnavailable
		if errors.Is(err, shop.ErrNotFound) {
			msg = msgNotFound
		}
		logger.Info(ctx, "engine", "product.miss",
			slog.String("product_id", t.ev.Arg),
			slog.String("err", err.Error()),
		)
		_, err := t.render.Send(ctx, t.ev.ChatID, view.Notice(msg))
		return StateMenu, err
	}
	t.deleteMessage(ctx, t.ev.MessageID)
	_, err = t.render.Send(ctx, t.ev.ChatID, t.views.Product(product))
	return StateMenu, err
}

func (t *turn) addToCart(ctx context.Context) (State, error) {
	t.toast = toastAddFailed
	cart, err := t.carts.GetOrCreate(ctx, t.ev.UserID)
	if err != nil {
		t.logCartFail(ctx, "cart.load.fail", err)
		return StateMenu, nil
	}
	if _, err := t.carts.AddLine(ctx, cart.ID, t.ev.Arg, 1.0); err != nil {
		t.logCartFail(ctx, "cart.add.fail", err)
		return StateMenu, nil
	}
	t.toast = toastAdded
	return StateMenu, nil
}

// showCart renders the cart in place of the pressed message. When the cart
// cannot be loaded the user stays in stay.
func (t *turn) showCart(ctx context.Context, stay State) (State, error) {
	cart, err := t.carts.GetOrCreate(ctx, t.ev.UserID)
	if err != nil {
		t.logCartFail(ctx, "cart.load.fail", err)
		_, err := t.render.Send(ctx, t.ev.ChatID, view.Notice(msgCartFailed))
		return stay, err
	}
	_, err = t.present(ctx, t.views.Cart(t.carts.Lines(ctx, cart.ID)))
	return StateCart, err
}

// removeFromCart deletes every line of the pressed product group.
func (t *turn) removeFromCart(ctx context.Context) (State, error) {
	cart, err := t.carts.GetOrCreate(ctx, t.ev.UserID)
	if err != nil {
		t.toast = toastRemoveFail
		t.logCartFail(ctx, "cart.load.fail", err)
		_, err := t.render.Send(ctx, t.ev.ChatID, view.Notice(msgCartFailed))
		return StateCart, err
	}
	if _, ok := t.carts.RemoveProduct(ctx, cart.ID, t.ev.Arg); ok {
		t.toast = toastRemoved
	} else {
		t.toast = toastRemoveFail
	}
	_, err = t.present(ctx, t.views.Cart(t.carts.Lines(ctx, cart.ID)))
	return StateCart, err
}

// checkout asks for an email only when the cart has lines. A Checkout button
// left on an older message re-renders the current cart instead.
func (t *turn) checkout(ctx context.Context, stay State) (State, error) {
	cart, err := t.carts.GetOrCreate(ctx, t.ev.UserID)
	if err != nil {
		t.logCartFail(ctx, "cart.load.fail", err)
		_, err := t.render.Send(ctx, t.ev.ChatID, view.Notice(msgCartFailed))
		return stay, err
	}
	lines := t.carts.Lines(ctx, cart.ID)
	if len(view.GroupLines(lines)) == 0 {
		logger.Debug(ctx, "engine", "checkout.empty", slog.String("cart_id", cart.ID))
		t.toast = toastCartEmpty
		_, err := t.present(ctx, t.views.Cart(lines))
		return StateCart, err
	}
	return t.promptEmail(ctx)
}

func (t *turn) promptEmail(ctx context.Context) (State, error) {
	id, err := t.present(ctx, t.views.EmailPrompt())
	if err != nil {
		return StateCart, err
	}
	t.sess.SetTemp(tempPromptID, strconv.Itoa(id))
	return StateAwaitingEmail, nil
}

func (t *turn) submitEmail(ctx context.Context) (State, error) {
	email, err := shop.ValidateEmail(t.ev.Text)
	if err != nil {
		_, err := t.render.Send(ctx, t.ev.ChatID, view.Notice(msgInvalidEmail))
		return StateAwaitingEmail, err
	}
	t.dropPrompt(ctx)

	client, err := t.registry.Upsert(ctx, t.ev.UserID, email, t.ev.DisplayName)
	if err != nil {
		logger.Warn(ctx, "engine", "client.save.fail", slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
		if _, err := t.render.Send(ctx, t.ev.ChatID, view.Notice(msgSaveFailed)); err != nil {
			return StateMenu, err
		}
		return t.showMenu(ctx, false)
	}

	msg := fmt.Sprintf(msgThanks, email)
	if errors.Is(t.placeOrder(ctx, client), errEmptyOrder) {
		msg = msgEmptyOrder
	}
	if _, err := t.render.Send(ctx, t.ev.ChatID, view.Notice(msg)); err != nil {
		return StateMenu, err
	}
	return t.showMenu(ctx, false)
}

// placeOrder hands the cart to the operator and clears its lines. It returns
// errEmptyOrder without notifying when there is nothing to order. Other
// failures are logged only; the contact is already saved.
func (t *turn) placeOrder(ctx context.Context, client shop.ClientRecord) error {
	cart, err := t.carts.GetOrCreate(ctx, t.ev.UserID)
	if err != nil {
		t.logCartFail(ctx, "cart.load.fail", err)
		return nil
	}
	groups := view.GroupLines(t.carts.Lines(ctx, cart.ID))
	if len(groups) == 0 {
		logger.Info(ctx, "engine", "order.empty", slog.String("cart_id", cart.ID))
		return errEmptyOrder
	}
	if t.notifier != nil {
		if err := t.notifier.NotifyOrder(ctx, t.order(client, groups)); err != nil {
			logger.Warn(ctx, "engine", "order.notify.fail", slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
		}
	}
	if err := t.carts.Clear(ctx, cart.ID); err != nil {
		t.logCartFail(ctx, "cart.clear.fail", err)
		return nil
	}
	logger.Info(ctx, "engine", "order.placed",
		slog.String("cart_id", cart.ID),
		slog.Int("count", len(groups)),
	)
	return nil
}

func (t *turn) order(client shop.ClientRecord, groups []view.Group) shop.Order {
	order := shop.Order{
		Client:   client,
		Total:    view.Total(groups),
		Currency: t.views.Currency,
		Unit:     t.views.Unit,
	}
	for _, g := range groups {
		order.Items = append(order.Items, shop.OrderItem{
			ProductID: g.ProductID,
			Name:      g.Name,
			Quantity:  g.Quantity,
			UnitPrice: g.UnitPrice,
			Total:     g.Total,
		})
	}
	return order
}

// present edits the pressed message into v, sending a new one when the edit
// target is gone or there is none.
func (t *turn) present(ctx context.Context, v view.View) (int, error) {
	if t.ev.MessageID != 0 && t.ev.Kind == KindCallback {
		id, err := t.render.Edit(ctx, t.ev.ChatID, t.ev.MessageID, v)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, shop.ErrRenderTargetGone) {
			return 0, err
		}
		t.obs.ObserveRenderFallback()
		logger.Debug(ctx, "engine", "render.fallback", slog.String("action", t.ev.label()))
	}
	return t.render.Send(ctx, t.ev.ChatID, v)
}

// dropPrompt deletes the email prompt message, if any.
func (t *turn) dropPrompt(ctx context.Context) {
	raw, ok := t.sess.TempValue(tempPromptID)
	t.sess.ClearTemp(tempPromptID)
	if !ok {
		return
	}
	if id, err := strconv.Atoi(raw); err == nil {
		t.deleteMessage(ctx, id)
	}
}

func (t *turn) deleteMessage(ctx context.Context, id int) {
	if id == 0 {
		return
	}
	if err := t.render.Delete(ctx, t.ev.ChatID, id); err != nil {
		logger.Debug(ctx, "engine", "message.delete.fail", slog.String("err", err.Error()))
	}
}

func (t *turn) logCartFail(ctx context.Context, event string, err error) {
	logger.Warn(ctx, "engine", event,
		slog.String("product_id", t.ev.Arg),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	)
}
