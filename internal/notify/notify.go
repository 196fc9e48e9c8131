// Package notify hands placed orders to the shop operator.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/format"
	"github.com/m3rciful/shopbot/internal/shop"
	"github.com/resendlabs/resend-go"
	tele "gopkg.in/telebot.v4"
)

// Notifier delivers an order to an operator.
type Notifier interface {
	NotifyOrder(ctx context.Context, order shop.Order) error
}

// Multi fans an order out to every notifier and joins their errors.
type Multi []Notifier

// NotifyOrder implements Notifier.
func (m Multi) NotifyOrder(ctx context.Context, order shop.Order) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.NotifyOrder(ctx, order); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sender is the part of tele.Bot used to message the admin chat.
type Sender interface {
	Send(to tele.Recipient, what any, opts ...any) (*tele.Message, error)
}

// Telegram posts orders into the admin chat.
type Telegram struct {
	sender Sender
	chat   tele.ChatID
}

// NewTelegram returns nil when adminID is zero.
func NewTelegram(sender Sender, adminID int64) *Telegram {
	if sender == nil || adminID == 0 {
		return nil
	}
	return &Telegram{sender: sender, chat: tele.ChatID(adminID)}
}

// NotifyOrder implements Notifier.
func (t *Telegram) NotifyOrder(ctx context.Context, order shop.Order) error {
	if _, err := t.sender.Send(t.chat, OrderHTML(order), tele.ModeHTML); err != nil {
		return fmt.Errorf("notify telegram: %w", err)
	}
	logger.Info(ctx, "app", "order.notified", slog.String("op", "telegram"))
	return nil
}

// Email sends orders to the operator mailbox through Resend.
type Email struct {
	send func(*resend.SendEmailRequest) error
	from string
	to   string
}

// NewEmail returns nil unless apiKey, from and to are all set.
func NewEmail(apiKey, from, to string) *Email {
	if apiKey == "" || from == "" || to == "" {
		return nil
	}
	client := resend.NewClient(apiKey)
	return &Email{
		send: func(req *resend.SendEmailRequest) error {
			_, err := client.Emails.Send(req)
			return err
		},
		from: from,
		to:   to,
	}
}

// NotifyOrder implements Notifier.
func (e *Email) NotifyOrder(ctx context.Context, order shop.Order) error {
	req := &resend.SendEmailRequest{
		From:    e.from,
		To:      []string{e.to},
		Subject: "New order from " + orderContact(order),
		Html:    strings.ReplaceAll(OrderHTML(order), "\n", "<br>\n"),
	}
	if err := e.send(req); err != nil {
		return fmt.Errorf("notify email via Resend: %w", err)
	}
	logger.Info(ctx, "app", "order.notified", slog.String("op", "email"))
	return nil
}

// OrderHTML renders an order for Telegram HTML mode.
func OrderHTML(order shop.Order) string {
	var sb strings.Builder
	sb.WriteString(format.Bold("🧾 New order") + "\n")
	sb.WriteString("Client: " + format.EscapeHTML(orderContact(order)) + "\n")
	sb.WriteString("Email: " + format.EscapeHTML(order.Client.Email) + "\n")
	sb.WriteString("Telegram ID: " + strconv.FormatInt(order.Client.UserID, 10) + "\n\n")
	if len(order.Items) == 0 {
		sb.WriteString("Cart is empty\n")
	}
	for _, it := range order.Items {
		qty := format.Quantity(it.Quantity)
		if order.Unit != "" {
			qty += " " + order.Unit
		}
		sb.WriteString("▪️ " + format.EscapeHTML(it.Name) + ": " + qty +
			" × " + format.Money(it.UnitPrice, order.Currency) +
			" = " + format.Money(it.Total, order.Currency) + "\n")
	}
	sb.WriteString("\n💵 Total: " + format.Money(order.Total, order.Currency))
	return sb.String()
}

func orderContact(order shop.Order) string {
	if name := strings.TrimSpace(order.Client.DisplayName); name != "" {
		return name
	}
	return order.Client.Email
}
