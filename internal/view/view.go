// Package view turns catalog and cart data into render-agnostic views.
// Nothing here performs I/O.
package view

import (
	"strings"

	"github.com/m3rciful/shopbot/core/telegram/format"
	"github.com/m3rciful/shopbot/internal/shop"
)

// Action keys carried by buttons.
const (
	KeyProduct     = "product"
	KeyAdd         = "add"
	KeyCart        = "cart"
	KeyRemove      = "remove"
	KeyCheckout    = "checkout"
	KeyBackToMenu  = "back_to_menu"
	KeyCancelEmail = "cancel_email"
)

const labelLimit = 30

// Action is one selectable button. Arg is opaque to the transport.
type Action struct {
	Label string
	Key   string
	Arg   string
}

// View is text plus rows of actions. Text is HTML when HTML is set.
// ImageURL, when present, asks the transport to send a photo captioned with Text.
type View struct {
	Text     string
	HTML     bool
	ImageURL string
	Rows     [][]Action
}

// HasAction reports whether any button of v carries key.
func (v View) HasAction(key string) bool {
	for _, row := range v.Rows {
		for _, a := range row {
			if a.Key == key {
				return true
			}
		}
	}
	return false
}

// Group aggregates the cart lines of one product.
type Group struct {
	ProductID string
	Name      string
	UnitPrice float64
	Quantity  float64
	Total     float64
	LineIDs   []string
}

// Builder renders views with shop-wide display settings.
type Builder struct {
	Currency string
	Unit     string
}

// Menu lists products as buttons. ok is false when there is nothing to show.
func (b Builder) Menu(products []shop.Product) (View, bool) {
	if len(products) == 0 {
		return View{}, false
	}
	rows := make([][]Action, 0, len(products)+1)
	for _, p := range products {
		rows = append(rows, []Action{{Label: format.Truncate(productName(p), labelLimit), Key: KeyProduct, Arg: p.ID}})
	}
	rows = append(rows, []Action{{Label: "🛒 Cart", Key: KeyCart}})
	return View{Text: "Choose a product:", Rows: rows}, true
}

// Product renders a product card.
func (b Builder) Product(p shop.Product) View {
	desc := strings.TrimSpace(p.Description)
	if desc == "" {
		desc = "No description"
	}
	text := format.Bold(productName(p)) +
		"\n\n💵 Price: " + format.Money(p.Price, b.Currency) +
		"\n\n" + format.EscapeHTML(desc)
	return View{
		Text:     text,
		HTML:     true,
		ImageURL: p.ImageURL,
		Rows: [][]Action{
			{{Label: "➕ Add to cart", Key: KeyAdd, Arg: p.ID}},
			{{Label: "🔙 Back to products", Key: KeyBackToMenu}},
		},
	}
}

// GroupLines aggregates lines by product id in order of first appearance.
func GroupLines(lines []shop.CartLine) []Group {
	var groups []Group
	index := map[string]int{}
	for _, l := range lines {
		i, ok := index[l.Product.ID]
		if !ok {
			i = len(groups)
			index[l.Product.ID] = i
			groups = append(groups, Group{
				ProductID: l.Product.ID,
				Name:      productName(l.Product),
				UnitPrice: l.Product.Price,
			})
		}
		g := &groups[i]
		g.Quantity += l.Quantity
		g.Total += l.Quantity * g.UnitPrice
		g.LineIDs = append(g.LineIDs, l.ID)
	}
	return groups
}

// Total sums group totals.
func Total(groups []Group) float64 {
	var sum float64
	for _, g := range groups {
		sum += g.Total
	}
	return sum
}

// Cart renders the cart. An empty cart offers no checkout.
func (b Builder) Cart(lines []shop.CartLine) View {
	groups := GroupLines(lines)
	if len(groups) == 0 {
		return View{
			Text: "🛒 Your cart is empty",
			Rows: [][]Action{{{Label: "🔙 Back to products", Key: KeyBackToMenu}}},
		}
	}

	var sb strings.Builder
	sb.WriteString("🛒 Your cart:\n\n")
	rows := make([][]Action, 0, len(groups)+2)
	for _, g := range groups {
		sb.WriteString(b.groupLine(g))
		rows = append(rows, []Action{{
			Label: format.Truncate("❌ Remove "+g.Name, labelLimit+10),
			Key:   KeyRemove,
			Arg:   g.ProductID,
		}})
	}
	sb.WriteString("\n💵 Total: " + format.Money(Total(groups), b.Currency))
	rows = append(rows,
		[]Action{{Label: "💳 Checkout", Key: KeyCheckout}},
		[]Action{{Label: "🔙 Back to menu", Key: KeyBackToMenu}},
	)
	return View{Text: sb.String(), HTML: true, Rows: rows}
}

// Summary renders groups as plain text for the operator hand-off.
func (b Builder) Summary(groups []Group) string {
	var sb strings.Builder
	for _, g := range groups {
		sb.WriteString(g.Name + ": " + format.Quantity(g.Quantity) + " " + b.Unit +
			" = " + format.Money(g.Total, b.Currency) + "\n")
	}
	sb.WriteString("Total: " + format.Money(Total(groups), b.Currency))
	return sb.String()
}

func (b Builder) groupLine(g Group) string {
	qty := format.Quantity(g.Quantity)
	if b.Unit != "" {
		qty += " " + b.Unit
	}
	return "▪️ " + format.EscapeHTML(g.Name) + "\n   " + qty +
		" × " + format.Money(g.UnitPrice, b.Currency) +
		" = " + format.Money(g.Total, b.Currency) + "\n"
}

// EmailPrompt asks for a contact email.
func (b Builder) EmailPrompt() View {
	return View{
		Text: "📧 Enter your email to place the order:",
		Rows: [][]Action{{{Label: "❌ Cancel", Key: KeyCancelEmail}}},
	}
}

// Notice is a plain message without buttons.
func Notice(text string) View {
	return View{Text: text}
}

func productName(p shop.Product) string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return "Untitled"
}
