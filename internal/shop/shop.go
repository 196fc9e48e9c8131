// Package shop holds the domain types shared by the shop bot packages.
package shop

import (
	"errors"
	"regexp"
	"strings"
)

// Product is a catalog entry. ImageURL is absolute or empty.
type Product struct {
	ID          string
	Name        string
	Price       float64
	Description string
	ImageURL    string
}

// Cart is the remote cart document owned by one user.
type Cart struct {
	ID     string
	UserID int64
}

// CartLine is one remote row linking a cart to a product.
// Several lines may reference the same product.
type CartLine struct {
	ID       string
	Quantity float64
	Product  Product
}

// ClientRecord is the contact left by a user at checkout.
type ClientRecord struct {
	ID          string
	UserID      int64
	Email       string
	DisplayName string
}

// OrderItem is one product group of a placed order.
type OrderItem struct {
	ProductID string
	Name      string
	Quantity  float64
	UnitPrice float64
	Total     float64
}

// Order is handed to an operator after checkout.
type Order struct {
	Client   ClientRecord
	Items    []OrderItem
	Total    float64
	Currency string
	Unit     string
}

var (
	// ErrUnavailable reports a network or HTTP failure of the remote service.
	ErrUnavailable = errors.New("remote service unavailable")
	// ErrNotFound reports a missing remote entity.
	ErrNotFound = errors.New("not found")
	// ErrValidation reports malformed user input.
	ErrValidation = errors.New("validation failed")
	// ErrRenderTargetGone reports that the message to edit no longer exists.
	ErrRenderTargetGone = errors.New("render target gone")
)

var emailRe = regexp.MustCompile(`^[\w.+-]+@[\w-]+(\.[\w-]+)*\.[A-Za-z]{2,}$`)

// ValidateEmail trims raw and checks it looks like local@domain.tld.
// Existence of the mailbox is not verified.
func ValidateEmail(raw string) (string, error) {
	email := strings.TrimSpace(raw)
	if !emailRe.MatchString(email) {
		return "", ErrValidation
	}
	return email, nil
}
