// Package cart keeps per-user carts and their lines in the content service.
package cart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/internal/catalog"
	"github.com/m3rciful/shopbot/internal/cms"
	"github.com/m3rciful/shopbot/internal/shop"
)

const (
	cartsCollection = "carts"
	linesCollection = "cart-products"
)

// Backend is the part of cms.Client used here.
type Backend interface {
	List(ctx context.Context, collection string, q *cms.Query, out any) error
	Create(ctx context.Context, collection string, data, out any) error
	Delete(ctx context.Context, collection, documentID string) error
	ResolveURL(ref string) string
}

type cartDocument struct {
	DocumentID string `mapstructure:"documentId"`
	TelegramID string `mapstructure:"telegram_id"`
}

type lineDocument struct {
	DocumentID string                   `mapstructure:"documentId"`
	Quantity   float64                  `mapstructure:"quantity"`
	Product    *catalog.ProductDocument `mapstructure:"product"`
}

// Client manages carts.
type Client struct {
	backend Backend
}

// New wraps backend.
func New(backend Backend) *Client {
	return &Client{backend: backend}
}

// GetOrCreate returns the user's cart, creating it when absent.
// A create that times out after the service stored it may leave a duplicate cart;
// the first match wins on later lookups.
func (c *Client) GetOrCreate(ctx context.Context, userID int64) (shop.Cart, error) {
	tid := strconv.FormatInt(userID, 10)

	var docs []cartDocument
	if err := c.backend.List(ctx, cartsCollection, cms.NewQuery().Eq("telegram_id", tid), &docs); err != nil {
		return shop.Cart{}, err
	}
	for _, d := range docs {
		if d.DocumentID != "" {
			return shop.Cart{ID: d.DocumentID, UserID: userID}, nil
		}
	}

	var created cartDocument
	if err := c.backend.Create(ctx, cartsCollection, map[string]any{"telegram_id": tid}, &created); err != nil {
		return shop.Cart{}, err
	}
	if created.DocumentID == "" {
		return shop.Cart{}, fmt.Errorf("%w: created cart has no document id", shop.ErrUnavailable)
	}
	logger.Info(ctx, "cms", "cart.created", slog.String("cart_id", created.DocumentID))
	return shop.Cart{ID: created.DocumentID, UserID: userID}, nil
}

// Lines lists a cart's lines with their products. Failures are logged and
// reported as an empty cart.
func (c *Client) Lines(ctx context.Context, cartID string) []shop.CartLine {
	var docs []lineDocument
	q := cms.NewQuery().Eq("cart.documentId", cartID).Populate("product")
	if err := c.backend.List(ctx, linesCollection, q, &docs); err != nil {
		logger.Warn(ctx, "cms", "cart.lines.fail",
			slog.String("cart_id", cartID),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return nil
	}
	lines := make([]shop.CartLine, 0, len(docs))
	for _, d := range docs {
		if d.DocumentID == "" {
			continue
		}
		line := shop.CartLine{ID: d.DocumentID, Quantity: d.Quantity}
		if d.Product != nil {
			line.Product = d.Product.Product(c.backend.ResolveURL)
		}
		lines = append(lines, line)
	}
	return lines
}

// AddLine appends a line for productID.
func (c *Client) AddLine(ctx context.Context, cartID, productID string, quantity float64) (shop.CartLine, error) {
	if quantity < 0 {
		return shop.CartLine{}, fmt.Errorf("%w: negative quantity", shop.ErrValidation)
	}
	var created lineDocument
	data := map[string]any{
		"cart":     cartID,
		"product":  productID,
		"quantity": quantity,
	}
	if err := c.backend.Create(ctx, linesCollection, data, &created); err != nil {
		return shop.CartLine{}, err
	}
	logger.Info(ctx, "cms", "cart.line.added",
		slog.String("cart_id", cartID),
		slog.String("product_id", productID),
		slog.String("line_id", created.DocumentID),
	)
	return shop.CartLine{ID: created.DocumentID, Quantity: quantity, Product: shop.Product{ID: productID}}, nil
}

// RemoveLine deletes one line. A line that is already gone counts as removed.
func (c *Client) RemoveLine(ctx context.Context, lineID string) bool {
	err := c.backend.Delete(ctx, linesCollection, lineID)
	if err != nil && !errors.Is(err, shop.ErrNotFound) {
		return false
	}
	return true
}

// RemoveProduct deletes every line of productID in the cart and reports
// how many were removed. ok is false when any delete failed.
func (c *Client) RemoveProduct(ctx context.Context, cartID, productID string) (removed int, ok bool) {
	ok = true
	for _, line := range c.Lines(ctx, cartID) {
		if line.Product.ID != productID {
			continue
		}
		if c.RemoveLine(ctx, line.ID) {
			removed++
		} else {
			ok = false
		}
	}
	return removed, ok && removed > 0
}

// Clear deletes all lines of the cart, keeping the cart document itself.
func (c *Client) Clear(ctx context.Context, cartID string) error {
	var failed int
	for _, line := range c.Lines(ctx, cartID) {
		if !c.RemoveLine(ctx, line.ID) {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d cart lines not removed", shop.ErrUnavailable, failed)
	}
	return nil
}
