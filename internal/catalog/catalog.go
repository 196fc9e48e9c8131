// Package catalog reads products from the content service.
package catalog

import (
	"context"
	"log/slog"
	"strings"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/internal/cms"
	"github.com/m3rciful/shopbot/internal/shop"
)

// Collection is the Strapi collection holding products.
const Collection = "products"

// Backend is the part of cms.Client used here.
type Backend interface {
	List(ctx context.Context, collection string, q *cms.Query, out any) error
	ResolveURL(ref string) string
}

// ProductDocument is a product as stored in the content service.
type ProductDocument struct {
	DocumentID  string    `mapstructure:"documentId"`
	Name        string    `mapstructure:"name"`
	Price       float64   `mapstructure:"price"`
	Description *string   `mapstructure:"description"`
	Image       cms.Media `mapstructure:"image"`
}

// Product converts the document, resolving the image against the service base URL.
func (d ProductDocument) Product(resolve func(string) string) shop.Product {
	p := shop.Product{
		ID:    d.DocumentID,
		Name:  strings.TrimSpace(d.Name),
		Price: d.Price,
	}
	if d.Description != nil {
		p.Description = strings.TrimSpace(*d.Description)
	}
	if d.Image.URL != "" && resolve != nil {
		p.ImageURL = resolve(d.Image.URL)
	}
	return p
}

// Client serves catalog reads.
type Client struct {
	backend Backend
}

// New wraps backend.
func New(backend Backend) *Client {
	return &Client{backend: backend}
}

// ListProducts returns all products. Failures are logged and yield an empty list.
func (c *Client) ListProducts(ctx context.Context) []shop.Product {
	var docs []ProductDocument
	if err := c.backend.List(ctx, Collection, cms.NewQuery().Populate("*"), &docs); err != nil {
		logger.Warn(ctx, "cms", "catalog.list.fail", slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
		return nil
	}
	out := make([]shop.Product, 0, len(docs))
	for _, d := range docs {
		if d.DocumentID == "" {
			continue
		}
		out = append(out, d.Product(c.backend.ResolveURL))
	}
	return out
}

// GetProduct returns one product by document id.
// A missing product yields shop.ErrNotFound; transport failures yield shop.ErrUnavailable.
func (c *Client) GetProduct(ctx context.Context, id string) (shop.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return shop.Product{}, shop.ErrNotFound
	}
	var docs []ProductDocument
	q := cms.NewQuery().Eq("documentId", id).Populate("*")
	if err := c.backend.List(ctx, Collection, q, &docs); err != nil {
		return shop.Product{}, err
	}
	if len(docs) == 0 {
		return shop.Product{}, shop.ErrNotFound
	}
	return docs[0].Product(c.backend.ResolveURL), nil
}
