// Package registry records customer contacts left at checkout.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/internal/cms"
	"github.com/m3rciful/shopbot/internal/shop"
)

const collection = "clients"

// Backend is the part of cms.Client used here.
type Backend interface {
	List(ctx context.Context, collection string, q *cms.Query, out any) error
	Create(ctx context.Context, collection string, data, out any) error
	Update(ctx context.Context, collection, documentID string, data, out any) error
}

type clientDocument struct {
	DocumentID string `mapstructure:"documentId"`
	TelegramID string `mapstructure:"telegram_id"`
	Email      string `mapstructure:"email"`
	Name       string `mapstructure:"Name"`
}

// Client upserts client records.
type Client struct {
	backend Backend
}

// New wraps backend.
func New(backend Backend) *Client {
	return &Client{backend: backend}
}

// Upsert updates the record for userID or creates one.
// Two concurrent upserts for a new user may both create; the engine never
// issues them concurrently for one user.
func (c *Client) Upsert(ctx context.Context, userID int64, email, displayName string) (shop.ClientRecord, error) {
	tid := strconv.FormatInt(userID, 10)
	data := map[string]any{
		"email":       email,
		"telegram_id": tid,
	}
	if name := strings.TrimSpace(displayName); name != "" {
		data["Name"] = name
	}

	var existing []clientDocument
	if err := c.backend.List(ctx, collection, cms.NewQuery().Eq("telegram_id", tid), &existing); err != nil {
		return shop.ClientRecord{}, err
	}

	var saved clientDocument
	op := "created"
	if len(existing) > 0 && existing[0].DocumentID != "" {
		op = "updated"
		if err := c.backend.Update(ctx, collection, existing[0].DocumentID, data, &saved); err != nil {
			return shop.ClientRecord{}, err
		}
	} else if err := c.backend.Create(ctx, collection, data, &saved); err != nil {
		return shop.ClientRecord{}, err
	}
	if saved.DocumentID == "" {
		return shop.ClientRecord{}, fmt.Errorf("%w: client record has no document id", shop.ErrUnavailable)
	}

	logger.Info(ctx, "cms", "client."+op, slog.String("status", "ok"))
	return shop.ClientRecord{
		ID:          saved.DocumentID,
		UserID:      userID,
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
	}, nil
}
