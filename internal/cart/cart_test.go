package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tg "github.com/m3rciful/shopbot/core/telegram"
	"github.com/m3rciful/shopbot/internal/cms"
	"github.com/m3rciful/shopbot/internal/shop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStrapi serves carts and cart-products with the filters the client uses.
type fakeStrapi struct {
	mu       sync.Mutex
	seq      int
	carts    map[string]string // documentId -> telegram_id
	lines    map[string]map[string]any
	failNext map[string]int
	creates  int
}

func newFakeStrapi() *fakeStrapi {
	return &fakeStrapi{carts: map[string]string{}, lines: map[string]map[string]any{}, failNext: map[string]int{}}
}

func (f *fakeStrapi) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s%d", prefix, f.seq)
}

func (f *fakeStrapi) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := r.Method + " " + r.URL.Path
	if n := f.failNext[key]; n > 0 {
		f.failNext[key] = n - 1
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	write := func(v any) { _ = json.NewEncoder(w).Encode(map[string]any{"data": v}) }
	var body struct {
		Data map[string]any `json:"data"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/carts":
		tid := r.URL.Query().Get("filters[telegram_id][$eq]")
		out := []any{}
		for id, owner := range f.carts {
			if owner == tid {
				out = append(out, map[string]any{"documentId": id, "telegram_id": owner})
			}
		}
		write(out)
	case r.Method == http.MethodPost && r.URL.Path == "/api/carts":
		f.creates++
		id := f.nextID("cart")
		f.carts[id] = body.Data["telegram_id"].(string)
		write(map[string]any{"documentId": id, "telegram_id": f.carts[id]})
	case r.Method == http.MethodGet && r.URL.Path == "/api/cart-products":
		cartID := r.URL.Query().Get("filters[cart][documentId][$eq]")
		out := []any{}
		for id, l := range f.lines {
			if l["cart"] == cartID {
				out = append(out, map[string]any{
					"documentId": id,
					"quantity":   l["quantity"],
					"product":    map[string]any{"documentId": l["product"], "name": "Product " + l["product"].(string), "price": 10},
				})
			}
		}
		write(out)
	case r.Method == http.MethodPost && r.URL.Path == "/api/cart-products":
		id := f.nextID("line")
		f.lines[id] = body.Data
		write(map[string]any{"documentId": id, "quantity": body.Data["quantity"]})
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/cart-products/"):
		id := strings.TrimPrefix(r.URL.Path, "/api/cart-products/")
		if _, ok := f.lines[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.lines, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newClient(t *testing.T) (*Client, *fakeStrapi) {
	t.Helper()
	fake := newFakeStrapi()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	backend, err := cms.New(cms.Options{BaseURL: srv.URL, Token: "t"})
	require.NoError(t, err)
	return New(backend), fake
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	c, fake := newClient(t)
	ctx := context.Background()

	first, err := c.GetOrCreate(ctx, 42)
	require.NoError(t, err)
	second, err := c.GetOrCreate(ctx, 42)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(42), second.UserID)
	assert.Equal(t, 1, fake.creates)

	other, err := c.GetOrCreate(ctx, 7)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestGetOrCreateFailure(t *testing.T) {
	c, fake := newClient(t)
	fake.failNext["GET /api/carts"] = 1

	_, err := c.GetOrCreate(context.Background(), 1)
	assert.ErrorIs(t, err, shop.ErrUnavailable)
	assert.Equal(t, 0, fake.creates)
}

func TestAddListRemove(t *testing.T) {
	c, _ := newClient(t)
	ctx := context.Background()
	cart, err := c.GetOrCreate(ctx, 1)
	require.NoError(t, err)

	for _, pid := range []string{"pA", "pA", "pB"} {
		_, err := c.AddLine(ctx, cart.ID, pid, 1)
		require.NoError(t, err)
	}

	lines := c.Lines(ctx, cart.ID)
	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.Equal(t, 1.0, l.Quantity)
		assert.Equal(t, 10.0, l.Product.Price)
	}

	removed, ok := c.RemoveProduct(ctx, cart.ID, "pA")
	assert.True(t, ok)
	assert.Equal(t, 2, removed)
	lines = c.Lines(ctx, cart.ID)
	require.Len(t, lines, 1)
	assert.Equal(t, "pB", lines[0].Product.ID)

	_, ok = c.RemoveProduct(ctx, cart.ID, "pA")
	assert.False(t, ok, "nothing left to remove")

	assert.True(t, c.RemoveLine(ctx, "already-gone"))
}

func TestClearKeepsCart(t *testing.T) {
	c, fake := newClient(t)
	ctx := context.Background()
	cart, err := c.GetOrCreate(ctx, 3)
	require.NoError(t, err)
	_, err = c.AddLine(ctx, cart.ID, "pA", 2.5)
	require.NoError(t, err)

	require.NoError(t, c.Clear(ctx, cart.ID))
	assert.Empty(t, c.Lines(ctx, cart.ID))
	assert.Len(t, fake.carts, 1)
}

func TestLinesFailureIsEmpty(t *testing.T) {
	c, fake := newClient(t)
	fake.failNext["GET /api/cart-products"] = 1
	assert.Empty(t, c.Lines(context.Background(), "cart1"))
}

func TestAddLineRejectsNegative(t *testing.T) {
	c, _ := newClient(t)
	_, err := c.AddLine(context.Background(), "c", "p", -1)
	assert.ErrorIs(t, err, shop.ErrValidation)
}

func TestAddLineIsNotReplayedAfterResponseTimeout(t *testing.T) {
	fake := newFakeStrapi()
	var posts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/api/cart-products" {
			posts.Add(1)
			time.Sleep(150 * time.Millisecond)
		}
		fake.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	backend, err := cms.New(cms.Options{
		BaseURL: srv.URL,
		Token:   "t",
		HTTPClient: tg.BuildHTTPClient(tg.HTTPClientOptions{
			ResponseTimeout: 100 * time.Millisecond,
			Retries:         2,
			Backoff:         time.Millisecond,
		}),
	})
	require.NoError(t, err)

	_, err = New(backend).AddLine(context.Background(), "cart1", "pA", 1)
	assert.ErrorIs(t, err, shop.ErrUnavailable)
	assert.Equal(t, int32(1), posts.Load())
}
