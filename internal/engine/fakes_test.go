package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/m3rciful/shopbot/internal/shop"
	"github.com/m3rciful/shopbot/internal/view"
)

type fakeCatalog struct {
	products []shop.Product
}

func (f *fakeCatalog) ListProducts(context.Context) []shop.Product { return f.products }

func (f *fakeCatalog) GetProduct(_ context.Context, id string) (shop.Product, error) {
	for _, p := range f.products {
		if p.ID == id {
			return p, nil
		}
	}
	return shop.Product{}, shop.ErrNotFound
}

type fakeCarts struct {
	mu       sync.Mutex
	catalog  *fakeCatalog
	lines    map[int64][]shop.CartLine
	seq      int
	failLoad bool
	failAdd  bool
	inFlight map[int64]int
	overlaps atomic.Int32
}

func newFakeCarts(c *fakeCatalog) *fakeCarts {
	return &fakeCarts{catalog: c, lines: map[int64][]shop.CartLine{}, inFlight: map[int64]int{}}
}

func cartID(userID int64) string { return fmt.Sprintf("cart-%d", userID) }

func userOf(cartID string) int64 {
	var id int64
	_, _ = fmt.Sscanf(cartID, "cart-%d", &id)
	return id
}

func (f *fakeCarts) GetOrCreate(_ context.Context, userID int64) (shop.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLoad {
		return shop.Cart{}, shop.ErrUnavailable
	}
	return shop.Cart{ID: cartID(userID), UserID: userID}, nil
}

func (f *fakeCarts) Lines(_ context.Context, id string) []shop.CartLine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]shop.CartLine(nil), f.lines[userOf(id)]...)
}

func (f *fakeCarts) AddLine(ctx context.Context, id, productID string, qty float64) (shop.CartLine, error) {
	user := userOf(id)
	f.mu.Lock()
	f.inFlight[user]++
	if f.inFlight[user] > 1 {
		f.overlaps.Add(1)
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight[user]--
		f.mu.Unlock()
	}()

	if f.failAdd {
		return shop.CartLine{}, shop.ErrUnavailable
	}
	product, err := f.catalog.GetProduct(ctx, productID)
	if err != nil {
		return shop.CartLine{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	line := shop.CartLine{ID: fmt.Sprintf("line-%d", f.seq), Quantity: qty, Product: product}
	f.lines[user] = append(f.lines[user], line)
	return line, nil
}

func (f *fakeCarts) RemoveProduct(_ context.Context, id, productID string) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := userOf(id)
	var kept []shop.CartLine
	removed := 0
	for _, l := range f.lines[user] {
		if l.Product.ID == productID {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	f.lines[user] = kept
	return removed, removed > 0
}

func (f *fakeCarts) Clear(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.lines, userOf(id))
	return nil
}

type fakeRegistry struct {
	mu      sync.Mutex
	records map[int64]shop.ClientRecord
	fail    bool
}

func (f *fakeRegistry) Upsert(_ context.Context, userID int64, email, name string) (shop.ClientRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return shop.ClientRecord{}, shop.ErrUnavailable
	}
	if f.records == nil {
		f.records = map[int64]shop.ClientRecord{}
	}
	rec := shop.ClientRecord{ID: fmt.Sprintf("client-%d", userID), UserID: userID, Email: email, DisplayName: name}
	f.records[userID] = rec
	return rec, nil
}

type fakeNotifier struct {
	orders []shop.Order
}

func (f *fakeNotifier) NotifyOrder(_ context.Context, o shop.Order) error {
	f.orders = append(f.orders, o)
	return nil
}

type rendered struct {
	Op        string
	MessageID int
	View      view.View
}

type fakeRenderer struct {
	mu       sync.Mutex
	seq      int
	ops      []rendered
	lastID   int
	answers  map[string][]string
	editGone bool
	sendErr  error
	panicOn  string
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{seq: 100, answers: map[string][]string{}}
}

func (f *fakeRenderer) Send(_ context.Context, _ int64, v view.View) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOn != "" && v.Text == f.panicOn {
		panic("render exploded")
	}
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.seq++
	f.lastID = f.seq
	f.ops = append(f.ops, rendered{Op: "send", MessageID: f.seq, View: v})
	return f.seq, nil
}

func (f *fakeRenderer) Edit(_ context.Context, _ int64, id int, v view.View) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editGone {
		return 0, shop.ErrRenderTargetGone
	}
	f.lastID = id
	f.ops = append(f.ops, rendered{Op: "edit", MessageID: id, View: v})
	return id, nil
}

func (f *fakeRenderer) Delete(_ context.Context, _ int64, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, rendered{Op: "delete", MessageID: id})
	return nil
}

func (f *fakeRenderer) Answer(_ context.Context, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[id] = append(f.answers[id], text)
	return nil
}

func (f *fakeRenderer) last() rendered {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ops) == 0 {
		return rendered{}
	}
	return f.ops[len(f.ops)-1]
}

// current is the id of the message the user would press a button on.
func (f *fakeRenderer) current() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastID
}

func (f *fakeRenderer) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, op := range f.ops {
		if op.Op != "delete" {
			out = append(out, op.View.Text)
		}
	}
	return out
}

func (f *fakeRenderer) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = nil
}

type countingObserver struct {
	mu          sync.Mutex
	transitions []string
	fallbacks   int
}

func (o *countingObserver) ObserveTransition(from, to, action string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, from+">"+to+":"+action)
}

func (o *countingObserver) ObserveRenderFallback() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fallbacks++
}
