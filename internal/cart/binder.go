package cart

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ControlState is the transient state of an add-to-cart control.
type ControlState int

const (
	// ControlIdle means the control accepts clicks.
	ControlIdle ControlState = iota
	// ControlAdding means an add is in flight; further clicks are ignored.
	ControlAdding
	// ControlAdded shows the confirmation state until the restore delay
	// elapses.
	ControlAdded
)

// DefaultRestoreDelay is how long a control shows its Added confirmation
// before returning to idle.
const DefaultRestoreDelay = 2 * time.Second

// Binder keeps counter/badge values in sync with the store without owning
// cart state itself. It reacts to bus events for changes made in this
// session and to the storage change feed for writes made by other holders of
// the same slot.
type Binder struct {
	store        *Store
	restoreDelay time.Duration
	lg           *zap.Logger

	mu         sync.Mutex
	totalItems int
	totalPrice decimal.Decimal
	controls   map[string]ControlState

	unsubscribe func()
}

// NewBinder creates a binder over the store. A non-positive restoreDelay
// uses DefaultRestoreDelay.
func NewBinder(store *Store, restoreDelay time.Duration, lg *zap.Logger) *Binder {
	if restoreDelay <= 0 {
		restoreDelay = DefaultRestoreDelay
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Binder{
		store:        store,
		restoreDelay: restoreDelay,
		lg:           lg,
		controls:     make(map[string]ControlState),
	}
}

// Bind subscribes to cart events and the storage change feed and computes
// the initial counters. It returns an unbind function. The watch goroutine
// stops when ctx is cancelled.
func (b *Binder) Bind(ctx context.Context) (unbind func()) {
	b.store.onSave = func(items []Item) { b.setCounters(items) }
	b.unsubscribe = b.store.Bus().Subscribe(b.onEvent)
	go b.watchStorage(ctx)
	b.Refresh(ctx)

	return func() {
		b.store.onSave = nil
		if b.unsubscribe != nil {
			b.unsubscribe()
		}
	}
}

func (b *Binder) onEvent(ev Event) {
	switch ev.Kind {
	case EventCleared:
		b.setCounters(nil)
	default:
		b.setCounters(ev.Items)
	}
}

// watchStorage reacts to slot writes made by other holders of the same key.
func (b *Binder) watchStorage(ctx context.Context) {
	changes := b.store.storage.Changes()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			b.lg.Debug("cart slot changed externally")
			b.Refresh(ctx)
		}
	}
}

// Refresh recomputes counters from the store's current items.
func (b *Binder) Refresh(ctx context.Context) {
	b.setCounters(b.store.Items(ctx))
}

func (b *Binder) setCounters(items []Item) {
	count := 0
	price := decimal.Zero
	for _, it := range items {
		count += it.Quantity
		price = price.Add(it.ProductPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	b.mu.Lock()
	b.totalItems = count
	b.totalPrice = price
	b.mu.Unlock()
}

// Counts returns the current badge values: total item count and total price.
func (b *Binder) Counts() (int, decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalItems, b.totalPrice
}

// AddToCart adds a product through the store, guarding the per-product
// control against double submission. It reports false when an add for the
// same product is already in flight or still showing its confirmation.
func (b *Binder) AddToCart(ctx context.Context, p ProductData) bool {
	b.mu.Lock()
	if b.controls[p.ProductID] != ControlIdle {
		b.mu.Unlock()
		return false
	}
	b.controls[p.ProductID] = ControlAdding
	b.mu.Unlock()

	b.store.AddProduct(ctx, p)

	b.mu.Lock()
	b.controls[p.ProductID] = ControlAdded
	b.mu.Unlock()

	time.AfterFunc(b.restoreDelay, func() {
		b.mu.Lock()
		delete(b.controls, p.ProductID)
		b.mu.Unlock()
	})
	return true
}

// ControlStateFor returns the transient state of the control for the given
// product.
func (b *Binder) ControlStateFor(productID string) ControlState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.controls[productID]
}
