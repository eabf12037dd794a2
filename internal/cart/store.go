package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Store is the authoritative holder of the session's cart items. Every
// stored item is guaranteed to pass the structural validator. Operations
// never return errors: failures are logged, surfaced through the notifier,
// and degrade to no-ops.
type Store struct {
	storage  Storage
	bus      *Bus
	notifier Notifier
	lg       *zap.Logger

	now   func() time.Time
	newID func() string

	// onSave runs after every successful persist, emitting or not. The binder
	// uses it to refresh counters even for silent saves.
	onSave func(items []Item)
}

// NewStore creates a cart store over the given storage slot and event bus.
// A nil notifier discards notifications; a nil logger logs nothing.
func NewStore(storage Storage, bus *Bus, notifier Notifier, lg *zap.Logger) *Store {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	if bus == nil {
		bus = NewBus()
	}
	return &Store{
		storage:  storage,
		bus:      bus,
		notifier: notifier,
		lg:       lg,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Bus returns the event bus this store publishes on.
func (s *Store) Bus() *Bus { return s.bus }

// Items returns the current valid cart items. Corrupt entries are silently
// dropped; when any are found, the cleaned list is re-persisted without
// emitting a change event, so subscribers are not re-triggered by the
// cleanup itself.
func (s *Store) Items(ctx context.Context) []Item {
	data, err := s.storage.Load(ctx)
	if err != nil {
		s.lg.Error("load cart slot", zap.Error(err))
		return nil
	}
	if len(data) == 0 {
		return nil
	}

	items, dropped := decodeItems(data)
	if dropped > 0 {
		s.lg.Warn("dropped corrupt cart entries", zap.Int("dropped", dropped))
		s.persist(ctx, items, false)
	}
	return items
}

// decodeItems decodes the slot payload entry by entry so one malformed entry
// does not discard the rest. Returns the valid items and the count dropped.
func decodeItems(data []byte) ([]Item, int) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		// The whole slot is unreadable; treat as empty rather than guessing.
		return nil, 0
	}

	items := make([]Item, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		var it Item
		if err := json.Unmarshal(raw, &it); err != nil || !it.Valid() {
			dropped++
			continue
		}
		items = append(items, it)
	}
	return items, dropped
}

// SaveItems filters out invalid items, persists the rest, and optionally
// emits a cart:updated event carrying the new list.
func (s *Store) SaveItems(ctx context.Context, items []Item, emit bool) {
	valid := items[:0:0]
	for _, it := range items {
		if it.Valid() {
			valid = append(valid, it)
		}
	}
	s.persist(ctx, valid, emit)
}

// persist writes items to the slot; on success it runs the save hook and,
// when emit is set, publishes cart:updated.
func (s *Store) persist(ctx context.Context, items []Item, emit bool) bool {
	if items == nil {
		items = []Item{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		s.lg.Error("marshal cart items", zap.Error(err))
		s.notifier.Notify(SeverityError, "Could not save your cart")
		return false
	}
	if err := s.storage.Store(ctx, data); err != nil {
		s.lg.Error("store cart slot", zap.Error(err))
		s.notifier.Notify(SeverityError, "Could not save your cart")
		return false
	}

	if s.onSave != nil {
		s.onSave(items)
	}
	if emit {
		s.bus.Publish(Event{Kind: EventUpdated, Items: items})
	}
	return true
}

// AddProduct adds a product to the cart. When an item for the same product
// already exists its quantity is incremented; otherwise a new item is
// appended. The requested quantity defaults to 1 and is coerced to at least
// 1. Always produces a user-visible notification and, on success, a
// cart:added event.
func (s *Store) AddProduct(ctx context.Context, p ProductData) {
	if p.ProductID == "" || p.ProductName == "" || p.ProductPrice.IsNegative() {
		s.lg.Warn("invalid product data",
			zap.String("product_id", p.ProductID),
			zap.String("product_name", p.ProductName),
		)
		s.notifier.Notify(SeverityError, "Could not add product to cart")
		return
	}

	qty := p.Quantity
	if qty < 1 {
		qty = 1
	}

	now := s.now()
	items := s.Items(ctx)

	var added *Item
	for i := range items {
		if items[i].ProductID == p.ProductID {
			items[i].Quantity += qty
			items[i].UpdatedAt = now
			added = &items[i]
			break
		}
	}
	if added == nil {
		items = append(items, Item{
			ID:              s.newID(),
			ProductID:       p.ProductID,
			ProductName:     p.ProductName,
			ProductPrice:    p.ProductPrice,
			Quantity:        qty,
			ProductImage:    p.ProductImage,
			ProductCategory: p.ProductCategory,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		added = &items[len(items)-1]
	}

	if !s.persist(ctx, items, true) {
		return
	}
	s.bus.Publish(Event{Kind: EventAdded, Items: items, Item: added})
	s.notifier.Notify(SeveritySuccess, fmt.Sprintf("%s added to cart", p.ProductName))
}

// UpdateQuantity sets the quantity of the item with the given id. A quantity
// of zero or less removes the item, identically to RemoveItem.
func (s *Store) UpdateQuantity(ctx context.Context, itemID string, quantity int) {
	if quantity <= 0 {
		s.RemoveItem(ctx, itemID)
		return
	}

	items := s.Items(ctx)
	for i := range items {
		if items[i].ID == itemID {
			items[i].Quantity = quantity
			items[i].UpdatedAt = s.now()
			s.persist(ctx, items, true)
			return
		}
	}
}

// RemoveItem removes the item with the given id. Unknown ids are a silent
// no-op.
func (s *Store) RemoveItem(ctx context.Context, itemID string) {
	items := s.Items(ctx)
	for i := range items {
		if items[i].ID == itemID {
			removed := items[i]
			items = append(items[:i], items[i+1:]...)
			if !s.persist(ctx, items, true) {
				return
			}
			s.bus.Publish(Event{Kind: EventRemoved, Items: items, Item: &removed})
			s.notifier.Notify(SeverityInfo, fmt.Sprintf("%s removed from cart", removed.ProductName))
			return
		}
	}
}

// Clear empties the cart slot.
func (s *Store) Clear(ctx context.Context) {
	if err := s.storage.Clear(ctx); err != nil {
		s.lg.Error("clear cart slot", zap.Error(err))
		s.notifier.Notify(SeverityError, "Could not clear your cart")
		return
	}
	if s.onSave != nil {
		s.onSave(nil)
	}
	s.bus.Publish(Event{Kind: EventCleared})
	s.notifier.Notify(SeverityInfo, "Cart cleared")
}

// TotalItems returns the sum of quantities across all current items.
func (s *Store) TotalItems(ctx context.Context) int {
	total := 0
	for _, it := range s.Items(ctx) {
		total += it.Quantity
	}
	return total
}

// TotalPrice returns the sum of price multiplied by quantity across all
// current items.
func (s *Store) TotalPrice(ctx context.Context) decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.Items(ctx) {
		total = total.Add(it.ProductPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}
