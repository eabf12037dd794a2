package cart

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Helpers ---

type recordedNote struct {
	severity Severity
	message  string
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []recordedNote
}

func (r *recordingNotifier) Notify(severity Severity, message string) {
	r.mu.Lock()
	r.notes = append(r.notes, recordedNote{severity, message})
	r.mu.Unlock()
}

func (r *recordingNotifier) last() (recordedNote, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notes) == 0 {
		return recordedNote{}, false
	}
	return r.notes[len(r.notes)-1], true
}

func newTestStore(t *testing.T) (*Store, *MemoryStorage, *recordingNotifier, *[]Event) {
	t.Helper()

	storage := NewMemoryStorage()
	bus := NewBus()
	notifier := &recordingNotifier{}
	store := NewStore(storage, bus, notifier, nil)

	events := &[]Event{}
	bus.Subscribe(func(ev Event) { *events = append(*events, ev) })

	return store, storage, notifier, events
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func widget(qty int) ProductData {
	return ProductData{
		ProductID:    "p1",
		ProductName:  "Widget",
		ProductPrice: decimal.NewFromInt(1000),
		Quantity:     qty,
	}
}

// --- Tests ---

func TestAddProduct_NewItem(t *testing.T) {
	store, _, notifier, events := newTestStore(t)
	ctx := context.Background()

	store.AddProduct(ctx, widget(1))

	items := store.Items(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].ProductID)
	assert.Equal(t, 1, items[0].Quantity)
	assert.NotEmpty(t, items[0].ID)

	assert.Equal(t, []EventKind{EventUpdated, EventAdded}, kinds(*events))

	note, ok := notifier.last()
	require.True(t, ok)
	assert.Equal(t, SeveritySuccess, note.severity)
	assert.Contains(t, note.message, "Widget")
}

func TestAddProduct_MergesSameProduct(t *testing.T) {
	store, _, _, _ := newTestStore(t)
	ctx := context.Background()

	store.AddProduct(ctx, widget(1))
	store.AddProduct(ctx, widget(2))

	items := store.Items(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, 3, store.TotalItems(ctx))
	assert.True(t, decimal.NewFromInt(3000).Equal(store.TotalPrice(ctx)))
}

func TestAddProduct_QuantityCoercedToOne(t *testing.T) {
	store, _, _, _ := newTestStore(t)
	ctx := context.Background()

	store.AddProduct(ctx, widget(0))
	store.AddProduct(ctx, widget(-3))

	items := store.Items(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestAddProduct_InvalidData(t *testing.T) {
	store, _, notifier, events := newTestStore(t)
	ctx := context.Background()

	store.AddProduct(ctx, ProductData{ProductName: "No ID"})
	store.AddProduct(ctx, ProductData{ProductID: "p2"})
	store.AddProduct(ctx, ProductData{
		ProductID:    "p3",
		ProductName:  "Negative",
		ProductPrice: decimal.NewFromInt(-1),
	})

	assert.Empty(t, store.Items(ctx))
	assert.Empty(t, *events)

	note, ok := notifier.last()
	require.True(t, ok)
	assert.Equal(t, SeverityError, note.severity)
}

func TestTotals_MatchItems(t *testing.T) {
	store, _, _, _ := newTestStore(t)
	ctx := context.Background()

	store.AddProduct(ctx, widget(2))
	store.AddProduct(ctx, ProductData{
		ProductID:    "p2",
		ProductName:  "Gadget",
		ProductPrice: decimal.RequireFromString("19.99"),
		Quantity:     3,
	})

	wantCount := 0
	wantPrice := decimal.Zero
	for _, it := range store.Items(ctx) {
		wantCount += it.Quantity
		wantPrice = wantPrice.Add(it.ProductPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	assert.Equal(t, wantCount, store.TotalItems(ctx))
	assert.True(t, wantPrice.Equal(store.TotalPrice(ctx)))
}

func TestItems_DropsCorruptEntriesSilently(t *testing.T) {
	store, storage, _, events := newTestStore(t)
	ctx := context.Background()

	valid := Item{
		ID:           "i1",
		ProductID:    "p1",
		ProductName:  "Widget",
		ProductPrice: decimal.NewFromInt(1000),
		Quantity:     1,
	}
	validJSON, err := json.Marshal(valid)
	require.NoError(t, err)

	// One valid entry, one structurally invalid, one that is not an object.
	payload := []byte(`[` + string(validJSON) + `,{"id":"i2","quantity":-1},42]`)
	require.NoError(t, storage.Store(ctx, payload))

	items := store.Items(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, "i1", items[0].ID)

	// Cleanup re-persisted the cleaned list without emitting.
	assert.Empty(t, *events)
	data, err := storage.Load(ctx)
	require.NoError(t, err)
	var persisted []Item
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Len(t, persisted, 1)
}

func TestItems_UnreadableSlot(t *testing.T) {
	store, storage, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, storage.Store(ctx, []byte(`{not json`)))
	assert.Empty(t, store.Items(ctx))
}

func TestUpdateQuantity(t *testing.T) {
	store, _, _, _ := newTestStore(t)
	ctx := context.Background()

	store.AddProduct(ctx, widget(1))
	id := store.Items(ctx)[0].ID

	store.UpdateQuantity(ctx, id, 5)
	assert.Equal(t, 5, store.Items(ctx)[0].Quantity)

	// Unknown id is a no-op.
	store.UpdateQuantity(ctx, "missing", 2)
	assert.Equal(t, 5, store.Items(ctx)[0].Quantity)
}

func TestUpdateQuantity_NonPositiveRemoves(t *testing.T) {
	for _, qty := range []int{0, -1} {
		store, _, notifier, events := newTestStore(t)
		ctx := context.Background()

		store.AddProduct(ctx, widget(1))
		id := store.Items(ctx)[0].ID
		*events = nil

		store.UpdateQuantity(ctx, id, qty)

		assert.Empty(t, store.Items(ctx), "quantity %d", qty)
		assert.Equal(t, []EventKind{EventUpdated, EventRemoved}, kinds(*events))

		note, ok := notifier.last()
		require.True(t, ok)
		assert.Contains(t, note.message, "Widget")
	}
}

func TestRemoveItem(t *testing.T) {
	store, _, notifier, events := newTestStore(t)
	ctx := context.Background()

	store.AddProduct(ctx, widget(1))
	id := store.Items(ctx)[0].ID
	*events = nil

	store.RemoveItem(ctx, id)
	assert.Empty(t, store.Items(ctx))
	assert.Equal(t, []EventKind{EventUpdated, EventRemoved}, kinds(*events))

	note, ok := notifier.last()
	require.True(t, ok)
	assert.Equal(t, SeverityInfo, note.severity)
	assert.Contains(t, note.message, "Widget")

	// Removing again is a silent no-op.
	*events = nil
	store.RemoveItem(ctx, id)
	assert.Empty(t, *events)
}

func TestClear(t *testing.T) {
	store, _, _, events := newTestStore(t)
	ctx := context.Background()

	store.AddProduct(ctx, widget(2))
	*events = nil

	store.Clear(ctx)

	assert.Empty(t, store.Items(ctx))
	assert.Equal(t, 0, store.TotalItems(ctx))
	assert.Equal(t, []EventKind{EventCleared}, kinds(*events))
}

func TestSaveItems_FiltersInvalid(t *testing.T) {
	store, _, _, events := newTestStore(t)
	ctx := context.Background()

	store.SaveItems(ctx, []Item{
		{ID: "i1", ProductID: "p1", ProductName: "Widget", ProductPrice: decimal.NewFromInt(10), Quantity: 1},
		{ID: "i2", ProductID: "p2", ProductName: "Broken", ProductPrice: decimal.NewFromInt(10), Quantity: 0},
	}, true)

	items := store.Items(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, "i1", items[0].ID)
	assert.Equal(t, []EventKind{EventUpdated}, kinds(*events))
}

func TestSaveItems_NoEmit(t *testing.T) {
	store, _, _, events := newTestStore(t)
	ctx := context.Background()

	store.SaveItems(ctx, []Item{
		{ID: "i1", ProductID: "p1", ProductName: "Widget", ProductPrice: decimal.NewFromInt(10), Quantity: 1},
	}, false)

	assert.Len(t, store.Items(ctx), 1)
	assert.Empty(t, *events)
}
