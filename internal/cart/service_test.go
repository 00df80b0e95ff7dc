package cart

import (
	"context"
	"testing"

	"github.com/safar/pickle-storefront/internal/events"
	"github.com/safar/pickle-storefront/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func mangoPickle() models.Product {
	return models.Product{
		ID:    "mango-1",
		Name:  "Mango Pickle",
		Price: decimal.NewFromInt(150),
		WeightOptions: []models.WeightOption{
			{Label: "250g", Price: decimal.NewFromInt(150)},
			{Label: "500g", Price: decimal.NewFromInt(280)},
		},
		InStock: true,
	}
}

func newTestService(t *testing.T) (*Service, *[]events.CartUpdated) {
	t.Helper()
	bus := events.NewBus()
	var updates []events.CartUpdated
	bus.Subscribe(events.TopicCartUpdated, func(e events.Event) {
		updates = append(updates, e.(events.CartUpdated))
	})
	return NewService(NewMemoryStore(), "guest", bus, zap.NewNop()), &updates
}

func TestService_AddMergesSameProductAndWeight(t *testing.T) {
	svc, updates := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, mangoPickle(), "250g", 1))
	require.NoError(t, svc.Add(ctx, mangoPickle(), "250g", 2))
	require.NoError(t, svc.Add(ctx, mangoPickle(), "500g", 1))

	lines, err := svc.Lines(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.True(t, decimal.NewFromInt(280).Equal(lines[1].UnitPrice))

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	subtotal, err := svc.Subtotal(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(730).Equal(subtotal), "subtotal %s", subtotal)

	assert.Len(t, *updates, 3)
}

func TestService_AddDefaultsToFirstWeight(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, mangoPickle(), "", 1))

	lines, err := svc.Lines(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "250g", lines[0].SelectedWeightOption)
}

func TestService_AddRejects(t *testing.T) {
	svc, updates := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Add(ctx, mangoPickle(), "250g", 0), ErrInvalidQuantity)
	assert.ErrorIs(t, svc.Add(ctx, mangoPickle(), "1kg", 1), ErrUnknownWeight)

	soldOut := mangoPickle()
	soldOut.InStock = false
	assert.ErrorIs(t, svc.Add(ctx, soldOut, "250g", 1), ErrOutOfStock)

	assert.Empty(t, *updates)
}

func TestService_QuantityChanges(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Add(ctx, mangoPickle(), "250g", 1))

	require.NoError(t, svc.Increment(ctx, "mango-1", "250g"))
	require.NoError(t, svc.SetQuantity(ctx, "mango-1", "250g", 5))
	require.NoError(t, svc.Decrement(ctx, "mango-1", "250g"))

	lines, err := svc.Lines(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 4, lines[0].Quantity)

	require.NoError(t, svc.SetQuantity(ctx, "mango-1", "250g", 1))
	require.NoError(t, svc.Decrement(ctx, "mango-1", "250g"))

	lines, err = svc.Lines(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)

	assert.ErrorIs(t, svc.Increment(ctx, "mango-1", "250g"), ErrLineNotFound)
}

func TestService_RemoveAndClear(t *testing.T) {
	svc, updates := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Add(ctx, mangoPickle(), "250g", 1))
	require.NoError(t, svc.Add(ctx, mangoPickle(), "500g", 1))

	require.NoError(t, svc.Remove(ctx, "mango-1", "250g"))
	lines, err := svc.Lines(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "500g", lines[0].SelectedWeightOption)

	require.NoError(t, svc.Clear(ctx))
	lines, err = svc.Lines(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)

	last := (*updates)[len(*updates)-1]
	assert.Equal(t, "guest", last.BagKey)
	assert.Empty(t, last.Lines)
}

// storeContract exercises the behaviour every Store must share.
func storeContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	empty, err := store.Load(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)

	lines := []models.CartLine{
		{ProductID: "mango-1", Name: "Mango Pickle", UnitPrice: decimal.RequireFromString("149.99"), Quantity: 2, SelectedWeightOption: "250g", ImageURL: "m.jpg"},
		{ProductID: "lemon-1", Name: "Lemon Pickle", UnitPrice: decimal.NewFromInt(120), Quantity: 1},
	}
	require.NoError(t, store.Save(ctx, "bag-a", lines))
	require.NoError(t, store.Save(ctx, "bag-b", lines[:1]))

	got, err := store.Load(ctx, "bag-a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "mango-1", got[0].ProductID)
	assert.Equal(t, "lemon-1", got[1].ProductID)
	assert.True(t, decimal.RequireFromString("149.99").Equal(got[0].UnitPrice))
	assert.Equal(t, "250g", got[0].SelectedWeightOption)
	assert.Equal(t, "m.jpg", got[0].ImageURL)

	require.NoError(t, store.Save(ctx, "bag-a", lines[1:]))
	got, err = store.Load(ctx, "bag-a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "lemon-1", got[0].ProductID)

	require.NoError(t, store.Clear(ctx, "bag-a"))
	got, err = store.Load(ctx, "bag-a")
	require.NoError(t, err)
	assert.Empty(t, got)

	other, err := store.Load(ctx, "bag-b")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemoryStore())
}

func TestMemoryStore_IsolatesCallers(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	lines := []models.CartLine{{ProductID: "p", Quantity: 1, UnitPrice: decimal.NewFromInt(10)}}
	require.NoError(t, store.Save(ctx, "k", lines))

	lines[0].Quantity = 99
	got, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 1, got[0].Quantity)
}
