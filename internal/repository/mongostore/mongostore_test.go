package mongostore

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain"
	"storefront/internal/repository"
)

func TestOrderDoc_PreservesMoney(t *testing.T) {
	o := domain.NewOrder("o1", "u1", []domain.OrderLine{
		{ProductID: "p1", Name: "A", Quantity: 3, UnitPrice: decimal.RequireFromString("19.99")},
		{ProductID: "p2", Name: "B", Quantity: 1, UnitPrice: decimal.RequireFromString("0.01")},
	}, time.Now().UTC())

	doc, err := newOrderDoc(&o)
	require.NoError(t, err)
	back, err := doc.toDomain()
	require.NoError(t, err)

	assert.True(t, back.TotalPrice.Equal(decimal.RequireFromString("59.98")), "total %s", back.TotalPrice)
	require.Len(t, back.Lines, 2)
	assert.True(t, back.Lines[0].UnitPrice.Equal(decimal.RequireFromString("19.99")))
	assert.Equal(t, domain.OrderStatusPending, back.Status)
}

func setupStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping mongo integration test")
	}
	ctx := context.Background()
	s, err := Connect(ctx, uri, "storefront_test", false)
	require.NoError(t, err)
	require.NoError(t, s.EnsureIndexes(ctx))
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestProducts_ConditionalDecrement(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	products := NewProducts(s)

	p := domain.Product{Name: "Lamp", Price: decimal.RequireFromString("7.25"), Quantity: 2}
	require.NoError(t, products.Create(ctx, &p))
	t.Cleanup(func() { _ = products.Delete(context.Background(), p.ID) })

	remaining, ok, err := products.CheckAndReserve(ctx, p.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 0, remaining)

	_, ok, err = products.CheckAndReserve(ctx, p.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, products.Restore(ctx, p.ID, 2))
	got, err := products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.Quantity)
	assert.True(t, got.Price.Equal(p.Price))

	min := decimal.RequireFromString("7")
	list, err := products.List(ctx, repository.ProductFilter{NameSubstring: "lam", MinPrice: &min})
	require.NoError(t, err)
	assert.NotEmpty(t, list)
}

func TestProducts_RestoreRefusesOverflow(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	products := NewProducts(s)

	p := domain.Product{Name: "Cable", Price: decimal.NewFromInt(1), Quantity: math.MaxInt64 - 1}
	require.NoError(t, products.Create(ctx, &p))
	t.Cleanup(func() { _ = products.Delete(context.Background(), p.ID) })

	assert.ErrorIs(t, products.Restore(ctx, p.ID, 5), repository.ErrStockOverflow)
	assert.ErrorIs(t, products.Restore(ctx, uuid.NewString(), 1), repository.ErrNotFound)

	got, err := products.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.EqualValues(t, int64(math.MaxInt64-1), got.Quantity)
}

func TestOrders_UpdateStatusCAS(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	orders := NewOrders(s)

	o := domain.NewOrder(uuid.NewString(), "u1", []domain.OrderLine{
		{ProductID: "p1", Name: "A", Quantity: 1, UnitPrice: decimal.NewFromInt(3)},
	}, time.Now().UTC())
	require.NoError(t, orders.Create(ctx, &o))
	t.Cleanup(func() { _ = orders.Delete(context.Background(), o.ID) })

	updated, err := orders.UpdateStatus(ctx, o.ID, domain.OrderStatusPending, domain.OrderStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, updated.Status)

	_, err = orders.UpdateStatus(ctx, o.ID, domain.OrderStatusPending, domain.OrderStatusCancelled)
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
}

func TestCarts_MutateCreatesAndMerges(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	carts := NewCarts(s)
	user := uuid.NewString()

	_, err := carts.Mutate(ctx, user, true, func(c *domain.Cart) error { return c.Add("p1", 2) })
	require.NoError(t, err)
	c, err := carts.Mutate(ctx, user, true, func(c *domain.Cart) error { return c.Add("p1", 3) })
	require.NoError(t, err)

	require.Len(t, c.Items, 1)
	assert.EqualValues(t, 5, c.Items[0].Quantity)
}
