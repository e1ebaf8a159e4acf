package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"storefront/internal/domain"
	"storefront/internal/logger"
	"storefront/internal/repository"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	owner    = domain.Identity{UserID: "u1", Role: domain.RoleUser}
	stranger = domain.Identity{UserID: "u2", Role: domain.RoleUser}
	admin    = domain.Identity{UserID: "root", Role: domain.RoleAdmin}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OrderEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev domain.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []domain.OrderEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.OrderEventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type env struct {
	store    *repository.MemoryStore
	orders   *repository.MemoryOrders
	products *ProductService
	placer   *OrderService
	carts    *CartService
	pub      *recordingPublisher
}

func setup(t *testing.T) *env {
	t.Helper()
	store := repository.NewMemoryStore()
	return setupWith(t, store, store, repository.NewMemoryOrders(store))
}

func setupWith(t *testing.T, store *repository.MemoryStore, inventory repository.Inventory, orders repository.OrderRepository) *env {
	t.Helper()
	pub := &recordingPublisher{}
	opts := Options{Events: pub, Logger: logger.Discard(), Concurrency: 4}
	tx := repository.NewMemoryTx(store)
	ps := NewProductService(store, store, opts)
	os := NewOrderService(store, inventory, orders, tx, opts)
	cs := NewCartService(repository.NewMemoryCarts(store), store, os, opts)
	return &env{
		store:    store,
		orders:   repository.NewMemoryOrders(store),
		products: ps,
		placer:   os,
		carts:    cs,
		pub:      pub,
	}
}

func (e *env) product(t *testing.T, name, price string, qty int64) *domain.Product {
	t.Helper()
	p, err := e.products.Create(context.Background(), domain.Product{
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Quantity: qty,
	})
	require.NoError(t, err)
	return p
}

func (e *env) stock(t *testing.T, id string) int64 {
	t.Helper()
	p, err := e.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.Quantity
}

// failingOrders rejects every Create
type failingOrders struct {
	repository.OrderRepository
}

var errDiskFull = errors.New("disk full")

func (failingOrders) Create(context.Context, *domain.Order) error { return errDiskFull }

// racingInventory lets a competing buyer drain one product right before
// this request reserves it.
type racingInventory struct {
	*repository.MemoryStore
	target string
}

func (r *racingInventory) CheckAndReserve(ctx context.Context, productID string, qty int64) (int64, bool, error) {
	if productID == r.target {
		p, err := r.MemoryStore.GetByID(ctx, productID)
		if err != nil {
			return 0, false, err
		}
		if p.Quantity > 0 {
			if _, _, err := r.MemoryStore.CheckAndReserve(ctx, productID, p.Quantity); err != nil {
				return 0, false, err
			}
		}
	}
	return r.MemoryStore.CheckAndReserve(ctx, productID, qty)
}

// recordingInventory logs ledger calls in the order they arrive
type recordingInventory struct {
	*repository.MemoryStore
	mu       sync.Mutex
	reserved []domain.ItemRequest
	restored []domain.ItemRequest
}

func (r *recordingInventory) CheckAndReserve(ctx context.Context, productID string, qty int64) (int64, bool, error) {
	r.mu.Lock()
	r.reserved = append(r.reserved, domain.ItemRequest{ProductID: productID, Quantity: qty})
	r.mu.Unlock()
	return r.MemoryStore.CheckAndReserve(ctx, productID, qty)
}

func (r *recordingInventory) Restore(ctx context.Context, productID string, qty int64) error {
	r.mu.Lock()
	r.restored = append(r.restored, domain.ItemRequest{ProductID: productID, Quantity: qty})
	r.mu.Unlock()
	return r.MemoryStore.Restore(ctx, productID, qty)
}

func (r *recordingInventory) calls() []domain.ItemRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ItemRequest(nil), r.reserved...)
}

func (r *recordingInventory) restores() []domain.ItemRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ItemRequest(nil), r.restored...)
}

func (r *recordingInventory) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reserved, r.restored = nil, nil
}
