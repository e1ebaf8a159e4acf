package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"storefront/internal/domain"
)

var (
	// ErrNotFound is returned when an entity does not exist
	ErrNotFound = errors.New("not found")
	// ErrStockOverflow is returned by Restore when the counter would pass math.MaxInt64
	ErrStockOverflow = errors.New("stock counter would overflow")
)

// ProductFilter narrows the product list
type ProductFilter struct {
	NameSubstring string
	MinPrice      *decimal.Decimal
	MaxPrice      *decimal.Decimal
}

// Match reports whether p passes every set criterion.
func (f ProductFilter) Match(p domain.Product) bool {
	if !containsIgnoreCase(p.Name, f.NameSubstring) {
		return false
	}
	if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	return true
}

// OrderFilter narrows the order list. Empty fields match everything.
type OrderFilter struct {
	UserID    string
	ProductID string
}

func (f OrderFilter) Match(o domain.Order) bool {
	if f.UserID != "" && o.UserID != f.UserID {
		return false
	}
	if f.ProductID != "" && !o.HasProduct(f.ProductID) {
		return false
	}
	return true
}

type ProductRepository interface {
	Create(ctx context.Context, p *domain.Product) error
	GetByID(ctx context.Context, id string) (*domain.Product, error)
	// Update writes name, price, description and image; the stock counter is left alone.
	Update(ctx context.Context, p *domain.Product) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f ProductFilter) ([]domain.Product, error)
}

// Inventory is the stock ledger. CheckAndReserve is a single atomic
// compare-and-decrement: ok is false when fewer than qty units remain, and
// the counter is never driven below zero.
type Inventory interface {
	CheckAndReserve(ctx context.Context, productID string, qty int64) (remaining int64, ok bool, err error)
	Restore(ctx context.Context, productID string, qty int64) error
}

type OrderRepository interface {
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	// List returns matching orders newest first.
	List(ctx context.Context, f OrderFilter) ([]domain.Order, error)
	// UpdateStatus moves the order to `to` only while its stored status is still `from`.
	// It returns domain.ErrConcurrencyConflict when the stored status differs.
	UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error)
	Delete(ctx context.Context, id string) error
}

type CartRepository interface {
	Get(ctx context.Context, userID string) (*domain.Cart, error)
	// Mutate runs fn against the user's cart and persists the result atomically.
	// With create set a missing cart is started empty, otherwise ErrNotFound is returned.
	Mutate(ctx context.Context, userID string, create bool, fn func(c *domain.Cart) error) (*domain.Cart, error)
}

// TxManager draws a transaction boundary. Repositories called with the ctx
// passed to fn take part in the transaction.
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

func containsIgnoreCase(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
