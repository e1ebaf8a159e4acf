package service

import (
	"context"
	"errors"
	"log/slog"

	"storefront/internal/domain"
	"storefront/internal/repository"
)

// CartService keeps one cart per user. It never touches stock; checkout goes
// through OrderService.
type CartService struct {
	carts    repository.CartRepository
	products repository.ProductRepository
	orders   *OrderService
	opts     Options
}

func NewCartService(carts repository.CartRepository, products repository.ProductRepository, orders *OrderService, opts Options) *CartService {
	return &CartService{carts: carts, products: products, orders: orders, opts: opts.withDefaults()}
}

func validateCartItem(userID, productID string) error {
	if userID == "" {
		return &domain.MalformedRequestError{Index: -1, Field: "user_id", Reason: "is required"}
	}
	if productID == "" {
		return &domain.MalformedRequestError{Index: -1, Field: "product_id", Reason: "is required"}
	}
	return nil
}

func cartErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.ErrCartNotFound
	}
	return err
}

func (s *CartService) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, cartErr(err)
	}
	return c, nil
}

func (s *CartService) GetItem(ctx context.Context, userID, productID string) (*domain.CartItem, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	it, ok := c.Item(productID)
	if !ok {
		return nil, domain.ErrItemNotFound
	}
	return &it, nil
}

// Add starts the cart on first use and merges into an existing entry.
func (s *CartService) Add(ctx context.Context, userID, productID string, qty int64) (*domain.Cart, error) {
	if err := validateCartItem(userID, productID); err != nil {
		return nil, err
	}
	if qty < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &domain.ProductNotFoundError{ProductID: productID}
		}
		return nil, err
	}
	c, err := s.carts.Mutate(ctx, userID, true, func(c *domain.Cart) error {
		return c.Add(productID, qty)
	})
	if err != nil {
		return nil, cartErr(err)
	}
	return c, nil
}

func (s *CartService) SetQuantity(ctx context.Context, userID, productID string, qty int64) (*domain.Cart, error) {
	if err := validateCartItem(userID, productID); err != nil {
		return nil, err
	}
	if qty < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	c, err := s.carts.Mutate(ctx, userID, false, func(c *domain.Cart) error {
		return c.SetQuantity(productID, qty)
	})
	if err != nil {
		return nil, cartErr(err)
	}
	return c, nil
}

func (s *CartService) Remove(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	if err := validateCartItem(userID, productID); err != nil {
		return nil, err
	}
	c, err := s.carts.Mutate(ctx, userID, false, func(c *domain.Cart) error {
		return c.Remove(productID)
	})
	if err != nil {
		return nil, cartErr(err)
	}
	return c, nil
}

func (s *CartService) Clear(ctx context.Context, userID string) (*domain.Cart, error) {
	c, err := s.carts.Mutate(ctx, userID, false, func(c *domain.Cart) error {
		c.Clear()
		return nil
	})
	if err != nil {
		return nil, cartErr(err)
	}
	return c, nil
}

// Checkout places an order for the cart contents. The purchased quantities
// leave the cart only when the order was accepted.
func (s *CartService) Checkout(ctx context.Context, userID string) (*domain.Order, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(c.Items) == 0 {
		return nil, &domain.MalformedRequestError{Index: -1, Field: "items", Reason: "cart is empty"}
	}

	items := make([]domain.ItemRequest, 0, len(c.Items))
	for _, it := range c.Items {
		items = append(items, domain.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	o, err := s.orders.PlaceOrder(ctx, userID, items)
	if err != nil {
		return nil, err
	}

	purchased := c.Items
	if _, err := s.carts.Mutate(ctx, userID, false, func(c *domain.Cart) error {
		c.Deduct(purchased)
		return nil
	}); err != nil {
		// the order is already placed
		s.opts.Logger.WarnContext(ctx, "cart cleanup after checkout failed",
			slog.String("user_id", userID), slog.String("order_id", o.ID), slog.Any("err", err))
	}
	return o, nil
}
