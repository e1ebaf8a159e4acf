package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"storefront/internal/domain"
	"storefront/internal/repository"
)

// OrderService places orders against the inventory ledger and drives their status
type OrderService struct {
	products  repository.ProductRepository
	inventory repository.Inventory
	orders    repository.OrderRepository
	tx        repository.TxManager
	opts      Options
}

func NewOrderService(
	products repository.ProductRepository,
	inventory repository.Inventory,
	orders repository.OrderRepository,
	tx repository.TxManager,
	opts Options,
) *OrderService {
	return &OrderService{
		products:  products,
		inventory: inventory,
		orders:    orders,
		tx:        tx,
		opts:      opts.withDefaults(),
	}
}

func validatePlacement(userID string, items []domain.ItemRequest) error {
	if userID == "" {
		return &domain.MalformedRequestError{Index: -1, Field: "user_id", Reason: "is required"}
	}
	if len(items) == 0 {
		return &domain.MalformedRequestError{Index: -1, Field: "items", Reason: "must not be empty"}
	}
	demand := make(map[string]int64, len(items))
	for i, it := range items {
		if it.ProductID == "" {
			return &domain.MalformedRequestError{Index: i, Field: "product_id", Reason: "is required"}
		}
		if it.Quantity < 1 {
			return &domain.MalformedRequestError{Index: i, Field: "quantity", Reason: "must be a positive integer"}
		}
		if it.Quantity > math.MaxInt64-demand[it.ProductID] {
			return &domain.MalformedRequestError{Index: i, Field: "quantity", Reason: "total for this product is too large"}
		}
		demand[it.ProductID] += it.Quantity
	}
	return nil
}

// reservationOrder folds lines into one entry per product, sorted by id.
// Every writer takes row locks in this order, so two placements never wait on each other in a cycle.
func reservationOrder(items []domain.ItemRequest) []domain.ItemRequest {
	idx := make(map[string]int, len(items))
	out := make([]domain.ItemRequest, 0, len(items))
	for _, it := range items {
		if i, ok := idx[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.ProductID] = len(out)
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func lineItems(lines []domain.OrderLine) []domain.ItemRequest {
	items := make([]domain.ItemRequest, 0, len(lines))
	for _, l := range lines {
		items = append(items, domain.ItemRequest{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return reservationOrder(items)
}

// PlaceOrder admits the whole order or nothing. Phase one reads every product
// and rejects with the full shortage list; phase two reserves product by product and
// restores what it took if any reservation or the order write fails.
func (s *OrderService) PlaceOrder(ctx context.Context, userID string, items []domain.ItemRequest) (*domain.Order, error) {
	if err := validatePlacement(userID, items); err != nil {
		return nil, err
	}

	products, err := s.loadProducts(ctx, items)
	if err != nil {
		return nil, err
	}
	if shortages := partition(items, products, ""); len(shortages) > 0 {
		s.opts.Logger.InfoContext(ctx, "order rejected",
			slog.String("user_id", userID), slog.Int("shortages", len(shortages)))
		return nil, &domain.OutOfStockError{Items: shortages}
	}

	var created *domain.Order
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		plan := reservationOrder(items)
		reserved := make([]domain.ItemRequest, 0, len(plan))
		for _, it := range plan {
			_, ok, err := s.inventory.CheckAndReserve(ctx, it.ProductID, it.Quantity)
			if err != nil {
				s.release(ctx, reserved)
				if errors.Is(err, repository.ErrNotFound) {
					return &domain.ProductNotFoundError{ProductID: it.ProductID}
				}
				return fmt.Errorf("reserve %s: %w", it.ProductID, err)
			}
			if !ok {
				s.release(ctx, reserved)
				return s.raceShortage(ctx, items, products, it.ProductID)
			}
			reserved = append(reserved, it)
		}

		lines := make([]domain.OrderLine, 0, len(items))
		for _, it := range items {
			p := products[it.ProductID]
			lines = append(lines, domain.OrderLine{
				ProductID: p.ID,
				Name:      p.Name,
				Quantity:  it.Quantity,
				UnitPrice: p.Price,
			})
		}
		o := domain.NewOrder(s.opts.NewID(), userID, lines, s.opts.Clock())
		if err := s.orders.Create(ctx, &o); err != nil {
			s.release(ctx, reserved)
			return fmt.Errorf("persist order: %w", err)
		}
		created = &o
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrOutOfStock) {
			s.opts.Logger.WarnContext(ctx, "order lost stock race", slog.String("user_id", userID))
		}
		return nil, err
	}

	s.invalidate(ctx, created.Lines)
	s.publish(ctx, domain.EventOrderPlaced, created)
	s.opts.Logger.InfoContext(ctx, "order placed",
		slog.String("order_id", created.ID),
		slog.String("user_id", userID),
		slog.String("total", created.TotalPrice.String()))
	return created, nil
}

// loadProducts reads each distinct product once, in parallel.
// A missing product is reported for the first request position that names it.
func (s *OrderService) loadProducts(ctx context.Context, items []domain.ItemRequest) (map[string]*domain.Product, error) {
	ids := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, ok := seen[it.ProductID]; ok {
			continue
		}
		seen[it.ProductID] = struct{}{}
		ids = append(ids, it.ProductID)
	}

	found := make([]*domain.Product, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for idx := range ids {
		idx := idx
		g.Go(func() error {
			p, err := s.products.GetByID(gctx, ids[idx])
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("load product %s: %w", ids[idx], err)
			}
			found[idx] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]*domain.Product, len(ids))
	for idx, id := range ids {
		if found[idx] == nil {
			return nil, &domain.ProductNotFoundError{ProductID: id}
		}
		out[id] = found[idx]
	}
	return out, nil
}

// partition returns one shortage per product whose summed demand exceeds
// stock, ordered by first appearance. force is always reported when set.
func partition(items []domain.ItemRequest, products map[string]*domain.Product, force string) []domain.Shortage {
	demand := make(map[string]int64, len(products))
	order := make([]string, 0, len(products))
	for _, it := range items {
		if _, ok := demand[it.ProductID]; !ok {
			order = append(order, it.ProductID)
		}
		demand[it.ProductID] += it.Quantity
	}

	var shortages []domain.Shortage
	for _, id := range order {
		p := products[id]
		if demand[id] <= p.Quantity && id != force {
			continue
		}
		shortages = append(shortages, domain.Shortage{
			ProductID: id,
			Name:      p.Name,
			Requested: demand[id],
			Available: p.Quantity,
		})
	}
	return shortages
}

// raceShortage re-reads stock after a lost reservation so the caller sees
// every line that is short now, not only the one that tripped.
func (s *OrderService) raceShortage(ctx context.Context, items []domain.ItemRequest, before map[string]*domain.Product, failed string) error {
	current := make(map[string]*domain.Product, len(before))
	for id, p := range before {
		fresh, err := s.products.GetByID(ctx, id)
		if err != nil {
			cp := *p
			if errors.Is(err, repository.ErrNotFound) {
				cp.Quantity = 0
			}
			fresh = &cp
		}
		current[id] = fresh
	}
	return &domain.OutOfStockError{Items: partition(items, current, failed)}
}

// release undoes reservations taken by this request
func (s *OrderService) release(ctx context.Context, reserved []domain.ItemRequest) {
	for _, it := range reserved {
		s.restore(ctx, it.ProductID, it.Quantity)
	}
}

func (s *OrderService) restore(ctx context.Context, productID string, qty int64) {
	if err := s.inventory.Restore(ctx, productID, qty); err != nil {
		s.opts.Logger.ErrorContext(ctx, "restore stock failed",
			slog.String("product_id", productID),
			slog.Int64("quantity", qty),
			slog.Any("err", err))
	}
}

// ListOrders returns orders newest first. Non-admins only ever see their own.
func (s *OrderService) ListOrders(ctx context.Context, actor domain.Identity, f repository.OrderFilter) ([]domain.Order, error) {
	if !actor.IsAdmin() {
		if actor.UserID == "" {
			return nil, domain.ErrForbidden
		}
		f.UserID = actor.UserID
	}
	return s.orders.List(ctx, f)
}

func (s *OrderService) GetOrder(ctx context.Context, actor domain.Identity, id string) (*domain.Order, error) {
	o, err := s.getOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.VisibleTo(actor) {
		return nil, domain.ErrForbidden
	}
	return o, nil
}

func (s *OrderService) getOrder(ctx context.Context, id string) (*domain.Order, error) {
	if id == "" {
		return nil, domain.ErrOrderNotFound
	}
	o, err := s.orders.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// TransitionOrder moves a pending order to completed or cancelled. The write
// only lands while the order is still pending; cancelling puts every line's
// quantity back in the same transaction.
func (s *OrderService) TransitionOrder(ctx context.Context, actor domain.Identity, id string, to domain.OrderStatus) (*domain.Order, error) {
	o, err := s.getOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := o.CheckTransition(actor, to); err != nil {
		return nil, err
	}

	var updated *domain.Order
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		u, err := s.orders.UpdateStatus(ctx, o.ID, o.Status, to)
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrOrderNotFound
		}
		if err != nil {
			return err
		}
		if to == domain.OrderStatusCancelled {
			s.release(ctx, lineItems(u.Lines))
		}
		updated = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	if to == domain.OrderStatusCancelled {
		s.invalidate(ctx, updated.Lines)
		s.publish(ctx, domain.EventOrderCancelled, updated)
	} else {
		s.publish(ctx, domain.EventOrderCompleted, updated)
	}
	s.opts.Logger.InfoContext(ctx, "order status changed",
		slog.String("order_id", updated.ID),
		slog.String("status", string(updated.Status)),
		slog.String("actor", actor.UserID))
	return updated, nil
}

// DeleteOrder is admin only. A pending order is cancelled first so its stock
// comes back exactly once even if a cancel races the delete.
func (s *OrderService) DeleteOrder(ctx context.Context, actor domain.Identity, id string) error {
	if !actor.IsAdmin() {
		return domain.ErrForbidden
	}

	var deleted *domain.Order
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		o, err := s.getOrder(ctx, id)
		if err != nil {
			return err
		}
		if o.Status == domain.OrderStatusPending {
			u, err := s.orders.UpdateStatus(ctx, o.ID, domain.OrderStatusPending, domain.OrderStatusCancelled)
			switch {
			case err == nil:
				s.release(ctx, lineItems(u.Lines))
				o = u
			case errors.Is(err, domain.ErrConcurrencyConflict):
				// someone else settled it; their transition owns the stock
				if o, err = s.getOrder(ctx, id); err != nil {
					return err
				}
			default:
				return err
			}
		}
		if err := s.orders.Delete(ctx, o.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.ErrOrderNotFound
			}
			return err
		}
		deleted = o
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, deleted.Lines)
	s.publish(ctx, domain.EventOrderDeleted, deleted)
	s.opts.Logger.InfoContext(ctx, "order deleted", slog.String("order_id", deleted.ID))
	return nil
}

func (s *OrderService) invalidate(ctx context.Context, lines []domain.OrderLine) {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	if err := s.opts.Cache.Invalidate(ctx, ids...); err != nil {
		s.opts.Logger.WarnContext(ctx, "product cache invalidate failed", slog.Any("err", err))
	}
}

// publish never fails the caller: the change is already committed
func (s *OrderService) publish(ctx context.Context, typ domain.OrderEventType, o *domain.Order) {
	ev := domain.OrderEvent{
		ID:         s.opts.NewID(),
		Type:       typ,
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     o.Status,
		TotalPrice: o.TotalPrice,
		OccurredAt: s.opts.Clock(),
	}
	if err := s.opts.Events.Publish(ctx, ev); err != nil {
		s.opts.Logger.WarnContext(ctx, "order event publish failed",
			slog.String("type", string(typ)),
			slog.String("order_id", o.ID),
			slog.Any("err", err))
	}
}
