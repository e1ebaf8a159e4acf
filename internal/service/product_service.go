package service

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"golang.org/x/sync/singleflight"

	"storefront/internal/domain"
	"storefront/internal/repository"
)

// ProductService covers the catalog: product CRUD, reads through the cache and restocking
type ProductService struct {
	repo      repository.ProductRepository
	inventory repository.Inventory
	group     singleflight.Group
	opts      Options
}

func NewProductService(repo repository.ProductRepository, inventory repository.Inventory, opts Options) *ProductService {
	return &ProductService{repo: repo, inventory: inventory, opts: opts.withDefaults()}
}

func validateProduct(p domain.Product) error {
	if p.Name == "" {
		return &domain.MalformedRequestError{Index: -1, Field: "name", Reason: "is required"}
	}
	if p.Price.IsNegative() {
		return &domain.MalformedRequestError{Index: -1, Field: "price", Reason: "must not be negative"}
	}
	if !p.Price.Equal(p.Price.Round(2)) {
		return &domain.MalformedRequestError{Index: -1, Field: "price", Reason: "must have at most 2 decimal places"}
	}
	if p.Quantity < 0 {
		return &domain.MalformedRequestError{Index: -1, Field: "quantity", Reason: "must not be negative"}
	}
	return nil
}

func (s *ProductService) Create(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	cp := p
	cp.ID = s.opts.NewID()
	cp.CreatedAt = s.opts.Clock()
	cp.UpdatedAt = cp.CreatedAt
	if err := s.repo.Create(ctx, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// GetByID is cache-aside; concurrent misses for one id share a single store read.
func (s *ProductService) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	if id == "" {
		return nil, &domain.ProductNotFoundError{ProductID: id}
	}
	if p, ok, err := s.opts.Cache.Get(ctx, id); err != nil {
		s.opts.Logger.WarnContext(ctx, "product cache get failed", slog.String("product_id", id), slog.Any("err", err))
	} else if ok {
		return p, nil
	}

	v, err, _ := s.group.Do(id, func() (interface{}, error) {
		// shared by every waiter; one caller going away must not fail the rest
		ctx := context.WithoutCancel(ctx)
		p, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.opts.Cache.Set(ctx, p); err != nil {
			s.opts.Logger.WarnContext(ctx, "product cache set failed", slog.String("product_id", id), slog.Any("err", err))
		}
		return p, nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &domain.ProductNotFoundError{ProductID: id}
	}
	if err != nil {
		return nil, err
	}
	cp := *v.(*domain.Product)
	return &cp, nil
}

// Update changes the descriptive fields and price. Stock is only moved by the ledger.
func (s *ProductService) Update(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if p.ID == "" {
		return nil, &domain.MalformedRequestError{Index: -1, Field: "id", Reason: "is required"}
	}
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	cp := p
	if err := s.repo.Update(ctx, &cp); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &domain.ProductNotFoundError{ProductID: p.ID}
		}
		return nil, err
	}
	s.invalidate(ctx, cp.ID)
	return &cp, nil
}

func (s *ProductService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return &domain.ProductNotFoundError{ProductID: id}
		}
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *ProductService) List(ctx context.Context, f repository.ProductFilter) ([]domain.Product, error) {
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return nil, &domain.MalformedRequestError{Index: -1, Field: "min_price", Reason: "must not exceed max_price"}
	}
	return s.repo.List(ctx, f)
}

// Restock adds units through the ledger
func (s *ProductService) Restock(ctx context.Context, id string, qty int64) (*domain.Product, error) {
	if qty < 1 {
		return nil, domain.ErrInvalidQuantity
	}
	cur, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &domain.ProductNotFoundError{ProductID: id}
	}
	if err != nil {
		return nil, err
	}
	if qty > math.MaxInt64-cur.Quantity {
		return nil, errStockOverflow
	}

	// the ledger re-checks; stock may have moved since the read
	if err := s.inventory.Restore(ctx, id, qty); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, &domain.ProductNotFoundError{ProductID: id}
		case errors.Is(err, repository.ErrStockOverflow):
			return nil, errStockOverflow
		}
		return nil, err
	}
	s.invalidate(ctx, id)
	s.opts.Logger.InfoContext(ctx, "product restocked", slog.String("product_id", id), slog.Int64("quantity", qty))

	p, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &domain.ProductNotFoundError{ProductID: id}
	}
	return p, err
}

var errStockOverflow = &domain.MalformedRequestError{Index: -1, Field: "quantity", Reason: "would overflow the stock counter"}

func (s *ProductService) invalidate(ctx context.Context, id string) {
	if err := s.opts.Cache.Invalidate(ctx, id); err != nil {
		s.opts.Logger.WarnContext(ctx, "product cache invalidate failed", slog.String("product_id", id), slog.Any("err", err))
	}
}
