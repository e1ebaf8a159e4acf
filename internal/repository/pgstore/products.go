package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"storefront/internal/domain"
	"storefront/internal/repository"
)

type Products struct {
	db *DB
}

func NewProducts(db *DB) *Products { return &Products{db: db} }

var (
	_ repository.ProductRepository = (*Products)(nil)
	_ repository.Inventory         = (*Products)(nil)
)

const productColumns = `id, name, price::text, quantity, description, image, created_at, updated_at`

func scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p     domain.Product
		price string
	)
	if err := row.Scan(&p.ID, &p.Name, &price, &p.Quantity, &p.Description, &p.Image, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", price, err)
	}
	p.Price = d
	return &p, nil
}

func (r *Products) Create(ctx context.Context, p *domain.Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
		p.UpdatedAt = p.CreatedAt
	}
	query := `
		INSERT INTO products (id, name, price, quantity, description, image, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8)
	`
	_, err := r.db.q(ctx).Exec(ctx, query,
		p.ID, p.Name, p.Price.String(), p.Quantity, p.Description, p.Image, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *Products) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	p, err := scanProduct(r.db.q(ctx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (r *Products) Update(ctx context.Context, p *domain.Product) error {
	query := `
		UPDATE products
		SET name = $2, price = $3::numeric, description = $4, image = $5, updated_at = $6
		WHERE id = $1
		RETURNING ` + productColumns
	updated, err := scanProduct(r.db.q(ctx).QueryRow(ctx, query,
		p.ID, p.Name, p.Price.String(), p.Description, p.Image, time.Now().UTC()))
	if err != nil {
		return notFound(err)
	}
	*p = *updated
	return nil
}

func (r *Products) Delete(ctx context.Context, id string) error {
	tag, err := r.db.q(ctx).Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *Products) List(ctx context.Context, f repository.ProductFilter) ([]domain.Product, error) {
	var (
		conds []string
		args  []any
	)
	if f.NameSubstring != "" {
		args = append(args, "%"+f.NameSubstring+"%")
		conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if f.MinPrice != nil {
		args = append(args, f.MinPrice.String())
		conds = append(conds, fmt.Sprintf("price >= $%d::numeric", len(args)))
	}
	if f.MaxPrice != nil {
		args = append(args, f.MaxPrice.String())
		conds = append(conds, fmt.Sprintf("price <= $%d::numeric", len(args)))
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

func (r *Products) CheckAndReserve(ctx context.Context, productID string, qty int64) (int64, bool, error) {
	query := `
		UPDATE products SET quantity = quantity - $2, updated_at = NOW()
		WHERE id = $1 AND quantity >= $2
		RETURNING quantity
	`
	var remaining int64
	err := r.db.q(ctx).QueryRow(ctx, query, productID, qty).Scan(&remaining)
	if err == nil {
		return remaining, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, retryable(fmt.Errorf("reserve stock: %w", err))
	}

	// either the product is gone or stock is short
	err = r.db.q(ctx).QueryRow(ctx, `SELECT quantity FROM products WHERE id = $1`, productID).Scan(&remaining)
	if err != nil {
		return 0, false, notFound(err)
	}
	return remaining, false, nil
}

func (r *Products) Restore(ctx context.Context, productID string, qty int64) error {
	tag, err := r.db.q(ctx).Exec(ctx,
		`UPDATE products SET quantity = quantity + $2, updated_at = NOW() WHERE id = $1`, productID, qty)
	if isOutOfRange(err) {
		return repository.ErrStockOverflow
	}
	if err != nil {
		return retryable(fmt.Errorf("restore stock: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
