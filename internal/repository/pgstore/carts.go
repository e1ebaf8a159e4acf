package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"storefront/internal/domain"
	"storefront/internal/repository"
)

type Carts struct {
	db *DB
}

func NewCarts(db *DB) *Carts { return &Carts{db: db} }

var _ repository.CartRepository = (*Carts)(nil)

func scanCart(row pgx.Row) (*domain.Cart, error) {
	var (
		c     domain.Cart
		items []byte
	)
	if err := row.Scan(&c.UserID, &items, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &c.Items); err != nil {
		return nil, fmt.Errorf("decode cart items: %w", err)
	}
	if c.Items == nil {
		c.Items = []domain.CartItem{}
	}
	return &c, nil
}

func (r *Carts) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	c, err := scanCart(r.db.q(ctx).QueryRow(ctx,
		`SELECT user_id, items, created_at, updated_at FROM carts WHERE user_id = $1`, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// Mutate locks the cart row for the duration of fn.
func (r *Carts) Mutate(ctx context.Context, userID string, create bool, fn func(c *domain.Cart) error) (*domain.Cart, error) {
	var out *domain.Cart
	err := r.db.WithTransaction(ctx, func(ctx context.Context) error {
		q := r.db.q(ctx)
		if create {
			now := time.Now().UTC()
			_, err := q.Exec(ctx, `
				INSERT INTO carts (user_id, items, created_at, updated_at)
				VALUES ($1, '[]', $2, $2)
				ON CONFLICT (user_id) DO NOTHING
			`, userID, now)
			if err != nil {
				return fmt.Errorf("init cart: %w", err)
			}
		}

		c, err := scanCart(q.QueryRow(ctx,
			`SELECT user_id, items, created_at, updated_at FROM carts WHERE user_id = $1 FOR UPDATE`, userID))
		if err != nil {
			return notFound(err)
		}
		if err := fn(c); err != nil {
			return err
		}

		items, err := json.Marshal(c.Items)
		if err != nil {
			return fmt.Errorf("encode cart items: %w", err)
		}
		c.UpdatedAt = time.Now().UTC()
		if _, err := q.Exec(ctx,
			`UPDATE carts SET items = $2, updated_at = $3 WHERE user_id = $1`, userID, items, c.UpdatedAt); err != nil {
			return fmt.Errorf("save cart: %w", err)
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
