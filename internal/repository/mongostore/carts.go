package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/domain"
	"storefront/internal/repository"
)

// maxCartAttempts bounds the optimistic retry loop of Mutate
const maxCartAttempts = 5

type cartItemDoc struct {
	ProductID string `bson:"product_id"`
	Quantity  int64  `bson:"quantity"`
}

type cartDoc struct {
	UserID    string        `bson:"_id"`
	Items     []cartItemDoc `bson:"items"`
	Version   int64         `bson:"version"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`
}

func (d cartDoc) toDomain() *domain.Cart {
	items := make([]domain.CartItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, domain.CartItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return &domain.Cart{UserID: d.UserID, Items: items, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
}

func itemDocs(items []domain.CartItem) []cartItemDoc {
	out := make([]cartItemDoc, 0, len(items))
	for _, it := range items {
		out = append(out, cartItemDoc{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

type Carts struct {
	coll *mongo.Collection
}

func NewCarts(s *Store) *Carts {
	return &Carts{coll: s.db.Collection(cartsCollection)}
}

var _ repository.CartRepository = (*Carts)(nil)

func (r *Carts) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	var doc cartDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return doc.toDomain(), nil
}

// Mutate applies fn with optimistic concurrency on the version field.
func (r *Carts) Mutate(ctx context.Context, userID string, create bool, fn func(c *domain.Cart) error) (*domain.Cart, error) {
	for attempt := 0; attempt < maxCartAttempts; attempt++ {
		var doc cartDoc
		err := r.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			if !create {
				return nil, repository.ErrNotFound
			}
			c := domain.NewCart(userID, time.Now().UTC())
			if err := fn(c); err != nil {
				return nil, err
			}
			_, err := r.coll.InsertOne(ctx, cartDoc{
				UserID:    userID,
				Items:     itemDocs(c.Items),
				Version:   1,
				CreatedAt: c.CreatedAt,
				UpdatedAt: c.UpdatedAt,
			})
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("insert cart: %w", err)
			}
			return c, nil
		case err != nil:
			return nil, err
		}

		c := doc.toDomain()
		if err := fn(c); err != nil {
			return nil, err
		}
		c.UpdatedAt = time.Now().UTC()
		res, err := r.coll.UpdateOne(ctx,
			bson.M{"_id": userID, "version": doc.Version},
			bson.M{"$set": bson.M{
				"items":      itemDocs(c.Items),
				"updated_at": c.UpdatedAt,
				"version":    doc.Version + 1,
			}},
		)
		if err != nil {
			return nil, fmt.Errorf("save cart: %w", err)
		}
		if res.MatchedCount == 1 {
			return c, nil
		}
	}
	return nil, domain.ErrConcurrencyConflict
}
