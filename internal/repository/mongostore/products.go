package mongostore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/domain"
	"storefront/internal/repository"
)

type productDoc struct {
	ID          string               `bson:"_id"`
	Name        string               `bson:"name"`
	Price       primitive.Decimal128 `bson:"price"`
	Quantity    int64                `bson:"quantity"`
	Description string               `bson:"description"`
	Image       string               `bson:"image,omitempty"`
	CreatedAt   time.Time            `bson:"created_at"`
	UpdatedAt   time.Time            `bson:"updated_at"`
}

func (d productDoc) toDomain() (*domain.Product, error) {
	price, err := fromDecimal128(d.Price)
	if err != nil {
		return nil, err
	}
	return &domain.Product{
		ID:          d.ID,
		Name:        d.Name,
		Price:       price,
		Quantity:    d.Quantity,
		Description: d.Description,
		Image:       d.Image,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

type Products struct {
	coll *mongo.Collection
}

func NewProducts(s *Store) *Products {
	return &Products{coll: s.db.Collection(productsCollection)}
}

var (
	_ repository.ProductRepository = (*Products)(nil)
	_ repository.Inventory         = (*Products)(nil)
)

func (r *Products) Create(ctx context.Context, p *domain.Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
		p.UpdatedAt = p.CreatedAt
	}
	price, err := toDecimal128(p.Price)
	if err != nil {
		return err
	}
	doc := productDoc{
		ID:          p.ID,
		Name:        p.Name,
		Price:       price,
		Quantity:    p.Quantity,
		Description: p.Description,
		Image:       p.Image,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *Products) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	var doc productDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return doc.toDomain()
}

func (r *Products) Update(ctx context.Context, p *domain.Product) error {
	price, err := toDecimal128(p.Price)
	if err != nil {
		return err
	}
	update := bson.M{"$set": bson.M{
		"name":        p.Name,
		"price":       price,
		"description": p.Description,
		"image":       p.Image,
		"updated_at":  time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc productDoc
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"_id": p.ID}, update, opts).Decode(&doc); err != nil {
		return notFound(err)
	}
	updated, err := doc.toDomain()
	if err != nil {
		return err
	}
	*p = *updated
	return nil
}

func (r *Products) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *Products) List(ctx context.Context, f repository.ProductFilter) ([]domain.Product, error) {
	filter := bson.M{}
	if f.NameSubstring != "" {
		filter["name"] = primitive.Regex{Pattern: regexp.QuoteMeta(f.NameSubstring), Options: "i"}
	}
	price := bson.M{}
	if f.MinPrice != nil {
		v, err := toDecimal128(*f.MinPrice)
		if err != nil {
			return nil, err
		}
		price["$gte"] = v
	}
	if f.MaxPrice != nil {
		v, err := toDecimal128(*f.MaxPrice)
		if err != nil {
			return nil, err
		}
		price["$lte"] = v
	}
	if len(price) > 0 {
		filter["price"] = price
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	products := make([]domain.Product, 0)
	for cur.Next(ctx) {
		var doc productDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		p, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, cur.Err()
}

// CheckAndReserve decrements only while the stored quantity covers qty.
func (r *Products) CheckAndReserve(ctx context.Context, productID string, qty int64) (int64, bool, error) {
	filter := bson.M{"_id": productID, "quantity": bson.M{"$gte": qty}}
	update := bson.M{
		"$inc": bson.M{"quantity": -qty},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"quantity": 1})

	var doc struct {
		Quantity int64 `bson:"quantity"`
	}
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.Quantity, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, fmt.Errorf("reserve stock: %w", err)
	}

	err = r.coll.FindOne(ctx, bson.M{"_id": productID}, options.FindOne().SetProjection(bson.M{"quantity": 1})).Decode(&doc)
	if err != nil {
		return 0, false, notFound(err)
	}
	return doc.Quantity, false, nil
}

func (r *Products) Restore(ctx context.Context, productID string, qty int64) error {
	filter := bson.M{"_id": productID, "quantity": bson.M{"$lte": math.MaxInt64 - qty}}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{
		"$inc": bson.M{"quantity": qty},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": productID})
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrStockOverflow
}
