package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"storefront/internal/config"
	"storefront/internal/repository"
	"storefront/internal/repository/mongostore"
	"storefront/internal/repository/pgstore"
)

type storage struct {
	products  repository.ProductRepository
	inventory repository.Inventory
	orders    repository.OrderRepository
	carts     repository.CartRepository
	tx        repository.TxManager
	close     func()
}

func openStorage(ctx context.Context, cfg config.Config, log *slog.Logger) (*storage, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		s, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoTransactions)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		products := mongostore.NewProducts(s)
		return &storage{
			products:  products,
			inventory: products,
			orders:    mongostore.NewOrders(s),
			carts:     mongostore.NewCarts(s),
			tx:        s,
			close: func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.Close(ctx); err != nil {
					log.Error("mongo disconnect", slog.Any("err", err))
				}
			},
		}, nil

	case config.DriverPostgres:
		db, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		products := pgstore.NewProducts(db)
		return &storage{
			products:  products,
			inventory: products,
			orders:    pgstore.NewOrders(db),
			carts:     pgstore.NewCarts(db),
			tx:        db,
			close:     db.Close,
		}, nil

	default:
		store := repository.NewMemoryStore()
		return &storage{
			products:  store,
			inventory: store,
			orders:    repository.NewMemoryOrders(store),
			carts:     repository.NewMemoryCarts(store),
			tx:        repository.NewMemoryTx(store),
			close:     func() {},
		}, nil
	}
}
