package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/events"
	httpapi "storefront/internal/http"
	"storefront/internal/logger"
	"storefront/internal/service"

	_ "storefront/docs"
)

// @title Storefront API
// @version 1.0
// @description Catalog, carts and all-or-nothing order placement.
// @host localhost:9091
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.Load()
	log := logger.New(logger.Options{
		Service:   "storefront",
		Env:       cfg.AppEnv,
		Level:     cfg.LogLevel,
		AddSource: true,
	})
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", slog.Any("err", err))
		os.Exit(1)
	}
	gin.SetMode(cfg.GinMode)

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	st, err := openStorage(startCtx, cfg, log)
	if err != nil {
		log.Error("storage init", slog.String("driver", cfg.StoreDriver), slog.Any("err", err))
		os.Exit(1)
	}
	defer st.close()

	opts := service.Options{
		Cache:       cache.Noop{},
		Events:      events.Noop{},
		Logger:      log,
		Concurrency: cfg.PlacementConcurrency,
	}

	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(startCtx, cfg.RedisURL)
		if err != nil {
			log.Error("redis init", slog.Any("err", err))
			os.Exit(1)
		}
		defer rdb.Close()
		opts.Cache = cache.NewRedisProductCache(rdb, cfg.ProductCacheTTL)
		log.Info("product cache enabled", slog.Duration("ttl", cfg.ProductCacheTTL))
	}

	if cfg.AMQPURL != "" {
		conn, ch, err := events.SetupConn(cfg.AMQPURL, log)
		if err != nil {
			log.Error("rabbitmq init", slog.Any("err", err))
			os.Exit(1)
		}
		pub := events.NewRabbitPublisher(conn, ch)
		defer pub.Close()
		opts.Events = pub
		log.Info("order events enabled", slog.String("exchange", events.ExchangeName))
	}

	productsSvc := service.NewProductService(st.products, st.inventory, opts)
	ordersSvc := service.NewOrderService(st.products, st.inventory, st.orders, st.tx, opts)
	cartsSvc := service.NewCartService(st.carts, st.products, ordersSvc, opts)

	srv := httpapi.NewServer(productsSvc, ordersSvc, cartsSvc, cfg.JWTSecret, log)

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("http server listening", slog.String("addr", httpServer.Addr), slog.String("driver", cfg.StoreDriver))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown requested")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("shutdown error", slog.Any("err", err))
	}
	log.Info("bye")
}
