package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/cart"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/catalog"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/checkout"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/circuitbreaker"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/config"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/coupon"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/events"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/guest"
	h "github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/http"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/logger"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/order"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/repository"
	"github.com/Vaishnavi-Parameswaran/ar-gifts-crafts-sub001/internal/session"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg := logger.New("storefront", logger.ParseLevel(cfg.LogLevel), os.Stdout)

	// Set up MongoDB connection
	ctx := context.Background()
	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		if err := mongoDB.Client().Disconnect(context.Background()); err != nil {
			lg.Error("failed to disconnect from MongoDB", "error", err)
		}
	}()

	carts := repository.NewMongoCartRepository(mongoDB, lg)
	if err := repository.EnsureIndexes(ctx, carts); err != nil {
		log.Fatalf("Failed to create cart indexes: %v", err)
	}
	lg.Info("connected to MongoDB", "uri", cfg.MongoURI)

	// Guest carts live in Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	guestCarts := guest.NewRedisStore(redisClient, cfg.GuestCartTTL)
	lg.Info("connected to Redis", "addr", cfg.RedisAddr)

	// Orders and coupons
	pg, err := repository.NewPostgresRepository(&cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pg.Close()
	if err := pg.RunMigrations(&cfg.Postgres); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	products, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	defer products.Close()
	if err := products.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
		log.Fatalf("Failed to run catalog migrations: %v", err)
	}

	publisher := events.NewPublisher(cfg.OrderEventsTopic, lg, cfg.KafkaBrokers...)
	defer publisher.Close()

	coupons := coupon.NewEngine(pg, lg)
	lifecycle := order.NewLifecycle(pg, coupons, publisher, cfg.Pricing, lg)
	checkoutService := checkout.NewService(lifecycle, cfg.RequestTimeout, lg)

	// One breaker for all cart writes of this process
	breaker := circuitbreaker.New[struct{}]("cart-writes", lg)
	resolver := cart.NewResolver(carts, guestCarts, lg)
	sessions := session.NewRegistry(func() *cart.Store {
		return cart.NewStore(cart.Config{
			Remote:   carts,
			Guest:    guestCarts,
			Resolver: resolver,
			Breaker:  breaker,
			Logger:   lg,
		})
	}, cfg.SessionIdleTimeout, lg)

	router := h.NewRouter(h.RouterConfig{
		JWTSecret:          []byte(cfg.JWTSecret),
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: 1 << 20, // 1MB
		AllowedOrigins:     cfg.AllowedOrigins,
	}, h.Handlers{
		Cart:     h.NewCartHandler(sessions, products, cfg.RequestTimeout, lg),
		Checkout: h.NewCheckoutHandler(sessions, coupons, checkoutService, cfg.RequestTimeout, lg),
		Orders:   h.NewOrdersHandler(lifecycle, cfg.RequestTimeout, lg),
		Feed:     h.NewFeedHandler(sessions, cfg.AllowedOrigins, lg),
	}, lg)

	// WriteTimeout stays unset: the cart feed holds its connection open
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		lg.Info("storefront starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("server forced to shutdown", "error", err)
	}
	// flushes every session's pending cart writes
	sessions.Close()

	lg.Info("server exited")
}
