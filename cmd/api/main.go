package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/accra-labs/storefront-backend/api/routes"
	"github.com/accra-labs/storefront-backend/internal/addresses"
	"github.com/accra-labs/storefront-backend/internal/auth"
	"github.com/accra-labs/storefront-backend/internal/carts"
	"github.com/accra-labs/storefront-backend/internal/categories"
	"github.com/accra-labs/storefront-backend/internal/notifications"
	"github.com/accra-labs/storefront-backend/internal/orders"
	"github.com/accra-labs/storefront-backend/internal/products"
	"github.com/accra-labs/storefront-backend/internal/users"
	"github.com/accra-labs/storefront-backend/pkg/config"
	"github.com/accra-labs/storefront-backend/pkg/db"
	"github.com/accra-labs/storefront-backend/pkg/logger"
	"github.com/accra-labs/storefront-backend/pkg/metrics"
	"github.com/accra-labs/storefront-backend/pkg/migrate"
	pkgredis "github.com/accra-labs/storefront-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := pkgredis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	commerceMetrics := metrics.NewCommerceMetrics(registry)

	conn := dbClient.DB()
	usersRepo := users.NewRepository(conn)
	addressesRepo := addresses.NewRepository(conn)
	categoriesRepo := categories.NewRepository(conn)
	productsRepo := products.NewRepository(conn)
	cartsRepo := carts.NewRepository(conn)
	ordersRepo := orders.NewRepository(conn)
	notificationsRepo := notifications.NewRepository(conn)

	dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
		Repo:     notificationsRepo,
		Orders:   ordersRepo,
		Products: productsRepo,
		Logger:   logg,
		Metrics:  commerceMetrics,
		Config:   cfg.Notifications,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification dispatcher", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       usersRepo,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}
	addressesService, err := addresses.NewService(addressesRepo, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create addresses service", err)
		os.Exit(1)
	}
	categoriesService, err := categories.NewService(categoriesRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create categories service", err)
		os.Exit(1)
	}
	productsService, err := products.NewService(productsRepo, dispatcher)
	if err != nil {
		logg.Error(context.Background(), "failed to create products service", err)
		os.Exit(1)
	}
	cartsService, err := carts.NewService(cartsRepo, dbClient, commerceMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create carts service", err)
		os.Exit(1)
	}
	ordersService, err := orders.NewService(ordersRepo, dbClient, dispatcher, commerceMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}
	notificationsService, err := notifications.NewService(notifications.ServiceParams{Repo: notificationsRepo})
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go dispatcher.Run(shutdownCtx)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, registry, routes.Services{
			Auth:          authService,
			Addresses:     addressesService,
			Categories:    categoriesService,
			Products:      productsService,
			Carts:         cartsService,
			Orders:        ordersService,
			Notifications: notificationsService,
		}),
	}

	go func() {
		<-shutdownCtx.Done()
		timeout, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(timeout); err != nil {
			logg.Error(ctx, "server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}
