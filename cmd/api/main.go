package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/jfuertes/subman-backend/api/routes"
	"github.com/jfuertes/subman-backend/internal/apiclients"
	"github.com/jfuertes/subman-backend/internal/audit"
	"github.com/jfuertes/subman-backend/internal/customers"
	"github.com/jfuertes/subman-backend/internal/plans"
	"github.com/jfuertes/subman-backend/internal/subscriptions"
	"github.com/jfuertes/subman-backend/internal/webhooks"
	"github.com/jfuertes/subman-backend/pkg/config"
	"github.com/jfuertes/subman-backend/pkg/db"
	"github.com/jfuertes/subman-backend/pkg/logger"
	"github.com/jfuertes/subman-backend/pkg/migrate"
	"github.com/jfuertes/subman-backend/pkg/redis"
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

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}

	defer func() {
		if err := multierr.Append(dbClient.Close(), redisClient.Close()); err != nil {
			logg.Error(context.Background(), "error closing clients", err)
		}
	}()

	services, err := buildServices(dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, services),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "error during shutdown", err)
		}
	}

	logg.Info(ctx, "api server shutting down gracefully")
}

func buildServices(dbClient *db.Client, logg *logger.Logger) (routes.Services, error) {
	gormDB := dbClient.DB()

	auditService, err := audit.NewService(gormDB)
	if err != nil {
		return routes.Services{}, err
	}

	planService, err := plans.NewService(plans.NewRepository(gormDB), dbClient, auditService)
	if err != nil {
		return routes.Services{}, err
	}

	customerService, err := customers.NewService(customers.NewRepository(gormDB), dbClient, auditService)
	if err != nil {
		return routes.Services{}, err
	}

	webhookService, err := webhooks.NewService(webhooks.ServiceParams{
		Repo:     webhooks.NewRepository(gormDB),
		TxRunner: dbClient,
		Audit:    auditService,
	})
	if err != nil {
		return routes.Services{}, err
	}

	subscriptionService, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:      subscriptions.NewRepository(gormDB),
		Plans:     planService,
		Customers: customerService,
		TxRunner:  dbClient,
		Emitter:   webhookService,
		Audit:     auditService,
		Logger:    logg,
	})
	if err != nil {
		return routes.Services{}, err
	}

	apiClientService, err := apiclients.NewService(apiclients.NewRepository(gormDB), dbClient, auditService)
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Plans:         planService,
		Customers:     customerService,
		Subscriptions: subscriptionService,
		Webhooks:      webhookService,
		APIClients:    apiClientService,
		Audit:         auditService,
	}, nil
}
