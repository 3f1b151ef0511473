package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/jfuertes/subman-backend/internal/audit"
	"github.com/jfuertes/subman-backend/internal/cron"
	"github.com/jfuertes/subman-backend/internal/customers"
	"github.com/jfuertes/subman-backend/internal/plans"
	"github.com/jfuertes/subman-backend/internal/subscriptions"
	"github.com/jfuertes/subman-backend/internal/webhooks"
	"github.com/jfuertes/subman-backend/pkg/config"
	"github.com/jfuertes/subman-backend/pkg/db"
	"github.com/jfuertes/subman-backend/pkg/logger"
	"github.com/jfuertes/subman-backend/pkg/metrics"
	"github.com/jfuertes/subman-backend/pkg/migrate"
	"github.com/jfuertes/subman-backend/pkg/redis"
)

const lockKeyFormat = "sm:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	webhookMetrics := metrics.NewWebhookDeliveryMetrics(prometheus.DefaultRegisterer)

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, dbClient, logg, webhookMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to wire cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if metricsPort := os.Getenv("SUBMAN_METRICS_PORT"); metricsPort != "" {
		go serveMetrics(ctx, logg, metricsPort)
	}

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, dbClient *db.Client, logg *logger.Logger, webhookMetrics *metrics.WebhookDeliveryMetrics) (*cron.Registry, error) {
	gormDB := dbClient.DB()

	auditService, err := audit.NewService(gormDB)
	if err != nil {
		return nil, err
	}
	planService, err := plans.NewService(plans.NewRepository(gormDB), dbClient, auditService)
	if err != nil {
		return nil, err
	}
	customerService, err := customers.NewService(customers.NewRepository(gormDB), dbClient, auditService)
	if err != nil {
		return nil, err
	}

	webhookRepo := webhooks.NewRepository(gormDB)
	webhookService, err := webhooks.NewService(webhooks.ServiceParams{
		Repo:     webhookRepo,
		TxRunner: dbClient,
		Audit:    auditService,
	})
	if err != nil {
		return nil, err
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
		return nil, err
	}

	dispatcher, err := webhooks.NewDispatcher(webhooks.DispatcherParams{
		Repo:        webhookRepo,
		Client:      &http.Client{Timeout: cfg.Webhooks.RequestTimeout},
		BatchSize:   cfg.Webhooks.BatchSize,
		MaxAttempts: cfg.Webhooks.MaxAttempts,
		Logger:      logg,
		Metrics:     webhookMetrics,
	})
	if err != nil {
		return nil, err
	}

	expirationJob, err := cron.NewExpirationJob(cron.ExpirationJobParams{
		Service: subscriptionService,
		Logger:  logg,
	})
	if err != nil {
		return nil, err
	}
	dispatchJob, err := cron.NewDispatchJob(cron.DispatchJobParams{
		Dispatcher: dispatcher,
		Logger:     logg,
	})
	if err != nil {
		return nil, err
	}

	return cron.NewRegistry(expirationJob, dispatchJob), nil
}

func serveMetrics(ctx context.Context, logg *logger.Logger, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: ":" + port, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "metrics server stopped unexpectedly", err)
	}
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
