package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jfuertes/subman-backend/api/controllers"
	"github.com/jfuertes/subman-backend/api/middleware"
	apiclientsvc "github.com/jfuertes/subman-backend/internal/apiclients"
	auditsvc "github.com/jfuertes/subman-backend/internal/audit"
	customersvc "github.com/jfuertes/subman-backend/internal/customers"
	plansvc "github.com/jfuertes/subman-backend/internal/plans"
	subsvc "github.com/jfuertes/subman-backend/internal/subscriptions"
	webhooksvc "github.com/jfuertes/subman-backend/internal/webhooks"
	"github.com/jfuertes/subman-backend/pkg/config"
	"github.com/jfuertes/subman-backend/pkg/db"
	"github.com/jfuertes/subman-backend/pkg/logger"
	"github.com/jfuertes/subman-backend/pkg/redis"
)

// Services bundles everything the route tree needs.
type Services struct {
	Plans         plansvc.Service
	Customers     customersvc.Service
	Subscriptions subsvc.Service
	Webhooks      webhooksvc.Service
	APIClients    apiclientsvc.Service
	Audit         auditsvc.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	database *db.Client,
	redisClient *redis.Client,
	services Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, database, redisClient, logg))
	})

	rateLimitPolicy := middleware.RateLimitPolicy{
		Window:   cfg.RateLimit.Window,
		KeyLimit: cfg.RateLimit.KeyLimit,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(services.APIClients, logg))
		r.Use(middleware.TenantRateLimit(rateLimitPolicy, redisClient, logg))

		r.Route("/plans", func(r chi.Router) {
			r.Post("/", controllers.CreatePlan(services.Plans, logg))
			r.Get("/", controllers.ListPlans(services.Plans, logg))
			r.Get("/{planId}", controllers.GetPlan(services.Plans, logg))
			r.Patch("/{planId}", controllers.UpdatePlan(services.Plans, logg))
			r.Delete("/{planId}", controllers.DeletePlan(services.Plans, logg))
		})

		r.Route("/customers", func(r chi.Router) {
			r.Post("/", controllers.CreateCustomer(services.Customers, logg))
			r.Get("/", controllers.ListCustomers(services.Customers, logg))
			r.Get("/{customerId}", controllers.GetCustomer(services.Customers, logg))
			r.Patch("/{customerId}", controllers.UpdateCustomer(services.Customers, logg))
			r.Delete("/{customerId}", controllers.DeleteCustomer(services.Customers, logg))
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", controllers.CreateSubscription(services.Subscriptions, logg))
			r.Get("/", controllers.ListSubscriptions(services.Subscriptions, logg))
			r.Get("/ending-soon", controllers.EndingSoonSubscriptions(services.Subscriptions, logg))
			r.Get("/expired", controllers.RecentlyExpiredSubscriptions(services.Subscriptions, logg))
			r.Post("/evaluate", controllers.EvaluateSubscriptions(services.Subscriptions, logg))
			r.Get("/{subscriptionId}", controllers.GetSubscription(services.Subscriptions, logg))
			r.Patch("/{subscriptionId}", controllers.UpdateSubscription(services.Subscriptions, logg))
			r.Delete("/{subscriptionId}", controllers.DeleteSubscription(services.Subscriptions, logg))
			r.Post("/{subscriptionId}/pause", controllers.PauseSubscription(services.Subscriptions, logg))
			r.Post("/{subscriptionId}/resume", controllers.ResumeSubscription(services.Subscriptions, logg))
			r.Post("/{subscriptionId}/cancel", controllers.CancelSubscription(services.Subscriptions, logg))
		})

		r.Route("/webhook-endpoints", func(r chi.Router) {
			r.Post("/", controllers.CreateWebhookEndpoint(services.Webhooks, logg))
			r.Get("/", controllers.ListWebhookEndpoints(services.Webhooks, logg))
			r.Get("/{endpointId}", controllers.GetWebhookEndpoint(services.Webhooks, logg))
			r.Patch("/{endpointId}", controllers.UpdateWebhookEndpoint(services.Webhooks, logg))
			r.Delete("/{endpointId}", controllers.DeleteWebhookEndpoint(services.Webhooks, logg))
		})
		r.Get("/webhook-deliveries", controllers.ListWebhookDeliveries(services.Webhooks, logg))

		r.Route("/api-clients", func(r chi.Router) {
			r.Post("/", controllers.CreateAPIClient(services.APIClients, logg))
			r.Get("/", controllers.ListAPIClients(services.APIClients, logg))
			r.Get("/{apiClientId}", controllers.GetAPIClient(services.APIClients, logg))
			r.Patch("/{apiClientId}", controllers.UpdateAPIClient(services.APIClients, logg))
			r.Delete("/{apiClientId}", controllers.DeleteAPIClient(services.APIClients, logg))
		})

		r.Get("/audit-logs", controllers.ListAuditLogs(services.Audit, logg))
	})

	return r
}
