// Package rest wires the HTTP surface: the channel webhook, health
// probes and the dashboard's tenant-scoped read API.
package rest

import (
	"net/http"

	"chatflow-backend/application/dialogue"
	"chatflow-backend/application/ports"
	"chatflow-backend/infrastructure/config"
	"chatflow-backend/interfaces/http/rest/handlers"
	"chatflow-backend/interfaces/http/rest/middleware"
	"chatflow-backend/pkg/auth"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Router creates and configures the HTTP router
type Router struct {
	orchestrator *dialogue.Orchestrator
	flows        ports.FlowStore
	integrations ports.IntegrationStore
	cfg          *config.Config
	logger       *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	orchestrator *dialogue.Orchestrator,
	flows ports.FlowStore,
	integrations ports.IntegrationStore,
	cfg *config.Config,
	logger *zap.Logger,
) *Router {
	return &Router{
		orchestrator: orchestrator,
		flows:        flows,
		integrations: integrations,
		cfg:          cfg,
		logger:       logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))

	if rt.cfg.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:3000", "https://*.chatflow.app"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	// Health check
	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)

	// Channel webhook: verification handshake plus event delivery.
	// The platform authenticates with the verify token, not a JWT.
	webhookHandler := handlers.NewWebhookHandler(rt.orchestrator, rt.integrations, rt.cfg.WebhookVerifyToken, rt.logger)
	router.Get("/webhook", webhookHandler.Verify)
	router.Post("/webhook", webhookHandler.Receive)

	// Dashboard API
	router.Route("/api/v1", func(r chi.Router) {
		validator, err := auth.NewJWTValidator(auth.JWTConfig{
			SecretKey: rt.cfg.JWTSecret,
			Issuer:    rt.cfg.JWTIssuer,
		})
		if err != nil {
			rt.logger.Error("JWT validator unavailable, dashboard API disabled", zap.Error(err))
			r.HandleFunc("/*", func(w http.ResponseWriter, req *http.Request) {
				http.Error(w, "authentication unavailable", http.StatusServiceUnavailable)
			})
			return
		}
		r.Use(middleware.Authenticate(validator, rt.logger))

		flowHandler := handlers.NewFlowHandler(rt.flows, rt.logger)
		r.Route("/flows", func(r chi.Router) {
			r.Get("/", flowHandler.ListFlows)
			r.Get("/{flowID}", flowHandler.GetFlow)
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck handles readiness check requests
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
