// Package httptransport is the thin HTTP layer. Handlers delegate to domain
// services; the trust boundary (CSRF, lockout, breakers, signing) is enforced
// by the packages they compose.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"civicgate/internal/auth"
	"civicgate/internal/circuit"
	"civicgate/internal/csrf"
	"civicgate/internal/downstream"
	"civicgate/internal/lockout"
	"civicgate/internal/platform/config"
	"civicgate/internal/shutdown"
	"civicgate/internal/token"
)

// Handler bundles the services the routes need.
type Handler struct {
	authService    *auth.Service
	lockouts       *lockout.Tracker
	breakers       *circuit.Manager
	shutdown       *shutdown.Coordinator
	downstream     *downstream.Client
	tokens         *token.Service
	downstreamURLs config.DownstreamConfig
	logger         *slog.Logger
}

// NewHandler wires the HTTP layer.
func NewHandler(
	authService *auth.Service,
	lockouts *lockout.Tracker,
	breakers *circuit.Manager,
	coordinator *shutdown.Coordinator,
	client *downstream.Client,
	tokens *token.Service,
	downstreamURLs config.DownstreamConfig,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		authService:    authService,
		lockouts:       lockouts,
		breakers:       breakers,
		shutdown:       coordinator,
		downstream:     client,
		tokens:         tokens,
		downstreamURLs: downstreamURLs,
		logger:         logger,
	}
}

// NewRouter builds the route tree. The CSRF guard wraps everything except the
// probe and metrics endpoints, which are only reachable inside the cluster.
func NewRouter(h *Handler, guard *csrf.Guard) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(RequestContext)

	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(guard.Middleware)

		r.Post("/auth/login", h.handleLogin)

		r.Route("/v1", func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Post("/search", h.handleKnowledgeSearch)
			r.Post("/records", h.handleCivicRecords)
			r.Post("/documents", h.handleDocuments)
		})

		r.Route("/internal", func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/lockouts", h.handleLockoutStatus)
			r.Post("/lockouts/clear", h.handleUnlock)
		})
	})

	return r
}
