/**
 * @description
 * This file sets up the HTTP router for the buyer-service using the
 * go-chi/chi router. It defines the API routes, applies middleware for
 * logging, CORS, authentication and the superadmin gate, and maps routes
 * to their handler functions. Unmatched routes return the NOT_FOUND
 * envelope rather than chi's default 404 page.
 */
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sokoyetu/buyer-service/internal/domain"
)

// AuthConfig carries the JWT validation settings for the auth middleware.
type AuthConfig struct {
	JWKSURL  string
	Audience string
	Issuer   string
}

// NewRouter creates a new Chi router and registers the buyer-service routes.
func NewRouter(h *Handler, logger *slog.Logger, auth AuthConfig, checker CapabilityChecker) *chi.Mux {
	return newRouterWithAuth(h, logger, AuthMiddleware(logger, auth.JWKSURL, auth.Audience, auth.Issuer), checker)
}

// newRouterWithAuth lets tests substitute the auth middleware while keeping
// the real route table.
func newRouterWithAuth(h *Handler, logger *slog.Logger, authMW func(http.Handler) http.Handler, checker CapabilityChecker) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, logger, r, domain.NotFoundError("route not found"))
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Buyer service is healthy"))
	})

	// Protected routes that require authentication
	r.Group(func(r chi.Router) {
		r.Use(authMW)

		r.Route("/buyers", func(r chi.Router) {
			r.Get("/me", h.handleGetMe)
			r.Post("/createProfile", h.handleCreateProfile)
			r.Post("/requestPremiumUpgrade", h.handleRequestPremiumUpgrade)
			r.Post("/commitPurchase", h.handleCommitPurchase)
			r.Post("/recordPurchaseCompleted", h.handleCommitPurchase)
		})

		// Admin routes additionally require the superadmin capability.
		r.Route("/admin/buyers", func(r chi.Router) {
			r.Use(RequireSuperadmin(logger, checker))
			r.Get("/", h.handleListBuyers)
			r.Post("/{uid}/approve", h.handleApprove)
			r.Post("/{uid}/reject", h.handleReject)
			r.Post("/{uid}/setTier", h.handleSetTier)
			r.Post("/{uid}/setPremium", h.handleSetPremium)
		})
	})

	return r
}
