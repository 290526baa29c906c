/**
 * @description
 * This file sets up the HTTP router for the escrow-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS middleware for browser clients.
 */

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// HealthChecker reports whether a downstream dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// EscrowRoutes creates and returns a new router for the escrow service.
// Cron and reconciliation endpoints live under /internal and require the
// shared internal API key; everything else requires a Clerk JWT.
// Either health checker may be nil, in which case that probe is skipped.
func EscrowRoutes(h *EscrowHandlers, metrics *MetricsRegistry, jwksURL, internalKey string, db, rpc HealthChecker) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoint probing each downstream dependency.
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		components := map[string]string{"database": "ok", "chain_rpc": "ok"}
		if db != nil {
			if err := db.Ping(ctx); err != nil {
				components["database"] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		if rpc != nil {
			if err := rpc.Ping(ctx); err != nil {
				components["chain_rpc"] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(components)
	})

	r.Method(http.MethodGet, "/metrics", metrics.handler())

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(ClerkAuthMiddleware(jwksURL))

		r.Post("/escrow/transfers", h.CreateTransferHandler)
		r.Get("/escrow/transfers", h.ListForRecipientHandler)
		r.Get("/escrow/transfers/sent", h.ListSentHandler)
		r.Post("/escrow/transfers/{id}/claim", h.ClaimTransferHandler)
		r.Post("/escrow/transfers/{id}/cancel", h.CancelTransferHandler)
		r.Post("/escrow/transfers/auto-claim", h.AutoClaimHandler)
	})

	r.Route("/internal/escrow", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalKey))
		r.Post("/expire", h.ExpireTransfersHandler)
		r.Post("/remind", h.SendRemindersHandler)
		r.Post("/transfers/{id}/sync", h.SyncTransferHandler)
	})

	return r
}
