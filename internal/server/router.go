package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/herald/api/internal/auth"
	"github.com/herald/api/internal/handler"
	"github.com/herald/api/internal/ratelimit"
)

// Route patterns the rate limiter keys its rules on.
const (
	PatternSubscribe   = "/api/content/{id}/subscriptions/subscribe"
	PatternUnsubscribe = "/api/content/{id}/subscriptions/unsubscribe"
	PatternConfirm     = "/*"
)

// RouterOptions carries the optional pieces of the router. A nil Limiter
// disables rate limiting, an empty AdminToken leaves the admin API
// unmounted, and a nil Metrics handler hides /metrics.
type RouterOptions struct {
	Limiter        *ratelimit.Limiter
	AllowedOrigins []string
	AdminToken     string
	Metrics        http.Handler
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(h *handler.Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			ExposedHeaders: []string{"X-Request-Id", "X-RateLimit-Remaining", "Retry-After"},
			MaxAge:         86400,
		}))
	}

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	limited := ratelimit.Middleware(opts.Limiter)

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Route("/content/{id}/subscriptions", func(r chi.Router) {
			r.Get("/", h.SubscriptionStatus)
			r.With(limited).Post("/subscribe", h.RequestSubscription)
			r.With(limited).Post("/unsubscribe", h.RequestCancellation)
		})

		if opts.AdminToken != "" {
			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireAdmin(opts.AdminToken))
				r.Get("/settings", h.GetSettings)
				r.Patch("/settings", h.UpdateSettings)
				r.Post("/subscriptions/enable", h.EnableSubscriptions)
				r.Post("/subscriptions/disable", h.DisableSubscriptions)
				r.Post("/content", h.CreateContent)
				r.Get("/content/{id}/subscriptions", h.GetContentSubscriptions)
				r.Put("/content/{id}/subscriptions", h.UpdateContentSubscriptions)
				r.Post("/events/published", h.Published)
			})
		}
	})

	// Confirmation links live below the content path they refer to
	r.With(limited).Get("/*", h.Confirm)

	return r
}
