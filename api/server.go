/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend
  5. Instrument: Prometheus latency per route

ROUTE GROUPS:
  /api/wallet/*       Balance, state, live stream
  /api/activities/*   Settlement and projection
  /api/transactions   History
  /api/calendar/*     Month summaries
  /api/days/*         Day details
  /api/wishlist/*     Wish items, favorite, purchase
  /api/purchases      Purchase history
  /api/admin/*        Admin overrides (X-Admin-Secret, bcrypt checked)
  /metrics            Prometheus

SEE ALSO:
  - handlers.go: Handler implementations
  - admin.go: Admin auth and handlers
  - cli/serve.go: Server startup
*/
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sportwallet/engine/metrics"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
	// AdminPasswordHash enables /api/admin when non-empty.
	AdminPasswordHash string
	Metrics           bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", AdminSecretHeader},
		AllowCredentials: true,
	}))
	r.Use(instrument)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", h.GetWallet)
			r.Get("/balance", h.GetBalance)
			r.Get("/stream", h.StreamWallet)
		})

		r.Route("/activities", func(r chi.Router) {
			r.Post("/stop", h.StopActivity)
			r.Post("/projection", h.ProjectActivity)
		})

		r.Get("/transactions", h.ListTransactions)
		r.Get("/calendar/{year}/{month}", h.GetMonthSummary)
		r.Get("/days/{day}", h.GetDayDetails)

		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", h.ListItems)
			r.Post("/", h.AddItem)
			r.Get("/favorite", h.GetFavorite)
			r.Put("/{id}", h.UpdateItem)
			r.Delete("/{id}", h.DeleteItem)
			r.Post("/{id}/favorite", h.SetFavorite)
			r.Post("/{id}/purchase", h.PurchaseItem)
		})

		r.Get("/purchases", h.ListPurchases)

		// Admin routes
		if opts.AdminPasswordHash != "" {
			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireAdmin(opts.AdminPasswordHash))
				r.Post("/reset", h.ResetDatabase)
				r.Get("/days/{day}", h.AdminGetDay)
				r.Put("/days/{day}", h.AdminUpsertDay)
				r.Post("/transactions", h.AdminInsertTransaction)
			})
		}
	})

	if opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// instrument records request latency by chi route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(route, strconv.Itoa(status/100)+"xx").
			Observe(time.Since(start).Seconds())
	})
}
