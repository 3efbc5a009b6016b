package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

type RouterConfig struct {
	Handler  *Handler
	Metrics  http.Handler
	APIToken string
	Logger   *slog.Logger
}

// NewRouter mounts the JSON API under /api behind the bearer guard. /health
// and /metrics stay public.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(Recovery(cfg.Logger))
	r.Use(RequestID)
	r.Use(Logging(cfg.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	h := cfg.Handler
	r.Get("/health", h.Health)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(BearerAuth(cfg.APIToken))

		r.Route("/sync", func(r chi.Router) {
			r.Post("/", h.SyncIncremental)
			r.Post("/full", h.SyncFull)
			r.Post("/backfill", h.Backfill)
			r.Get("/status", h.SyncStatus)
		})

		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{id}", h.GetOrder)
		r.Get("/statuses", h.Statuses)
		r.Get("/channels", h.Channels)
		r.Get("/summary", h.Summary)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, NotFound(""))
	})

	return r
}
