package router

import (
	"net/http"

	"giftbox-rest-api/internal/handler"
	"giftbox-rest-api/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	RewardHandler  *handler.RewardHandler
	BoosterHandler *handler.BoosterHandler
	AdminHandler   *handler.AdminHandler
	AuthHandler    *handler.AuthHandler
	AuthMiddleware func(http.Handler) http.Handler
	LoginKey       string
	AllowedOrigins []string
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Global middleware stack (applies to ALL routes)
	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key", "X-Token", "X-Login-Key"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// PUBLIC routes (no auth required)
	r.Handle("/metrics", promhttp.Handler())
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Handler != nil {
			r.Get("/health", cfg.Handler.Health)
			r.Get("/ready", cfg.Handler.Ready)
		}
		if cfg.BoosterHandler != nil {
			r.Get("/boosters/catalog", cfg.BoosterHandler.Catalog)
		}

		// Admin endpoints use the login key instead of player auth
		if cfg.AdminHandler != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireLoginKey(cfg.LoginKey))
				r.Get("/stats", cfg.AdminHandler.GetStats)
				r.Get("/health", cfg.AdminHandler.GetHealth)
				r.Post("/reconcile", cfg.AdminHandler.Reconcile)
			})
		}

		// AUTHENTICATED routes
		r.Group(func(r chi.Router) {
			if cfg.AuthMiddleware != nil {
				r.Use(cfg.AuthMiddleware)
			}

			if cfg.AuthHandler != nil {
				r.Route("/auth", func(r chi.Router) {
					r.With(middleware.RequireAPIKey).Post("/token", cfg.AuthHandler.GenerateToken)
					r.Post("/revoke", cfg.AuthHandler.RevokeToken)
					r.Post("/refresh", cfg.AuthHandler.RefreshToken)
				})
			}

			r.Route("/players/{fid}", func(r chi.Router) {
				r.Use(middleware.RequireFIDOwner)

				if cfg.RewardHandler != nil {
					r.Get("/claims", cfg.RewardHandler.Claims)
					r.Get("/rewards/{channel}", cfg.RewardHandler.Eligibility)
					r.Post("/rewards/{channel}", cfg.RewardHandler.Grant)
				}

				if cfg.BoosterHandler != nil {
					r.Get("/boosters", cfg.BoosterHandler.Inventory)
					r.Post("/boosters/purchase", cfg.BoosterHandler.Purchase)
					r.Post("/boosters/use", cfg.BoosterHandler.Use)
				}
			})
		})
	})

	return r
}
