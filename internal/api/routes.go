package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes configures and returns the Chi router
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.corsOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300, // preflight cache
	}))

	// API V1 routes. Authentication happens upstream: the identity service
	// issues the JWTs, this backend only validates them.
	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Post("/wallet/ensure", h.handleEnsureWallet)
			r.Get("/wallet", h.handleWalletStatus)

			r.Post("/artist/token", h.handleProvisionToken)
			r.Get("/artist/token", h.handleTokenStatus)
			r.Post("/artist/issue", h.handleIssueAsset)
			r.Get("/artist/funding", h.handleCheckFunding)
			r.Post("/artist/listing", h.handleCreateListing)

			r.Post("/marketplace/buy", h.handleBuy)
		})
	})

	return r
}
