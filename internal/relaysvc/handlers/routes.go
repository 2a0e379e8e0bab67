package handlers

import (
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

func (h *Handler) SetRoutes(r chi.Router) {
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		// public routes here
		r.Get("/ws", h.HandleWebSocket)
		r.Get("/health", h.HealthHandler)

		// Secure routes
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(h.tokenAuth))
			r.Use(jwtauth.Authenticator)
			r.Use(middleware.Timeout(60 * time.Second))

			r.Get("/cards", h.ListCards)
			r.Get("/cards/{uid}", h.GetCard)
			r.Get("/transactions", h.ListTransactions)
			r.Get("/stats", h.GetStats)
			r.Post("/topup", h.Topup)
			r.Post("/scan", h.Scan)
		})
	})
}

func (h *Handler) InitAuth(secret string) {
	h.tokenAuth = jwtauth.New("HS256", []byte(secret), nil)

	expirationTime := time.Now().Add(7 * 24 * time.Hour).Unix()

	_, tokenString, _ := h.tokenAuth.Encode(map[string]interface{}{
		"sub": "relay-debug",
		"exp": expirationTime,
	})

	// For debugging only
	log.Debugf("DEBUG: JWT for testing expires soon : %s", tokenString)
}

// TokenAuth is the verifier used by the secure routes.
func (h *Handler) TokenAuth() *jwtauth.JWTAuth {
	return h.tokenAuth
}
