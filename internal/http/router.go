// Package httpapi is the thin HTTP layer. It delegates to the resolver and
// stores without embedding decision logic so transport concerns remain
// isolated.
package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"authgate/internal/challenge"
	"authgate/internal/resolver"
)

// NewRouter wires the middleware chain and public endpoints. Every request
// passes through session resolution; the admin subtree additionally requires
// an authenticated principal.
func NewRouter(h *Handler, res *resolver.Resolver, dispatcher *challenge.Dispatcher) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(RequestTime)
	r.Use(ClientMetadata)
	r.Use(ResolveSession(res, h.Cookies, dispatcher, h.Logger))

	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/logout", h.handleLogout)
	r.Get("/auth/whoami", h.handleWhoami)

	r.Route("/admin", func(r chi.Router) {
		r.Use(RequireAuthenticated(dispatcher))
		r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "ok")
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
