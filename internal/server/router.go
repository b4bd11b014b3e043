// Package server wires the HTTP router, authentication middleware, and the
// shared response helpers.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"authd/internal/security"
)

// RouteMounter registers a handler's routes on the router. The authn argument
// is the access-token middleware built from the server's token provider.
type RouteMounter interface {
	Mount(r chi.Router, authn func(http.Handler) http.Handler)
}

// NewRouter builds the HTTP handler: chi router with request id, real IP,
// logging, panic recovery, and OpenTelemetry instrumentation around every route.
func NewRouter(tokens *security.TokenProvider, mounters ...RouteMounter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	authn := Authenticate(tokens)
	for _, m := range mounters {
		m.Mount(r, authn)
	}

	return otelhttp.NewHandler(r, "authd.http")
}
