package router

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/session"
)

// Deps are the collaborators the route table needs.
type Deps struct {
	Logger   *zap.SugaredLogger
	Session  *session.Handler
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Limiter  *IPRateLimiter
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
func RegisterRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy","service":"auth"}`))
	})
	if d.Gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(d.Gatherer))
	}

	h := d.Session
	login := http.Handler(http.HandlerFunc(h.Login))
	if d.Limiter != nil {
		login = RateLimitMiddleware(d.Limiter)(login)
	}
	mux.Handle("POST /auth/login", login)

	changePassword := h.RequireAuth(http.HandlerFunc(h.ChangePassword))
	mux.Handle("PATCH /auth/usuarios/{id}", changePassword)
	mux.Handle("PATCH /auth/users/{id}", changePassword)
	mux.Handle("POST /auth/logout", h.RequireAuth(http.HandlerFunc(h.Logout)))
	mux.Handle("GET /auth/me", h.RequireAuth(http.HandlerFunc(h.Me)))

	// outermost first: request id, metrics, logging, security headers
	var handler http.Handler = mux
	handler = SecurityHeadersMiddleware()(handler)
	handler = LoggingMiddleware(d.Logger)(handler)
	handler = MetricsMiddleware(d.Metrics)(handler)
	handler = RequestIDMiddleware()(handler)
	return handler
}
