package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/status", s.handleStatus)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/history", s.handleGetHistory)
			})
		})
	})

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.Get(wsPath, s.handleWebSocket)

	// Browser dashboards connect to the root URL.
	r.Get("/", s.handleRoot)

	return r
}

// handleRoot upgrades WebSocket requests made to "/". Static assets are
// served by the desktop shell, not the core.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.handleWebSocket(w, r)
		return
	}
	writeNotFound(w, "no content is served here; connect with a WebSocket or use /api")
}

// healthCheckTimeout bounds all checks run for one /api/health request.
const healthCheckTimeout = 2 * time.Second

// handleHealth runs the server and dependency health checks. Any failure
// reports "degraded" with 503 so load balancers and the shell can tell.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	checks := make(map[string]string, len(s.checks)+1)

	record := func(name string, err error) {
		if err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
			checks[name] = err.Error()
			return
		}
		checks[name] = "ok"
	}

	record("api", s.HealthCheck(ctx))
	for name, checker := range s.checks {
		if checker == nil {
			continue
		}
		record(name, checker.HealthCheck(ctx))
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"version": s.session.Version,
		"checks":  checks,
	})
}
