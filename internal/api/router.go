package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-tagregistry/internal/auth"
)

// healthCheckTimeout bounds each component check in /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.With(s.requirePermission(auth.PermTagRead)).Get("/audit", s.handleListAudit)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.With(s.requirePermission(auth.PermDeviceManage)).Post("/", s.handleCreateDevice)

			r.Route("/{name}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.With(s.requirePermission(auth.PermDeviceManage)).Delete("/", s.handleDeleteDevice)

				r.Get("/tags", s.handleListTags)

				r.Group(func(r chi.Router) {
					r.Use(s.requirePermission(auth.PermTagEdit))
					r.Post("/import", s.handleImportTags)
					r.Put("/tags", s.handleEditTag)
					r.Delete("/tags", s.handleClearTags)
					r.Delete("/tags/{id}", s.handleRemoveTag)
				})
			})
		})
	})

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.Get(wsPath, s.handleWebSocket)

	return r
}

// handleHealth reports the server version and the state of each registered
// infrastructure component. Any failing component yields 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	components := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"version":    s.version,
		"devices":    s.registry.GetDeviceCount(),
		"components": components,
	})
}
