package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// dependency is a backing service probed by /healthz.
type dependency struct {
	name string
	ping func(ctx context.Context) error
}

func newRouter(logger *zap.Logger, metrics http.Handler, deps ...dependency) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))

	r.Get("/healthz", healthHandler(logger, deps))
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	return r
}

func healthHandler(logger *zap.Logger, deps []dependency) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]string, len(deps))
		for _, d := range deps {
			if err := d.ping(ctx); err != nil {
				logger.Warn("health check failed", zap.String("dependency", d.name), zap.Error(err))
				checks[d.name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			checks[d.name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": http.StatusText(status),
			"checks": checks,
		})
	}
}
