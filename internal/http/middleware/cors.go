package middleware

import (
	"net/http"
	"time"

	"waflow/internal/config"

	"github.com/go-chi/cors"
)

// CORS lets browser dashboards on the configured origins drive the API.
// Clients read X-Request-Id to quote a request when reporting a failed
// campaign submission.
func CORS(cfg config.Config) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: cfg.CORSAllowCredentials,
		MaxAge:           int(cfg.CORSMaxAge / time.Second),
	})
}
