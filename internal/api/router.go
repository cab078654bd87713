package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/policydesk/policy-assistant/internal/auth"
)

type subjectKey struct{}

// NewRouter wires the session routes. When jwtSecret is non-empty the /api
// routes require a valid bearer token; /health stays public either way.
func NewRouter(apiHandler *APIHandler, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		if jwtSecret != "" {
			r.Use(BearerAuthMiddleware(jwtSecret))
		}

		r.Post("/chat", apiHandler.ChatHandler)
		r.Get("/history/{threadID}", apiHandler.HistoryHandler)
		r.Delete("/history/{threadID}", apiHandler.DeleteHistoryHandler)
	})

	return r
}

func BearerAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "Authorization header is required")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			subject, err := auth.ValidateJWT(tokenString, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), subjectKey{}, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
