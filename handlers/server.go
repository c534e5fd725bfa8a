package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"recipeshare_backend/auth"
	"recipeshare_backend/models"
	"recipeshare_backend/usecase"
)

// Server holds what the HTTP handlers need. It keeps no per-request state.
type Server struct {
	Recipes *usecase.Recipes
	Auth    *auth.Service
	Log     *zap.Logger

	// MaxUpload bounds multipart bodies, in bytes.
	MaxUpload int64
	// RequestTimeout bounds the context of every request. Zero disables it.
	RequestTimeout time.Duration
	// HTTPClient fetches images for the resize proxy.
	HTTPClient *http.Client
}

type ctxKey int

const userIDKey ctxKey = iota

// UserID returns the authenticated user of the request, if any.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// RequireAuth rejects requests without a valid bearer token.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		uid, err := s.Auth.Verify(r.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrSessionNotFound) && !errors.Is(err, auth.ErrSessionExpired) {
				s.Log.Error("Failed to verify session", zap.Error(err))
			}
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, uid)))
	})
}

// WithTimeout bounds each request's context.
func (s *Server) WithTimeout(next http.Handler) http.Handler {
	if s.RequestTimeout <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Log.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeResult(w http.ResponseWriter, status int, recipe *models.Recipe, err error) {
	if err != nil {
		s.writeJSON(w, status, models.Result{Success: false, Error: err.Error()})
		return
	}
	s.writeJSON(w, status, models.Result{Success: true, Recipe: recipe})
}

// statusFor maps use case errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrUpload):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
