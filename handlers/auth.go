package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"recipeshare_backend/auth"
)

const maxCredentialsBody = 64 << 10

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCredentialsBody)).Decode(&c); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	user, err := s.Auth.Register(r.Context(), c.Email, c.Password)
	switch {
	case errors.Is(err, auth.ErrEmailTaken):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, auth.ErrWeakPassword):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		s.Log.Warn("Failed to register user", zap.Error(err))
		http.Error(w, "Failed to register: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusCreated, user)
}

func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var c credentials
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCredentialsBody)).Decode(&c); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	session, err := s.Auth.Login(r.Context(), c.Email, c.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if err != nil {
		s.Log.Error("Failed to log in", zap.Error(err))
		http.Error(w, "Failed to log in", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, session)
}

func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	if err := s.Auth.Logout(r.Context(), bearerToken(r)); err != nil && !errors.Is(err, auth.ErrSessionNotFound) {
		s.Log.Error("Failed to log out", zap.Error(err))
		http.Error(w, "Failed to log out", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
