package server

import (
	"encoding/json"
	"net/http"
	"time"
)

type sessionResponse struct {
	Status        string     `json:"status"`
	Authenticated bool       `json:"authenticated"`
	Subject       string     `json:"sub,omitempty"`
	Email         string     `json:"email,omitempty"`
	Name          string     `json:"name,omitempty"`
	HasCredential bool       `json:"has_credential"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	ExpiresIn     int64      `json:"expires_in,omitempty"`
}

type tokenResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ExpiresIn   int64      `json:"expires_in,omitempty"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	}
}

// SessionHandler describes the current session without exposing the token.
func (s *Server) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := s.manager.Snapshot()
		resp := sessionResponse{
			Status:        snap.Status.String(),
			Authenticated: snap.Status.Authenticated(),
		}
		if snap.Assertion != nil {
			resp.Subject = snap.Assertion.Subject
			resp.Email = snap.Assertion.Email
			resp.Name = snap.Assertion.DisplayName()
		}
		if snap.Credential != nil {
			resp.HasCredential = true
			if snap.Credential.KnownExpiry() {
				expiresAt := snap.Credential.ExpiresAt.UTC()
				resp.ExpiresAt = &expiresAt
				resp.ExpiresIn = remainingSeconds(snap.Credential.Remaining(snap.TakenAt))
			}
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

// TokenHandler returns the bearer token, or 404 while none is usable.
func (s *Server) TokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := s.manager.Snapshot()
		if snap.Credential == nil || !snap.Credential.Usable(snap.TakenAt) {
			s.writeJSON(w, http.StatusNotFound, errorResponse{
				Error:            "no_credential",
				ErrorDescription: "no usable access credential, status " + snap.Status.String(),
			})
			return
		}

		resp := tokenResponse{
			AccessToken: snap.Credential.Token,
			TokenType:   "Bearer",
		}
		if snap.Credential.KnownExpiry() {
			expiresAt := snap.Credential.ExpiresAt.UTC()
			resp.ExpiresAt = &expiresAt
			resp.ExpiresIn = remainingSeconds(snap.Credential.Remaining(snap.TakenAt))
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.manager.Logout(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Err(err).Msg("Failed to encode response")
	}
}

func remainingSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(d / time.Second)
}
