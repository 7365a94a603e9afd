package api

import (
	"encoding/json"
	"net/http"

	"github.com/example/commerce-core/internal/api/middleware"
	"github.com/example/commerce-core/internal/domain/login"
	"github.com/example/commerce-core/internal/domain/session"
)

// AuthHandlers handles authentication-related HTTP requests
type AuthHandlers struct {
	orchestrator *login.Orchestrator
	sessions     *session.Service
}

// NewAuthHandlers creates a new AuthHandlers instance
func NewAuthHandlers(orchestrator *login.Orchestrator, sessions *session.Service) *AuthHandlers {
	return &AuthHandlers{
		orchestrator: orchestrator,
		sessions:     sessions,
	}
}

// LoginRequest represents the login request body. Login accepts a username or
// an email.
type LoginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Login handles user login
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.orchestrator.Login(r.Context(), req.Login, req.Password, r.UserAgent(), r.RemoteAddr)
	if err != nil {
		respondAppError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    result.Token,
		Path:     "/",
		Expires:  result.TokenExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	respondJSON(w, http.StatusOK, result)
}

// Logout handles user logout. The identity-level logout must succeed; session
// invalidation is handled inside the orchestrator.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	identity := login.Identity{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}
	if err := h.orchestrator.Logout(r.Context(), identity, claims.SessionID); err != nil {
		respondAppError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	respondJSON(w, http.StatusOK, map[string]string{
		"message": "Logout successful",
	})
}

// Sessions returns the caller's currently active sessions
func (h *AuthHandlers) Sessions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	active, err := h.sessions.GetUserActiveSessions(r.Context(), userID)
	if err != nil {
		respondAppError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, active)
}

// Me returns the identity bound to the current token
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"id":    claims.UserID,
		"email": claims.Email,
		"role":  claims.Role,
	})
}
