package api

import (
	"database/sql"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/erazemk/gradilisce/internal/apperr"
	"github.com/erazemk/gradilisce/internal/auth"
	"github.com/erazemk/gradilisce/internal/model"
	"github.com/erazemk/gradilisce/internal/store"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	DB        *sql.DB
	JWTSecret string
	Limiter   auth.Limiter
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// limiterKey throttles per username and client address together, so one
// noisy client cannot lock a user out everywhere.
func limiterKey(r *http.Request, username string) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return strings.ToLower(username) + "|" + host
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		invalidBody(w)
		return
	}

	if req.Username == "" || req.Password == "" {
		jsonError(w, apperr.CodeInvalidArgument, "username and password required")
		return
	}

	key := limiterKey(r, req.Username)
	blocked, err := h.Limiter.Blocked(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if blocked {
		slog.Warn("login throttled", "username", req.Username, "remote", r.RemoteAddr)
		jsonError(w, apperr.CodeRateLimited, "too many failed login attempts, try again later")
		return
	}

	user, err := store.GetUserByUsername(r.Context(), h.DB, req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil || user.DeletedAt != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		if err := h.Limiter.Fail(r.Context(), key); err != nil {
			slog.Error("recording failed login", "error", err)
		}
		slog.Warn("login failed", "username", req.Username, "remote", r.RemoteAddr)
		jsonError(w, apperr.CodeUnauthenticated, "invalid credentials")
		return
	}

	if err := h.Limiter.Reset(r.Context(), key); err != nil {
		slog.Error("resetting login limiter", "error", err)
	}

	token, err := auth.GenerateToken(h.JWTSecret, user.ID, user.Username, user.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user logged in", "user", user.Username, "role", user.Role)
	jsonResponse(w, http.StatusOK, loginResponse{Token: token})
}

// Logout handles POST /api/auth/logout by revoking the presented token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	if err := store.RevokeToken(r.Context(), h.DB, claims.ID, claims.UserID, claims.Expiry()); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user logged out", "user", claims.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// ChangePassword handles PUT /api/auth/password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		invalidBody(w)
		return
	}

	if req.CurrentPassword == "" || req.NewPassword == "" {
		jsonError(w, apperr.CodeInvalidArgument, "current and new password required")
		return
	}
	if err := model.ValidatePassword(req.NewPassword); err != nil {
		jsonError(w, apperr.CodeInvalidArgument, err.Error())
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, claims.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil || user.DeletedAt != nil {
		jsonError(w, apperr.CodeUnauthenticated, "account no longer exists")
		return
	}

	if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		jsonError(w, apperr.CodeUnauthenticated, "current password is incorrect")
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := store.UpdateUserPassword(r.Context(), h.DB, claims.UserID, hash); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("user changed own password", "user", claims.Username)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password updated"})
}
