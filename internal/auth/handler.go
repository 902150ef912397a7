package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// IdentityLookup finds an existing user by email within a tenant.
type IdentityLookup interface {
	LookupByEmail(ctx context.Context, tenantID, email string) (*Identity, error)
}

// HandlerConfig holds dependencies for the auth Handler.
type HandlerConfig struct {
	TokenSvc *TokenService
	// Lookup is optional. Without it dev login trusts the requested role.
	Lookup  IdentityLookup
	DevMode bool
}

// Handler handles authentication HTTP endpoints.
type Handler struct {
	tokenSvc *TokenService
	lookup   IdentityLookup
	devMode  bool
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		tokenSvc: cfg.TokenSvc,
		lookup:   cfg.Lookup,
		devMode:  cfg.DevMode,
	}
}

// RegisterRoutes registers auth routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/token/refresh", h.HandleRefresh)
	if h.devMode {
		mux.HandleFunc("POST /auth/dev/login", h.HandleDevLogin)
	}
}

type devLoginRequest struct {
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// HandleDevLogin issues tokens without an identity provider. When a lookup
// is configured and the user exists, the stored role wins over the requested one.
func (h *Handler) HandleDevLogin(w http.ResponseWriter, r *http.Request) {
	if !h.devMode {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	var req devLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.TenantID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant_id is required"})
		return
	}
	if req.Role == "" {
		req.Role = "tenant_admin"
	}

	identity := &Identity{
		UserID:   uuid.NewString(),
		TenantID: req.TenantID,
		Email:    req.Email,
		Role:     req.Role,
	}
	if h.lookup != nil && req.Email != "" {
		found, err := h.lookup.LookupByEmail(r.Context(), req.TenantID, req.Email)
		switch {
		case err == nil:
			identity = found
		case errors.Is(err, ErrUserNotFound):
		default:
			slog.Error("dev login lookup failed", "tenant_id", req.TenantID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "user lookup failed"})
			return
		}
	}

	h.issueTokens(w, identity)
}

// HandleRefresh exchanges a refresh token for new access + refresh tokens.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	identity, err := h.tokenSvc.ValidateToken(req.RefreshToken)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid refresh token"})
		return
	}
	if identity.TokenType != TokenTypeRefresh {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "refresh token required"})
		return
	}

	h.issueTokens(w, identity)
}

func (h *Handler) issueTokens(w http.ResponseWriter, identity *Identity) {
	accessToken, err := h.tokenSvc.CreateAccessToken(identity)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "token creation failed"})
		return
	}
	refreshToken, err := h.tokenSvc.CreateRefreshToken(identity)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "token creation failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "Bearer",
		"tenant_id":     identity.TenantID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
