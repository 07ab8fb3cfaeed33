package handler

import (
	"net/http"
	"time"

	"giftbox-rest-api/internal/model"
	"giftbox-rest-api/internal/service"
	"giftbox-rest-api/pkg/apierror"
	"giftbox-rest-api/pkg/response"
)

// AuthHandler handles session token requests. Tokens are issued by a trusted
// backend holding an API key and let a client act for a single player.
type AuthHandler struct {
	tokenService *service.TokenService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(tokenService *service.TokenService) *AuthHandler {
	return &AuthHandler{tokenService: tokenService}
}

// TokenRequest represents the request body for token generation.
type TokenRequest struct {
	FID      int64  `json:"fid"`
	IssuedBy string `json:"issued_by"`
}

// TokenResponse represents the response for token generation.
type TokenResponse struct {
	Token     string    `json:"token"`
	FID       int64     `json:"fid"`
	ExpiresIn int       `json:"expires_in"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GenerateToken handles POST /api/v1/auth/token
func (h *AuthHandler) GenerateToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	token, err := h.tokenService.GenerateToken(r.Context(), model.TokenData{
		FID:      req.FID,
		IssuedBy: req.IssuedBy,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	ttl := h.tokenService.TTL()
	response.OK(w, TokenResponse{
		Token:     token,
		FID:       req.FID,
		ExpiresIn: int(ttl.Seconds()),
		ExpiresAt: time.Now().Add(ttl).UTC(),
	})
}

// RevokeToken handles POST /api/v1/auth/revoke
func (h *AuthHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Token")
	if token == "" {
		response.Error(w, apierror.BadRequest("X-Token header required"))
		return
	}

	if err := h.tokenService.RevokeToken(r.Context(), token); err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, map[string]string{"status": "revoked"})
}

// RefreshToken handles POST /api/v1/auth/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Token")
	if token == "" {
		response.Error(w, apierror.BadRequest("X-Token header required"))
		return
	}

	data, err := h.tokenService.RefreshToken(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, map[string]interface{}{
		"status":     "refreshed",
		"fid":        data.FID,
		"expires_in": int(h.tokenService.TTL().Seconds()),
		"expires_at": data.ExpiresAt.UTC(),
	})
}
