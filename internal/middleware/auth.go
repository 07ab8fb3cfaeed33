package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"

	"giftbox-rest-api/internal/model"
	"giftbox-rest-api/internal/service"
	"giftbox-rest-api/pkg/apierror"
	"giftbox-rest-api/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

// Context keys set by the auth middleware.
const (
	TokenDataKey  contextKey = "token_data"
	APIKeyAuthKey contextKey = "api_key_auth"
)

// TokenValidator resolves a session token to its data.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*model.TokenData, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Tokens  TokenValidator
	APIKeys []string
}

// NewAuthMiddleware creates an authentication middleware. A request carries
// either a session token (X-Token), which acts for one fid, or an API key
// (X-API-Key or Authorization: Bearer), which acts for any fid.
func NewAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Token")
			if token != "" && cfg.Tokens != nil {
				tokenData, err := cfg.Tokens.ValidateToken(r.Context(), token)
				if err != nil {
					if isTokenRejection(err) {
						response.Error(w, apierror.Unauthorized("Invalid or expired token"))
					} else {
						response.Error(w, apierror.ServiceUnavailable("token store unavailable"))
					}
					return
				}

				ctx := context.WithValue(r.Context(), TokenDataKey, tokenData)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(auth, "Bearer ") {
					apiKey = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			if apiKey == "" {
				response.Error(w, apierror.Unauthorized("Authentication required. Use X-Token or X-API-Key header."))
				return
			}

			if !isValidKey(apiKey, cfg.APIKeys) {
				response.Error(w, apierror.Unauthorized("Invalid API key"))
				return
			}

			ctx := context.WithValue(r.Context(), APIKeyAuthKey, true)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireFIDOwner rejects session-token callers acting on another player's
// {fid}. API key callers pass through.
func RequireFIDOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenData := GetTokenDataFromContext(r.Context())
		if tokenData == nil {
			if IsAPIKeyAuth(r.Context()) {
				next.ServeHTTP(w, r)
				return
			}
			response.Error(w, apierror.Unauthorized(""))
			return
		}

		fid, err := strconv.ParseInt(chi.URLParam(r, "fid"), 10, 64)
		if err != nil || fid != tokenData.FID {
			response.Error(w, apierror.Forbidden("token does not belong to this player"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAPIKey rejects callers that did not authenticate with an API key.
func RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAPIKeyAuth(r.Context()) {
			response.Error(w, apierror.Forbidden("API key required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireLoginKey guards admin endpoints with the X-Login-Key header. An empty
// configured key disables the endpoints.
func RequireLoginKey(loginKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if loginKey == "" {
				response.Error(w, apierror.NotFound(""))
				return
			}
			provided := r.Header.Get("X-Login-Key")
			if subtle.ConstantTimeCompare([]byte(provided), []byte(loginKey)) != 1 {
				response.Error(w, apierror.Unauthorized("invalid login key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isTokenRejection(err error) bool {
	return errors.Is(err, service.ErrTokenNotFound) || errors.Is(err, service.ErrTokenMalformed)
}

// isValidKey checks if the provided key is in the valid keys list.
func isValidKey(key string, validKeys []string) bool {
	for _, valid := range validKeys {
		if valid != "" && subtle.ConstantTimeCompare([]byte(key), []byte(valid)) == 1 {
			return true
		}
	}
	return false
}

// GetTokenDataFromContext retrieves token data from request context.
func GetTokenDataFromContext(ctx context.Context) *model.TokenData {
	if data, ok := ctx.Value(TokenDataKey).(*model.TokenData); ok {
		return data
	}
	return nil
}

// IsAPIKeyAuth reports whether the request authenticated with an API key.
func IsAPIKeyAuth(ctx context.Context) bool {
	ok, _ := ctx.Value(APIKeyAuthKey).(bool)
	return ok
}
