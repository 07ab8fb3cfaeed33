package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"giftbox-rest-api/internal/cache"
	"giftbox-rest-api/internal/logger"
	"giftbox-rest-api/internal/model"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	// TokenPrefix is the prefix for all session tokens
	TokenPrefix = "gbt_"

	// DefaultTokenTTL is the default token lifetime
	DefaultTokenTTL = 1 * time.Hour
)

// Token validation errors.
var (
	ErrTokenMalformed = errors.New("invalid token format")
	ErrTokenNotFound  = errors.New("token not found or expired")
)

// TokenService issues session tokens bound to one player. Tokens live in the
// shared cache so every instance accepts them.
type TokenService struct {
	cache cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewTokenService creates a new token service.
func NewTokenService(c cache.Cache, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{cache: c, ttl: ttl, now: time.Now}
}

func tokenKey(token string) string {
	return cache.TokenKeyPrefix + token
}

// GenerateToken creates a new session token for data.FID.
func (s *TokenService) GenerateToken(ctx context.Context, data model.TokenData) (string, error) {
	if err := validateFID(data.FID); err != nil {
		return "", err
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", errors.Wrap(err, "failed to generate token")
	}
	token := TokenPrefix + hex.EncodeToString(tokenBytes)

	data.CreatedAt = s.now()
	data.ExpiresAt = data.CreatedAt.Add(s.ttl)

	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", errors.Wrap(err, "failed to serialize token data")
	}

	if err := s.cache.Set(ctx, tokenKey(token), jsonData, s.ttl); err != nil {
		return "", persistence("store token", err)
	}

	logger.Info("session token issued",
		zap.Int64("fid", data.FID), zap.String("issued_by", data.IssuedBy), zap.Time("expires", data.ExpiresAt))
	return token, nil
}

// ValidateToken checks if a token is valid and returns its data.
func (s *TokenService) ValidateToken(ctx context.Context, token string) (*model.TokenData, error) {
	if !strings.HasPrefix(token, TokenPrefix) || len(token) == len(TokenPrefix) {
		return nil, ErrTokenMalformed
	}

	jsonData, err := s.cache.Get(ctx, tokenKey(token))
	if err == cache.ErrCacheMiss {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, persistence("load token", err)
	}

	var data model.TokenData
	if err := json.Unmarshal(jsonData, &data); err != nil {
		return nil, errors.Wrap(err, "failed to parse token data")
	}

	if s.now().After(data.ExpiresAt) {
		_ = s.cache.Delete(ctx, tokenKey(token))
		return nil, ErrTokenNotFound
	}

	return &data, nil
}

// RevokeToken deletes a token.
func (s *TokenService) RevokeToken(ctx context.Context, token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return ErrTokenMalformed
	}
	return s.cache.Delete(ctx, tokenKey(token))
}

// RefreshToken extends the lifetime of an existing token.
func (s *TokenService) RefreshToken(ctx context.Context, token string) (*model.TokenData, error) {
	data, err := s.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	data.ExpiresAt = s.now().Add(s.ttl)
	newJSON, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize token data")
	}
	if err := s.cache.Set(ctx, tokenKey(token), newJSON, s.ttl); err != nil {
		return nil, persistence("store token", err)
	}
	return data, nil
}

// TTL returns the lifetime of newly issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}
