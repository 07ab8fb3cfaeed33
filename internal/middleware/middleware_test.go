package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"giftbox-rest-api/internal/model"
	"giftbox-rest-api/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTokens map[string]*model.TokenData

func (s stubTokens) ValidateToken(ctx context.Context, token string) (*model.TokenData, error) {
	if token == "gbt_down" {
		return nil, errors.New("cache unreachable")
	}
	if data, ok := s[token]; ok {
		return data, nil
	}
	return nil, service.ErrTokenNotFound
}

func ok(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func playerRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(NewAuthMiddleware(AuthConfig{
		Tokens:  stubTokens{"gbt_seven": {FID: 7}},
		APIKeys: []string{"key-1"},
	}))
	r.With(RequireFIDOwner).Get("/players/{fid}", ok)
	r.With(RequireAPIKey).Post("/token", ok)
	return r
}

func serve(h http.Handler, method, path string, headers map[string]string) int {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestAuthMiddleware(t *testing.T) {
	h := playerRouter()

	tests := []struct {
		name    string
		method  string
		path    string
		headers map[string]string
		want    int
	}{
		{"no credentials", http.MethodGet, "/players/7", nil, http.StatusUnauthorized},
		{"unknown api key", http.MethodGet, "/players/7", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"api key any player", http.MethodGet, "/players/9", map[string]string{"X-API-Key": "key-1"}, http.StatusOK},
		{"bearer api key", http.MethodGet, "/players/9", map[string]string{"Authorization": "Bearer key-1"}, http.StatusOK},
		{"token own player", http.MethodGet, "/players/7", map[string]string{"X-Token": "gbt_seven"}, http.StatusOK},
		{"token other player", http.MethodGet, "/players/8", map[string]string{"X-Token": "gbt_seven"}, http.StatusForbidden},
		{"unknown token", http.MethodGet, "/players/7", map[string]string{"X-Token": "gbt_other"}, http.StatusUnauthorized},
		{"token store down", http.MethodGet, "/players/7", map[string]string{"X-Token": "gbt_down"}, http.StatusServiceUnavailable},
		{"token cannot mint", http.MethodPost, "/token", map[string]string{"X-Token": "gbt_seven"}, http.StatusForbidden},
		{"api key mints", http.MethodPost, "/token", map[string]string{"X-API-Key": "key-1"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, serve(h, tt.method, tt.path, tt.headers))
		})
	}
}

func TestRequireLoginKey(t *testing.T) {
	h := RequireLoginKey("secret")(http.HandlerFunc(ok))
	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, serve(h, http.MethodGet, "/", map[string]string{"X-Login-Key": "guess"}))
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/", map[string]string{"X-Login-Key": "secret"}))

	disabled := RequireLoginKey("")(http.HandlerFunc(ok))
	assert.Equal(t, http.StatusNotFound, serve(disabled, http.MethodGet, "/", map[string]string{"X-Login-Key": ""}))
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", id)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, id, seen)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "injected\nline")
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.NotEqual(t, "injected\nline", seen)
}

func TestRecoveryAndLogging(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Recovery)
	r.Use(Logging)
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	r.Get("/teapot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/teapot", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
