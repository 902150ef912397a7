package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ledgerline/ledgerline/internal/platform/middleware"
	"github.com/stretchr/testify/assert"
)

func corsHandler(nextCalled *bool) http.Handler {
	return middleware.CORS([]string{"http://localhost:3000"})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*nextCalled = true
			w.WriteHeader(http.StatusOK)
		}),
	)
}

func TestCORS_AllowedOrigin(t *testing.T) {
	var nextCalled bool
	req := httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()

	corsHandler(&nextCalled).ServeHTTP(rec, req)

	assert.True(t, nextCalled)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "X-Request-ID", rec.Header().Get("Access-Control-Expose-Headers"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	var nextCalled bool
	req := httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil)
	req.Header.Set("Origin", "http://evil.com")
	rec := httptest.NewRecorder()

	corsHandler(&nextCalled).ServeHTTP(rec, req)

	assert.True(t, nextCalled)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestCORS_DisallowedOriginOptions(t *testing.T) {
	var nextCalled bool
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/roles", nil)
	req.Header.Set("Origin", "http://evil.com")
	rec := httptest.NewRecorder()

	corsHandler(&nextCalled).ServeHTTP(rec, req)

	assert.True(t, nextCalled, "disallowed-origin OPTIONS must reach the next handler")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORS_NoOriginHeader(t *testing.T) {
	var nextCalled bool
	req := httptest.NewRequest(http.MethodGet, "/api/v1/roles", nil)
	rec := httptest.NewRecorder()

	corsHandler(&nextCalled).ServeHTTP(rec, req)

	assert.True(t, nextCalled)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_PreflightReturns204(t *testing.T) {
	var nextCalled bool
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/onboarding/step/1", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()

	corsHandler(&nextCalled).ServeHTTP(rec, req)

	assert.False(t, nextCalled)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}
