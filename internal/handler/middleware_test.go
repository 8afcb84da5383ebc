package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func signTestToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"name": "gateway"})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAPIKeyMiddleware_DisabledWithoutSecret(t *testing.T) {
	handler := APIKeyMiddleware("")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/telephony/calls", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKeyMiddleware_RejectsMissingAndInvalidKeys(t *testing.T) {
	handler := APIKeyMiddleware("secret")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/telephony/calls", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/telephony/calls", nil)
	req.Header.Set("X-API-Key", "not-a-jwt")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Token signed with the wrong secret is rejected too.
	req = httptest.NewRequest(http.MethodGet, "/telephony/calls", nil)
	req.Header.Set("X-API-Key", signTestToken(t, "other-secret"))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSendUnauthorizedResponse_EncodesMessageAsJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	sendUnauthorizedResponse(rec, `token "abc" rejected`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	// A quote in the message must not break the body.
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, `token "abc" rejected`, body["error"])
}

func TestAPIKeyMiddleware_UnauthorizedBodyIsJSON(t *testing.T) {
	handler := APIKeyMiddleware("secret")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/telephony/calls", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "missing key", body["error"])
}

func TestAPIKeyMiddleware_AcceptsValidToken(t *testing.T) {
	handler := APIKeyMiddleware("secret")(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/telephony/calls", nil)
	req.Header.Set("X-API-Key", signTestToken(t, "secret"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestValidationMiddleware_RejectsNonJSONOnAPIRoutes(t *testing.T) {
	handler := ValidationMiddleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/telephony/call", strings.NewReader("a=b"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestValidationMiddleware_AllowsRawBodyRoutes(t *testing.T) {
	handler := ValidationMiddleware(okHandler())

	// Carrier webhooks and audio ingress carry non-JSON bodies.
	req := httptest.NewRequest(http.MethodPost, "/telephony/webhook", strings.NewReader("CallSid=CA1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/telephony/audio/c1", strings.NewReader("raw"))
	req.Header.Set("Content-Type", "application/octet-stream")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSMiddleware_HandlesPreflight(t *testing.T) {
	handler := CORSMiddleware(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "/telephony/call", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
