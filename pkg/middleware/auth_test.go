package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okValidator(claims *Claims) TokenValidator {
	return func(token string) (*Claims, error) {
		if token == "good" {
			return claims, nil
		}
		return nil, errors.New("bad token")
	}
}

func echoUserHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Resolved-User", UserIDFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth_ValidToken(t *testing.T) {
	h := Auth(okValidator(&Claims{UserID: "u1", Role: "user"}))(echoUserHandler())

	req := httptest.NewRequest(http.MethodPost, "/reviews", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", rec.Header().Get("X-Resolved-User"))
}

func TestAuth_MissingHeader(t *testing.T) {
	h := Auth(okValidator(&Claims{UserID: "u1"}))(echoUserHandler())

	req := httptest.NewRequest(http.MethodPost, "/reviews", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_MalformedHeader(t *testing.T) {
	h := Auth(okValidator(&Claims{UserID: "u1"}))(echoUserHandler())

	req := httptest.NewRequest(http.MethodPost, "/reviews", nil)
	req.Header.Set("Authorization", "Token good")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_InvalidToken(t *testing.T) {
	h := Auth(okValidator(&Claims{UserID: "u1"}))(echoUserHandler())

	req := httptest.NewRequest(http.MethodPost, "/reviews", nil)
	req.Header.Set("Authorization", "Bearer expired")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOptionalAuth_AnonymousPassesThrough(t *testing.T) {
	h := OptionalAuth(okValidator(&Claims{UserID: "u1"}))(echoUserHandler())

	req := httptest.NewRequest(http.MethodGet, "/reviews/target/42", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Resolved-User"))
}

func TestOptionalAuth_ValidTokenInjectsClaims(t *testing.T) {
	h := OptionalAuth(okValidator(&Claims{UserID: "u7"}))(echoUserHandler())

	req := httptest.NewRequest(http.MethodGet, "/reviews/target/42", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u7", rec.Header().Get("X-Resolved-User"))
}

func TestOptionalAuth_BadTokenTreatedAsAnonymous(t *testing.T) {
	h := OptionalAuth(okValidator(&Claims{UserID: "u7"}))(echoUserHandler())

	req := httptest.NewRequest(http.MethodGet, "/reviews/target/42", nil)
	req.Header.Set("Authorization", "Bearer junk")
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Resolved-User"))
}

func TestRequireRole(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	allowed := Auth(okValidator(&Claims{UserID: "a1", Role: "admin"}))(RequireRole("admin")(inner))
	denied := Auth(okValidator(&Claims{UserID: "u1", Role: "user"}))(RequireRole("admin")(inner))

	req := httptest.NewRequest(http.MethodDelete, "/admin/users/u9/reactions", nil)
	req.Header.Set("Authorization", "Bearer good")

	rec := httptest.NewRecorder()
	allowed.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	denied.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
