package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/middleware"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

type okResponse struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

type errResponse struct {
	Error string `json:"error"`
}

func mustMakeJWT(t *testing.T, key string, claims jwt.MapClaims, method jwt.SigningMethod) string {
	t.Helper()

	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func validClaims(sub int64, role string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
}

func newProtectedEcho(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.GET("/protected", func(c echo.Context) error {
		uid, _ := c.Get(middleware.CtxUserIDKey).(int64)
		role, _ := c.Get(middleware.CtxUserRoleKey).(string)
		return c.JSON(http.StatusOK, okResponse{UserID: uid, Role: role})
	}, mw...)
	return e
}

func runRequest(e *echo.Echo, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func assertUnauthorized(t *testing.T, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body errResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "unauthorized", body.Error)
}

func TestAuthJWT_NoHeader(t *testing.T) {
	assertUnauthorized(t, runRequest(newProtectedEcho(middleware.AuthJWT(secret)), ""))
}

func TestAuthJWT_BadScheme(t *testing.T) {
	assertUnauthorized(t, runRequest(newProtectedEcho(middleware.AuthJWT(secret)), "Token abc.def.ghi"))
}

func TestAuthJWT_BadSignature(t *testing.T) {
	raw := mustMakeJWT(t, "wrong-secret", validClaims(1, "USER"), jwt.SigningMethodHS256)
	assertUnauthorized(t, runRequest(newProtectedEcho(middleware.AuthJWT(secret)), "Bearer "+raw))
}

func TestAuthJWT_WrongAlg(t *testing.T) {
	raw := mustMakeJWT(t, secret, validClaims(1, "USER"), jwt.SigningMethodHS512)
	assertUnauthorized(t, runRequest(newProtectedEcho(middleware.AuthJWT(secret)), "Bearer "+raw))
}

func TestAuthJWT_Expired(t *testing.T) {
	claims := validClaims(1, "USER")
	claims["exp"] = time.Now().Add(-time.Minute).Unix()
	raw := mustMakeJWT(t, secret, claims, jwt.SigningMethodHS256)
	assertUnauthorized(t, runRequest(newProtectedEcho(middleware.AuthJWT(secret)), "Bearer "+raw))
}

func TestAuthJWT_MissingRole(t *testing.T) {
	claims := validClaims(1, "USER")
	delete(claims, "role")
	raw := mustMakeJWT(t, secret, claims, jwt.SigningMethodHS256)
	assertUnauthorized(t, runRequest(newProtectedEcho(middleware.AuthJWT(secret)), "Bearer "+raw))
}

func TestAuthJWT_StringSub(t *testing.T) {
	claims := validClaims(0, "USER")
	claims["sub"] = "77"
	raw := mustMakeJWT(t, secret, claims, jwt.SigningMethodHS256)

	rec := runRequest(newProtectedEcho(middleware.AuthJWT(secret)), "Bearer "+raw)
	require.Equal(t, http.StatusOK, rec.Code)

	var body okResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, int64(77), body.UserID)
}

func TestAuthJWT_Success_SetsContext(t *testing.T) {
	raw := mustMakeJWT(t, secret, validClaims(123, "USER"), jwt.SigningMethodHS256)

	rec := runRequest(newProtectedEcho(middleware.AuthJWT(secret)), "Bearer "+raw)
	require.Equal(t, http.StatusOK, rec.Code)

	var body okResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, int64(123), body.UserID)
	assert.Equal(t, "USER", body.Role)
}

func TestAdminRoleGuard(t *testing.T) {
	e := newProtectedEcho(middleware.AuthJWT(secret), middleware.AdminRoleGuard())

	user := mustMakeJWT(t, secret, validClaims(1, "USER"), jwt.SigningMethodHS256)
	rec := runRequest(e, "Bearer "+user)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := mustMakeJWT(t, secret, validClaims(2, "ADMIN"), jwt.SigningMethodHS256)
	rec = runRequest(e, "Bearer "+admin)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoleGuard_WithoutAuth(t *testing.T) {
	rec := runRequest(newProtectedEcho(middleware.AdminRoleGuard()), "")
	assertUnauthorized(t, rec)
}

func TestRequireRole_AllowsListedRoles(t *testing.T) {
	e := newProtectedEcho(middleware.AuthJWT(secret), middleware.RequireRole(middleware.RoleUser, middleware.RoleAdmin))

	for _, role := range []string{"USER", "ADMIN"} {
		raw := mustMakeJWT(t, secret, validClaims(5, role), jwt.SigningMethodHS256)
		rec := runRequest(e, "Bearer "+raw)
		assert.Equal(t, http.StatusOK, rec.Code, role)
	}

	raw := mustMakeJWT(t, secret, validClaims(5, "GUEST"), jwt.SigningMethodHS256)
	rec := runRequest(e, "Bearer "+raw)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthJWT_SchemeIsCaseInsensitive(t *testing.T) {
	raw := mustMakeJWT(t, secret, validClaims(9, "USER"), jwt.SigningMethodHS256)

	rec := runRequest(newProtectedEcho(middleware.AuthJWT(secret)), "bearer "+raw)
	assert.Equal(t, http.StatusOK, rec.Code)

	assertUnauthorized(t, runRequest(newProtectedEcho(middleware.AuthJWT(secret)), "Bearer    "))
}
