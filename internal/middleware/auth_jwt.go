package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	CtxUserIDKey   = "user_id"   // int64
	CtxUserRoleKey = "user_role" // string
)

var errNoBearer = errors.New("bearer token required")

// Principal はトークンから取り出した呼び出し元
type Principal struct {
	UserID int64
	Role   string
}

// AuthJWT は Authorization: Bearer を HS256 で検証し、user_id と role を context に置く。
// トークンの発行はこのサーバーではしない。
func AuthJWT(secret string) echo.MiddlewareFunc {
	key := []byte(secret)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := bearerToken(c.Request().Header.Get("Authorization"))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			p, err := parseAccessToken(key, raw)
			if err != nil {
				logger.FromContext(c.Request().Context()).Debug("jwt rejected", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			c.Set(CtxUserIDKey, p.UserID)
			c.Set(CtxUserRoleKey, p.Role)

			// 以降のログに user_id を付ける
			ctx := c.Request().Context()
			l := logger.FromContext(ctx).With(zap.Int64("user_id", p.UserID))
			c.SetRequest(c.Request().WithContext(logger.WithContext(ctx, l)))

			return next(c)
		}
	}
}

func bearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errNoBearer
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errNoBearer
	}
	return token, nil
}

// exp / 署名 / alg はライブラリ側で検証
func parseAccessToken(key []byte, raw string) (Principal, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Principal{}, err
	}

	userID, err := parseUserID(claims["sub"])
	if err != nil {
		return Principal{}, err
	}
	role, _ := claims["role"].(string)
	if role == "" {
		return Principal{}, errors.New("role claim required")
	}
	return Principal{UserID: userID, Role: role}, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}

// sub は数値でも文字列でもよい
func parseUserID(v interface{}) (int64, error) {
	var id int64
	switch t := v.(type) {
	case float64:
		id = int64(t)
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid sub: %w", err)
		}
		id = n
	default:
		return 0, errors.New("invalid sub")
	}
	if id <= 0 {
		return 0, errors.New("sub must be positive")
	}
	return id, nil
}
