package api

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bartek5186/pricebridge/internal/apperr"
	"github.com/bartek5186/pricebridge/internal/queue"
)

const (
	ctxUserID    = "user_id"
	ctxRole      = "role"
	ctxRequestID = "request_id"

	RoleAdmin       = "admin"
	RequestIDHeader = "X-Request-ID"
)

// RequestID nadaje każdemu żądaniu identyfikator (albo przejmuje podany przez klienta).
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// AccessLog loguje każde żądanie po jego obsłużeniu.
func AccessLog(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		if len(c.Errors) > 0 {
			ev = ev.Err(c.Errors.Last().Err)
		}
		ev.Str("request_id", c.GetString(ctxRequestID)).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("took", time.Since(start)).
			Str("user_id", c.GetString(ctxUserID)).
			Msg("http")
	}
}

// Claims to oczekiwana zawartość tokena: sub = użytkownik, role = rola.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Auth wymaga poprawnego tokena HS256 w nagłówku Authorization: Bearer.
func Auth(secret string) gin.HandlerFunc {
	key := []byte(secret)
	return func(c *gin.Context) {
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.Error(apperr.Unauthorized("missing bearer token"))
			c.Abort()
			return
		}
		if len(key) == 0 {
			c.Error(apperr.Unauthorized("authentication is not configured"))
			c.Abort()
			return
		}

		var claims Claims
		_, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (any, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			c.Error(apperr.Unauthorized(msg))
			c.Abort()
			return
		}
		if claims.Subject == "" {
			c.Error(apperr.Unauthorized("token has no subject"))
			c.Abort()
			return
		}

		c.Set(ctxUserID, claims.Subject)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxRole) != RoleAdmin {
			c.Error(apperr.Forbidden("admin role required"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// WebhookSecret chroni endpointy funkcji wspólnym sekretem. Pusty sekret w configu
// blokuje je całkowicie.
func WebhookSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(queue.WebhookSecretHeader)
		if secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.Error(apperr.Unauthorized("invalid webhook secret"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// IssueToken podpisuje token dla użytkownika (CLI, testy).
func IssueToken(secret, userID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
