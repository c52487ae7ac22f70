package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const OperatorContextKey = ContextKey("operator")

const issuer = "moderation-admin"

// Operator is the authenticated caller of the admin API.
type Operator struct {
	Subject string
	TokenID string
}

var ErrTokenInvalid = errors.New("invalid or expired token")

// IssueToken mints an HS256 operator token valid for ttl.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"iss": issuer,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing operator token: %w", err)
	}
	return token, nil
}

// ParseToken validates an operator token and returns its caller.
func ParseToken(secret, tokenString string) (*Operator, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrTokenInvalid
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrTokenInvalid
	}
	jti, _ := claims["jti"].(string)
	return &Operator{Subject: sub, TokenID: jti}, nil
}

// JWTAuthMiddleware rejects requests without a valid Bearer operator token.
func JWTAuthMiddleware(secret string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.WarnContext(r.Context(), "Authorization header missing")
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || scheme != "Bearer" {
				logger.WarnContext(r.Context(), "Invalid Authorization header format")
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			operator, err := ParseToken(secret, tokenString)
			if err != nil {
				logger.WarnContext(r.Context(), "Token validation failed", "error", err)
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), OperatorContextKey, operator)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OperatorFrom returns the operator stored by JWTAuthMiddleware.
func OperatorFrom(ctx context.Context) (*Operator, bool) {
	op, ok := ctx.Value(OperatorContextKey).(*Operator)
	return op, ok
}
