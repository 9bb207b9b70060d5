package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const ClientContextKey ContextKey = "client"

// DefaultTokenTTL is the lifetime of tokens issued without an explicit TTL.
const DefaultTokenTTL = 24 * time.Hour

const issuer = "faqrag"

// Claims identify the API client a token was issued to.
type Claims struct {
	jwt.RegisteredClaims
}

// Guard issues and checks the bearer tokens that protect the chat API.
// A disabled Guard lets every request through.
type Guard struct {
	secret  []byte
	enabled bool
}

// NewGuard creates a Guard signing with secret.
func NewGuard(secret string, enabled bool) *Guard {
	return &Guard{secret: []byte(secret), enabled: enabled}
}

// Enabled reports whether requests must carry a token.
func (g *Guard) Enabled() bool {
	return g != nil && g.enabled
}

// IssueToken signs a token for subject valid for ttl.
func (g *Guard) IssueToken(subject string, ttl time.Duration) (string, error) {
	if len(g.secret) == 0 {
		return "", errors.New("jwt secret not configured")
	}
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("token subject is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
}

// Validate parses tokenString and returns its claims.
func (g *Guard) Validate(tokenString string) (*Claims, error) {
	if len(g.secret) == 0 {
		return nil, errors.New("jwt secret not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return g.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// Middleware rejects requests without a valid bearer token when the guard
// is enabled and stores the token's claims in the request context.
func (g *Guard) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		var tokenString string
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		} else if cookie, err := r.Cookie("auth_token"); err == nil {
			tokenString = cookie.Value
		}

		if tokenString == "" {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		claims, err := g.Validate(tokenString)
		if err != nil {
			http.Error(w, "Invalid authentication token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ClientContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// ClientFromContext returns the claims stored by Middleware, or nil.
func ClientFromContext(r *http.Request) *Claims {
	if c, ok := r.Context().Value(ClientContextKey).(*Claims); ok {
		return c
	}
	return nil
}
