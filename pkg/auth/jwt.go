// Package auth validates the dashboard's JWT bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrInvalidToken     = errors.New("invalid token")
)

// Claims are the token claims the API cares about. TenantID scopes
// every dashboard request to one restaurant.
type Claims struct {
	UserID   string   `json:"sub"`
	TenantID string   `json:"tenantId"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// JWTConfig configures token validation.
type JWTConfig struct {
	SecretKey string
	Issuer    string
}

// JWTValidator validates HS256 bearer tokens.
type JWTValidator struct {
	config JWTConfig
}

// NewJWTValidator creates a validator.
func NewJWTValidator(config JWTConfig) (*JWTValidator, error) {
	if config.SecretKey == "" {
		return nil, errors.New("jwt secret key is required")
	}
	return &JWTValidator{config: config}, nil
}

// ValidateToken parses and verifies a token, returning its claims.
func (v *JWTValidator) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(v.config.SecretKey), nil
	},
		jwt.WithIssuer(v.config.Issuer),
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrInvalidToken
		}
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TenantID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// JWTGenerator issues tokens, used by tests and local tooling.
type JWTGenerator struct {
	config JWTConfig
	expiry time.Duration
}

// NewJWTGenerator creates a generator.
func NewJWTGenerator(config JWTConfig, expiry time.Duration) (*JWTGenerator, error) {
	if config.SecretKey == "" {
		return nil, errors.New("jwt secret key is required")
	}
	return &JWTGenerator{config: config, expiry: expiry}, nil
}

// GenerateToken signs a token for the user and tenant.
func (g *JWTGenerator) GenerateToken(userID, tenantID string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.config.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(g.expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(g.config.SecretKey))
}

// UserContext is the authenticated principal attached to a request.
type UserContext struct {
	UserID   string
	TenantID string
	Email    string
	Roles    []string
}

type contextKey struct{}

// SetUserInContext attaches the principal to the context.
func SetUserInContext(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// GetUserFromContext retrieves the principal set by the auth
// middleware.
func GetUserFromContext(ctx context.Context) (*UserContext, error) {
	user, ok := ctx.Value(contextKey{}).(*UserContext)
	if !ok || user == nil {
		return nil, errors.New("no user in context")
	}
	return user, nil
}
