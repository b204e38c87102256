package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"chatflow-backend/pkg/auth"

	"go.uber.org/zap"
)

// Authenticate validates the dashboard's bearer token and attaches
// the tenant-scoped principal to the request context. The webhook
// endpoints never pass through here; the channel authenticates those
// with its own verify token.
func Authenticate(validator *auth.JWTValidator, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				respondUnauthorized(w, "Missing authentication token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.Warn("Invalid token",
					zap.Error(err),
					zap.String("path", r.URL.Path),
				)
				switch err {
				case auth.ErrExpiredToken:
					respondUnauthorized(w, "Token has expired")
				case auth.ErrInvalidSignature:
					respondUnauthorized(w, "Invalid token signature")
				default:
					respondUnauthorized(w, "Invalid token")
				}
				return
			}

			userCtx := &auth.UserContext{
				UserID:   claims.UserID,
				TenantID: claims.TenantID,
				Email:    claims.Email,
				Roles:    claims.Roles,
			}
			ctx := auth.SetUserInContext(r.Context(), userCtx)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken pulls the JWT from the Authorization header.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return authHeader
}

func respondUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   true,
		"message": message,
		"code":    http.StatusUnauthorized,
	})
}
