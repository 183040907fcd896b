package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const businessIDKey contextKey = "businessID"

// TenantAuth verifies the bearer token and puts the caller's business id in
// the request context. That claim is the authoritative caller tenant for
// every sync operation; request bodies repeating a different tenant are
// rejected downstream.
func TenantAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				respondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			tokenString := strings.TrimPrefix(header, "Bearer ")

			token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !token.Valid {
				respondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				respondError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}
			rawBusinessID, _ := claims["business_id"].(string)
			businessID, err := uuid.Parse(rawBusinessID)
			if err != nil {
				respondError(w, http.StatusUnauthorized, "token has no business_id claim")
				return
			}

			ctx := context.WithValue(r.Context(), businessIDKey, businessID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// callerBusinessID returns the tenant the middleware authenticated.
func callerBusinessID(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(businessIDKey).(uuid.UUID)
	return id
}
