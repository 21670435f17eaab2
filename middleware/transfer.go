package middleware

import (
	"context"
	"imagedesk/files"
	"net/http"
	"strings"

	"github.com/go-chi/render"
)

type contextKey string

const ClaimsContextKey = contextKey("claims")

// TokenParser validates transfer tokens.
type TokenParser interface {
	Parse(token string) (*files.TransferClaims, error)
}

// TransferToken rejects requests that carry no valid transfer token. The token
// is read from the "token" query parameter or a Bearer Authorization header.
func TransferToken(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.URL.Query().Get("token")
			if tokenString == "" {
				authHeader := r.Header.Get("Authorization")
				if authHeader == "" {
					render.Status(r, http.StatusUnauthorized)
					render.JSON(w, r, map[string]string{"error": "Transfer token is required"})
					return
				}
				parts := strings.Split(authHeader, " ")
				if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
					render.Status(r, http.StatusUnauthorized)
					render.JSON(w, r, map[string]string{"error": "Authorization header format must be Bearer {token}"})
					return
				}
				tokenString = parts[1]
			}

			claims, err := parser.Parse(tokenString)
			if err != nil {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, map[string]string{"error": "Invalid token"})
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Claims returns the transfer claims stored by TransferToken.
func Claims(r *http.Request) (*files.TransferClaims, bool) {
	claims, ok := r.Context().Value(ClaimsContextKey).(*files.TransferClaims)
	return claims, ok
}
