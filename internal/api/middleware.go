package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// contextKey is a private type to avoid key collisions in the context
type contextKey string

const profileContextKey = contextKey("profile")

// AuthMiddleware validates the JWT and injects the profile ID into the
// request context. Profiles live in the identity service; the token's
// subject is all we need here.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			h.respondWithError(w, http.StatusUnauthorized, "authorization token not provided")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			h.respondWithError(w, http.StatusUnauthorized, "invalid token format")
			return
		}
		tokenString := parts[1]

		token, err := h.tokenService.ValidateToken(tokenString)
		if err != nil {
			h.respondWithError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		profileID, err := h.tokenService.GetProfileIDFromToken(token)
		if err != nil {
			h.respondWithError(w, http.StatusUnauthorized, "invalid token claims")
			return
		}

		ctx := context.WithValue(r.Context(), profileContextKey, profileID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// profileIDFromContext returns the authenticated profile ID injected by
// AuthMiddleware.
func profileIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(profileContextKey).(uuid.UUID)
	return id, ok
}
