package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/medicore/hospital-scheduling/internal/scheduling"
)

type contextKey string

const actorKey contextKey = "actor"

// Middleware verifies the bearer token and stores the Actor in the request
// context. Requests without a valid token are rejected before any handler
// runs.
func Middleware(tokens *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenStr, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenStr == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing_token", "Authorization: Bearer token required")
				return
			}

			actor, err := tokens.Verify(tokenStr)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, "invalid_token", "token is invalid or expired")
				return
			}

			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole is the single capability check applied in front of core
// operations: the actor's role must be one of the allowed roles.
func RequireRole(roles ...scheduling.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "missing_token", "authentication required")
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeAuthError(w, http.StatusForbidden, "forbidden", "role is not allowed to perform this action")
		})
	}
}

// ActorFrom retrieves the authenticated caller from the request context.
func ActorFrom(ctx context.Context) (scheduling.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(scheduling.Actor)
	return actor, ok
}

// WithActor returns a context carrying the actor. Test helper.
func WithActor(ctx context.Context, actor scheduling.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func writeAuthError(w http.ResponseWriter, status int, code, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"details": details,
	})
}
