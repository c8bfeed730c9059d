/*
actor.go - Actor resolution middleware

PURPOSE:
  Resolves the authenticated caller for every /api request. Session
  issuance and token verification live outside this service; upstream
  puts the verified user id in the X-User-ID header, and this middleware
  turns it into an engine.Actor (id + role) via the user catalog.
  Requests without a resolvable user are rejected with 401.

SEE ALSO:
  - engine/types.go: Actor and Role
  - catalog/catalog.go: the User lookup
*/
package api

import (
	"context"
	"net/http"

	"github.com/forecourt/shift-engine/catalog"
	"github.com/forecourt/shift-engine/engine"
)

// userIDHeader carries the verified user id set by the auth layer.
const userIDHeader = "X-User-ID"

type actorKey struct{}

// RequireActor resolves X-User-ID through the user catalog and stores
// the resulting Actor in the request context.
func RequireActor(users catalog.Catalog) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := r.Header.Get(userIDHeader)
			if userID == "" {
				writeError(w, http.StatusUnauthorized, "missing "+userIDHeader+" header", nil)
				return
			}

			user, err := users.User(r.Context(), userID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to resolve user", err)
				return
			}
			if user == nil {
				writeError(w, http.StatusUnauthorized, "unknown user", nil)
				return
			}

			actor := engine.Actor{UserID: user.ID, Role: engine.Role(user.Role)}
			ctx := context.WithValue(r.Context(), actorKey{}, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// actorFrom returns the Actor stored by RequireActor. Handlers are only
// mounted behind the middleware, so the value is always present.
func actorFrom(r *http.Request) engine.Actor {
	actor, _ := r.Context().Value(actorKey{}).(engine.Actor)
	return actor
}
