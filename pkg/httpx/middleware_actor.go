package httpx

import (
	"context"
	"net/http"
	"strings"
)

// ActorHeader is set by the upstream API gateway after it has
// authenticated the caller. The manager trusts it for audit purposes
// only; it grants no authority of its own.
const ActorHeader = "X-Actor"

// ActorMiddleware extracts the caller identity from the gateway header
// and injects it into the request context for audit attribution.
func ActorMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := strings.TrimSpace(r.Header.Get(ActorHeader))
			if actor != "" {
				ctx := context.WithValue(r.Context(), CtxKeyActor, actor)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}
