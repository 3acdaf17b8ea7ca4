package httpx

import "context"

type ctxKey string

const (
	// CtxKeyActor carries the caller identity forwarded by the upstream
	// gateway, used for audit attribution.
	CtxKeyActor ctxKey = "actor"
)

// ActorFromCtx returns the caller identity, or "unknown" when the
// gateway did not forward one.
func ActorFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyActor).(string); ok && v != "" {
		return v
	}
	return "unknown"
}
