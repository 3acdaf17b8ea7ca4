package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fluxtrade/keymgr/internal/keymgr/secret"
	"github.com/fluxtrade/keymgr/internal/keymgr/service"
	"github.com/fluxtrade/keymgr/internal/keymgr/store"
	"github.com/fluxtrade/keymgr/pkg/httpx"
	"github.com/fluxtrade/keymgr/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store   store.Store
	secrets secret.Store

	LifecycleService *service.LifecycleService
}

func NewRouter(buildVersion string, st store.Store, secrets secret.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		secrets:      secrets,
		logger:       logger,
	}

	// Set default middleware chain. The actor middleware trusts the
	// X-Actor header; authentication sits in front of this service.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.ActorMiddleware(),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerKeys()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerKeys() {
	h := &KeysHandler{Lifecycle: r.LifecycleService}

	// Mutations get a moderate per-actor limit; lifecycle operations
	// are rare enough that anything faster is a runaway client.
	r.Mux.Handle("POST /v1/keys",
		httpx.Chain(http.HandlerFunc(h.HandleIssue),
			httpx.RateLimitByActor(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/keys/{id}/rotate",
		httpx.Chain(http.HandlerFunc(h.HandleRotate),
			httpx.RateLimitByActor(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/keys/{id}/revoke",
		httpx.Chain(http.HandlerFunc(h.HandleRevoke),
			httpx.RateLimitByActor(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/keys/{id}/compromise",
		httpx.Chain(http.HandlerFunc(h.HandleCompromise),
			httpx.RateLimitByActor(httpx.ModerateLimit),
		),
	)

	// Usage reports arrive per request on the caller's side, so they
	// get the lenient limit.
	r.Mux.Handle("POST /v1/keys/{id}/touch",
		httpx.Chain(http.HandlerFunc(h.HandleTouch),
			httpx.RateLimitByActor(httpx.LenientLimit),
		),
	)

	// Reads. The literal /v1/keys/expiring pattern wins over the
	// /v1/keys/{id} wildcard.
	r.Mux.Handle("GET /v1/keys",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /v1/keys/expiring",
		httpx.Chain(http.HandlerFunc(h.HandleExpiring),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /v1/keys/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleGet),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /v1/keys/{id}/history",
		httpx.Chain(http.HandlerFunc(h.HandleHistory),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems
	// may poll frequently).
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.secrets),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	r.Mux.Handle("GET /metrics", promhttp.Handler())
}
