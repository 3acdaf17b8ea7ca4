package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fluxtrade/keymgr/internal/keymgr/store"
	"github.com/fluxtrade/keymgr/pkg/httpx"
)

// healthChecker is implemented by secret store drivers that can probe
// their backend (the Vault driver does; the in-memory store does not).
type healthChecker interface {
	CheckHealth(ctx context.Context) error
}

// ReadyzHandler is the readiness probe. It checks the database and,
// when the secret store supports it, the secret backend.
func ReadyzHandler(startTime time.Time, version string, st store.Store, secrets any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &HealthChecks{
			Database:    "ok",
			SecretStore: "ok",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if hc, ok := secrets.(healthChecker); ok {
			if err := hc.CheckHealth(r.Context()); err != nil {
				checks.SecretStore = "error: " + err.Error()
				overallStatus = "degraded"
				statusCode = http.StatusServiceUnavailable
			}
		}

		httpx.WriteJSON(w, statusCode, HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
