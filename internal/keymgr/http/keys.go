package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fluxtrade/keymgr/internal/keymgr/domain"
	"github.com/fluxtrade/keymgr/internal/keymgr/service"
	"github.com/fluxtrade/keymgr/internal/keymgr/store"
	"github.com/fluxtrade/keymgr/pkg/httpx"
	"github.com/fluxtrade/keymgr/pkg/slogx"
)

// KeysHandler handles all key lifecycle endpoints.
type KeysHandler struct {
	Lifecycle *service.LifecycleService
}

// HandleIssue handles POST /v1/keys.
//
// Returns 201 with the record and the one-time plaintext secret, or
// 409 when the exchange already has an active key.
func (h *KeysHandler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req IssueKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "Invalid JSON in request body",
		})
		return
	}

	if strings.TrimSpace(req.Exchange) == "" {
		httpx.WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "Exchange is required",
		})
		return
	}
	if req.LifetimeDays < 0 {
		httpx.WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "lifetime_days must not be negative",
		})
		return
	}

	resp, err := h.Lifecycle.Issue(ctx, service.IssueKeyRequest{
		Exchange:    strings.TrimSpace(req.Exchange),
		Description: req.Description,
		Scopes:      req.Scopes,
		Lifetime:    time.Duration(req.LifetimeDays) * 24 * time.Hour,
		Actor:       httpx.ActorFromCtx(ctx),
	})
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	// The plaintext secret appears in this response and nowhere else.
	httpx.WriteJSON(w, http.StatusCreated, IssueKeyResponse{
		Key:    keyInfo(resp.Record),
		Secret: resp.Secret,
	})
}

// HandleRotate handles POST /v1/keys/{id}/rotate.
func (h *KeysHandler) HandleRotate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	keyID := r.PathValue("id")

	var req RotateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "Invalid JSON in request body",
		})
		return
	}

	resp, err := h.Lifecycle.Rotate(ctx, keyID, req.ExpectedVersion,
		time.Duration(req.GracePeriodHours)*time.Hour,
		httpx.ActorFromCtx(ctx))
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, RotateKeyResponse{
		Key:         keyInfo(resp.Successor),
		Secret:      resp.Secret,
		Predecessor: keyInfo(resp.Predecessor),
	})
}

// HandleRevoke handles POST /v1/keys/{id}/revoke. Revoking an already
// revoked key succeeds without changing anything.
func (h *KeysHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	keyID := r.PathValue("id")

	var req RevokeKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "Invalid JSON in request body",
		})
		return
	}

	resp, err := h.Lifecycle.Revoke(ctx, keyID, req.ExpectedVersion, req.Reason, httpx.ActorFromCtx(ctx))
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	out := RevokeKeyResponse{Key: keyInfo(resp.Record)}
	if resp.ActiveRevoked {
		out.Warning = "exchange has no active key"
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleCompromise handles POST /v1/keys/{id}/compromise. A 502 means
// the transition committed but the alert could not be delivered; the
// alert is retried in the background.
func (h *KeysHandler) HandleCompromise(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	keyID := r.PathValue("id")

	var req CompromiseKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "Invalid JSON in request body",
		})
		return
	}

	rec, err := h.Lifecycle.MarkCompromised(ctx, keyID, req.Details, httpx.ActorFromCtx(ctx))
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, keyInfo(*rec))
}

// HandleList handles GET /v1/keys with optional exchange and status
// query filters.
func (h *KeysHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	filter := store.ListFilter{
		Exchange: r.URL.Query().Get("exchange"),
		Status:   domain.Status(r.URL.Query().Get("status")),
	}

	recs, err := h.Lifecycle.ListKeys(ctx, filter)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, ListKeysResponse{Keys: keyInfos(recs)})
}

// HandleGet handles GET /v1/keys/{id}.
func (h *KeysHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	rec, err := h.Lifecycle.GetKey(ctx, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, keyInfo(*rec))
}

// HandleExpiring handles GET /v1/keys/expiring?within_days=N.
func (h *KeysHandler) HandleExpiring(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	raw := r.URL.Query().Get("within_days")
	if raw == "" {
		raw = "7"
	}
	withinDays, err := strconv.Atoi(raw)
	if err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: "within_days must be an integer",
		})
		return
	}

	recs, err := h.Lifecycle.ListExpiring(ctx, withinDays)
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, ListKeysResponse{Keys: keyInfos(recs)})
}

// HandleHistory handles GET /v1/keys/{id}/history.
func (h *KeysHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	entries, err := h.Lifecycle.History(ctx, r.PathValue("id"))
	if err != nil {
		writeServiceError(w, log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, HistoryResponse{Entries: auditEntryInfos(entries)})
}

// HandleTouch handles POST /v1/keys/{id}/touch, the advisory usage
// report from the usage-tracking collaborator.
func (h *KeysHandler) HandleTouch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if err := h.Lifecycle.TouchLastUsed(ctx, r.PathValue("id")); err != nil {
		writeServiceError(w, log, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
